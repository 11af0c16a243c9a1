// Package main starts the vouchnet ledger daemon on MCP stdio.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/vouchnet/internal/cmd/vouchnetd"
)

func main() {
	cfg, err := vouchnetd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[vouchnetd] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := vouchnetd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve ledger: %v", err)
	}
}
