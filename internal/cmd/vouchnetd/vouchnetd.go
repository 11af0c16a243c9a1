// Package vouchnetd parses ledger daemon flags and runs the MCP server over
// stdio against a local sqlite store.
package vouchnetd

import (
	"context"
	"flag"

	"github.com/louisbranch/vouchnet/internal/ledger"
	"github.com/louisbranch/vouchnet/internal/mcptools"
	platformcmd "github.com/louisbranch/vouchnet/internal/platform/cmd"
	"github.com/louisbranch/vouchnet/internal/storage/sqlite"
)

// Config holds ledger daemon configuration.
type Config struct {
	DBPath string `env:"VOUCHNET_DB_PATH" envDefault:"vouchnet.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the sqlite ledger database")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the store and serves the ledger over MCP stdio until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceLedger, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		svc := ledger.NewService(store)
		return mcptools.Run(ctx, svc)
	})
}
