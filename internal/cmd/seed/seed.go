// Package seed parses seed command flags and populates a local ledger
// database with demo data.
package seed

import (
	"context"
	"flag"
	"os"

	"github.com/louisbranch/vouchnet/internal/ledger"
	platformcmd "github.com/louisbranch/vouchnet/internal/platform/cmd"
	"github.com/louisbranch/vouchnet/internal/seed"
	"github.com/louisbranch/vouchnet/internal/storage/sqlite"
)

// Config holds seed command configuration.
type Config struct {
	DBPath    string `env:"VOUCHNET_DB_PATH" envDefault:"vouchnet.db"`
	Authority string `env:"VOUCHNET_SEED_AUTHORITY" envDefault:"agent-atlas"`
	Verbose   bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the sqlite ledger database")
	fs.StringVar(&cfg.Authority, "authority", cfg.Authority, "agent seeded as the ledger authority")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose output")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run seeds the configured database with demo data.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceSeed, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		svc := ledger.NewService(store)
		return seed.Run(ctx, svc, seed.Config{
			Authority: cfg.Authority,
			Verbose:   cfg.Verbose,
			Out:       os.Stderr,
		})
	})
}
