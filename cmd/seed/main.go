// Command seed loads wallets and recurrence rules from a YAML file into the
// SQLite database.
//
// Usage:
//
//	seed [-file seed.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"ricorrenti/internal/cli"
	applog "ricorrenti/internal/log"
	"ricorrenti/internal/seed"
)

func main() {
	file := flag.String("file", "", "seed file (default: $SEED_FILE)")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentSeed)

	if *file == "" {
		*file = os.Getenv("SEED_FILE")
	}
	if *file == "" {
		cli.Fatal(logger, "No seed file", errors.New("pass -file or set SEED_FILE"))
	}

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	f, err := seed.LoadFile(*file)
	if err != nil {
		cli.Fatal(logger, "Failed to load seed file", err, "path", *file)
	}
	res, err := seed.Apply(context.Background(), repo, f)
	if err != nil {
		cli.Fatal(logger, "Failed to apply seed file", err, "path", *file)
	}

	logger.Info("Seed applied",
		"path", *file,
		"wallets_created", res.WalletsCreated,
		"rules_created", res.RulesCreated,
		"rules_skipped", res.RulesSkipped)
}
