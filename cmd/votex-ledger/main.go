package main

import (
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"votex-ledger/config"
	"votex-ledger/logger"
)

// env is what Before hands to every command.
type env struct {
	cfg *config.Config
	log logger.Logger
}

func main() {
	rt := &env{}

	app := &cli.App{
		Name:  "votex-ledger",
		Usage: "Simulate, audit and prove votes on a quorum-admitted hash chain",
		Commands: []*cli.Command{
			SimulateCommand(rt),
			AuditCommand(rt),
			ProofCommand(rt),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path; built-in defaults when empty",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override logger.level",
			},
		},
		Before: func(c *cli.Context) error {
			cfg := config.Default()
			if path := c.String("config"); path != "" {
				loaded, err := config.Load(path)
				if err != nil {
					return errors.Wrap(err, "failure to load votex-ledger configuration file")
				}
				cfg = *loaded
			}
			if level := c.String("log-level"); level != "" {
				cfg.Logger.Level = level
			}

			l, err := logger.Factory(cfg.Logger)
			if err != nil {
				return errors.Wrap(err, "failure to initialize logger")
			}

			rt.cfg = &cfg
			rt.log = l
			l.Debug("Configuration loaded",
				"environment", cfg.Logger.Environment,
				"level", cfg.Logger.Level,
				"hash", cfg.Ledger.Hash,
				"difficulty", cfg.Ledger.Difficulty,
			)
			return nil
		},
		After: func(c *cli.Context) error {
			if s, ok := rt.log.(interface{ Sync() error }); ok {
				return s.Sync()
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("failure while running votex-ledger: %v", err)
	}
}
