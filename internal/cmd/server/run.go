// Package server implements the `duressd server` subcommand.
package server

import (
	"context"
	"flag"
	"fmt"

	"duressauth/internal/config"
	"duressauth/internal/daemon"
	"duressauth/internal/directory"
	"duressauth/internal/logging"
	"duressauth/internal/version"
)

func Run(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	var (
		configPath  = fs.String("config", "", "path to duressauth.yaml (when set, other flags are ignored)")
		showVersion = fs.Bool("version", false, "print version and exit")
		logLevel    = fs.String("log-level", "info", "log level: debug|info|warning|error")
		dbPath      = fs.String("db", "./data/duressauth.db", "sqlite database path")
		backend     = fs.String("ledger-backend", "sqlite", "ledger backend: sqlite|file")
		ledgerPath  = fs.String("ledger-path", "./data/ledger.jsonl", "ledger jsonl path (file backend)")
		bindAddr    = fs.String("bind", "127.0.0.1", "bind address")
		port        = fs.Int("port", 5147, "HTTP port")
		adminToken  = fs.String("admin-token", "", "bearer token for admin endpoints (empty disables them)")
		pepper      = fs.String("pepper", "dev_pepper", "process-wide PIN pepper")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("duressd server %s\n", version.Version)
		return nil
	}

	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		lg, _, err := logging.New(logging.Options{Level: c.Log.Level, JSON: c.Log.JSON, DefaultSlog: true})
		if err != nil {
			return err
		}
		seed := make([]directory.SeedAccount, 0, len(c.Seed))
		for _, s := range c.Seed {
			seed = append(seed, directory.SeedAccount{Reference: s.Reference, PIN: s.PIN, DuressPIN: s.DuressPIN})
		}
		return daemon.Run(context.Background(), daemon.Options{
			DBPath:        c.DB.Path,
			LedgerBackend: c.Ledger.Backend,
			LedgerPath:    c.Ledger.Path,
			LedgerTail:    c.Ledger.Tail,
			BindAddr:      c.HTTP.Bind,
			Port:          c.HTTP.Port,
			TLSCertPath:   c.HTTP.TLS.CertPath,
			TLSKeyPath:    c.HTTP.TLS.KeyPath,
			Pepper:        c.Auth.Pepper,
			AdminToken:    c.Auth.AdminToken,
			Seed:          seed,
			Logger:        lg,
		})
	}

	lg, _, err := logging.New(logging.Options{Level: *logLevel, DefaultSlog: true})
	if err != nil {
		return err
	}
	return daemon.Run(context.Background(), daemon.Options{
		DBPath:        *dbPath,
		LedgerBackend: *backend,
		LedgerPath:    *ledgerPath,
		LedgerTail:    200,
		BindAddr:      *bindAddr,
		Port:          *port,
		Pepper:        *pepper,
		AdminToken:    *adminToken,
		Logger:        lg,
	})
}
