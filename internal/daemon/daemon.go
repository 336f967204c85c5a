// Package daemon wires storage, the ledger, the registry, and the HTTP
// API into a running service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"duressauth/internal/authn"
	"duressauth/internal/db"
	"duressauth/internal/directory"
	"duressauth/internal/httpapi"
	"duressauth/internal/ledger"
	"duressauth/internal/registry"
	"duressauth/internal/secret"
)

type Options struct {
	DBPath        string
	LedgerBackend string // sqlite | file
	LedgerPath    string // file backend only
	LedgerTail    int

	BindAddr    string
	Port        int
	TLSCertPath string
	TLSKeyPath  string

	Pepper     string
	AdminToken string
	Seed       []directory.SeedAccount

	Logger *slog.Logger
}

// Run starts the daemon and blocks until the context is canceled or the
// server fails. The session registry is rebuilt from the persisted
// ledger on every boot; the ledger, not the registry, is the system of
// record.
func Run(ctx context.Context, opt Options) error {
	if opt.DBPath == "" {
		return errors.New("db path is required")
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}

	d, err := db.Open(ctx, opt.DBPath)
	if err != nil {
		return err
	}
	defer d.Close()

	var store ledger.Store
	switch opt.LedgerBackend {
	case "", "sqlite":
		store = d.LedgerStore()
	case "file":
		fs, err := ledger.OpenFileStore(opt.LedgerPath)
		if err != nil {
			return err
		}
		defer fs.Close()
		store = fs
	default:
		return fmt.Errorf("unknown ledger backend %q", opt.LedgerBackend)
	}

	led, err := ledger.Open(ctx, store)
	if err != nil {
		return err
	}
	if err := led.VerifyChain(ctx); err != nil {
		// A broken chain means the audit trail cannot be trusted.
		// Refuse to serve rather than continue on a tampered ledger.
		return fmt.Errorf("ledger failed integrity check: %w", err)
	}

	entries, err := store.All(ctx)
	if err != nil {
		return fmt.Errorf("load ledger for registry rebuild: %w", err)
	}
	reg := registry.Rebuild(entries)

	ver := secret.NewVerifier(opt.Pepper, secret.DefaultParams())
	dir := directory.New(d)
	if len(opt.Seed) > 0 {
		if err := dir.Seed(ctx, ver, opt.Seed); err != nil {
			return fmt.Errorf("seed accounts: %w", err)
		}
	}

	auth := authn.New(dir, ver, reg, led, opt.Logger)
	api := &httpapi.Server{
		Auth:       auth,
		Logger:     opt.Logger,
		BindAddr:   opt.BindAddr,
		Port:       opt.Port,
		AdminToken: opt.AdminToken,
		LedgerTail: opt.LedgerTail,
		CertPath:   opt.TLSCertPath,
		KeyPath:    opt.TLSKeyPath,
	}

	srv := &http.Server{
		Addr:              opt.BindAddr + ":" + strconv.Itoa(opt.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		opt.Logger.Info("listening", "addr", srv.Addr, "ledger_backend", opt.LedgerBackend, "entries", led.Len())
		if api.CertPath != "" && api.KeyPath != "" {
			errCh <- srv.ListenAndServeTLS(api.CertPath, api.KeyPath)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
