// Package seed implements the `duressd seed` subcommand, provisioning
// accounts out-of-band.
package seed

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"duressauth/internal/db"
	"duressauth/internal/directory"
	"duressauth/internal/secret"
	"duressauth/internal/validate"
)

func Run(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	var (
		dbPath    = fs.String("db", "./data/duressauth.db", "sqlite database path")
		reference = fs.String("reference", "", "customer reference to provision")
		pin       = fs.String("pin", "", "normal PIN")
		duressPIN = fs.String("duress-pin", "", "duress PIN")
		pepper    = fs.String("pepper", "dev_pepper", "process-wide PIN pepper (must match the server's)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validate.Reference(*reference); err != nil {
		return err
	}
	if err := validate.PIN(*pin); err != nil {
		return fmt.Errorf("pin: %w", err)
	}
	if err := validate.PIN(*duressPIN); err != nil {
		return fmt.Errorf("duress pin: %w", err)
	}
	if *pin == *duressPIN {
		return errors.New("pin and duress pin must differ")
	}

	ctx := context.Background()
	d, err := db.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer d.Close()

	ver := secret.NewVerifier(*pepper, secret.DefaultParams())
	dir := directory.New(d)
	if err := dir.Seed(ctx, ver, []directory.SeedAccount{
		{Reference: *reference, PIN: *pin, DuressPIN: *duressPIN},
	}); err != nil {
		return err
	}
	fmt.Printf("provisioned %s\n", *reference)
	return nil
}
