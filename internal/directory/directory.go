// Package directory resolves customer references to provisioned accounts.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"duressauth/internal/db"
	"duressauth/internal/secret"
)

// ErrAccountNotFound is returned when no account matches a reference.
var ErrAccountNotFound = errors.New("account not found")

// SeedAccount describes one account to provision with plaintext PINs.
// PINs are hashed before they touch storage.
type SeedAccount struct {
	Reference string
	PIN       string
	DuressPIN string
}

// Directory is a read-only account lookup with one-time provisioning.
type Directory struct {
	db       *db.DB
	seedOnce sync.Once
	seedErr  error
}

func New(d *db.DB) *Directory {
	return &Directory{db: d}
}

// Resolve returns the account for a customer reference. Pure lookup, no
// side effects.
func (dir *Directory) Resolve(ctx context.Context, reference string) (*db.Account, error) {
	a, ok, err := dir.db.GetAccountByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

// Seed provisions the given accounts at most once per process. Repeated
// calls, including concurrent first calls, are no-ops returning the
// first outcome. Across processes the unique reference constraint and
// the seeded marker keep provisioning idempotent as well.
func (dir *Directory) Seed(ctx context.Context, hasher *secret.Verifier, accounts []SeedAccount) error {
	dir.seedOnce.Do(func() {
		dir.seedErr = dir.seed(ctx, hasher, accounts)
	})
	return dir.seedErr
}

func (dir *Directory) seed(ctx context.Context, hasher *secret.Verifier, accounts []SeedAccount) error {
	done, err := dir.db.IsSeeded(ctx)
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	for _, sa := range accounts {
		if sa.Reference == "" || sa.PIN == "" || sa.DuressPIN == "" {
			return errors.New("seed account needs reference, pin, and duress pin")
		}
		if sa.PIN == sa.DuressPIN {
			return fmt.Errorf("seed account %s: pin and duress pin must differ", sa.Reference)
		}
		ph, err := hasher.Hash(sa.PIN)
		if err != nil {
			return fmt.Errorf("hash pin for %s: %w", sa.Reference, err)
		}
		dh, err := hasher.Hash(sa.DuressPIN)
		if err != nil {
			return fmt.Errorf("hash duress pin for %s: %w", sa.Reference, err)
		}
		if _, err := dir.db.CreateAccount(ctx, db.Account{
			ID:            "acct_" + uuid.NewString(),
			Reference:     sa.Reference,
			PINHash:       ph,
			DuressPINHash: dh,
		}); err != nil {
			return fmt.Errorf("provision %s: %w", sa.Reference, err)
		}
	}
	return dir.db.SetSeeded(ctx)
}
