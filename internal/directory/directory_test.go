// Package directory tests cover lookup and idempotent provisioning.
package directory

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"duressauth/internal/db"
	"duressauth/internal/secret"
)

func testVerifier() *secret.Verifier {
	return secret.NewVerifier("pepper", secret.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32})
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// TestSeedAndResolve provisions an account and resolves it.
func TestSeedAndResolve(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	dir := New(d)

	err := dir.Seed(ctx, testVerifier(), []SeedAccount{{Reference: "CUST-1", PIN: "1234", DuressPIN: "9876"}})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	a, err := dir.Resolve(ctx, "CUST-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.PINHash == "" || a.DuressPINHash == "" || a.PINHash == a.DuressPINHash {
		t.Fatalf("account hashes not provisioned correctly: %+v", a)
	}

	if _, err := dir.Resolve(ctx, "CUST-404"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("Resolve(unknown) err = %v, want ErrAccountNotFound", err)
	}
}

// TestSeedIdempotent confirms repeated and concurrent seeding yields
// exactly one account record.
func TestSeedIdempotent(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	dir := New(d)
	accounts := []SeedAccount{{Reference: "CUST-1", PIN: "1234", DuressPIN: "9876"}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dir.Seed(ctx, testVerifier(), accounts); err != nil {
				t.Errorf("Seed: %v", err)
			}
		}()
	}
	wg.Wait()
	if err := dir.Seed(ctx, testVerifier(), accounts); err != nil {
		t.Fatalf("Seed again: %v", err)
	}

	n, err := d.CountAccounts(ctx)
	if err != nil {
		t.Fatalf("CountAccounts: %v", err)
	}
	if n != 1 {
		t.Fatalf("accounts = %d, want 1", n)
	}
}

// TestSeedFreshDirectoryAfterMarker confirms a second process-style
// Seed (new Directory, same database) stays a no-op.
func TestSeedFreshDirectoryAfterMarker(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	if err := New(d).Seed(ctx, testVerifier(), []SeedAccount{{Reference: "CUST-1", PIN: "1234", DuressPIN: "9876"}}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := New(d).Seed(ctx, testVerifier(), []SeedAccount{{Reference: "CUST-2", PIN: "1111", DuressPIN: "2222"}}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	n, err := d.CountAccounts(ctx)
	if err != nil {
		t.Fatalf("CountAccounts: %v", err)
	}
	if n != 1 {
		t.Fatalf("accounts = %d, want 1 (seeded marker should gate re-provisioning)", n)
	}
}
