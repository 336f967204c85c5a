package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// nowUnix returns the current Unix timestamp in seconds.
func nowUnix() int64 { return time.Now().Unix() }

// GetConfig fetches a single config key from the database.
// The boolean indicates whether the key exists.
func (d *DB) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := d.sql.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&v)
	if err == nil {
		return v, true, nil
	}
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	return "", false, err
}

// SetConfig upserts a config key/value pair and updates its timestamp.
func (d *DB) SetConfig(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("config key is required")
	}
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO config(key, value, updated_at) VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
`, key, value, nowUnix())
	return err
}

// IsSeeded reports whether initial account provisioning has completed.
func (d *DB) IsSeeded(ctx context.Context) (bool, error) {
	v, ok, err := d.GetConfig(ctx, "seeded")
	if err != nil {
		return false, err
	}
	return ok && v == "1", nil
}

// SetSeeded marks initial account provisioning as complete.
func (d *DB) SetSeeded(ctx context.Context) error {
	return d.SetConfig(ctx, "seeded", "1")
}

// CreateAccount inserts a new account. A duplicate reference is a no-op
// and reports inserted=false, which makes provisioning idempotent.
func (d *DB) CreateAccount(ctx context.Context, a Account) (bool, error) {
	if a.ID == "" || a.Reference == "" || a.PINHash == "" || a.DuressPINHash == "" {
		return false, errors.New("account id, reference, and both pin hashes are required")
	}
	res, err := d.sql.ExecContext(ctx, `
INSERT INTO accounts(id, reference, pin_hash, duress_pin_hash, created_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(reference) DO NOTHING
`, a.ID, a.Reference, a.PINHash, a.DuressPINHash, nowUnix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetAccountByReference looks up an account by its customer reference.
func (d *DB) GetAccountByReference(ctx context.Context, reference string) (*Account, bool, error) {
	var a Account
	err := d.sql.QueryRowContext(ctx, `
SELECT id, reference, pin_hash, duress_pin_hash, created_at
FROM accounts WHERE reference=?
`, reference).Scan(&a.ID, &a.Reference, &a.PINHash, &a.DuressPINHash, &a.CreatedAt)
	if err == nil {
		return &a, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// CountAccounts returns the number of provisioned accounts.
func (d *DB) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
