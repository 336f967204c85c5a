package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"duressauth/internal/ledger"
)

// LedgerStore implements ledger.Store on top of the ledger_entries
// table. Row order (seq) is append order; the chain linkage itself is
// still enforced against the last persisted row on every insert.
type LedgerStore struct {
	d *DB
}

// LedgerStore returns the SQLite-backed ledger store for this database.
func (d *DB) LedgerStore() *LedgerStore {
	return &LedgerStore{d: d}
}

// Append inserts one entry inside a transaction, rejecting writes whose
// prevHash does not match the stored tail.
func (s *LedgerStore) Append(ctx context.Context, e ledger.Entry) error {
	tx, err := s.d.sql.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var tailHash sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT hash FROM ledger_entries ORDER BY seq DESC LIMIT 1`).Scan(&tailHash)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	want := ledger.GenesisHash
	if tailHash.Valid {
		want = tailHash.String
	}
	if e.PrevHash != want {
		return fmt.Errorf("out-of-order append: prevHash %q does not match tail", e.PrevHash)
	}

	var data any
	if len(e.Data) > 0 {
		data = string(e.Data)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_entries(id, ts, type, session_id, account_id, data, prev_hash, hash)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
`, e.ID, e.TS, string(e.Type), nullable(e.SessionID), nullable(e.AccountID), data, e.PrevHash, e.Hash); err != nil {
		return err
	}
	return tx.Commit()
}

// Last returns the most recently appended entry, if any.
func (s *LedgerStore) Last(ctx context.Context) (ledger.Entry, bool, error) {
	row := s.d.sql.QueryRowContext(ctx, `
SELECT id, ts, type, session_id, account_id, data, prev_hash, hash
FROM ledger_entries ORDER BY seq DESC LIMIT 1
`)
	e, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

// Tail returns the last n entries in append order.
func (s *LedgerStore) Tail(ctx context.Context, n int) ([]ledger.Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.d.sql.QueryContext(ctx, `
SELECT id, ts, type, session_id, account_id, data, prev_hash, hash
FROM (
  SELECT seq, id, ts, type, session_id, account_id, data, prev_hash, hash
  FROM ledger_entries ORDER BY seq DESC LIMIT ?
) ORDER BY seq ASC
`, n)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// All returns every entry in append order.
func (s *LedgerStore) All(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := s.d.sql.QueryContext(ctx, `
SELECT id, ts, type, session_id, account_id, data, prev_hash, hash
FROM ledger_entries ORDER BY seq ASC
`)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// Count reports the number of persisted entries.
func (s *LedgerStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func collectEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	defer rows.Close()
	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(scan func(...any) error) (ledger.Entry, error) {
	var e ledger.Entry
	var typ string
	var sessionID, accountID, data sql.NullString
	if err := scan(&e.ID, &e.TS, &typ, &sessionID, &accountID, &data, &e.PrevHash, &e.Hash); err != nil {
		return ledger.Entry{}, err
	}
	e.Type = ledger.Type(typ)
	e.SessionID = sessionID.String
	e.AccountID = accountID.String
	if data.Valid && data.String != "" {
		e.Data = json.RawMessage(data.String)
	}
	return e, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
