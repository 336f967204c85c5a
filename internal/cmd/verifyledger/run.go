// Package verifyledger implements the `duressd verify-ledger`
// subcommand: a full offline integrity check of the hash chain.
package verifyledger

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"duressauth/internal/db"
	"duressauth/internal/ledger"
)

func Run(args []string) error {
	fs := flag.NewFlagSet("verify-ledger", flag.ContinueOnError)
	var (
		dbPath     = fs.String("db", "./data/duressauth.db", "sqlite database path")
		backend    = fs.String("ledger-backend", "sqlite", "ledger backend: sqlite|file")
		ledgerPath = fs.String("ledger-path", "./data/ledger.jsonl", "ledger jsonl path (file backend)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	var entries []ledger.Entry
	switch *backend {
	case "sqlite":
		d, err := db.Open(ctx, *dbPath)
		if err != nil {
			return err
		}
		defer d.Close()
		entries, err = d.LedgerStore().All(ctx)
		if err != nil {
			return err
		}
	case "file":
		st, err := ledger.OpenFileStore(*ledgerPath)
		if err != nil {
			return err
		}
		defer st.Close()
		entries, err = st.All(ctx)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", *backend)
	}

	if err := ledger.Verify(entries); err != nil {
		var ie *ledger.IntegrityError
		if errors.As(err, &ie) {
			return fmt.Errorf("chain broken at entry %d: %s", ie.Index, ie.Reason)
		}
		return err
	}
	fmt.Printf("ledger ok: %d entries, chain intact\n", len(entries))
	return nil
}
