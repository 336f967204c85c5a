// Package status implements the `duressd status` subcommand: a quick
// operator view of sessions, incidents, and the ledger tail over the
// admin API of a running server.
package status

import (
	"flag"
	"fmt"
	"time"

	"duressauth/internal/adminapi"
)

func Run(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	var (
		addr     = fs.String("addr", "http://127.0.0.1:5147", "server address")
		token    = fs.String("admin-token", "", "admin bearer token")
		insecure = fs.Bool("insecure", false, "skip TLS certificate verification")
		verify   = fs.Bool("verify", false, "also run a ledger integrity check")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := adminapi.NewClient(adminapi.ClientOptions{
		Addr:     *addr,
		Token:    *token,
		Insecure: *insecure,
	})
	if err != nil {
		return err
	}

	state, err := c.State()
	if err != nil {
		return fmt.Errorf("fetch admin state: %w", err)
	}

	active, duress, ended := 0, 0, 0
	for _, s := range state.Sessions {
		switch s.Status {
		case "ACTIVE":
			active++
		case "DURESS":
			duress++
		case "ENDED":
			ended++
		}
	}
	fmt.Printf("sessions: %d active, %d duress, %d ended\n", active, duress, ended)
	fmt.Printf("incidents: %d\n", len(state.Incidents))
	for _, inc := range state.Incidents {
		fmt.Printf("  %s  %s  session=%s  %s\n",
			time.UnixMilli(inc.CreatedAt).Format(time.RFC3339), inc.Kind, inc.SessionID, inc.Note)
	}
	fmt.Printf("ledger tail: %d entries\n", len(state.Ledger))
	for _, e := range state.Ledger {
		fmt.Printf("  %s  %-12s  session=%s\n",
			time.UnixMilli(e.TS).Format(time.RFC3339), e.Type, e.SessionID)
	}

	if *verify {
		if err := c.VerifyLedger(); err != nil {
			return fmt.Errorf("ledger verification failed: %w", err)
		}
		fmt.Println("ledger ok: chain intact")
	}
	return nil
}
