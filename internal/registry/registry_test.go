// Package registry tests cover session lifecycle and ledger rebuild.
package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"duressauth/internal/ledger"
)

// TestCreateAndListOrder confirms insertion order is preserved.
func TestCreateAndListOrder(t *testing.T) {
	r := New()
	a := r.CreateSession("acct_1", StatusActive)
	b := r.CreateSession("acct_2", StatusDuress)

	got := r.Sessions()
	if len(got) != 2 {
		t.Fatalf("sessions = %d, want 2", len(got))
	}
	if got[0].ID != a.ID || got[1].ID != b.ID {
		t.Fatalf("sessions not in insertion order")
	}
	if s, ok := r.Get(b.ID); !ok || s.Status != StatusDuress {
		t.Fatalf("Get(%s) = %+v, %v", b.ID, s, ok)
	}
}

// TestTransitionRules allows only ACTIVE→ENDED and DURESS→ENDED.
func TestTransitionRules(t *testing.T) {
	r := New()
	active := r.CreateSession("acct_1", StatusActive)
	duress := r.CreateSession("acct_1", StatusDuress)

	if _, err := r.Transition(active.ID, StatusEnded); err != nil {
		t.Fatalf("ACTIVE→ENDED: %v", err)
	}
	if _, err := r.Transition(duress.ID, StatusEnded); err != nil {
		t.Fatalf("DURESS→ENDED: %v", err)
	}
	// A duress session must never be quietly un-duressed.
	other := r.CreateSession("acct_1", StatusDuress)
	if _, err := r.Transition(other.ID, StatusActive); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("DURESS→ACTIVE err = %v, want ErrBadTransition", err)
	}
	if _, err := r.Transition(active.ID, StatusEnded); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("ENDED→ENDED err = %v, want ErrBadTransition", err)
	}
	if _, err := r.Transition("sess_missing", StatusEnded); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id err = %v, want ErrNotFound", err)
	}
}

// TestDiscard removes only the staged records it is given.
func TestDiscard(t *testing.T) {
	r := New()
	keep := r.CreateSession("acct_1", StatusActive)
	gone := r.CreateSession("acct_1", StatusDuress)
	inc := r.AddIncident(gone.ID, "acct_1", KindDuress, "duress PIN used")

	r.Discard(gone.ID, inc.ID)

	if _, ok := r.Get(gone.ID); ok {
		t.Fatalf("discarded session still visible")
	}
	if len(r.Incidents()) != 0 {
		t.Fatalf("discarded incident still visible")
	}
	if _, ok := r.Get(keep.ID); !ok {
		t.Fatalf("unrelated session was discarded")
	}
}

// TestRebuild reconstructs sessions and incidents from ledger entries.
func TestRebuild(t *testing.T) {
	duressData, _ := json.Marshal(map[string]string{
		"reference":  "redacted",
		"incidentId": "inc_1",
		"note":       "duress PIN used",
	})
	entries := []ledger.Entry{
		{ID: "led_1", TS: 100, Type: ledger.TypeLoginOK, SessionID: "sess_1", AccountID: "acct_1"},
		{ID: "led_2", TS: 200, Type: ledger.TypeLoginDuress, SessionID: "sess_2", AccountID: "acct_2", Data: duressData},
		{ID: "led_3", TS: 300, Type: ledger.TypeVerify, SessionID: "sess_2", AccountID: "acct_2"},
		{ID: "led_4", TS: 400, Type: ledger.TypeEndSession, SessionID: "sess_1", AccountID: "acct_1"},
	}

	r := Rebuild(entries)

	sessions := r.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0].ID != "sess_1" || sessions[0].Status != StatusEnded {
		t.Fatalf("sess_1 = %+v, want ENDED", sessions[0])
	}
	if sessions[1].ID != "sess_2" || sessions[1].Status != StatusDuress || sessions[1].CreatedAt != 200 {
		t.Fatalf("sess_2 = %+v, want DURESS created at 200", sessions[1])
	}

	incidents := r.Incidents()
	if len(incidents) != 1 {
		t.Fatalf("incidents = %d, want 1", len(incidents))
	}
	if incidents[0].ID != "inc_1" || incidents[0].SessionID != "sess_2" || incidents[0].Kind != KindDuress {
		t.Fatalf("incident = %+v", incidents[0])
	}
}
