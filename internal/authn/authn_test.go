// Package authn tests cover the login state machine against the
// ledger and registry.
package authn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"duressauth/internal/db"
	"duressauth/internal/directory"
	"duressauth/internal/ledger"
	"duressauth/internal/registry"
	"duressauth/internal/secret"
)

type fixture struct {
	auth *Authenticator
	reg  *registry.Registry
	led  *ledger.Ledger
}

// newFixture builds a full stack with one seeded account:
// CUST-1, normal PIN 1234, duress PIN 9876.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	d, err := db.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ver := secret.NewVerifier("pepper", secret.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32})
	dir := directory.New(d)
	if err := dir.Seed(ctx, ver, []directory.SeedAccount{{Reference: "CUST-1", PIN: "1234", DuressPIN: "9876"}}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	st, err := ledger.OpenFileStore(filepath.Join(t.TempDir(), "ledger.jsonl"))
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	led, err := ledger.Open(ctx, st)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}

	reg := registry.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{auth: New(dir, ver, reg, led, log), reg: reg, led: led}
}

// TestLoginNormal checks a correct PIN yields ACTIVE session + LOGIN_OK.
func TestLoginNormal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.auth.Login(ctx, "CUST-1", "1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Outcome != OutcomeNormal {
		t.Fatalf("outcome = %s, want NORMAL", res.Outcome)
	}

	sess, ok := f.reg.Get(res.SessionID)
	if !ok || sess.Status != registry.StatusActive {
		t.Fatalf("session = %+v, %v; want ACTIVE", sess, ok)
	}
	if len(f.reg.Incidents()) != 0 {
		t.Fatalf("normal login must not create incidents")
	}
	tail, err := f.led.ReadTail(ctx, 10)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if len(tail) != 1 || tail[0].Type != ledger.TypeLoginOK || tail[0].SessionID != res.SessionID {
		t.Fatalf("tail = %+v, want one LOGIN_OK for the session", tail)
	}
}

// TestLoginDuress checks the duress PIN creates a DURESS session, one
// incident, and one LOGIN_DURESS entry, while looking like a success.
func TestLoginDuress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.auth.Login(ctx, "CUST-1", "9876")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Outcome != OutcomeDuress {
		t.Fatalf("outcome = %s, want DURESS", res.Outcome)
	}
	if res.SessionID == "" {
		t.Fatalf("duress login must return a session id like a normal login")
	}

	sess, ok := f.reg.Get(res.SessionID)
	if !ok || sess.Status != registry.StatusDuress {
		t.Fatalf("session = %+v, %v; want DURESS", sess, ok)
	}
	incidents := f.reg.Incidents()
	if len(incidents) != 1 || incidents[0].Kind != registry.KindDuress || incidents[0].SessionID != res.SessionID {
		t.Fatalf("incidents = %+v, want one DURESS incident for the session", incidents)
	}
	tail, err := f.led.ReadTail(ctx, 10)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if len(tail) != 1 || tail[0].Type != ledger.TypeLoginDuress {
		t.Fatalf("tail = %+v, want one LOGIN_DURESS", tail)
	}
}

// TestLoginWrongPIN checks a bad PIN leaves no trace at all.
func TestLoginWrongPIN(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.auth.Login(ctx, "CUST-1", "0000"); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("err = %v, want ErrInvalidSecret", err)
	}
	if len(f.reg.Sessions()) != 0 {
		t.Fatalf("failed login must not create a session")
	}
	if f.led.Len() != 0 {
		t.Fatalf("failed login must not append a ledger entry")
	}
}

// TestLoginUnknownAccount checks unknown references fail cleanly.
func TestLoginUnknownAccount(t *testing.T) {
	f := newFixture(t)
	if _, err := f.auth.Login(context.Background(), "CUST-404", "1234"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
	if f.led.Len() != 0 {
		t.Fatalf("unknown account must not append a ledger entry")
	}
}

// TestVerifyAppendsEntry checks verify returns the status and records a
// VERIFY entry chained onto the previous tail.
func TestVerifyAppendsEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	login, err := f.auth.Login(ctx, "CUST-1", "1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	tipBefore := f.led.TipHash()

	res, err := f.auth.Verify(ctx, login.SessionID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Status != registry.StatusActive {
		t.Fatalf("status = %s, want ACTIVE", res.Status)
	}

	tail, err := f.led.ReadTail(ctx, 1)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if tail[0].Type != ledger.TypeVerify {
		t.Fatalf("tail type = %s, want VERIFY", tail[0].Type)
	}
	if tail[0].PrevHash != tipBefore {
		t.Fatalf("VERIFY prevHash = %q, want previous tip %q", tail[0].PrevHash, tipBefore)
	}

	if _, err := f.auth.Verify(ctx, "sess_missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

// TestEndSession checks the transition and its END_SESSION entry.
func TestEndSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	login, err := f.auth.Login(ctx, "CUST-1", "1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.auth.EndSession(ctx, login.SessionID); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	sess, _ := f.reg.Get(login.SessionID)
	if sess.Status != registry.StatusEnded {
		t.Fatalf("status = %s, want ENDED", sess.Status)
	}
	tail, err := f.led.ReadTail(ctx, 1)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if tail[0].Type != ledger.TypeEndSession {
		t.Fatalf("tail type = %s, want END_SESSION", tail[0].Type)
	}

	// Ending twice is rejected and leaves no extra entry.
	n := f.led.Len()
	if err := f.auth.EndSession(ctx, login.SessionID); err == nil {
		t.Fatalf("expected second EndSession to fail")
	}
	if f.led.Len() != n {
		t.Fatalf("failed EndSession must not append")
	}
}

// brokenStore fails every append so rollback paths can be observed.
type brokenStore struct{}

func (brokenStore) Append(ctx context.Context, e ledger.Entry) error {
	return errors.New("disk full")
}
func (brokenStore) Last(ctx context.Context) (ledger.Entry, bool, error) {
	return ledger.Entry{}, false, nil
}
func (brokenStore) Tail(ctx context.Context, n int) ([]ledger.Entry, error) { return nil, nil }
func (brokenStore) All(ctx context.Context) ([]ledger.Entry, error)         { return nil, nil }
func (brokenStore) Count(ctx context.Context) (int, error)                  { return 0, nil }

// TestLoginRollsBackOnAppendFailure confirms a login whose ledger write
// fails leaves no session or incident behind.
func TestLoginRollsBackOnAppendFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	led, err := ledger.Open(ctx, brokenStore{})
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	auth := New(f.auth.dir, f.auth.ver, f.reg, led, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := auth.Login(ctx, "CUST-1", "9876"); err == nil {
		t.Fatalf("expected login to fail when the ledger is unavailable")
	}
	if len(f.reg.Sessions()) != 0 {
		t.Fatalf("session survived a failed ledger append")
	}
	if len(f.reg.Incidents()) != 0 {
		t.Fatalf("incident survived a failed ledger append")
	}
}

// TestScenarioSequence replays the full documented scenario and checks
// the chain verifies end to end.
func TestScenarioSequence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.auth.Login(ctx, "CUST-1", "1234"); err != nil {
		t.Fatalf("normal login: %v", err)
	}
	if _, err := f.auth.Login(ctx, "CUST-1", "9876"); err != nil {
		t.Fatalf("duress login: %v", err)
	}
	if _, err := f.auth.Login(ctx, "CUST-1", "0000"); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("wrong pin err = %v", err)
	}

	if got := len(f.reg.Sessions()); got != 2 {
		t.Fatalf("sessions = %d, want 2", got)
	}
	if got := len(f.reg.Incidents()); got != 1 {
		t.Fatalf("incidents = %d, want 1", got)
	}
	if got := f.led.Len(); got != 2 {
		t.Fatalf("ledger length = %d, want 2", got)
	}
	if err := f.auth.VerifyChain(ctx); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}

	state, err := f.auth.AdminState(ctx, 200)
	if err != nil {
		t.Fatalf("AdminState: %v", err)
	}
	if len(state.Sessions) != 2 || len(state.Incidents) != 1 || len(state.Ledger) != 2 {
		t.Fatalf("admin state = %d sessions, %d incidents, %d entries", len(state.Sessions), len(state.Incidents), len(state.Ledger))
	}
}
