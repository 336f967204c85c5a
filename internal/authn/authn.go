// Package authn orchestrates the login lifecycle: identity resolution,
// PIN verification, session creation, incident creation, and the
// matching ledger append, as one unit.
package authn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"duressauth/internal/directory"
	"duressauth/internal/ledger"
	"duressauth/internal/registry"
	"duressauth/internal/secret"
)

// Outcome is the result of a login attempt that produced a session.
type Outcome string

const (
	OutcomeNormal Outcome = "NORMAL"
	OutcomeDuress Outcome = "DURESS"
)

var (
	// ErrAccountNotFound mirrors directory.ErrAccountNotFound at this boundary.
	ErrAccountNotFound = directory.ErrAccountNotFound
	// ErrInvalidSecret is returned when neither PIN matches. It never
	// reveals which of the two secrets was tested.
	ErrInvalidSecret = errors.New("invalid secret")
	// ErrSessionNotFound is returned for verify/end on unknown sessions.
	ErrSessionNotFound = errors.New("session not found")
)

// Authenticator wires the directory, verifier, registry, and ledger.
type Authenticator struct {
	dir *directory.Directory
	ver *secret.Verifier
	reg *registry.Registry
	led *ledger.Ledger
	log *slog.Logger
}

func New(dir *directory.Directory, ver *secret.Verifier, reg *registry.Registry, led *ledger.Ledger, log *slog.Logger) *Authenticator {
	return &Authenticator{dir: dir, ver: ver, reg: reg, led: led, log: log}
}

// LoginResult is returned for both NORMAL and DURESS outcomes. Callers
// serving the entering party must expose SessionID only; Outcome is for
// internal consumers and must never reach the login response.
type LoginResult struct {
	SessionID string
	CreatedAt int64
	Outcome   Outcome
}

// loginData is the structured payload of login ledger entries. The
// reference is always redacted; the incident id ties a LOGIN_DURESS
// entry to its incident so the registry stays derivable from the ledger.
type loginData struct {
	Reference  string `json:"reference"`
	IncidentID string `json:"incidentId,omitempty"`
	Note       string `json:"note,omitempty"`
}

// Login runs one attempt: resolve → verify normal → verify duress →
// outcome. A FAILed attempt creates no session and no ledger entry.
// Once a PIN has matched, the remaining steps run detached from the
// caller's cancellation: they record security facts, not UI state.
//
// Ordering is session-create (and incident-create on duress), then
// ledger append. If the append fails after retries, the staged registry
// records are discarded and the login reports failure even though the
// PIN matched: an unrecorded security event is worse than a failed login.
func (a *Authenticator) Login(ctx context.Context, reference, pin string) (LoginResult, error) {
	acct, err := a.dir.Resolve(ctx, reference)
	if err != nil {
		return LoginResult{}, err
	}

	ok, err := a.ver.Verify(acct.PINHash, pin)
	if err != nil {
		return LoginResult{}, fmt.Errorf("verify pin: %w", err)
	}
	duress := false
	if !ok {
		ok, err = a.ver.Verify(acct.DuressPINHash, pin)
		if err != nil {
			return LoginResult{}, fmt.Errorf("verify pin: %w", err)
		}
		if !ok {
			return LoginResult{}, ErrInvalidSecret
		}
		duress = true
	}

	ctx = context.WithoutCancel(ctx)

	status := registry.StatusActive
	entryType := ledger.TypeLoginOK
	if duress {
		status = registry.StatusDuress
		entryType = ledger.TypeLoginDuress
	}
	sess := a.reg.CreateSession(acct.ID, status)

	data := loginData{Reference: "redacted"}
	var incidentID string
	if duress {
		inc := a.reg.AddIncident(sess.ID, acct.ID, registry.KindDuress, "duress PIN used")
		incidentID = inc.ID
		data.IncidentID = inc.ID
		data.Note = inc.Note
	}

	if _, err := a.led.Append(ctx, ledger.AppendInput{
		Type:      entryType,
		SessionID: sess.ID,
		AccountID: acct.ID,
		Data:      data,
	}); err != nil {
		a.reg.Discard(sess.ID, incidentID)
		return LoginResult{}, fmt.Errorf("record login: %w", err)
	}

	if duress {
		a.log.Warn("duress login detected", "session_id", sess.ID, "account_id", acct.ID, "incident_id", incidentID)
	} else {
		a.log.Info("login ok", "session_id", sess.ID, "account_id", acct.ID)
	}

	outcome := OutcomeNormal
	if duress {
		outcome = OutcomeDuress
	}
	return LoginResult{SessionID: sess.ID, CreatedAt: sess.CreatedAt, Outcome: outcome}, nil
}

// VerifyResult reports a session's current state.
type VerifyResult struct {
	Status    registry.Status
	CreatedAt int64
}

// Verify looks up a session and appends a VERIFY entry recording the
// check itself. Every status check is an audited event.
func (a *Authenticator) Verify(ctx context.Context, sessionID string) (VerifyResult, error) {
	sess, ok := a.reg.Get(sessionID)
	if !ok {
		return VerifyResult{}, ErrSessionNotFound
	}
	if _, err := a.led.Append(context.WithoutCancel(ctx), ledger.AppendInput{
		Type:      ledger.TypeVerify,
		SessionID: sess.ID,
		AccountID: sess.AccountID,
		Data:      map[string]any{"status": sess.Status},
	}); err != nil {
		return VerifyResult{}, fmt.Errorf("record verify: %w", err)
	}
	return VerifyResult{Status: sess.Status, CreatedAt: sess.CreatedAt}, nil
}

// EndSession transitions a session to ENDED and appends the matching
// END_SESSION entry. The transition claims the session first so racing
// calls cannot double-end it; if the append then fails, the transition
// is compensated and the error surfaced.
func (a *Authenticator) EndSession(ctx context.Context, sessionID string) error {
	sess, ok := a.reg.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	prev := sess.Status
	if _, err := a.reg.Transition(sessionID, registry.StatusEnded); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if _, err := a.led.Append(context.WithoutCancel(ctx), ledger.AppendInput{
		Type:      ledger.TypeEndSession,
		SessionID: sess.ID,
		AccountID: sess.AccountID,
	}); err != nil {
		a.reg.Restore(sessionID, prev)
		return fmt.Errorf("record end-session: %w", err)
	}
	return nil
}

// AdminState is the read-only projection served to the dashboard.
type AdminState struct {
	Sessions  []registry.Session
	Incidents []registry.Incident
	Ledger    []ledger.Entry
}

// AdminState snapshots sessions, incidents, and the last tailN ledger
// entries. Reads run concurrently with appends.
func (a *Authenticator) AdminState(ctx context.Context, tailN int) (AdminState, error) {
	tail, err := a.led.ReadTail(ctx, tailN)
	if err != nil {
		return AdminState{}, fmt.Errorf("read ledger tail: %w", err)
	}
	return AdminState{
		Sessions:  a.reg.Sessions(),
		Incidents: a.reg.Incidents(),
		Ledger:    tail,
	}, nil
}

// VerifyChain runs the full ledger integrity check.
func (a *Authenticator) VerifyChain(ctx context.Context) error {
	return a.led.VerifyChain(ctx)
}
