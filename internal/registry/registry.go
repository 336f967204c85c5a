// Package registry holds the in-memory table of sessions and incidents.
//
// The registry is a projection for display and lookups; the ledger is
// authoritative. Rebuild reconstructs the whole registry from ledger
// entries, and nothing here is ever physically removed except through
// the append-failure compensation used by the authenticator.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusDuress Status = "DURESS"
	StatusEnded  Status = "ENDED"
)

// Kind classifies an incident.
type Kind string

const (
	KindDuress Kind = "DURESS"
	KindInfo   Kind = "INFO"
)

// Session is one authentication session. Sessions are never deleted,
// only marked ENDED, so they stay correlatable with incidents and
// ledger entries.
type Session struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	CreatedAt int64  `json:"createdAt"` // unix millis
	Status    Status `json:"status"`
}

// Incident records a detected duress event. Immutable after creation.
type Incident struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	AccountID string `json:"accountId"`
	Kind      Kind   `json:"kind"`
	CreatedAt int64  `json:"createdAt"`
	Note      string `json:"note,omitempty"`
}

// ErrNotFound is returned for lookups of unknown session ids.
var ErrNotFound = errors.New("session not found")

// ErrBadTransition is returned for any transition other than
// ACTIVE→ENDED or DURESS→ENDED. Rejecting these loudly keeps a display
// bug from ever "un-duressing" a session.
var ErrBadTransition = errors.New("illegal session transition")

// Registry is the process-wide session/incident table. It is owned by
// whoever constructs it and passed by handle; there is no ambient state.
type Registry struct {
	mu        sync.RWMutex
	sessions  []*Session
	byID      map[string]*Session
	incidents []*Incident
	incByID   map[string]*Incident
}

func New() *Registry {
	return &Registry{
		byID:    make(map[string]*Session),
		incByID: make(map[string]*Incident),
	}
}

// CreateSession inserts a new session with a fresh id.
func (r *Registry) CreateSession(accountID string, status Status) Session {
	s := &Session{
		ID:        "sess_" + uuid.NewString(),
		AccountID: accountID,
		CreatedAt: time.Now().UnixMilli(),
		Status:    status,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
	r.byID[s.ID] = s
	return *s
}

// AddIncident records a new incident correlated to a session.
func (r *Registry) AddIncident(sessionID, accountID string, kind Kind, note string) Incident {
	inc := &Incident{
		ID:        "inc_" + uuid.NewString(),
		SessionID: sessionID,
		AccountID: accountID,
		Kind:      kind,
		CreatedAt: time.Now().UnixMilli(),
		Note:      note,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incidents = append(r.incidents, inc)
	r.incByID[inc.ID] = inc
	return *inc
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Transition moves a session to newStatus. Only ACTIVE→ENDED and
// DURESS→ENDED are legal; anything else returns ErrBadTransition.
func (r *Registry) Transition(id string, newStatus Status) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	if newStatus != StatusEnded || (s.Status != StatusActive && s.Status != StatusDuress) {
		return Session{}, ErrBadTransition
	}
	s.Status = newStatus
	return *s, nil
}

// Sessions returns all sessions in insertion order.
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, len(r.sessions))
	for i, s := range r.sessions {
		out[i] = *s
	}
	return out
}

// Incidents returns all incidents in insertion order.
func (r *Registry) Incidents() []Incident {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Incident, len(r.incidents))
	for i, inc := range r.incidents {
		out[i] = *inc
	}
	return out
}

// Discard removes a just-created session and incident. It exists only
// as the compensation step when the matching ledger append fails: the
// records were never backed by a ledger entry, so they must not stay
// visible. Unknown ids are ignored.
func (r *Registry) Discard(sessionID, incidentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[sessionID]; ok {
		delete(r.byID, sessionID)
		for i, s := range r.sessions {
			if s.ID == sessionID {
				r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
				break
			}
		}
	}
	if incidentID == "" {
		return
	}
	if _, ok := r.incByID[incidentID]; ok {
		delete(r.incByID, incidentID)
		for i, inc := range r.incidents {
			if inc.ID == incidentID {
				r.incidents = append(r.incidents[:i], r.incidents[i+1:]...)
				break
			}
		}
	}
}

// Restore resets a session's status. Like Discard, it is only used to
// compensate a failed ledger append after a Transition.
func (r *Registry) Restore(sessionID string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[sessionID]; ok {
		s.Status = status
	}
}

// add inserts a pre-built session during rebuild.
func (r *Registry) add(s Session) {
	cp := s
	r.sessions = append(r.sessions, &cp)
	r.byID[cp.ID] = &cp
}

// addIncident inserts a pre-built incident during rebuild.
func (r *Registry) addIncident(inc Incident) {
	cp := inc
	r.incidents = append(r.incidents, &cp)
	r.incByID[cp.ID] = &cp
}
