package registry

import (
	"encoding/json"

	"duressauth/internal/ledger"
)

// loginData mirrors the structured payload of LOGIN_OK / LOGIN_DURESS
// entries as written by the authenticator.
type loginData struct {
	IncidentID string `json:"incidentId"`
	Note       string `json:"note"`
}

// Rebuild reconstructs the registry from ledger entries in append
// order. This is the projection property: everything the registry holds
// is derivable from the ledger, so a restart loses nothing.
func Rebuild(entries []ledger.Entry) *Registry {
	r := New()
	for _, e := range entries {
		switch e.Type {
		case ledger.TypeLoginOK:
			r.add(Session{ID: e.SessionID, AccountID: e.AccountID, CreatedAt: e.TS, Status: StatusActive})
		case ledger.TypeLoginDuress:
			r.add(Session{ID: e.SessionID, AccountID: e.AccountID, CreatedAt: e.TS, Status: StatusDuress})
			var d loginData
			if len(e.Data) > 0 {
				_ = json.Unmarshal(e.Data, &d)
			}
			if d.IncidentID != "" {
				r.addIncident(Incident{
					ID:        d.IncidentID,
					SessionID: e.SessionID,
					AccountID: e.AccountID,
					Kind:      KindDuress,
					CreatedAt: e.TS,
					Note:      d.Note,
				})
			}
		case ledger.TypeEndSession:
			if s, ok := r.byID[e.SessionID]; ok {
				s.Status = StatusEnded
			}
		case ledger.TypeVerify:
			// read-with-audit-side-effect; no state change
		}
	}
	return r
}
