// Package httpapi exposes the authentication core over JSON HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"duressauth/internal/authn"
	"duressauth/internal/validate"
)

// Server serves the login, verify, and admin endpoints.
type Server struct {
	Auth     *authn.Authenticator
	Logger   *slog.Logger
	BindAddr string
	Port     int

	// AdminToken guards the admin endpoints. Empty disables them.
	AdminToken string
	// LedgerTail is how many trailing ledger entries admin state returns.
	LedgerTail int

	// Optional TLS. When both paths are set the server listens with TLS.
	CertPath string
	KeyPath  string

	loginLimiter *fixedWindowLimiter
}

// Handler builds the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	if s.loginLimiter == nil {
		s.loginLimiter = newFixedWindowLimiter(10, time.Minute)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", s.withLoginRateLimit(s.handleLogin))
	mux.HandleFunc("/api/verify", s.handleVerify)
	mux.HandleFunc("/api/session/end", s.handleEndSession)
	mux.HandleFunc("/api/admin/state", s.withAdminToken(s.handleAdminState))
	mux.HandleFunc("/api/admin/ledger/verify", s.withAdminToken(s.handleLedgerVerify))

	h := s.withRecover(s.withRequestLog(withSecurityHeaders(mux)))
	return h
}

// ListenAndServe starts the HTTP server, with TLS when configured.
func (s *Server) ListenAndServe() error {
	if s.Auth == nil {
		return errors.New("authenticator is required")
	}
	addr := s.BindAddr + ":" + strconv.Itoa(s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if s.CertPath != "" && s.KeyPath != "" {
		return srv.ListenAndServeTLS(s.CertPath, s.KeyPath)
	}
	return srv.ListenAndServe()
}

// loginResponse is the success shape for login. It is identical for
// NORMAL and DURESS outcomes: the outcome must not be observable by the
// party entering the PIN.
type loginResponse struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"sessionId"`
}

// verifyResponse is the success shape for session verification.
type verifyResponse struct {
	OK        bool   `json:"ok"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

// errorResponse is the single error shape for every endpoint.
type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
		return
	}

	var req struct {
		Reference string `json:"reference"`
		PIN       string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}
	if err := validate.Reference(req.Reference); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REFERENCE")
		return
	}
	if err := validate.PIN(req.PIN); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PIN_FORMAT")
		return
	}

	res, err := s.Auth.Login(r.Context(), req.Reference, req.PIN)
	switch {
	case errors.Is(err, authn.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND")
		return
	case errors.Is(err, authn.ErrInvalidSecret):
		writeError(w, http.StatusUnauthorized, "INVALID_SECRET")
		return
	case err != nil:
		s.Logger.Error("login failed", "err", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{OK: true, SessionID: res.SessionID})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SESSION_ID")
		return
	}

	res, err := s.Auth.Verify(r.Context(), sessionID)
	switch {
	case errors.Is(err, authn.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	case err != nil:
		s.Logger.Error("verify failed", "err", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{OK: true, Status: string(res.Status), CreatedAt: res.CreatedAt})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
		return
	}
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SESSION_ID")
		return
	}

	err := s.Auth.EndSession(r.Context(), req.SessionID)
	switch {
	case errors.Is(err, authn.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	case err != nil:
		s.Logger.Error("end session failed", "err", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) withAdminToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminToken == "" {
			writeError(w, http.StatusForbidden, "ADMIN_NOT_CONFIGURED")
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || auth[len(prefix):] != s.AdminToken {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleAdminState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
		return
	}
	tail := s.LedgerTail
	if tail <= 0 {
		tail = 200
	}
	state, err := s.Auth.AdminState(r.Context(), tail)
	if err != nil {
		s.Logger.Error("admin state failed", "err", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"sessions":  state.Sessions,
		"incidents": state.Incidents,
		"ledger":    state.Ledger,
	})
}

func (s *Server) handleLedgerVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
		return
	}
	if err := s.Auth.VerifyChain(r.Context()); err != nil {
		s.Logger.Error("ledger verification failed", "err", err)
		writeError(w, http.StatusInternalServerError, "INTEGRITY_VIOLATION")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) withLoginRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := s.loginLimiter.Allow(clientIP(r))
		if !allowed {
			w.Header().Set("retry-after", retryAfterSeconds(retryAfter))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED")
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{OK: false, Error: code})
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-content-type-options", "nosniff")
		w.Header().Set("x-frame-options", "DENY")
		w.Header().Set("referrer-policy", "no-referrer")
		if r.TLS != nil {
			w.Header().Set("strict-transport-security", "max-age=31536000")
		}
		next.ServeHTTP(w, r)
	})
}
