package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"devblog/internal/session"
)

type sessionStatus struct {
	Authenticated bool   `json:"authenticated"`
	Admin         bool   `json:"admin"`
	Subject       string `json:"subject,omitempty"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// APISession reports the visitor's session, reissuing the token if needed.
func (b *Blog) APISession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := b.visitor(r).Session

	tok, err := sess.ValidToken(ctx)
	if errors.Is(err, session.ErrNoSession) {
		writeJSON(w, http.StatusOK, sessionStatus{})
		return
	}
	if err != nil {
		b.logger.Error(ctx, "api: session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "session unavailable"})
		return
	}

	status := sessionStatus{Authenticated: true}
	if p, err := b.sessions.Codec().Decode(tok); err == nil {
		status.Subject, status.Email, status.Role, status.ExpiresAt = p.Subject, p.Email, p.Role, p.Expiry
		status.Admin = p.Role == session.RoleAdmin
	}
	writeJSON(w, http.StatusOK, status)
}

func (b *Blog) APITheme(w http.ResponseWriter, r *http.Request) {
	if !validateCSRFHeader(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid csrf token"})
		return
	}

	on, err := b.toggleDarkMode(r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not save theme"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"dark_mode": on})
}
