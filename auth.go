package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"devblog/internal/guard"
	"devblog/internal/session"
	"devblog/internal/storage"
	"devblog/internal/token"
)

const (
	visitorCookieName = "visitor"
	csrfCookieName    = "csrf"
	csrfFieldName     = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
	csrfDuration      = 24 * time.Hour
)

// visitor is the per-browser state: its storage scope and the session built
// over it.
type visitor struct {
	ID      string
	Store   storage.Storage
	Tokens  *token.Store
	Session *session.Session
}

type visitorKey struct{}

func (b *Blog) newVisitor(id string) *visitor {
	var s storage.Storage = storage.Noop{}
	if id != "" {
		s = b.sealer.Wrap(b.kv.Scope(id))
	}
	tokens := token.NewStore(s)
	return &visitor{ID: id, Store: s, Tokens: tokens, Session: b.sessions.Session(tokens)}
}

// withVisitor attaches the visitor named by the cookie, issuing a new id when
// the cookie is missing or not a UUID.
func (b *Blog) withVisitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(visitorCookieName); err == nil {
			if parsed, err := uuid.Parse(c.Value); err == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		// refresh expiry on every visit
		http.SetCookie(w, &http.Cookie{
			Name:     visitorCookieName,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			Secure:   b.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(b.cfg.VisitorTTL.Seconds()),
		})

		ctx := context.WithValue(r.Context(), visitorKey{}, b.newVisitor(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// visitor returns the request's visitor. Requests that skipped withVisitor
// get one that remembers nothing.
func (b *Blog) visitor(r *http.Request) *visitor {
	if v, ok := r.Context().Value(visitorKey{}).(*visitor); ok {
		return v
	}
	return b.newVisitor("")
}

func (b *Blog) authorizer(r *http.Request) guard.Authorizer {
	return b.visitor(r).Session
}

func (b *Blog) newGuard() *guard.Guard {
	return &guard.Guard{
		Rules:    []guard.Rule{{Prefix: "/admin", AdminOnly: true}},
		LoginURL: b.loginURL,
		ReturnTo: returnPath,
		HomePath: "/",
		Logger:   b.logger,
	}
}

// loginURL sends visitors to the OAuth provider when one is configured and
// to the local form otherwise.
func (b *Blog) loginURL(returnTo string) string {
	if b.cfg.OAuth.Enabled() {
		return b.cfg.OAuth.AuthorizeLink()
	}
	if returnTo == "" || returnTo == "/" {
		return "/login"
	}
	return "/login?" + url.Values{"redirect": {returnTo}}.Encode()
}

// localPath keeps redirects on this site.
func localPath(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	return target
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// CSRF protection using double-submit cookie pattern

func (b *Blog) setCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   b.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(csrfDuration.Seconds()),
	})
}

func getCSRFToken(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func sameToken(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func validateCSRF(r *http.Request) bool {
	return sameToken(getCSRFToken(r), r.FormValue(csrfFieldName))
}

func validateCSRFHeader(r *http.Request) bool {
	return sameToken(getCSRFToken(r), r.Header.Get(csrfHeaderName))
}

func parseFormWithCSRF(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return false
	}
	if !validateCSRF(r) {
		http.Error(w, "Invalid CSRF token", http.StatusForbidden)
		return false
	}
	return true
}

// ensureCSRFToken returns existing token or creates a new one
func (b *Blog) ensureCSRFToken(w http.ResponseWriter, r *http.Request) string {
	token := getCSRFToken(r)
	if token != "" {
		return token
	}

	token, err := generateToken()
	if err != nil {
		return ""
	}
	b.setCSRFCookie(w, token)
	return token
}
