// Package guard keeps unauthenticated or unprivileged visitors out of
// protected path prefixes.
package guard

import (
	"context"
	"net/http"
	"strings"

	"devblog/internal/logging"
)

type State int

const (
	Checking State = iota
	Authorized
	Redirecting
)

func (s State) String() string {
	switch s {
	case Authorized:
		return "authorized"
	case Redirecting:
		return "redirecting"
	default:
		return "checking"
	}
}

// Authorizer answers the two questions the guard asks.
type Authorizer interface {
	ValidToken(ctx context.Context) (string, error)
	IsAdmin(ctx context.Context) (bool, error)
}

// Rule protects every path at or below Prefix.
type Rule struct {
	Prefix    string
	AdminOnly bool
}

type Decision struct {
	State    State
	Location string
}

type Guard struct {
	Rules []Rule
	// LoginURL builds the sign-in location for a visitor who wanted returnTo.
	LoginURL func(returnTo string) string
	// ReturnTo picks the returnTo handed to LoginURL. The request path is
	// used when it is nil.
	ReturnTo func(*http.Request) string
	// HomePath receives signed-in visitors without enough privilege.
	HomePath string
	Logger   logging.Logger
}

func (g *Guard) match(path string) (Rule, bool) {
	for _, rule := range g.Rules {
		p := strings.TrimSuffix(rule.Prefix, "/")
		if path == p || strings.HasPrefix(path, p+"/") {
			return rule, true
		}
	}
	return Rule{}, false
}

// Check runs the guard for one navigation. Unprotected paths are authorized
// without consulting auth.
func (g *Guard) Check(ctx context.Context, path string, auth Authorizer) Decision {
	return g.check(ctx, path, path, auth)
}

func (g *Guard) check(ctx context.Context, path, returnTo string, auth Authorizer) Decision {
	rule, ok := g.match(path)
	if !ok {
		return Decision{State: Authorized}
	}

	if _, err := auth.ValidToken(ctx); err != nil {
		g.logger().Info(ctx, "guard: no session", "path", path, "error", err)
		return Decision{State: Redirecting, Location: g.loginURL(returnTo)}
	}

	if rule.AdminOnly {
		admin, err := auth.IsAdmin(ctx)
		if err != nil {
			g.logger().Warn(ctx, "guard: role check failed", "path", path, "error", err)
			return Decision{State: Redirecting, Location: g.loginURL(returnTo)}
		}
		if !admin {
			g.logger().Info(ctx, "guard: not an admin", "path", path)
			return Decision{State: Redirecting, Location: g.home()}
		}
	}
	return Decision{State: Authorized}
}

// Middleware checks every request. authFor supplies the visitor's session.
func (g *Guard) Middleware(authFor func(*http.Request) Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			returnTo := r.URL.Path
			if g.ReturnTo != nil {
				returnTo = g.ReturnTo(r)
			}
			d := g.check(r.Context(), r.URL.Path, returnTo, authFor(r))
			if d.State == Redirecting {
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) loginURL(returnTo string) string {
	if g.LoginURL == nil {
		return "/login"
	}
	return g.LoginURL(returnTo)
}

func (g *Guard) home() string {
	if g.HomePath == "" {
		return "/"
	}
	return g.HomePath
}

func (g *Guard) logger() logging.Logger {
	if g.Logger == nil {
		return logging.Nop()
	}
	return g.Logger
}
