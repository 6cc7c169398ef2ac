package main

import (
	"errors"
	"net/http"
	"strings"

	"devblog/internal/apiclient"
	"devblog/internal/token"
)

func (b *Blog) LoginForm(w http.ResponseWriter, r *http.Request) {
	if b.cfg.OAuth.Enabled() {
		http.Redirect(w, r, b.cfg.OAuth.AuthorizeLink(), http.StatusSeeOther)
		return
	}

	data := map[string]any{
		"Title":    "Sign in · " + b.cfg.Site.Title,
		"ID":       "",
		"Redirect": localPath(r.URL.Query().Get("redirect"), "/admin"),
	}
	b.render(w, r, http.StatusOK, "login.html", data)
}

func (b *Blog) Login(w http.ResponseWriter, r *http.Request) {
	if !parseFormWithCSRF(w, r) {
		return
	}
	ctx := r.Context()

	req := apiclient.LoginRequest{
		ID:       strings.TrimSpace(r.FormValue("id")),
		Password: r.FormValue("password"),
		PIN:      strings.TrimSpace(r.FormValue("pin")),
	}
	redirect := localPath(r.FormValue("redirect"), "/admin")

	fail := func(status int, msg string) {
		b.render(w, r, status, "login.html", map[string]any{
			"Title":    "Sign in · " + b.cfg.Site.Title,
			"Error":    msg,
			"ID":       req.ID,
			"Redirect": redirect,
		})
	}

	if req.ID == "" || req.Password == "" {
		fail(http.StatusBadRequest, "Please enter your ID and password.")
		return
	}

	c, err := b.publicClient()
	if err != nil {
		fail(http.StatusInternalServerError, "Sign-in is unavailable.")
		return
	}

	pair, err := c.Login(ctx, req)
	if err != nil {
		b.logger.Info(ctx, "login failed", "id", req.ID, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, apiclient.ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		fail(status, apiclient.Message(err, "Sign-in failed. Please check your credentials."))
		return
	}

	if !b.establish(w, r, pair) {
		return
	}
	b.notify(r, "success", "Signed in.")
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// OAuthCallback finishes the provider round trip started by the guard.
func (b *Blog) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	c, err := b.publicClient()
	if err != nil {
		b.renderError(w, r, http.StatusInternalServerError, "Sign-in is unavailable.")
		return
	}

	pair, err := c.ExchangeCode(ctx, code)
	if err != nil {
		b.logger.Warn(ctx, "oauth code exchange failed", "error", err)
		b.notify(r, "error", "Sign-in failed. Please try again.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if !b.establish(w, r, pair) {
		return
	}
	b.notify(r, "success", "Signed in.")
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (b *Blog) establish(w http.ResponseWriter, r *http.Request, pair token.Pair) bool {
	if err := b.visitor(r).Session.Establish(r.Context(), pair); err != nil {
		b.logger.Error(r.Context(), "storing tokens", "error", err)
		b.renderError(w, r, http.StatusBadGateway, "Sign-in returned no usable token.")
		return false
	}
	return true
}

func (b *Blog) Logout(w http.ResponseWriter, r *http.Request) {
	if !parseFormWithCSRF(w, r) {
		return
	}

	if err := b.visitor(r).Session.Logout(r.Context()); err != nil {
		b.logger.Error(r.Context(), "logout", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (b *Blog) ToggleTheme(w http.ResponseWriter, r *http.Request) {
	if !parseFormWithCSRF(w, r) {
		return
	}

	if _, err := b.toggleDarkMode(r); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, localPath(r.FormValue("return"), "/"), http.StatusSeeOther)
}

func (b *Blog) toggleDarkMode(r *http.Request) (bool, error) {
	ctx := r.Context()
	s := b.visitor(r).Store

	on := !darkMode(ctx, s)
	if err := setDarkMode(ctx, s, on); err != nil {
		b.logger.Error(ctx, "saving theme", "error", err)
		return false, err
	}
	return on, nil
}

// notify queues a one-shot message for the next rendered page.
func (b *Blog) notify(r *http.Request, level, message string) {
	if err := setFlash(r.Context(), b.visitor(r).Store, level, message); err != nil {
		b.logger.Warn(r.Context(), "saving notice", "error", err)
	}
}
