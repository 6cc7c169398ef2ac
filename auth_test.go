package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"devblog/internal/token"
)

func TestAdmin_RedirectsAnonymous(t *testing.T) {
	blog, _ := setupTestBlog(t)

	w := get(blog, "/admin/editor")

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d", http.StatusSeeOther, w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?redirect=%2Fadmin%2Feditor" {
		t.Errorf("expected redirect to login, got %q", loc)
	}
}

func TestAdmin_RedirectsNonAdmin(t *testing.T) {
	blog, api := setupTestBlog(t)
	signIn(t, blog, api, "user")

	w := get(blog, "/admin")

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d", http.StatusSeeOther, w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/" {
		t.Errorf("expected redirect home, got %q", loc)
	}
}

func TestAdmin_RedirectsToOAuthProvider(t *testing.T) {
	blog, _ := setupTestBlog(t)
	blog.cfg.OAuth.AuthorizeURL = "https://auth.example.com/authorize"
	blog.cfg.OAuth.AppID = "blog"

	w := get(blog, "/admin")

	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://auth.example.com/authorize?") {
		t.Errorf("expected redirect to the provider, got %q", loc)
	}
	if !strings.Contains(loc, "app_id=blog") {
		t.Errorf("expected app_id in %q", loc)
	}
}

func TestAdmin_PrefixMatchesWholeSegments(t *testing.T) {
	blog, _ := setupTestBlog(t)

	w := get(blog, "/administrator")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestAdmin_ReissuesExpiredAccessToken(t *testing.T) {
	blog, api := setupTestBlog(t)
	pair := token.Pair{
		AccessToken:  api.Issue("admin", "admin", -time.Minute),
		RefreshToken: api.Issue("admin", "admin", time.Hour),
	}
	if err := testVisitor(blog).Session.Establish(context.Background(), pair); err != nil {
		t.Fatalf("establishing session: %v", err)
	}

	w := get(blog, "/admin")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if n := api.ReissueCalls(); n != 1 {
		t.Errorf("expected 1 reissue call, got %d", n)
	}
	access, _ := testVisitor(blog).Tokens.AccessToken(context.Background())
	if access == pair.AccessToken {
		t.Error("expected the stored access token to be replaced")
	}
}

func TestAdmin_ExpiredRefreshEndsSession(t *testing.T) {
	blog, api := setupTestBlog(t)
	pair := token.Pair{
		AccessToken:  api.Issue("admin", "admin", -time.Minute),
		RefreshToken: api.Issue("admin", "admin", -time.Minute),
	}
	if err := testVisitor(blog).Session.Establish(context.Background(), pair); err != nil {
		t.Fatalf("establishing session: %v", err)
	}

	w := get(blog, "/admin")

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d", http.StatusSeeOther, w.Code)
	}
	if api.ReissueCalls() != 0 {
		t.Error("did not expect a reissue with an expired refresh token")
	}
	refresh, _ := testVisitor(blog).Tokens.RefreshToken(context.Background())
	if refresh != "" {
		t.Error("expected the stored pair to be cleared")
	}
}

func TestLoginForm(t *testing.T) {
	blog, _ := setupTestBlog(t)

	w := get(blog, "/login?redirect=/admin/uploader")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `name="csrf_token"`) {
		t.Error("expected a CSRF field")
	}
	if !strings.Contains(body, `value="/admin/uploader"`) {
		t.Error("expected the redirect target to be kept")
	}
}

func TestLoginForm_OAuth(t *testing.T) {
	blog, _ := setupTestBlog(t)
	blog.cfg.OAuth.AuthorizeURL = "https://auth.example.com/authorize"

	w := get(blog, "/login")

	if w.Code != http.StatusSeeOther {
		t.Errorf("expected status %d, got %d", http.StatusSeeOther, w.Code)
	}
}

func TestLogin(t *testing.T) {
	blog, api := setupTestBlog(t)
	api.AddUser("admin", "secret", "1234", "admin")

	w := postForm(blog, "/login", url.Values{
		"id":       {"admin"},
		"password": {"secret"},
		"pin":      {"1234"},
		"redirect": {"/admin/editor"},
	})

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d: %s", http.StatusSeeOther, w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/admin/editor" {
		t.Errorf("expected redirect to /admin/editor, got %q", loc)
	}
	access, err := testVisitor(blog).Tokens.AccessToken(context.Background())
	if err != nil || access == "" {
		t.Errorf("expected a stored access token, got %q (%v)", access, err)
	}
}

func TestLogin_Failures(t *testing.T) {
	blog, api := setupTestBlog(t)
	api.AddUser("admin", "secret", "", "admin")

	tests := []struct {
		name     string
		form     url.Values
		wantCode int
		wantBody string
	}{
		{
			name:     "missing password",
			form:     url.Values{"id": {"admin"}},
			wantCode: http.StatusBadRequest,
			wantBody: "Please enter your ID and password.",
		},
		{
			name:     "wrong password",
			form:     url.Values{"id": {"admin"}, "password": {"nope"}},
			wantCode: http.StatusUnauthorized,
			wantBody: "invalid id or password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postForm(blog, "/login", tt.form)
			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %q", tt.wantBody)
			}
		})
	}
}

func TestLogin_UnsafeRedirect(t *testing.T) {
	blog, api := setupTestBlog(t)
	api.AddUser("admin", "secret", "", "admin")

	w := postForm(blog, "/login", url.Values{
		"id":       {"admin"},
		"password": {"secret"},
		"redirect": {"//evil.example.com"},
	})

	if loc := w.Header().Get("Location"); loc != "/admin" {
		t.Errorf("expected fallback redirect /admin, got %q", loc)
	}
}

func TestLogin_RequiresCSRF(t *testing.T) {
	blog, api := setupTestBlog(t)
	api.AddUser("admin", "secret", "", "admin")

	form := url.Values{"id": {"admin"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	addVisitor(req)
	w := serve(blog, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestOAuthCallback(t *testing.T) {
	blog, api := setupTestBlog(t)
	api.AddUser("admin", "", "", "admin")
	api.AddCode("good-code", "admin")

	w := get(blog, "/oauth_handler?code=good-code")

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d", http.StatusSeeOther, w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/admin" {
		t.Errorf("expected redirect to /admin, got %q", loc)
	}
	admin, err := testVisitor(blog).Session.IsAdmin(context.Background())
	if err != nil || !admin {
		t.Errorf("expected an admin session, got %v (%v)", admin, err)
	}
}

func TestOAuthCallback_BadCode(t *testing.T) {
	blog, _ := setupTestBlog(t)

	w := get(blog, "/oauth_handler?code=unknown")

	if loc := w.Header().Get("Location"); loc != "/" {
		t.Errorf("expected redirect home, got %q", loc)
	}
	f := popFlash(context.Background(), testVisitor(blog).Store)
	if f == nil || f.Level != "error" {
		t.Errorf("expected an error notice, got %+v", f)
	}
}

func TestLogout(t *testing.T) {
	blog, api := setupTestBlog(t)
	signIn(t, blog, api, "admin")

	w := postForm(blog, "/logout", nil)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d", http.StatusSeeOther, w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("expected redirect to /login, got %q", loc)
	}
	access, _ := testVisitor(blog).Tokens.AccessToken(context.Background())
	if access != "" {
		t.Error("expected tokens to be cleared")
	}
}

func TestWithVisitor_IssuesCookie(t *testing.T) {
	blog, _ := setupTestBlog(t)

	tests := []struct {
		name   string
		cookie string
		keep   bool
	}{
		{name: "no cookie"},
		{name: "invalid cookie", cookie: "not-a-uuid"},
		{name: "valid cookie", cookie: testVisitorID, keep: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/login", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: visitorCookieName, Value: tt.cookie})
			}
			w := serve(blog, req)

			var got *http.Cookie
			for _, c := range w.Result().Cookies() {
				if c.Name == visitorCookieName {
					got = c
				}
			}
			if got == nil {
				t.Fatal("expected a visitor cookie")
			}
			if _, err := uuid.Parse(got.Value); err != nil {
				t.Errorf("expected a UUID, got %q", got.Value)
			}
			if tt.keep && got.Value != tt.cookie {
				t.Errorf("expected cookie %q to be kept, got %q", tt.cookie, got.Value)
			}
			if !got.HttpOnly {
				t.Error("expected an HttpOnly cookie")
			}
		})
	}
}

func TestVisitor_TokensSealedAtRest(t *testing.T) {
	blog, api := setupTestBlog(t)
	signIn(t, blog, api, "admin")

	raw, ok, err := blog.kv.Scope(testVisitorID).Get(context.Background(), token.AccessKey)
	if err != nil || !ok {
		t.Fatalf("expected a stored token: ok=%v err=%v", ok, err)
	}
	if strings.HasPrefix(raw, "eyJ") {
		t.Error("expected the token to be sealed")
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"", "/home"},
		{"/admin", "/admin"},
		{"/admin?page=2", "/admin?page=2"},
		{"https://evil.example.com", "/home"},
		{"//evil.example.com", "/home"},
		{"/\\evil.example.com", "/home"},
		{"admin", "/home"},
	}

	for _, tt := range tests {
		if got := localPath(tt.target, "/home"); got != tt.want {
			t.Errorf("localPath(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
}

func TestLoginURL(t *testing.T) {
	blog, _ := setupTestBlog(t)

	if got := blog.loginURL("/"); got != "/login" {
		t.Errorf("loginURL(/) = %q", got)
	}
	if got := blog.loginURL("/admin"); got != "/login?redirect=%2Fadmin" {
		t.Errorf("loginURL(/admin) = %q", got)
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken() error: %v", err)
	}
	b, _ := generateToken()

	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("expected distinct tokens")
	}
}

func TestValidateCSRF(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		form   string
		want   bool
	}{
		{"matching", "abc", "abc", true},
		{"mismatch", "abc", "xyz", false},
		{"missing cookie", "", "abc", false},
		{"missing form", "abc", "", false},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{}
			if tt.form != "" {
				form.Set(csrfFieldName, tt.form)
			}
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}

			if got := validateCSRF(req); got != tt.want {
				t.Errorf("validateCSRF() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnsureCSRFToken(t *testing.T) {
	blog, _ := setupTestBlog(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	tok := blog.ensureCSRFToken(w, req)
	if tok == "" {
		t.Fatal("expected a new token")
	}
	if cookies := w.Result().Cookies(); len(cookies) != 1 || cookies[0].Value != tok {
		t.Errorf("expected the token cookie to be set, got %v", cookies)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w = httptest.NewRecorder()
	if got := blog.ensureCSRFToken(w, req); got != "existing" {
		t.Errorf("expected existing token, got %q", got)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("did not expect a new cookie")
	}
}
