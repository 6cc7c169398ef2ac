package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"devblog/internal/blogapitest"
	"devblog/internal/config"
	"devblog/internal/logging"
	"devblog/internal/token"
)

const (
	testVisitorID = "0b0c1f4e-3d6a-4b8e-9a51-2f1c7d9e8a10"
	testCSRFToken = "test-csrf-token-12345"
)

func setupTestBlog(t *testing.T) (*Blog, *blogapitest.Server) {
	t.Helper()
	api := blogapitest.New(t)

	db, err := openDB(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err = initDB(context.Background(), db); err != nil {
		t.Fatalf("initializing test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.APIBaseURL = api.URL
	cfg.SessionSecret = "test-session-secret"

	blog, err := NewBlog(cfg, db, logging.Nop())
	if err != nil {
		t.Fatalf("creating blog: %v", err)
	}
	return blog, api
}

// addCSRFToken adds a CSRF token to the request (cookie + form value)
func addCSRFToken(req *http.Request, form url.Values) {
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRFToken})
	if form != nil {
		form.Set(csrfFieldName, testCSRFToken)
	}
}

func addVisitor(req *http.Request) {
	req.AddCookie(&http.Cookie{Name: visitorCookieName, Value: testVisitorID})
}

func testVisitor(blog *Blog) *visitor {
	return blog.newVisitor(testVisitorID)
}

// signIn stores a fresh token pair with role for the test visitor.
func signIn(t *testing.T, blog *Blog, api *blogapitest.Server, role string) {
	t.Helper()
	pair := token.Pair{
		AccessToken:  api.Issue("admin", role, 15*time.Minute),
		RefreshToken: api.Issue("admin", role, 24*time.Hour),
	}
	if err := testVisitor(blog).Session.Establish(context.Background(), pair); err != nil {
		t.Fatalf("establishing session: %v", err)
	}
}

func serve(blog *Blog, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	blog.routes().ServeHTTP(w, req)
	return w
}

func get(blog *Blog, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	addVisitor(req)
	return serve(blog, req)
}

func postForm(blog *Blog, target string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set(csrfFieldName, testCSRFToken)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	addCSRFToken(req, nil)
	addVisitor(req)
	return serve(blog, req)
}

func TestHome(t *testing.T) {
	blog, api := setupTestBlog(t)
	api.AddArticle("Hello Go", "# Hello", "백엔드")
	api.SetViews(4242)

	w := get(blog, "/")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Hello Go") {
		t.Error("expected response to contain 'Hello Go'")
	}
	if !strings.Contains(body, "4242") {
		t.Error("expected response to contain the visitor count")
	}
	if !strings.Contains(body, "소프트웨어 개발 개념") {
		t.Error("expected the default category tabs")
	}
}

func TestHome_APIUnavailable(t *testing.T) {
	blog, api := setupTestBlog(t)
	api.Fail("/articles", http.StatusServiceUnavailable)
	api.Fail("/blog/info", http.StatusServiceUnavailable)

	w := get(blog, "/")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Could not load recent posts.") {
		t.Error("expected recent posts error")
	}
	if !strings.Contains(body, "Could not load posts.") {
		t.Error("expected category posts error")
	}
}

func TestArticles_CategoryFilter(t *testing.T) {
	blog, api := setupTestBlog(t)
	api.AddArticle("Backend Post", "x", "백엔드")
	api.AddArticle("Cloud Post", "x", "AWS")

	w := get(blog, "/articles?category=AWS")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<h3>Cloud Post</h3>") {
		t.Error("expected the AWS article")
	}
	if strings.Contains(body, "<h3>Backend Post</h3>") {
		t.Error("did not expect articles from other categories")
	}
}

func TestArticles_TabsFromAPI(t *testing.T) {
	blog, api := setupTestBlog(t)
	api.AddCategory("Kubernetes")

	w := get(blog, "/articles")

	if !strings.Contains(w.Body.String(), "Kubernetes") {
		t.Error("expected the full listing to show categories from the API")
	}
}

func TestArticles_Pagination(t *testing.T) {
	blog, api := setupTestBlog(t)
	for i := 0; i < fullPostsSize+1; i++ {
		api.AddArticle("Post", "x")
	}

	w := get(blog, "/articles?page=2")

	body := w.Body.String()
	if !strings.Contains(body, `<span class="current">2</span>`) {
		t.Error("expected page 2 to be current")
	}
	if !strings.Contains(body, "page=1") {
		t.Error("expected a link back to page 1")
	}
}

func TestArticle(t *testing.T) {
	blog, api := setupTestBlog(t)
	a := api.AddArticle("Markdown Post", "# Title\n\nSome **bold** text", "AWS")

	for _, path := range []string{"/articles/", "/article/"} {
		t.Run(path, func(t *testing.T) {
			w := get(blog, path+"1")

			if w.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d (article %d)", http.StatusOK, w.Code, a.ID)
			}
			body := w.Body.String()
			if !strings.Contains(body, "<strong>bold</strong>") {
				t.Error("expected rendered markdown")
			}
			if !strings.Contains(body, `"@type":"BlogPosting"`) {
				t.Error("expected JSON-LD structured data")
			}
			if !strings.Contains(body, "https://donghyun.cc/articles/1") {
				t.Error("expected canonical URL")
			}
		})
	}
}

func TestArticle_NotFound(t *testing.T) {
	blog, api := setupTestBlog(t)
	a := api.AddArticle("Hidden", "x")
	api.SetPrivate(a.ID)

	tests := []string{"/articles/99", "/articles/abc", "/articles/0", "/articles/1"}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			w := get(blog, path)
			if w.Code != http.StatusNotFound {
				t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
			}
		})
	}
}

func TestArticle_UpstreamFailure(t *testing.T) {
	blog, api := setupTestBlog(t)
	api.AddArticle("Post", "x")
	api.Fail("/articles/1", http.StatusInternalServerError)

	w := get(blog, "/articles/1")

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status %d, got %d", http.StatusBadGateway, w.Code)
	}
}

func TestNotFound(t *testing.T) {
	blog, _ := setupTestBlog(t)

	w := get(blog, "/no/such/page")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Page not found.") {
		t.Error("expected the error page")
	}
}

func TestStaticFiles(t *testing.T) {
	blog, _ := setupTestBlog(t)

	w := get(blog, "/static/style.css")

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}
