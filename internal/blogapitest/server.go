// Package blogapitest runs an in-memory stand-in for the blog REST API and
// its auth server.
package blogapitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

type Category struct {
	ID   int    `json:"category_id"`
	Name string `json:"category_name"`
}

type Article struct {
	ID         int        `json:"article_id"`
	Name       string     `json:"article_name"`
	Date       string     `json:"article_date"`
	DataURL    string     `json:"article_data_url"`
	Thumbnail  string     `json:"thumbnail_url"`
	ViewMode   string     `json:"article_view_mode"`
	Categories []Category `json:"categorys"`
}

type user struct {
	password string
	pin      string
	role     string
}

type Server struct {
	*httptest.Server

	// AccessTTL and RefreshTTL control freshly minted pairs.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	secret []byte

	mu         sync.Mutex
	articles   []Article
	categories []Category
	files      map[string]string
	users      map[string]user
	codes      map[string]string
	failures   map[string]int
	views      int64
	lastUpload string

	reissues atomic.Int64
}

// New starts a server that is closed when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		secret:     []byte("blogapitest"),
		files:      make(map[string]string),
		users:      make(map[string]user),
		codes:      make(map[string]string),
		failures:   make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.injectFailures)

	r.Get("/articles", s.listArticles)
	r.Get("/articles/{id}", s.getArticle)
	r.Get("/search/categories/{name}", s.searchCategory)
	r.Get("/categories", s.listCategories)
	r.Get("/blog/info", s.blogInfo)
	r.Get("/content/{name}", s.content)

	r.Post("/auth/login", s.login)
	r.Post("/oauth/token", s.oauthToken)
	r.Post("/auth/reissue", s.reissue)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/admin/articles", s.adminArticles)
		r.Post("/admin/articles", s.createArticle)
		r.Put("/admin/articles/{id}", s.updateArticle)
		r.Delete("/admin/articles/{id}", s.deleteArticle)
		r.Post("/categories", s.createCategory)
		r.Post("/upload", s.upload)
	})
	return r
}

// Issue mints a signed token for sub with the given role and lifetime.
// A negative ttl yields an expired token.
func (s *Server) Issue(sub, role string, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"role":  role,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

func (s *Server) pair(sub, role string) map[string]string {
	return map[string]string{
		"access_token":  s.Issue(sub, role, s.AccessTTL),
		"refresh_token": s.Issue(sub, role, s.RefreshTTL),
	}
}

func (s *Server) AddUser(id, password, pin, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = user{password: password, pin: pin, role: role}
}

// AddCode makes code exchangeable for a pair belonging to user id.
func (s *Server) AddCode(code, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = id
}

func (s *Server) AddCategory(name string) Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCategoryLocked(name)
}

func (s *Server) addCategoryLocked(name string) Category {
	for _, c := range s.categories {
		if c.Name == name {
			return c
		}
	}
	c := Category{ID: len(s.categories) + 1, Name: name}
	s.categories = append(s.categories, c)
	return c
}

// AddArticle stores a public article with markdown body and returns it.
func (s *Server) AddArticle(name, body string, categories ...string) Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextIDLocked()
	file := fmt.Sprintf("article-%d.md", id)
	s.files[file] = body

	a := Article{
		ID:       id,
		Name:     name,
		Date:     time.Date(2025, 1, id%28+1, 9, 0, 0, 0, time.UTC).Format(time.RFC3339),
		DataURL:  s.URL + "/content/" + file,
		ViewMode: "PUBLIC",
	}
	for _, c := range categories {
		a.Categories = append(a.Categories, s.addCategoryLocked(c))
	}
	s.articles = append(s.articles, a)
	return a
}

// SetPrivate hides an article from the public listing.
func (s *Server) SetPrivate(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.articles {
		if s.articles[i].ID == id {
			s.articles[i].ViewMode = "PRIVATE"
		}
	}
}

// SetDataURL points an article's body at another location.
func (s *Server) SetDataURL(id int, u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.articles {
		if s.articles[i].ID == id {
			s.articles[i].DataURL = u
		}
	}
}

func (s *Server) Articles() []Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Article(nil), s.articles...)
}

func (s *Server) Categories() []Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Category(nil), s.categories...)
}

// File returns an uploaded or seeded content file.
func (s *Server) File(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.files[name]
	return v, ok
}

// LastUpload is the name of the most recently uploaded file.
func (s *Server) LastUpload() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpload
}

func (s *Server) SetViews(n int64) {
	s.mu.Lock()
	s.views = n
	s.mu.Unlock()
}

// Fail makes every request to path answer with status until cleared with 0.
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, path)
		return
	}
	s.failures[path] = status
}

func (s *Server) ReissueCalls() int {
	return int(s.reissues.Load())
}

func (s *Server) nextIDLocked() int {
	id := 1
	for _, a := range s.articles {
		if a.ID >= id {
			id = a.ID + 1
		}
	}
	return id
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status, ok := s.failures[r.URL.Path]
		s.mu.Unlock()
		if ok {
			writeError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) claims(r *http.Request) (jwt.MapClaims, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return nil, false
	}
	return s.verify(raw)
}

func (s *Server) verify(raw string) (jwt.MapClaims, bool) {
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return nil, false
	}
	return claims, true
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := s.claims(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if claims["role"] != "admin" {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func paging(r *http.Request) (page, size int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	size, _ = strconv.Atoi(r.URL.Query().Get("size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	return page, size
}

func paginate(all []Article, page, size int) map[string]any {
	total := (len(all) + size - 1) / size
	start := (page - 1) * size
	out := []Article{}
	if start < len(all) {
		end := min(start+size, len(all))
		out = append(out, all[start:end]...)
	}
	return map[string]any{"articles": out, "totalPage": total}
}

func (s *Server) public(filter func(Article) bool) []Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Article
	for _, a := range s.articles {
		if a.ViewMode == "PRIVATE" {
			continue
		}
		if filter == nil || filter(a) {
			out = append(out, a)
		}
	}
	return out
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	page, size := paging(r)
	writeJSON(w, http.StatusOK, paginate(s.public(nil), page, size))
}

func (s *Server) searchCategory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	page, size := paging(r)
	matches := s.public(func(a Article) bool {
		for _, c := range a.Categories {
			if c.Name == name {
				return true
			}
		}
		return false
	})
	writeJSON(w, http.StatusOK, paginate(matches, page, size))
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	for _, a := range s.public(nil) {
		if a.ID == id {
			writeJSON(w, http.StatusOK, a)
			return
		}
	}
	writeError(w, http.StatusNotFound, "article not found")
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cs := s.Categories()
	if cs == nil {
		cs = []Category{}
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) blogInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	views := s.views
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int64{"blog_total_views": views})
}

func (s *Server) content(w http.ResponseWriter, r *http.Request) {
	body, ok := s.File(chi.URLParam(r, "name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Password string `json:"password"`
		PIN      string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.ID]
	s.mu.Unlock()
	if !ok || u.password != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid id or password")
		return
	}
	if u.pin != "" && u.pin != req.PIN {
		writeError(w, http.StatusUnauthorized, "invalid pin")
		return
	}
	writeJSON(w, http.StatusOK, s.pair(req.ID, u.role))
}

func (s *Server) oauthToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	s.mu.Lock()
	id, ok := s.codes[req.Code]
	delete(s.codes, req.Code)
	u := s.users[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid code")
		return
	}
	writeJSON(w, http.StatusOK, s.pair(id, u.role))
}

func (s *Server) reissue(w http.ResponseWriter, r *http.Request) {
	s.reissues.Add(1)

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	claims, ok := s.verify(req.RefreshToken)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	writeJSON(w, http.StatusOK, s.pair(sub, role))
}

func (s *Server) adminArticles(w http.ResponseWriter, r *http.Request) {
	page, size := paging(r)
	writeJSON(w, http.StatusOK, paginate(s.Articles(), page, size))
}

type articleInput struct {
	Date       string `json:"article_date"`
	Name       string `json:"article_name"`
	Thumbnail  string `json:"thumbnail_url"`
	DataURL    string `json:"article_data_url"`
	ViewMode   string `json:"article_view_mode"`
	Categories []int  `json:"categories"`
}

func (s *Server) categoriesByID(ids []int) []Category {
	var out []Category
	for _, id := range ids {
		for _, c := range s.categories {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out
}

func (s *Server) createArticle(w http.ResponseWriter, r *http.Request) {
	var in articleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" || in.DataURL == "" {
		writeError(w, http.StatusBadRequest, "article_name and article_data_url are required")
		return
	}

	s.mu.Lock()
	a := Article{
		ID:         s.nextIDLocked(),
		Name:       in.Name,
		Date:       in.Date,
		DataURL:    in.DataURL,
		Thumbnail:  in.Thumbnail,
		ViewMode:   in.ViewMode,
		Categories: s.categoriesByID(in.Categories),
	}
	s.articles = append(s.articles, a)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) updateArticle(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var in articleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.articles {
		if s.articles[i].ID != id {
			continue
		}
		a := &s.articles[i]
		a.Name, a.Thumbnail, a.DataURL, a.ViewMode = in.Name, in.Thumbnail, in.DataURL, in.ViewMode
		a.Categories = s.categoriesByID(in.Categories)
		writeJSON(w, http.StatusOK, a)
		return
	}
	writeError(w, http.StatusNotFound, "article not found")
}

func (s *Server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.articles {
		if a.ID == id {
			s.articles = append(s.articles[:i], s.articles[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "article not found")
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"category_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "category_name is required")
		return
	}
	writeJSON(w, http.StatusCreated, s.AddCategory(req.Name))
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()

	body, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading file")
		return
	}

	s.mu.Lock()
	name := fmt.Sprintf("%d-%s", len(s.files)+1, hdr.Filename)
	s.files[name] = string(body)
	s.lastUpload = name
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"url": s.URL + "/content/" + name})
}
