package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devblog/internal/blogapitest"
)

func newClient(t *testing.T, srv *blogapitest.Server, opts ...Option) *Client {
	t.Helper()
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsRelativeBase(t *testing.T) {
	_, err := New("/relative")
	assert.Error(t, err)
}

func TestListArticles_Pagination(t *testing.T) {
	srv := blogapitest.New(t)
	for i := 1; i <= 12; i++ {
		srv.AddArticle("post", "body")
	}
	c := newClient(t, srv)

	page, err := c.ListArticles(context.Background(), 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPage)

	var ids []int
	for _, a := range page.Articles {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []int{5, 6, 7, 8}, ids)
}

func TestSearchCategory(t *testing.T) {
	srv := blogapitest.New(t)
	srv.AddArticle("go", "x", "백엔드")
	srv.AddArticle("aws", "x", "AWS")
	c := newClient(t, srv)

	page, err := c.SearchCategory(context.Background(), "백엔드", 1, 8)
	require.NoError(t, err)
	require.Len(t, page.Articles, 1)
	assert.Equal(t, "go", page.Articles[0].Name)
	assert.Equal(t, []string{"백엔드"}, page.Articles[0].CategoryNames())
}

func TestArticleAndContent(t *testing.T) {
	srv := blogapitest.New(t)
	a := srv.AddArticle("hello", "# Hello\n")
	c := newClient(t, srv)
	ctx := context.Background()

	got, err := c.Article(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Name)
	assert.False(t, got.Published().IsZero())

	body, err := c.ArticleContent(ctx, got.DataURL)
	require.NoError(t, err)
	assert.Equal(t, "# Hello\n", body)

	_, err = c.Article(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArticleContent_BearerStaysOnAPIHost(t *testing.T) {
	srv := blogapitest.New(t)
	a := srv.AddArticle("hello", "own body")

	var gotAuth string
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("hosted body"))
	}))
	t.Cleanup(cdn.Close)

	c := newClient(t, srv, WithBearer("secret-token"))
	ctx := context.Background()

	body, err := c.ArticleContent(ctx, cdn.URL+"/post.md")
	require.NoError(t, err)
	assert.Equal(t, "hosted body", body)
	assert.Empty(t, gotAuth)

	body, err = c.ArticleContent(ctx, a.DataURL)
	require.NoError(t, err)
	assert.Equal(t, "own body", body)
}

func TestBlogInfo(t *testing.T) {
	srv := blogapitest.New(t)
	srv.SetViews(1234)

	info, err := newClient(t, srv).BlogInfo(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1234, info.TotalViews)
}

func TestLogin(t *testing.T) {
	srv := blogapitest.New(t)
	srv.AddUser("admin", "pw", "1234", "admin")
	c := newClient(t, srv)
	ctx := context.Background()

	p, err := c.Login(ctx, LoginRequest{ID: "admin", Password: "pw", PIN: "1234"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.AccessToken)
	assert.NotEmpty(t, p.RefreshToken)

	_, err = c.Login(ctx, LoginRequest{ID: "admin", Password: "pw"})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "invalid pin", Message(err, "fallback"))
}

func TestExchangeCodeAndReissue(t *testing.T) {
	srv := blogapitest.New(t)
	srv.AddUser("admin", "pw", "", "admin")
	srv.AddCode("abc", "admin")
	c := newClient(t, srv)
	ctx := context.Background()

	p, err := c.ExchangeCode(ctx, "abc")
	require.NoError(t, err)

	_, err = c.ExchangeCode(ctx, "abc")
	assert.Error(t, err)

	fresh, err := c.Reissue(ctx, p.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)
	assert.Equal(t, 1, srv.ReissueCalls())

	_, err = c.Reissue(ctx, "bogus")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAdminCalls(t *testing.T) {
	srv := blogapitest.New(t)
	cat := srv.AddCategory("AWS")
	ctx := context.Background()

	anon := newClient(t, srv)
	_, err := anon.AdminArticles(ctx, 1, 8)
	assert.ErrorIs(t, err, ErrUnauthorized)

	c := newClient(t, srv, WithBearer(srv.Issue("admin", "admin", time.Hour)))
	assert.True(t, c.Authorized())

	url, err := c.Upload(ctx, "content.md", "text/markdown", strings.NewReader("# body"))
	require.NoError(t, err)
	body, ok := srv.File(srv.LastUpload())
	require.True(t, ok)
	assert.Equal(t, "# body", body)

	require.NoError(t, c.CreateArticle(ctx, ArticleInput{
		Date: time.Now().UTC().Format(time.RFC3339), Name: "new", DataURL: url,
		ViewMode: ViewPrivate, Categories: []int{cat.ID},
	}))

	page, err := c.AdminArticles(ctx, 1, 8)
	require.NoError(t, err)
	require.Len(t, page.Articles, 1)
	created := page.Articles[0]
	assert.Equal(t, ViewPrivate, created.ViewMode)
	assert.Equal(t, []int{cat.ID}, CategoryIDs(created.Categories))

	require.NoError(t, c.UpdateArticle(ctx, created.ID, ArticleInput{Name: "renamed", DataURL: url, ViewMode: ViewPublic}))
	got, err := c.Article(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	require.NoError(t, c.DeleteArticle(ctx, created.ID))
	assert.ErrorIs(t, c.DeleteArticle(ctx, created.ID), ErrNotFound)

	newCat, err := c.CreateCategory(ctx, "CI/CD")
	require.NoError(t, err)
	assert.Equal(t, "CI/CD", newCat.Name)
	assert.NotZero(t, newCat.ID)
}

func TestUserRoleIsForbiddenOnAdmin(t *testing.T) {
	srv := blogapitest.New(t)
	c := newClient(t, srv, WithBearer(srv.Issue("u", "user", time.Hour)))

	_, err := c.AdminArticles(context.Background(), 1, 8)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestErrorMapping(t *testing.T) {
	srv := blogapitest.New(t)
	srv.Fail("/blog/info", http.StatusBadGateway)
	c := newClient(t, srv)

	_, err := c.BlogInfo(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	srv.Fail("/blog/info", 0)
	_, err = c.BlogInfo(context.Background())
	assert.NoError(t, err)
}

func TestTimeout(t *testing.T) {
	block := make(chan struct{})
	hung := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(hung.Close)
	t.Cleanup(func() { close(block) })

	c, err := New(hung.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Categories(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDecodeShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"articles":[
			{"article_id":1,"article_name":"a","categories":["AWS","CI/CD"]},
			{"article_id":2,"article_name":"b","categorys":[{"category_id":3,"category_name":"백엔드"}]}
		],"totalPage":1}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)

	page, err := c.ListArticles(context.Background(), 1, 8)
	require.NoError(t, err)
	require.Len(t, page.Articles, 2)
	assert.Equal(t, []string{"AWS", "CI/CD"}, page.Articles[0].CategoryNames())
	assert.Equal(t, []Category{{ID: 3, Name: "백엔드"}}, page.Articles[1].Categories)
}

type staticSource struct {
	tok string
	err error
}

func (s staticSource) ValidToken(context.Context) (string, error) { return s.tok, s.err }

func TestFactory(t *testing.T) {
	srv := blogapitest.New(t)
	f := &Factory{BaseURL: srv.URL, Timeout: time.Second}
	ctx := context.Background()

	errNoSession := errors.New("no session")
	_, err := f.CreateClient(ctx, staticSource{err: errNoSession})
	assert.ErrorIs(t, err, errNoSession)

	c1, err := f.CreateClient(ctx, staticSource{tok: srv.Issue("admin", "admin", time.Hour)})
	require.NoError(t, err)
	c2, err := f.CreateClient(ctx, staticSource{tok: srv.Issue("admin", "admin", time.Hour)})
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)

	_, err = c1.AdminArticles(ctx, 1, 8)
	assert.NoError(t, err)

	pub, err := f.Public()
	require.NoError(t, err)
	assert.False(t, pub.Authorized())
}

func TestFactory_Reissue(t *testing.T) {
	srv := blogapitest.New(t)
	f := &Factory{BaseURL: srv.URL}

	p, err := f.Reissue(context.Background(), srv.Issue("admin", "admin", time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, p.AccessToken)
	assert.Equal(t, 1, srv.ReissueCalls())
}
