// Package apiclient talks to the blog REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"devblog/internal/token"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultReissuePath = "/auth/reissue"
)

type Client struct {
	base        *url.URL
	http        *http.Client
	timeout     time.Duration
	bearer      string
	reissuePath string
}

type Option func(*Client)

// WithHTTPClient replaces the underlying client. Its own Timeout is left alone.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request made through the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithBearer sends tok as an Authorization bearer token.
func WithBearer(tok string) Option {
	return func(c *Client) { c.bearer = tok }
}

// WithReissuePath sets the path Reissue posts to.
func WithReissuePath(p string) Option {
	return func(c *Client) { c.reissuePath = p }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api base url %q is not absolute", baseURL)
	}

	c := &Client{
		base:        base,
		http:        http.DefaultClient,
		timeout:     DefaultTimeout,
		reissuePath: DefaultReissuePath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Authorized reports whether the client carries a bearer token.
func (c *Client) Authorized() bool {
	return c.bearer != ""
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// sameOrigin reports whether u points at the API host. Only those requests
// carry the bearer token.
func (c *Client) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.base.Scheme) && strings.EqualFold(u.Host, c.base.Host)
}

func pageQuery(page, size int) url.Values {
	return url.Values{
		"page": {strconv.Itoa(page)},
		"size": {strconv.Itoa(size)},
	}
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.bearer != "" && c.sameOrigin(req.URL) {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	switch v := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *string:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
		}
		*v = string(b)
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s: %w", method, target, err)
		}
		return nil
	}
}

func decodeError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(b, &payload) == nil {
		se.Message = payload.Message
		if se.Message == "" {
			se.Message = payload.Error
		}
	}
	return se
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	return c.do(ctx, http.MethodGet, c.endpoint(path, q), nil, "", out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return c.do(ctx, method, c.endpoint(path, nil), bytes.NewReader(b), "application/json", out)
}

// ListArticles returns one page of published articles, newest first.
func (c *Client) ListArticles(ctx context.Context, page, size int) (*ArticlePage, error) {
	var p ArticlePage
	if err := c.getJSON(ctx, "/articles", pageQuery(page, size), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SearchCategory returns one page of articles in the named category.
func (c *Client) SearchCategory(ctx context.Context, name string, page, size int) (*ArticlePage, error) {
	var p ArticlePage
	if err := c.getJSON(ctx, "/search/categories/"+url.PathEscape(name), pageQuery(page, size), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var cs []Category
	if err := c.getJSON(ctx, "/categories", nil, &cs); err != nil {
		return nil, err
	}
	return cs, nil
}

func (c *Client) Article(ctx context.Context, id int) (*Article, error) {
	var a Article
	if err := c.getJSON(ctx, "/articles/"+strconv.Itoa(id), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ArticleContent fetches the markdown body. dataURL may be absolute or
// relative to the API base.
func (c *Client) ArticleContent(ctx context.Context, dataURL string) (string, error) {
	ref, err := url.Parse(dataURL)
	if err != nil {
		return "", fmt.Errorf("parsing data url: %w", err)
	}

	var body string
	if err := c.do(ctx, http.MethodGet, c.base.ResolveReference(ref).String(), nil, "", &body); err != nil {
		return "", err
	}
	return body, nil
}

func (c *Client) BlogInfo(ctx context.Context) (*BlogInfo, error) {
	var info BlogInfo
	if err := c.getJSON(ctx, "/blog/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (token.Pair, error) {
	var p token.Pair
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/login", req, &p); err != nil {
		return token.Pair{}, err
	}
	return p, nil
}

// ExchangeCode trades an OAuth authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (token.Pair, error) {
	var p token.Pair
	if err := c.sendJSON(ctx, http.MethodPost, "/oauth/token", map[string]string{"code": code}, &p); err != nil {
		return token.Pair{}, err
	}
	return p, nil
}

// Reissue trades a refresh token for a new pair.
func (c *Client) Reissue(ctx context.Context, refreshToken string) (token.Pair, error) {
	var p token.Pair
	if err := c.sendJSON(ctx, http.MethodPost, c.reissuePath, map[string]string{"refresh_token": refreshToken}, &p); err != nil {
		return token.Pair{}, err
	}
	return p, nil
}

// AdminArticles lists every article, private ones included.
func (c *Client) AdminArticles(ctx context.Context, page, size int) (*ArticlePage, error) {
	var p ArticlePage
	if err := c.getJSON(ctx, "/admin/articles", pageQuery(page, size), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CreateArticle(ctx context.Context, in ArticleInput) error {
	return c.sendJSON(ctx, http.MethodPost, "/admin/articles", in, nil)
}

func (c *Client) UpdateArticle(ctx context.Context, id int, in ArticleInput) error {
	return c.sendJSON(ctx, http.MethodPut, "/admin/articles/"+strconv.Itoa(id), in, nil)
}

func (c *Client) DeleteArticle(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, c.endpoint("/admin/articles/"+strconv.Itoa(id), nil), nil, "", nil)
}

func (c *Client) CreateCategory(ctx context.Context, name string) (*Category, error) {
	var cat Category
	if err := c.sendJSON(ctx, http.MethodPost, "/categories", map[string]string{"category_name": name}, &cat); err != nil {
		return nil, err
	}
	if cat.Name == "" {
		cat.Name = name
	}
	return &cat, nil
}

// Upload sends r as the multipart field "file" and returns the hosted URL.
func (c *Client) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("creating form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copying upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing form: %w", err)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("/upload", nil), &buf, mw.FormDataContentType(), &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("upload response has no url")
	}
	return out.URL, nil
}
