package apiclient

import (
	"context"
	"net/http"
	"time"

	"devblog/internal/token"
)

// TokenSource yields a currently valid access token or an error.
type TokenSource interface {
	ValidToken(ctx context.Context) (string, error)
}

// Factory builds clients that share base URL and transport settings.
type Factory struct {
	BaseURL     string
	Timeout     time.Duration
	HTTPClient  *http.Client
	ReissuePath string
}

func (f *Factory) options() []Option {
	var opts []Option
	if f.Timeout > 0 {
		opts = append(opts, WithTimeout(f.Timeout))
	}
	if f.HTTPClient != nil {
		opts = append(opts, WithHTTPClient(f.HTTPClient))
	}
	if f.ReissuePath != "" {
		opts = append(opts, WithReissuePath(f.ReissuePath))
	}
	return opts
}

// Public returns a client without credentials.
func (f *Factory) Public() (*Client, error) {
	return New(f.BaseURL, f.options()...)
}

// CreateClient asks src for a token and returns a fresh client carrying it.
// The error from src is returned as is, so callers can match the session
// package's ErrNoSession.
func (f *Factory) CreateClient(ctx context.Context, src TokenSource) (*Client, error) {
	tok, err := src.ValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return New(f.BaseURL, append(f.options(), WithBearer(tok))...)
}

// Reissue lets the factory act as the session's reissuer.
func (f *Factory) Reissue(ctx context.Context, refreshToken string) (token.Pair, error) {
	c, err := f.Public()
	if err != nil {
		return token.Pair{}, err
	}
	return c.Reissue(ctx, refreshToken)
}
