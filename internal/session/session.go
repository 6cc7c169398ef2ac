// Package session decides whether a visitor holds a usable access token,
// reissuing it from the refresh token when needed.
package session

import (
	"context"
	"errors"
	"fmt"

	"devblog/internal/logging"
	"devblog/internal/storage"
	"devblog/internal/token"
)

// ErrNoSession means no valid access token could be produced.
var ErrNoSession = errors.New("session: no valid session")

const RoleAdmin = "admin"

// Reissuer trades a refresh token for a fresh pair.
type Reissuer interface {
	Reissue(ctx context.Context, refreshToken string) (token.Pair, error)
}

// PromoteRefresh hands the refresh token back as the new access token. It
// stands in where the auth server has no reissue endpoint.
type PromoteRefresh struct{}

func (PromoteRefresh) Reissue(_ context.Context, refreshToken string) (token.Pair, error) {
	return token.Pair{AccessToken: refreshToken, RefreshToken: refreshToken}, nil
}

// Manager holds what every session shares. Build one at startup.
type Manager struct {
	reissuer Reissuer
	codec    *token.Codec
	logger   logging.Logger
}

type Option func(*Manager)

func WithCodec(c *token.Codec) Option {
	return func(m *Manager) { m.codec = c }
}

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func NewManager(r Reissuer, opts ...Option) *Manager {
	if r == nil {
		r = PromoteRefresh{}
	}
	m := &Manager{
		reissuer: r,
		codec:    token.NewCodec(),
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Codec returns the codec the manager judges tokens with.
func (m *Manager) Codec() *token.Codec {
	return m.codec
}

// Session binds the manager to one token store.
func (m *Manager) Session(store *token.Store) *Session {
	return &Session{m: m, store: store}
}

type Session struct {
	m     *Manager
	store *token.Store
}

// ValidToken returns a currently valid access token. An expired access token
// is replaced through the Reissuer while the refresh token is still valid;
// in every other case the stored pair is cleared and ErrNoSession returned.
func (s *Session) ValidToken(ctx context.Context) (string, error) {
	access, err := s.read(ctx, s.store.AccessToken)
	if err != nil {
		return "", err
	}
	if access != "" && s.m.codec.Valid(access) {
		return access, nil
	}

	refresh, err := s.read(ctx, s.store.RefreshToken)
	if err != nil {
		return "", err
	}
	if refresh != "" && s.m.codec.Valid(refresh) {
		pair, err := s.m.reissuer.Reissue(ctx, refresh)
		if err == nil && pair.AccessToken != "" {
			if pair.RefreshToken == "" {
				pair.RefreshToken = refresh
			}
			if err := s.store.SetTokens(ctx, pair); err != nil {
				return "", err
			}
			s.m.logger.Debug(ctx, "access token reissued")
			return pair.AccessToken, nil
		}
		s.m.logger.Warn(ctx, "token reissue failed", "error", err)
	}

	if err := s.clear(ctx); err != nil {
		return "", err
	}
	return "", ErrNoSession
}

// IsAdmin reports whether the valid access token carries the admin role.
// No session is not an error.
func (s *Session) IsAdmin(ctx context.Context) (bool, error) {
	tok, err := s.ValidToken(ctx)
	if errors.Is(err, ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	p, err := s.m.codec.Decode(tok)
	if err != nil {
		return false, nil
	}
	return p.Role == RoleAdmin, nil
}

// Establish stores a pair obtained from a login or an OAuth code exchange.
func (s *Session) Establish(ctx context.Context, p token.Pair) error {
	if p.AccessToken == "" {
		return fmt.Errorf("establishing session: %w", token.ErrMalformed)
	}
	return s.store.SetTokens(ctx, p)
}

// Logout forgets the pair. Sending the visitor to the login page is up to
// the caller.
func (s *Session) Logout(ctx context.Context) error {
	return s.clear(ctx)
}

// CurrentUser decodes the stored access token without looking at expiry.
// It returns nil when there is nothing decodable.
func (s *Session) CurrentUser(ctx context.Context) (*token.Payload, error) {
	access, err := s.read(ctx, s.store.AccessToken)
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, nil
	}
	p, err := s.m.codec.Decode(access)
	if err != nil {
		return nil, nil
	}
	return p, nil
}

// read loads one token. A stored value that can no longer be opened counts
// as absent.
func (s *Session) read(ctx context.Context, get func(context.Context) (string, error)) (string, error) {
	v, err := get(ctx)
	if errors.Is(err, storage.ErrCorrupt) {
		s.m.logger.Warn(ctx, "discarding unreadable token", "error", err)
		return "", nil
	}
	return v, err
}

func (s *Session) clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
