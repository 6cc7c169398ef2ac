package token

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seg(v any) string {
	b, _ := json.Marshal(v)
	return base64.RawURLEncoding.EncodeToString(b)
}

func makeToken(claims map[string]any) string {
	return seg(map[string]string{"alg": "HS256", "typ": "JWT"}) + "." + seg(claims) + ".signature"
}

func TestCodec_Decode(t *testing.T) {
	c := NewCodec()

	tok := makeToken(map[string]any{
		"sub": "42", "email": "me@example.com", "role": "admin",
		"iat": 1700000000, "exp": 1800000000,
	})

	p, err := c.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, &Payload{
		Subject: "42", Email: "me@example.com", Role: "admin",
		IssuedAt: 1700000000, Expiry: 1800000000,
	}, p)
}

func TestCodec_DecodeIgnoresHeaderAndSignature(t *testing.T) {
	c := NewCodec()

	p, err := c.Decode("garbage." + seg(map[string]any{"sub": "1", "exp": 5}) + ".")
	require.NoError(t, err)
	assert.EqualValues(t, 5, p.Expiry)
}

func TestCodec_DecodePaddedSegment(t *testing.T) {
	c := NewCodec()
	b, _ := json.Marshal(map[string]any{"sub": "x", "exp": 10})
	padded := base64.URLEncoding.EncodeToString(b)

	p, err := c.Decode("h." + padded + ".s")
	require.NoError(t, err)
	assert.Equal(t, "x", p.Subject)
}

func TestCodec_DecodeMalformed(t *testing.T) {
	c := NewCodec()
	good := seg(map[string]any{"exp": 10})

	tests := []struct {
		name string
		tok  string
	}{
		{"empty", ""},
		{"one segment", "abc"},
		{"two segments", "a." + good},
		{"four segments", "a." + good + ".c.d"},
		{"bad base64", "a.!!!.c"},
		{"not json", "a." + base64.RawURLEncoding.EncodeToString([]byte("hello")) + ".c"},
		{"exp not a number", "a." + seg(map[string]any{"exp": "soon"}) + ".c"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := c.Decode(tc.tok)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Nil(t, p)
		})
	}
}

func TestCodec_Valid(t *testing.T) {
	c := NewCodec(WithClock(func() time.Time { return fixedNow }))
	now := fixedNow.Unix()

	tests := []struct {
		name string
		tok  string
		want bool
	}{
		{"expires later", makeToken(map[string]any{"exp": now + 60}), true},
		{"expires now", makeToken(map[string]any{"exp": now}), false},
		{"expired", makeToken(map[string]any{"exp": now - 1}), false},
		{"no exp", makeToken(map[string]any{"sub": "1"}), false},
		{"malformed", "x.y", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Valid(tc.tok))
		})
	}
}
