package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealInfo = "devblog storage v1"

// Sealed encrypts values before handing them to the wrapped Storage. The key
// name is bound as additional data, so a value copied under another key will
// not open.
type Sealed struct {
	inner Storage
	aead  cipher.AEAD
}

func NewSealed(inner Storage, secret []byte) (*Sealed, error) {
	if len(secret) == 0 {
		return nil, errors.New("sealing secret is empty")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &Sealed{inner: inner, aead: aead}, nil
}

// Wrap returns a Storage sharing this key material over a different backend.
func (s *Sealed) Wrap(inner Storage) *Sealed {
	return &Sealed{inner: inner, aead: s.aead}
}

func (s *Sealed) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}

	blob, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil || len(blob) < s.aead.NonceSize() {
		return "", false, fmt.Errorf("%w: %s", ErrCorrupt, key)
	}

	nonce, ciphertext := blob[:s.aead.NonceSize()], blob[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("%w: %s", ErrCorrupt, key)
	}
	return string(plain), true, nil
}

func (s *Sealed) Set(ctx context.Context, key, value string) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	blob := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return s.inner.Set(ctx, key, base64.RawStdEncoding.EncodeToString(blob))
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
