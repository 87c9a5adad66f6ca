package store

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const saltSize = 16

// SealedStore wraps a SessionStore with passphrase-based encryption at
// rest, e.g. over a local BoltStore file — a session blob is the
// ratchet engine's own serialization, which is sensitive enough on disk
// to be worth sealing even though it never crosses the wire this way.
// Each Save picks a fresh salt and prepends it to the ciphertext so
// Load can re-derive the same key without storing it separately.
type SealedStore struct {
	inner      SessionStore
	passphrase []byte
}

func NewSealedStore(inner SessionStore, passphrase []byte) *SealedStore {
	return &SealedStore{inner: inner, passphrase: passphrase}
}

func (s *SealedStore) Save(ctx context.Context, sessionID string, data []byte) error {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	aead, err := s.aead(salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	sealed := aead.Seal(nil, nonce, data, nil)

	blob := make([]byte, 0, saltSize+len(nonce)+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return s.inner.Save(ctx, sessionID, blob)
}

func (s *SealedStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	blob, err := s.inner.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(blob) < saltSize {
		return nil, fmt.Errorf("store: sealed blob too short")
	}
	salt, rest := blob[:saltSize], blob[saltSize:]
	aead, err := s.aead(salt)
	if err != nil {
		return nil, err
	}
	if len(rest) < aead.NonceSize() {
		return nil, fmt.Errorf("store: sealed blob missing nonce")
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

func (s *SealedStore) Delete(ctx context.Context, sessionID string) error {
	return s.inner.Delete(ctx, sessionID)
}

func (s *SealedStore) Close() error {
	return s.inner.Close()
}

// aead derives the per-salt key and builds an XChaCha20-Poly1305 AEAD
// from it — a 24-byte nonce is large enough to pick at random per Save
// without the birthday-bound worry AES-GCM's 12-byte nonce carries.
func (s *SealedStore) aead(salt []byte) (cipher.AEAD, error) {
	key, err := DeriveStorageKey(s.passphrase, salt)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(key[:])
}
