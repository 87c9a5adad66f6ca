package primitives

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/poly1305"
)

// Poly1305AES is the classical Bernstein Poly1305-AES one-time
// authenticator: the 32-byte key splits into a 16-byte polynomial
// multiplier r and a 16-byte AES key k. The poly1305 "s" component — the
// value XORed into the final accumulator — is AES_k(iv) for the message's
// 16-byte nonce/iv, rather than being carried in the key itself as in the
// IETF ChaCha20-Poly1305 variant. golang.org/x/crypto/poly1305 implements
// the r/accumulator math; this type supplies the AES-derived s.
type Poly1305AES struct {
	block BlockCipher
}

// NewPoly1305AES builds a Poly1305-AES authenticator over the given block
// cipher backend (used only to compute s = AES_k(iv)).
func NewPoly1305AES(block BlockCipher) Mac {
	return &Poly1305AES{block: block}
}

func (p *Poly1305AES) poly1305Key(key, iv []byte) ([32]byte, error) {
	if len(key) != KeySize {
		return [32]byte{}, errors.New("primitives: poly1305-aes key must be 32 bytes")
	}
	if len(iv) != BlockSize {
		return [32]byte{}, errors.New("primitives: poly1305-aes iv must be 16 bytes")
	}
	var s [16]byte
	if err := p.block.EncryptBlock(key[16:32], s[:], iv); err != nil {
		return [32]byte{}, err
	}
	var poly1305Key [32]byte
	copy(poly1305Key[:16], key[:16])
	copy(poly1305Key[16:], s[:])
	return poly1305Key, nil
}

func (p *Poly1305AES) Sign(key, iv, data, out []byte) error {
	if len(out) != MacSize {
		return errors.New("primitives: poly1305-aes tag buffer must be 12 bytes")
	}
	polyKey, err := p.poly1305Key(key, iv)
	if err != nil {
		return err
	}
	var tag [poly1305.TagSize]byte
	poly1305.Sum(&tag, data, &polyKey)
	copy(out, tag[:MacSize])
	return nil
}

func (p *Poly1305AES) Verify(key, iv, data, tag []byte) bool {
	if len(tag) != MacSize {
		return false
	}
	computed := make([]byte, MacSize)
	if err := p.Sign(key, iv, data, computed); err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(computed, tag) == 1
}
