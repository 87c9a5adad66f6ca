package ratchet

import "github.com/cilliemalan/microratchet-go/primitives"

// aesCTR is AES in counter mode with the protocol's counter convention:
// the 16-byte IV is incremented starting at its *last* byte, carrying
// backward through lower-indexed bytes on overflow — a big-endian
// increment of the whole 128-bit counter.
type aesCTR struct {
	block primitives.BlockCipher
	key   []byte
	ctr   [16]byte
	// keystream holds the most recently generated block and pos is how
	// much of it has been consumed.
	keystream [16]byte
	pos       int
}

func newAESCTR(block primitives.BlockCipher, key, iv []byte) (*aesCTR, error) {
	if len(iv) != 16 {
		return nil, ErrInvalidSize
	}
	c := &aesCTR{block: block, key: key, pos: 16}
	copy(c.ctr[:], iv)
	return c, nil
}

func incrementCounter(ctr *[16]byte) {
	for i := 15; i >= 0; i-- {
		ctr[i]++
		if ctr[i] != 0 {
			break
		}
	}
}

// process XORs src with the keystream into dst, advancing the counter as
// needed. dst and src may alias (in-place operation).
func (c *aesCTR) process(dst, src []byte) error {
	for i := 0; i < len(src); i++ {
		if c.pos == 16 {
			if err := c.block.EncryptBlock(c.key, c.keystream[:], c.ctr[:]); err != nil {
				return err
			}
			incrementCounter(&c.ctr)
			c.pos = 0
		}
		dst[i] = src[i] ^ c.keystream[c.pos]
		c.pos++
	}
	return nil
}

// ctrCrypt encrypts or decrypts data in place (AES-CTR is its own
// inverse) using key and the 16-byte iv, with the protocol's
// last-byte-first increment convention.
func ctrCrypt(block primitives.BlockCipher, key, iv, data []byte) error {
	c, err := newAESCTR(block, key, iv)
	if err != nil {
		return err
	}
	return c.process(data, data)
}
