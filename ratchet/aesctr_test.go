package ratchet

import (
	"testing"

	"github.com/cilliemalan/microratchet-go/primitives"
	"github.com/stretchr/testify/assert"
)

func TestCtrCryptRoundTrip(t *testing.T) {
	block := primitives.StdBlockCipher{}
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	iv := make([]byte, 16)

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	buf := append([]byte{}, plaintext...)

	assert.NoError(t, ctrCrypt(block, key, iv, buf))
	assert.NotEqual(t, plaintext, buf)

	assert.NoError(t, ctrCrypt(block, key, iv, buf))
	assert.Equal(t, plaintext, buf)
}

func TestAESCTRPositionalDecryption(t *testing.T) {
	block := primitives.StdBlockCipher{}
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	iv := make([]byte, 16)

	plaintext := []byte("0123456789abcdef0123456789abcdef")
	whole := append([]byte{}, plaintext...)
	assert.NoError(t, ctrCrypt(block, key, iv, whole))

	// decrypting byte 0 alone, then the rest from the same stream
	// position, must produce the same plaintext as one single pass.
	split := append([]byte{}, whole...)
	stream, err := newAESCTR(block, key, iv)
	assert.NoError(t, err)
	assert.NoError(t, stream.process(split[:1], split[:1]))
	assert.NoError(t, stream.process(split[1:], split[1:]))
	assert.Equal(t, plaintext, split)
}

func TestIncrementCounterCarriesFromLastByte(t *testing.T) {
	var ctr [16]byte
	ctr[15] = 0xff
	incrementCounter(&ctr)
	assert.Equal(t, byte(0), ctr[15])
	assert.Equal(t, byte(1), ctr[14])

	var zero [16]byte
	incrementCounter(&zero)
	assert.Equal(t, byte(1), zero[15])
	for i := 0; i < 15; i++ {
		assert.Equal(t, byte(0), zero[i])
	}
}
