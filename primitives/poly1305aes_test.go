package primitives

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoly1305AESSignAndVerify(t *testing.T) {
	mac := NewPoly1305AES(StdBlockCipher{})

	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	iv := make([]byte, 16)

	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte("hi")},
		{"block aligned", []byte("0123456789abcdef")},
		{"unaligned", []byte("0123456789abcdef0123")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag := make([]byte, MacSize)
			assert.NoError(t, mac.Sign(key[:], iv, tt.data, tag))
			assert.True(t, mac.Verify(key[:], iv, tt.data, tag))

			tampered := append([]byte{}, tt.data...)
			if len(tampered) > 0 {
				tampered[0] ^= 0xff
			} else {
				tampered = []byte{1}
			}
			assert.False(t, mac.Verify(key[:], iv, tampered, tag))

			badTag := append([]byte{}, tag...)
			badTag[0] ^= 0xff
			assert.False(t, mac.Verify(key[:], iv, tt.data, badTag))
		})
	}
}

func TestPoly1305AESDifferentIV(t *testing.T) {
	mac := NewPoly1305AES(StdBlockCipher{})
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i * 3)
	}
	data := []byte("some message")

	tagA := make([]byte, MacSize)
	tagB := make([]byte, MacSize)
	ivA := make([]byte, 16)
	ivB := make([]byte, 16)
	ivB[0] = 1

	assert.NoError(t, mac.Sign(key[:], ivA, data, tagA))
	assert.NoError(t, mac.Sign(key[:], ivB, data, tagB))
	assert.NotEqual(t, tagA, tagB)
}
