package ratchet

import (
	"testing"

	"github.com/cilliemalan/microratchet-go/primitives"
	"github.com/stretchr/testify/assert"
)

func TestKdfComputeIsDeterministic(t *testing.T) {
	block := primitives.StdBlockCipher{}
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	info := []byte("some context string")

	outA := make([]byte, 64)
	outB := make([]byte, 64)
	assert.NoError(t, kdfCompute(block, key, info, outA))
	assert.NoError(t, kdfCompute(block, key, info, outB))
	assert.Equal(t, outA, outB)
}

func TestKdfComputeVariesWithKeyAndInfo(t *testing.T) {
	block := primitives.StdBlockCipher{}
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	base := make([]byte, 32)
	assert.NoError(t, kdfCompute(block, key, []byte("context-a"), base))

	diffInfo := make([]byte, 32)
	assert.NoError(t, kdfCompute(block, key, []byte("context-b"), diffInfo))
	assert.NotEqual(t, base, diffInfo)

	key2 := append([]byte{}, key...)
	key2[0] ^= 0xff
	diffKey := make([]byte, 32)
	assert.NoError(t, kdfCompute(block, key2, []byte("context-a"), diffKey))
	assert.NotEqual(t, base, diffKey)
}
