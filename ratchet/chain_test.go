package ratchet

import (
	"testing"

	"github.com/cilliemalan/microratchet-go/primitives"
	"github.com/stretchr/testify/assert"
)

func newTestChain() chainState {
	key := make([]byte, keySize)
	for i := range key {
		key[i] = byte(i)
	}
	return initChain(key)
}

func TestChainSendReceiveInOrder(t *testing.T) {
	block := primitives.StdBlockCipher{}
	sendChain := newTestChain()
	recvChain := newTestChain()

	for i := 0; i < 5; i++ {
		sendKey, gen, err := ratchetForSending(block, &sendChain)
		assert.NoError(t, err)

		recvKey, err := ratchetForReceiving(block, &recvChain, gen)
		assert.NoError(t, err)
		assert.Equal(t, sendKey, recvKey)
	}
}

func TestChainReceivingToleratesOneStepReorder(t *testing.T) {
	block := primitives.StdBlockCipher{}
	sendChain := newTestChain()
	recvChain := newTestChain()

	key1, gen1, err := ratchetForSending(block, &sendChain)
	assert.NoError(t, err)
	key2, gen2, err := ratchetForSending(block, &sendChain)
	assert.NoError(t, err)

	// message 2 arrives first
	recvKey2, err := ratchetForReceiving(block, &recvChain, gen2)
	assert.NoError(t, err)
	assert.Equal(t, key2, recvKey2)

	// message 1, one generation behind the chain's head, still decrypts
	recvKey1, err := ratchetForReceiving(block, &recvChain, gen1)
	assert.NoError(t, err)
	assert.Equal(t, key1, recvKey1)
}

func TestChainReceivingRejectsGenerationAtOrBeforeFallbackAnchor(t *testing.T) {
	block := primitives.StdBlockCipher{}
	sendChain := newTestChain()
	recvChain := newTestChain()

	for i := 0; i < 3; i++ {
		_, _, err := ratchetForSending(block, &sendChain)
		assert.NoError(t, err)
	}

	// skipping straight to generation 3 leaves the pre-skip state (gen 0)
	// as the fallback anchor.
	_, err := ratchetForReceiving(block, &recvChain, 3)
	assert.NoError(t, err)

	// generation 0 is the anchor itself, not something ahead of it — the
	// chain never held a message key for "generation zero" to begin with.
	_, err = ratchetForReceiving(block, &recvChain, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChainReceivingSkipsForward(t *testing.T) {
	block := primitives.StdBlockCipher{}
	sendChain := newTestChain()
	recvChain := newTestChain()

	var lastKey [msgKeySize]byte
	var lastGen uint32
	for i := 0; i < 4; i++ {
		k, g, err := ratchetForSending(block, &sendChain)
		assert.NoError(t, err)
		lastKey, lastGen = k, g
	}

	recvKey, err := ratchetForReceiving(block, &recvChain, lastGen)
	assert.NoError(t, err)
	assert.Equal(t, lastKey, recvKey)
}
