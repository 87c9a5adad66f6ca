package ratchet

import "github.com/cilliemalan/microratchet-go/primitives"

// chainState is a single symmetric ratchet chain: a 32-byte chain key
// advancing by generation, plus one earlier chain key (oldChainKey /
// oldGeneration) so a message that arrives out of order — behind the
// current head but above the old generation — can still be decrypted
// without having to keep an unbounded skipped-key list.
type chainState struct {
	chainKey      [keySize]byte
	generation    uint32
	oldChainKey   [keySize]byte
	oldGeneration uint32
	haveOldKey    bool
}

func initChain(key []byte) chainState {
	var c chainState
	copy(c.chainKey[:], key)
	c.generation = 0
	return c
}

// ratchetForSending advances the chain by one generation and returns the
// per-message key for the generation it just produced.
func ratchetForSending(block primitives.BlockCipher, c *chainState) (msgKey [msgKeySize]byte, generation uint32, err error) {
	var out [keySize + msgKeySize]byte
	if err = kdfCompute(block, c.chainKey[:], []byte(chainContext), out[:]); err != nil {
		return
	}
	copy(c.chainKey[:], out[:keySize])
	copy(msgKey[:], out[keySize:])
	c.generation++
	generation = c.generation
	return
}

// ratchetForReceiving derives the message key for an arbitrary generation
// number, which may be:
//   - the chain's current generation + 1 (the common case: advance once)
//   - further ahead (skip forward; if no fallback key is held yet, the
//     chain key and generation from before the skip become the "old"
//     fallback)
//   - at or behind the current generation but above chain.oldGeneration,
//     when oldChainKey is held (reordering delivered an older message
//     late); it is derived forward from the old key, and the old key
//     moves up one step when the target is exactly oldGeneration+1
//
// Anything else — a generation at or behind the old fallback, or behind
// the current head with no fallback held — is ErrNotFound: the key has
// already been consumed and discarded, or was never derivable from what
// this chain currently holds.
func ratchetForReceiving(block primitives.BlockCipher, c *chainState, generation uint32) (msgKey [msgKeySize]byte, err error) {
	var startGen uint32
	var startKey [keySize]byte

	switch {
	case generation > c.generation:
		startGen = c.generation
		startKey = c.chainKey
	case c.haveOldKey && generation > c.oldGeneration && generation <= c.generation:
		startGen = c.oldGeneration
		startKey = c.oldChainKey
	default:
		err = ErrNotFound
		return
	}

	mustSkip := generation > c.generation && (generation-c.generation) > 1
	incrementOld := generation > c.oldGeneration && generation <= c.generation &&
		c.haveOldKey && generation == c.oldGeneration+1

	preAdvanceKey := c.chainKey
	preAdvanceGen := c.generation

	gen := startGen
	key := startKey
	var derivedKey [msgKeySize]byte
	var nextChainKey [keySize]byte
	for gen < generation {
		var out [keySize + msgKeySize]byte
		if err = kdfCompute(block, key[:], []byte(chainContext), out[:]); err != nil {
			return
		}
		copy(nextChainKey[:], out[:keySize])
		copy(derivedKey[:], out[keySize:])
		key = nextChainKey
		gen++
	}

	if mustSkip && !c.haveOldKey {
		c.oldChainKey = preAdvanceKey
		c.oldGeneration = preAdvanceGen
		c.haveOldKey = true
	}
	if incrementOld {
		c.oldChainKey = key
		c.oldGeneration = generation
	}
	if generation > c.generation {
		c.chainKey = key
		c.generation = generation
	}

	msgKey = derivedKey
	return
}
