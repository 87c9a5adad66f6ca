package ratchet

import "github.com/cilliemalan/microratchet-go/primitives"

// kdfCompute is the protocol's AES-based key derivation function — not
// HKDF. It runs in two phases:
//
//  1. Absorb: info is split into 16-byte chunks (the last one zero-padded
//     if short). A 16-byte accumulator starts at zero; each chunk is XORed
//     into it and the accumulator is then AES-encrypted in place, keyed by
//     key. This is effectively a CBC-MAC of info under key.
//  2. Output: the accumulator from step 1 becomes the initial counter. To
//     produce each 16-byte block of output, the counter is first
//     incremented (using the same last-byte-first convention as the CTR
//     mode) and then AES-encrypted; the ciphertext is the output block. A
//     short final block takes only the leading bytes it needs.
//
// This construction absorbs an arbitrary-length info string into a fixed
// 16-byte state with the same primitive used to then stretch that state
// to any output length, so the whole KDF needs nothing but one AES block
// operation.
func kdfCompute(block primitives.BlockCipher, key, info []byte, out []byte) error {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return ErrInvalidSize
	}

	var acc [16]byte
	for i := 0; i < len(info); i += 16 {
		end := i + 16
		if end > len(info) {
			end = len(info)
		}
		chunk := info[i:end]
		for j, b := range chunk {
			acc[j] ^= b
		}
		if err := block.EncryptBlock(key, acc[:], acc[:]); err != nil {
			return err
		}
	}
	if len(info) == 0 {
		if err := block.EncryptBlock(key, acc[:], acc[:]); err != nil {
			return err
		}
	}

	ctr := acc
	produced := 0
	for produced < len(out) {
		incrementCounter(&ctr)
		var blockOut [16]byte
		if err := block.EncryptBlock(key, blockOut[:], ctr[:]); err != nil {
			return err
		}
		n := copy(out[produced:], blockOut[:])
		produced += n
	}
	return nil
}
