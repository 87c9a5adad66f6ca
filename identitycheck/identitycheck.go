// Package identitycheck gives an out-of-band way for two MicroRatchet
// peers to confirm a long-term identity key before it is pinned with
// Session.SetPeerIdentity — the engine itself has no trust store and
// signs/verifies whatever key it is handed.
package identitycheck

import (
	"crypto/sha512"
	"encoding/binary"

	"github.com/cilliemalan/microratchet-go/primitives"
)

// numGroups * digitsPerGroup digits are shown to the user, split into
// groups the way Signal's own safety-number display is.
const (
	numGroups      = 6
	digitsPerGroup = 5
	iterations     = 5200
)

// Fingerprint derives a human-comparable digit sequence from a peer's
// pinned identity key and a caller-supplied identifier (e.g. the peer's
// username or session ID), repeated hashing making brute-force key
// fitting against a chosen fingerprint expensive.
func Fingerprint(pub primitives.PublicKey, peerIdentifier []byte) [numGroups * digitsPerGroup]int {
	digest := append(append([]byte{}, pub[:]...), peerIdentifier...)
	hash := sha512.New()
	for i := 0; i < iterations; i++ {
		hash.Write(digest)
		digest = hash.Sum(nil)
		hash.Reset()
	}

	var result [digitsPerGroup * numGroups]byte
	copy(result[:], digest[:digitsPerGroup*numGroups])

	var out [numGroups * digitsPerGroup]int
	for i := 0; i < numGroups; i++ {
		chunk := result[i*digitsPerGroup : (i+1)*digitsPerGroup]
		num := binary.BigEndian.Uint64(append([]byte{0, 0, 0}, chunk...)) % 100000
		for j := digitsPerGroup - 1; j >= 0; j-- {
			out[i*digitsPerGroup+j] = int(num % 10)
			num /= 10
		}
	}
	return out
}

// Matches reports whether two fingerprints (e.g. one displayed locally,
// one read aloud by the peer over a trusted channel) are identical.
func Matches(a, b [numGroups * digitsPerGroup]int) bool {
	return a == b
}
