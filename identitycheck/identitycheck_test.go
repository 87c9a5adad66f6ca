package identitycheck

import (
	"testing"

	"github.com/cilliemalan/microratchet-go/primitives"
	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	var pub primitives.PublicKey
	for i := range pub {
		pub[i] = byte(i)
	}

	a := Fingerprint(pub, []byte("alice"))
	b := Fingerprint(pub, []byte("alice"))
	assert.True(t, Matches(a, b))
}

func TestFingerprintDiffersByIdentifier(t *testing.T) {
	var pub primitives.PublicKey
	for i := range pub {
		pub[i] = byte(i)
	}

	a := Fingerprint(pub, []byte("alice"))
	b := Fingerprint(pub, []byte("bob"))
	assert.False(t, Matches(a, b))
}

func TestFingerprintDiffersByKey(t *testing.T) {
	var pub1, pub2 primitives.PublicKey
	for i := range pub1 {
		pub1[i] = byte(i)
		pub2[i] = byte(i + 1)
	}

	a := Fingerprint(pub1, []byte("alice"))
	b := Fingerprint(pub2, []byte("alice"))
	assert.False(t, Matches(a, b))
}
