package store

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveStorageKey stretches a user-supplied passphrase and a stored
// salt into the 32-byte key SealedStore uses to encrypt a saved session
// blob at rest before handing it to a Store. This is local-storage
// hardening, not part of the ratchet protocol itself — the protocol's
// own key material never touches HKDF.
func DeriveStorageKey(passphrase, salt []byte) ([32]byte, error) {
	var key [32]byte
	r := hkdf.New(sha256.New, passphrase, salt, []byte("microratchet-go storage key"))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return [32]byte{}, err
	}
	return key, nil
}
