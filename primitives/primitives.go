// Package primitives is the cryptographic façade the ratchet engine is
// built on. Every algorithm the protocol needs — hashing, single-block AES,
// the Poly1305-AES MAC, P-256 ECDH/ECDSA and a CSPRNG — is expressed as a
// small interface here so the engine never imports crypto/* directly and a
// host can swap in a hardware-backed or deterministic implementation.
package primitives

import "errors"

const (
	// KeySize is the width of a symmetric key, an X-only EC point, a
	// SHA-256 digest and an AES block key.
	KeySize = 32
	// ECNumSize is the width of the X-only coordinate used to represent
	// a P-256 public key on the wire.
	ECNumSize = 32
	// SignatureSize is the width of an ECDSA P-256 signature, r||s.
	SignatureSize = ECNumSize * 2
	// BlockSize is the AES block size.
	BlockSize = 16
	// DigestSize is the width of a SHA-256 digest.
	DigestSize = 32
	// MacSize is the truncated width of the Poly1305-AES authentication
	// tag carried on the wire.
	MacSize = 12
)

// ErrRNGFail is returned when the entropy source cannot produce output.
var ErrRNGFail = errors.New("primitives: random generation failed")

// ErrVerifyFail is returned by Verify and by the MAC/signature checks when
// the supplied tag or signature does not match.
var ErrVerifyFail = errors.New("primitives: verification failed")

// Digest is a SHA-256-shaped hash function.
type Digest interface {
	// Sum256 writes the 32-byte digest of data into out, which must have
	// room for DigestSize bytes.
	Sum256(data []byte, out []byte)
}

// BlockCipher performs a single AES block operation keyed by a 32-byte
// (AES-256) or 16-byte (AES-128) key, depending on what the caller loaded.
// The protocol only ever uses it for one block at a time (CTR keystream
// generation and the Poly1305-AES "s" component), so there is no streaming
// mode here.
type BlockCipher interface {
	// EncryptBlock encrypts exactly one 16-byte block in place: dst and
	// src may overlap or alias, both must be BlockSize long.
	EncryptBlock(key, dst, src []byte) error
}

// Mac is the Poly1305-AES one-time authenticator.
type Mac interface {
	// Sign computes a tag over data using key (32 bytes: 16-byte r plus
	// the 16-byte AES key used to derive s) and a 16-byte nonce/iv, and
	// writes it into out (MacSize bytes).
	Sign(key, iv, data, out []byte) error
	// Verify reports whether tag authenticates data under key/iv. The
	// comparison is constant-time.
	Verify(key, iv, data, tag []byte) bool
}

// PublicKey is the X-only, even-Y representation of a P-256 point used
// throughout the wire format: 32 bytes, no compression prefix.
type PublicKey [ECNumSize]byte

// Signature is a raw r||s P-256 ECDSA signature.
type Signature [SignatureSize]byte

// KeyAgreement is a single ECDH keypair. Implementations are single-use:
// a new one is created per ratchet step.
type KeyAgreement interface {
	// Generate creates a fresh keypair and returns its public key.
	Generate() (PublicKey, error)
	// PublicKey returns the public key of the currently loaded keypair.
	PublicKey() (PublicKey, error)
	// Derive computes the raw ECDH shared value (the affine X coordinate
	// of otherPublic*privateScalar, no hashing) with the other party's
	// X-only public key, reconstructing its Y via the curve equation.
	Derive(otherPublic PublicKey) ([]byte, error)
	// Store serializes the private scalar (32 bytes).
	Store() ([]byte, error)
	// Load restores a keypair from a serialized private scalar.
	Load(data []byte) error
}

// Signer is a long-term P-256 ECDSA identity.
type Signer interface {
	// Generate creates a fresh identity keypair.
	Generate() error
	// PublicKey returns the public key of the loaded identity.
	PublicKey() (PublicKey, error)
	// Sign signs the SHA-256 digest of data.
	Sign(data []byte) (Signature, error)
	// Verify checks sig against the SHA-256 digest of data under pub.
	Verify(pub PublicKey, data []byte, sig Signature) bool
	// Store serializes the private scalar (32 bytes).
	Store() ([]byte, error)
	// Load restores an identity from a serialized private scalar.
	Load(data []byte) error
}

// RandomSource is the CSPRNG the engine pulls nonces and ephemeral keys
// from.
type RandomSource interface {
	// Random fills out with cryptographically random bytes.
	Random(out []byte) error
	// Seed mixes additional entropy into the source. Backends for which
	// reseeding is meaningless (the OS CSPRNG) may treat this as a no-op.
	Seed(seed []byte) error
}

// Services bundles one implementation of each primitive. The engine is
// constructed with a Services value and never reaches past it.
type Services struct {
	Digest  Digest
	Block   BlockCipher
	Mac     Mac
	Rand    RandomSource
	NewECDH func() KeyAgreement
	Signer  func() Signer
}
