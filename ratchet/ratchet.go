// Package ratchet implements the MicroRatchet session protocol: a
// three-round handshake followed by a double-ratchet-style symmetric
// chain with DH-triggered root ratcheting, sized for constrained
// transports. It never logs, and data messages are encrypted and
// decrypted in the caller's buffers; handshake replies and saved state
// come back in newly allocated slices. Callers own all I/O.
package ratchet

import "github.com/cilliemalan/microratchet-go/primitives"

const (
	keySize   = primitives.KeySize
	ecNumSize = primitives.ECNumSize
	sigSize   = primitives.SignatureSize
	macSize   = primitives.MacSize

	// nonceSize is the width of the per-message counter carried in the
	// clear (well, encrypted) message header.
	nonceSize = 4
	// initNonceSize is the width of the handshake's randomly-chosen
	// initialization nonce.
	initNonceSize = 16
	// headerIVSize is the width of the IV used to encrypt the message
	// header.
	headerIVSize = 16
	// macIVSize is the width of the IV used to compute the message MAC.
	macIVSize = 16
	// msgKeySize is the width of a single-message AES key derived from a
	// chain step.
	msgKeySize = 16

	// chainContext is the fixed info string the chain ratchet's KDF step
	// is keyed with.
	chainContext = "chainratchet"

	// overheadWithoutECDH is nonce + mac, the minimum framing cost of a
	// data message that doesn't carry a fresh ECDH public key.
	overheadWithoutECDH = nonceSize + macSize
	// overheadWithECDH adds the 32-byte X-only EC point.
	overheadWithECDH = overheadWithoutECDH + ecNumSize
	// minPayloadSize is the smallest payload region the framing format
	// can carry (it must be at least as large as the header IV window
	// it overlaps with).
	minPayloadSize = headerIVSize
	// minMessageSize is the smallest legal data message without an
	// embedded ECDH key.
	minMessageSize = overheadWithoutECDH + minPayloadSize
	// minMessageSizeWithECDH is the smallest legal data message that
	// carries a fresh ECDH key.
	minMessageSizeWithECDH = overheadWithECDH + minPayloadSize

	// initRequestMessageSize is the fixed size of round 1 of the
	// handshake: nonce, identity pubkey, ephemeral ECDH pubkey,
	// signature and MAC.
	initRequestMessageSize = initNonceSize + ecNumSize*2 + sigSize + macSize
	// initResponseMessageSize is the fixed size of round 2: the server's
	// nonce and its one-off root-pre-key ECDH public key travel in the
	// clear-framed header region; the server's identity public key and
	// its two ratchet-bootstrap ECDH public keys travel in the encrypted
	// body alongside the echoed client nonce; a signature and a MAC
	// close it out. There is no raw root key on the wire anywhere — both
	// sides derive it from an ECDH they each already hold half of.
	initResponseMessageSize = initNonceSize*2 + ecNumSize*4 + sigSize + macSize

	// defaultMaxRatchets bounds the ratchet list length (spec's §3
	// resource budget); configurable via Config.MaxRatchets.
	defaultMaxRatchets = 5
)
