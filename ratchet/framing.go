package ratchet

import "github.com/cilliemalan/microratchet-go/primitives"

// headerPresenceBit marks the top bit of the frame's first byte: when
// set, a 32-byte ECDH public key follows the 4-byte nonce in the header
// region. The remaining 31 bits of the 4-byte nonce carry the chain
// generation number the message was encrypted under.
const headerPresenceBit = 0x80

// FrameOverhead returns the number of bytes construct adds around a
// payload for the given ECDH-inclusion choice.
func FrameOverhead(includeECDH bool) int {
	if includeECDH {
		return overheadWithECDH
	}
	return overheadWithoutECDH
}

// constructMessage encrypts payload in place into a data-message frame.
// out must be exactly len(payload) + FrameOverhead(includeECDH) bytes
// long and is built directly over payload's bytes at the right offset —
// callers are expected to lay out payload inside out at
// out[headerSize:headerSize+len(payload)] before calling, matching the
// in-place, zero-copy contract the rest of the engine follows.
func constructMessage(svc *primitives.Services, step *ratchetStep, includeECDH bool, out []byte) error {
	if len(out) < minPayloadSize+FrameOverhead(includeECDH) {
		return ErrInvalidSize
	}

	headerSize := nonceSize
	if includeECDH {
		headerSize += ecNumSize
	}
	payloadEnd := len(out) - macSize
	payload := out[headerSize:payloadEnd]
	if len(payload) < minPayloadSize {
		return ErrInvalidSize
	}

	msgKey, generation, err := ratchetForSending(svc.Block, &step.sendingChain)
	if err != nil {
		return err
	}
	if generation > 0x7FFFFFFF {
		return ErrInvalidOp // 31-bit generation space exhausted
	}

	out[0] = byte(generation >> 24)
	out[1] = byte(generation >> 16)
	out[2] = byte(generation >> 8)
	out[3] = byte(generation)
	if includeECDH {
		out[0] |= headerPresenceBit
		copy(out[nonceSize:nonceSize+ecNumSize], step.ecdhPublic[:])
	}

	var payloadIV [16]byte
	copy(payloadIV[:nonceSize], out[:nonceSize])
	if err := ctrCrypt(svc.Block, msgKey[:], payloadIV[:], payload); err != nil {
		return err
	}

	headerIV := out[payloadEnd-headerIVSize : payloadEnd]
	if err := ctrCrypt(svc.Block, step.sendHeaderKey[:], headerIV, out[:headerSize]); err != nil {
		return err
	}

	var macIV [16]byte
	copy(macIV[:], out[:macIVSize])
	if err := svc.Mac.Sign(step.sendHeaderKey[:], macIV[:], out[:payloadEnd], out[payloadEnd:]); err != nil {
		return err
	}
	return nil
}

// verifyFrame checks a candidate header key's MAC against data without
// mutating it, so a receiver can try several ratchet steps' header keys
// before committing to one.
func verifyFrame(svc *primitives.Services, headerKey [keySize]byte, data []byte) bool {
	if len(data) < minMessageSize {
		return false
	}
	payloadEnd := len(data) - macSize
	var macIV [16]byte
	copy(macIV[:], data[:macIVSize])
	return svc.Mac.Verify(headerKey[:], macIV[:], data[:payloadEnd], data[payloadEnd:])
}

// decryptHeader decrypts a frame's header in place — and only the
// header — once the caller has already confirmed headerKey authenticates
// the frame (via verifyFrame). It reveals the ECDH-presence flag and
// generation number without touching the payload, which matters when
// the message turns out to require a DH ratchet: the new ratchet step's
// chain isn't known yet, so the payload can't be decrypted in the same
// pass that decrypts the header.
//
// The ECDH-presence flag lives in the first encrypted header byte, so the
// header's true length isn't known until that byte is decrypted.
// AES-CTR keystream bytes are addressable independently of how many have
// already been consumed, so byte 0 is decrypted alone first, the flag
// read, and the rest of the header decrypted from the same stream
// position.
func decryptHeader(svc *primitives.Services, headerKey [keySize]byte, data []byte) (generation uint32, ecdhPublic primitives.PublicKey, ecdhPresent bool, headerSize int, err error) {
	payloadEnd := len(data) - macSize
	headerIV := data[payloadEnd-headerIVSize : payloadEnd]

	var stream *aesCTR
	if stream, err = newAESCTR(svc.Block, headerKey[:], headerIV); err != nil {
		return
	}
	if err = stream.process(data[:1], data[:1]); err != nil {
		return
	}
	ecdhPresent = data[0]&headerPresenceBit != 0
	headerSize = nonceSize
	if ecdhPresent {
		headerSize += ecNumSize
	}
	if len(data) < headerSize+macSize+minPayloadSize {
		err = ErrInvalidSize
		return
	}
	if err = stream.process(data[1:headerSize], data[1:headerSize]); err != nil {
		return
	}

	generation = uint32(data[0]&^headerPresenceBit)<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	if ecdhPresent {
		copy(ecdhPublic[:], data[nonceSize:nonceSize+ecNumSize])
	}
	return
}

// decryptPayload decrypts a frame's payload region in place once the
// message key for its generation is known.
func decryptPayload(svc *primitives.Services, msgKey [msgKeySize]byte, data []byte, headerSize int) ([]byte, error) {
	payloadEnd := len(data) - macSize
	payloadRegion := data[headerSize:payloadEnd]
	var payloadIV [16]byte
	copy(payloadIV[:nonceSize], data[:nonceSize])
	if err := ctrCrypt(svc.Block, msgKey[:], payloadIV[:], payloadRegion); err != nil {
		return nil, err
	}
	return payloadRegion, nil
}

// deconstructMessage authenticates and fully decrypts a data-message
// frame in place under headerKey/chain — the common case where no DH
// ratchet is triggered, so the chain that will yield the message key is
// already known up front.
func deconstructMessage(svc *primitives.Services, headerKey [keySize]byte, chain *chainState, data []byte) (payload []byte, ecdhPublic primitives.PublicKey, ecdhPresent bool, err error) {
	if len(data) < minMessageSize {
		err = ErrInvalidSize
		return
	}
	if !verifyFrame(svc, headerKey, data) {
		err = ErrVerifyFailed
		return
	}

	var generation uint32
	var headerSize int
	generation, ecdhPublic, ecdhPresent, headerSize, err = decryptHeader(svc, headerKey, data)
	if err != nil {
		return
	}

	var msgKey [msgKeySize]byte
	if msgKey, err = ratchetForReceiving(svc.Block, chain, generation); err != nil {
		return
	}

	payload, err = decryptPayload(svc, msgKey, data, headerSize)
	return
}
