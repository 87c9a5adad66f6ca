package ratchet

import "github.com/cilliemalan/microratchet-go/primitives"

// pendingClientInit is the state a client keeps between sending round 1
// (the init request) and receiving round 2 (the init response). It has
// nowhere else to live: the client has no ratchet yet to hang it off of.
type pendingClientInit struct {
	nonce [initNonceSize]byte
	ecdh  primitives.KeyAgreement
}

// pendingServerInit is the state a server keeps between answering round 1
// and receiving the client's first data message (round 3, which carries
// the handshake to completion rather than opening a fourth round). It is
// consumed — and dropped — the moment that first data message arrives.
// nextNonce doubles as both round 2's plaintext server_nonce and the
// value round 3/4 echo back — the original implementation never
// generates a second one.
type pendingServerInit struct {
	nonce              [initNonceSize]byte
	nextNonce          [initNonceSize]byte
	rootKey            [keySize]byte
	firstSendHeaderKey [keySize]byte
	firstRecvHeaderKey [keySize]byte
	localStep0         primitives.KeyAgreement
	localStep1         primitives.KeyAgreement
	clientIdentityPub  primitives.PublicKey
}

// buildInitRequest writes round 1 of the handshake into out, which must
// be exactly initRequestMessageSize bytes: a 16-byte nonce in the clear,
// followed by the client's long-term identity public key and a fresh
// ephemeral ECDH public key, a signature over all of that by the
// identity's private key, and finally a MAC — everything between the
// nonce and the MAC encrypted under the pre-shared application key so an observer
// who doesn't know that key can't even see which identity is dialing in.
func buildInitRequest(svc *primitives.Services, identity primitives.Signer, applicationKey [keySize]byte, out []byte) (*pendingClientInit, error) {
	if len(out) != initRequestMessageSize {
		return nil, ErrInvalidSize
	}

	pending := &pendingClientInit{ecdh: svc.NewECDH()}
	if err := svc.Rand.Random(pending.nonce[:]); err != nil {
		return nil, ErrRandomFailed
	}
	copy(out[:initNonceSize], pending.nonce[:])

	ecdhPub, err := pending.ecdh.Generate()
	if err != nil {
		return nil, err
	}
	idPub, err := identity.PublicKey()
	if err != nil {
		return nil, err
	}

	off := initNonceSize
	copy(out[off:off+ecNumSize], idPub[:])
	off += ecNumSize
	copy(out[off:off+ecNumSize], ecdhPub[:])
	off += ecNumSize

	sigRegion := out[:off]
	sig, err := identity.Sign(sigRegion)
	if err != nil {
		return nil, err
	}
	copy(out[off:off+sigSize], sig[:])
	off += sigSize

	encRegion := out[initNonceSize:off]
	if err := ctrCrypt(svc.Block, applicationKey[:], pending.nonce[:], encRegion); err != nil {
		return nil, err
	}

	macRegion := out[:off]
	var macIV [16]byte
	copy(macIV[:], pending.nonce[:16])
	if err := svc.Mac.Sign(applicationKey[:], macIV[:], macRegion, out[off:]); err != nil {
		return nil, err
	}

	return pending, nil
}

// parseInitRequest authenticates and decodes a round-1 message, returning
// the peer's claimed long-term identity key and ephemeral ECDH key. The
// caller is responsible for deciding whether to trust that identity (the
// ratchet engine has no concept of a trust store — see identitycheck).
func parseInitRequest(svc *primitives.Services, applicationKey [keySize]byte, msg []byte) (clientIdentity primitives.PublicKey, clientEcdh primitives.PublicKey, nonce [initNonceSize]byte, err error) {
	if len(msg) != initRequestMessageSize {
		err = ErrInvalidSize
		return
	}
	copy(nonce[:], msg[:initNonceSize])

	macOffset := len(msg) - macSize
	var macIV [16]byte
	copy(macIV[:], nonce[:16])
	if !svc.Mac.Verify(applicationKey[:], macIV[:], msg[:macOffset], msg[macOffset:]) {
		err = ErrVerifyFailed
		return
	}

	encRegion := msg[initNonceSize:macOffset]
	if err = ctrCrypt(svc.Block, applicationKey[:], nonce[:], encRegion); err != nil {
		return
	}

	off := initNonceSize
	copy(clientIdentity[:], msg[off:off+ecNumSize])
	off += ecNumSize
	copy(clientEcdh[:], msg[off:off+ecNumSize])
	off += ecNumSize

	var sig primitives.Signature
	copy(sig[:], msg[off:off+sigSize])

	// The signature covers the plaintext layout (nonce || identity ||
	// ecdh), which is exactly msg[:off] now that encRegion has been
	// decrypted in place.
	if !identityVerify(svc, clientIdentity, msg[:off], sig) {
		err = ErrVerifyFailed
		return
	}
	return
}

// identityVerify checks sig against data under pub using a throwaway
// Signer instance — verification needs no private key, just the curve
// math, so a fresh zero-value Signer from the services bundle is enough.
func identityVerify(svc *primitives.Services, pub primitives.PublicKey, data []byte, sig primitives.Signature) bool {
	verifier := svc.Signer()
	return verifier.Verify(pub, data, sig)
}

// buildInitResponse writes round 2 of the handshake into out, which must
// be exactly initResponseMessageSize bytes. The root key never travels
// on the wire: the server generates a one-off ECDH keypair (rootPreEcdh)
// and derives root_pre_key as SHA256(ECDH(rootPreEcdh, clientEcdh)), which
// the client can reproduce from its own round-1 ephemeral and the public
// half of rootPreEcdh carried in the header. Everything from root_pre_key
// onward — root key and the two first header keys — is then expanded with
// kdf keyed on root_pre_key, with server_nonce as its info. Server-side state needed to build its own
// ratchet once round 3 arrives is handed back in a pendingServerInit.
func buildInitResponse(
	svc *primitives.Services,
	identity primitives.Signer,
	applicationKey [keySize]byte,
	clientIdentity primitives.PublicKey,
	clientEcdh primitives.PublicKey,
	clientNonce [initNonceSize]byte,
	out []byte,
) (*pendingServerInit, error) {
	if len(out) != initResponseMessageSize {
		return nil, ErrInvalidSize
	}

	pending := &pendingServerInit{
		clientIdentityPub: clientIdentity,
		localStep0:        svc.NewECDH(),
		localStep1:        svc.NewECDH(),
	}
	pending.nonce = clientNonce
	if err := svc.Rand.Random(pending.nextNonce[:]); err != nil {
		return nil, ErrRandomFailed
	}
	serverNonce := pending.nextNonce

	rootPreEcdh := svc.NewECDH()
	rootPreEcdhPub, err := rootPreEcdh.Generate()
	if err != nil {
		return nil, err
	}
	rootPreShared, err := rootPreEcdh.Derive(clientEcdh)
	if err != nil {
		return nil, err
	}
	var rootPreKey [keySize]byte
	svc.Digest.Sum256(rootPreShared, rootPreKey[:])

	rre0Pub, err := pending.localStep0.Generate()
	if err != nil {
		return nil, err
	}
	rre1Pub, err := pending.localStep1.Generate()
	if err != nil {
		return nil, err
	}
	serverPub, err := identity.PublicKey()
	if err != nil {
		return nil, err
	}

	off := 0
	copy(out[off:off+initNonceSize], serverNonce[:])
	off += initNonceSize
	copy(out[off:off+ecNumSize], rootPreEcdhPub[:])
	off += ecNumSize
	headerEnd := off // 48

	copy(out[off:off+initNonceSize], clientNonce[:])
	off += initNonceSize
	copy(out[off:off+ecNumSize], serverPub[:])
	off += ecNumSize
	copy(out[off:off+ecNumSize], rre0Pub[:])
	off += ecNumSize
	copy(out[off:off+ecNumSize], rre1Pub[:])
	off += ecNumSize
	sigOffset := off

	sig, err := identity.Sign(out[:sigOffset])
	if err != nil {
		return nil, err
	}
	copy(out[off:off+sigSize], sig[:])
	off += sigSize
	macOffset := off

	bracket := out[headerEnd:macOffset]
	if err := ctrCrypt(svc.Block, rootPreKey[:], serverNonce[:], bracket); err != nil {
		return nil, err
	}

	var headerIV [16]byte
	copy(headerIV[:], out[macOffset-headerIVSize:macOffset])
	if err := ctrCrypt(svc.Block, applicationKey[:], headerIV[:], out[:headerEnd]); err != nil {
		return nil, err
	}

	var macIV [16]byte
	copy(macIV[:], out[:macIVSize])
	if err := svc.Mac.Sign(applicationKey[:], macIV[:], out[:macOffset], out[macOffset:]); err != nil {
		return nil, err
	}

	var expanded [keySize * 3]byte
	if err := kdfCompute(svc.Block, rootPreKey[:], serverNonce[:], expanded[:]); err != nil {
		return nil, err
	}
	copy(pending.rootKey[:], expanded[:keySize])
	copy(pending.firstSendHeaderKey[:], expanded[keySize:keySize*2])
	copy(pending.firstRecvHeaderKey[:], expanded[keySize*2:])

	return pending, nil
}

// parseInitResponse authenticates and decodes round 2. Unlike round 1,
// the server's long-term identity never appears unauthenticated on the
// wire here: server_pub rides inside the same encrypted, signed body it
// signs, so the client checks it against the identity already pinned via
// Session.SetPeerIdentity (see identitycheck for how that pin gets
// established out of band) rather than trusting it blind — otherwise
// anyone who merely knew applicationKey could self-attest as the server.
// clientEcdh is the same keypair buildInitRequest generated for round 1;
// the client reuses it here to derive root_pre_key.
func parseInitResponse(
	svc *primitives.Services,
	applicationKey [keySize]byte,
	peerIdentity primitives.PublicKey,
	clientEcdh primitives.KeyAgreement,
	clientNonce [initNonceSize]byte,
	msg []byte,
) (rre0, rre1 primitives.PublicKey, rootKey, firstSendHeaderKey, firstRecvHeaderKey [keySize]byte, nextNonce [initNonceSize]byte, err error) {
	if len(msg) != initResponseMessageSize {
		err = ErrInvalidSize
		return
	}

	macOffset := len(msg) - macSize
	var macIV [16]byte
	copy(macIV[:], msg[:macIVSize])
	if !svc.Mac.Verify(applicationKey[:], macIV[:], msg[:macOffset], msg[macOffset:]) {
		err = ErrVerifyFailed
		return
	}

	headerEnd := initNonceSize + ecNumSize // 48
	var headerIV [16]byte
	copy(headerIV[:], msg[macOffset-headerIVSize:macOffset])
	if err = ctrCrypt(svc.Block, applicationKey[:], headerIV[:], msg[:headerEnd]); err != nil {
		return
	}

	var serverNonce [initNonceSize]byte
	copy(serverNonce[:], msg[:initNonceSize])
	var rootPreEcdhPub primitives.PublicKey
	copy(rootPreEcdhPub[:], msg[initNonceSize:headerEnd])

	rootPreShared, derr := clientEcdh.Derive(rootPreEcdhPub)
	if derr != nil {
		err = derr
		return
	}
	var rootPreKey [keySize]byte
	svc.Digest.Sum256(rootPreShared, rootPreKey[:])

	bracket := msg[headerEnd:macOffset]
	if err = ctrCrypt(svc.Block, rootPreKey[:], serverNonce[:], bracket); err != nil {
		return
	}

	off := headerEnd
	var clientNonceEcho [initNonceSize]byte
	copy(clientNonceEcho[:], msg[off:off+initNonceSize])
	off += initNonceSize
	if string(clientNonceEcho[:]) != string(clientNonce[:]) {
		err = ErrInvalidOp
		return
	}

	var serverPub primitives.PublicKey
	copy(serverPub[:], msg[off:off+ecNumSize])
	off += ecNumSize
	if serverPub != peerIdentity {
		err = ErrVerifyFailed
		return
	}

	copy(rre0[:], msg[off:off+ecNumSize])
	off += ecNumSize
	copy(rre1[:], msg[off:off+ecNumSize])
	off += ecNumSize

	sigOffset := off
	var sig primitives.Signature
	copy(sig[:], msg[off:off+sigSize])
	off += sigSize

	if !identityVerify(svc, serverPub, msg[:sigOffset], sig) {
		err = ErrVerifyFailed
		return
	}

	var expanded [keySize * 3]byte
	if err = kdfCompute(svc.Block, rootPreKey[:], serverNonce[:], expanded[:]); err != nil {
		return
	}
	copy(rootKey[:], expanded[:keySize])
	copy(firstRecvHeaderKey[:], expanded[keySize:keySize*2])
	copy(firstSendHeaderKey[:], expanded[keySize*2:])

	nextNonce = serverNonce
	return
}
