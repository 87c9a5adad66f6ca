package ratchet

import "github.com/cilliemalan/microratchet-go/primitives"

// ratchetKDFOut is the three key-sized slots every post-bootstrap DH
// ratchet derivation produces, taken from the kdf output in the same
// order as the bootstrap derivation (root, chain key, header key): the
// root both sides carry into whichever of them ratchets next, a chain key
// for the direction being advanced, and the header key that direction's
// *next* step will use.
type ratchetKDFOut struct {
	chainKey  [keySize]byte
	headerKey [keySize]byte
	nextRoot  [keySize]byte
}

func deriveRatchetKDF(svc *primitives.Services, shared []byte, root [keySize]byte) (ratchetKDFOut, error) {
	var digest [32]byte
	svc.Digest.Sum256(shared, digest[:])

	var out [keySize * 3]byte
	if err := kdfCompute(svc.Block, digest[:], root[:], out[:]); err != nil {
		return ratchetKDFOut{}, err
	}
	var o ratchetKDFOut
	copy(o.nextRoot[:], out[:keySize])
	copy(o.chainKey[:], out[keySize:keySize*2])
	copy(o.headerKey[:], out[keySize*2:])
	return o, nil
}

// dhRatchetSend performs a self-initiated DH ratchet: the side calling it
// generates a fresh local keypair and advances its own sending chain
// against the peer's last-known public key (old.remotePublic), without
// having received anything new. The receiving chain is carried over
// unchanged — it stays on old material until the peer's own matching
// dhRatchetReceive call, reacting to the fresh key this produces, arrives.
//
// old.ecdh(shared)(fresh, old.remotePublic) is the same ECDH the peer's
// dhRatchetReceive computes as old.ecdh.Derive(thisStep.ecdhPublic), which
// is what keeps the two sides' chain/header key material in lockstep
// without either one needing to see the other's private key.
func dhRatchetSend(svc *primitives.Services, old *ratchetStep) (*ratchetStep, error) {
	fresh := svc.NewECDH()
	freshPub, err := fresh.Generate()
	if err != nil {
		return nil, err
	}
	shared, err := fresh.Derive(old.remotePublic)
	if err != nil {
		return nil, err
	}
	out, err := deriveRatchetKDF(svc, shared, old.nextRoot)
	if err != nil {
		return nil, err
	}

	step := &ratchetStep{
		ecdh:               fresh,
		ecdhPublic:         freshPub,
		remotePublic:       old.remotePublic,
		nextRoot:           out.nextRoot,
		sendHeaderKey:      old.nextSendHeaderKey,
		recvHeaderKey:      old.recvHeaderKey,
		nextSendHeaderKey:  out.headerKey,
		nextRecvHeaderKey:  old.nextRecvHeaderKey,
		haveNextHeaderKeys: old.haveNextHeaderKeys,
		sendingChain:       initChain(out.chainKey[:]),
		receivingChain:     old.receivingChain,
		announced:          false,
	}
	return step, nil
}

// dhRatchetReceive reacts to a peer's freshly announced public key,
// revealed by a message whose header matched old.nextRecvHeaderKey: it
// advances the receiving chain against that key, using old's own
// still-current keypair (nothing new is generated locally — this side
// only self-ratchets its sending direction later, via dhRatchetSend, once
// it has something of its own to announce). old's now-consumed
// next-generation material is wiped so it can't be replayed into a
// second, divergent step.
func dhRatchetReceive(svc *primitives.Services, old *ratchetStep, remotePublic primitives.PublicKey) (*ratchetStep, error) {
	shared, err := old.ecdh.Derive(remotePublic)
	if err != nil {
		return nil, err
	}
	out, err := deriveRatchetKDF(svc, shared, old.nextRoot)
	if err != nil {
		return nil, err
	}

	step := &ratchetStep{
		ecdh:               old.ecdh,
		ecdhPublic:         old.ecdhPublic,
		remotePublic:       remotePublic,
		nextRoot:           out.nextRoot,
		sendHeaderKey:      old.sendHeaderKey,
		recvHeaderKey:      old.nextRecvHeaderKey,
		nextSendHeaderKey:  old.nextSendHeaderKey,
		nextRecvHeaderKey:  out.headerKey,
		haveNextHeaderKeys: old.haveNextHeaderKeys,
		sendingChain:       old.sendingChain,
		receivingChain:     initChain(out.chainKey[:]),
		announced:          old.announced,
	}

	old.nextRoot = [keySize]byte{}
	old.nextSendHeaderKey = [keySize]byte{}
	old.nextRecvHeaderKey = [keySize]byte{}
	old.haveNextHeaderKeys = false

	return step, nil
}

// bootstrapKDFOut is the three key-sized slots one phase of the
// bootstrap/server-side ratchet derivation produces, in the order the
// handshake's kdf call actually yields them: the working root first,
// then the chain key, then the header key for the *next* step in that
// direction. ratchetKDFOut takes its slots in this same order: a
// receiver's first DH ratchet after the handshake must reproduce the
// sending chain the client's second bootstrap ratchet derived here.
type bootstrapKDFOut struct {
	nextRoot  [keySize]byte
	chainKey  [keySize]byte
	headerKey [keySize]byte
}

func deriveBootstrapKDF(svc *primitives.Services, shared []byte, root [keySize]byte) (bootstrapKDFOut, error) {
	var digest [32]byte
	svc.Digest.Sum256(shared, digest[:])

	var out [keySize * 3]byte
	if err := kdfCompute(svc.Block, digest[:], root[:], out[:]); err != nil {
		return bootstrapKDFOut{}, err
	}
	var o bootstrapKDFOut
	copy(o.nextRoot[:], out[:keySize])
	copy(o.chainKey[:], out[keySize:keySize*2])
	copy(o.headerKey[:], out[keySize*2:])
	return o, nil
}

// ratchetInitServerSide is the two-phase "server-side ratchet
// initialization" procedure: a receiving chain derived against
// previousLocal, then a sending chain derived against newLocal, both
// against the same remote public key and chained through one working
// root. It is not server-only in the network sense — the client runs it
// too, to build the second of its two bootstrap ratchets.
func ratchetInitServerSide(
	svc *primitives.Services,
	previousLocal primitives.KeyAgreement,
	root [keySize]byte,
	remote primitives.PublicKey,
	newLocal primitives.KeyAgreement,
	recvHeaderKey, sendHeaderKey [keySize]byte,
) (*ratchetStep, error) {
	newLocalPub, err := newLocal.PublicKey()
	if err != nil {
		return nil, err
	}

	s1, err := previousLocal.Derive(remote)
	if err != nil {
		return nil, err
	}
	out1, err := deriveBootstrapKDF(svc, s1, root)
	if err != nil {
		return nil, err
	}

	s2, err := newLocal.Derive(remote)
	if err != nil {
		return nil, err
	}
	out2, err := deriveBootstrapKDF(svc, s2, out1.nextRoot)
	if err != nil {
		return nil, err
	}

	return &ratchetStep{
		ecdh:               newLocal,
		ecdhPublic:         newLocalPub,
		remotePublic:       remote,
		nextRoot:           out2.nextRoot,
		sendHeaderKey:      sendHeaderKey,
		recvHeaderKey:      recvHeaderKey,
		nextSendHeaderKey:  out2.headerKey,
		nextRecvHeaderKey:  out1.headerKey,
		haveNextHeaderKeys: true,
		sendingChain:       initChain(out2.chainKey[:]),
		receivingChain:     initChain(out1.chainKey[:]),
	}, nil
}

// clientBootstrapRatchet builds the two ratchets a client installs once
// round 2 has been received. The first is a minimal, sending-only
// ratchet keyed straight off the client's own round-1 ephemeral
// (clientEcdh0) and the server's first bootstrap ephemeral (serverEcdh0)
// — it exists only to carry round 3. The second is a full ratchet, built
// by the same procedure the server uses for its own, chained off the
// working root the first ratchet's derivation produced and keyed against
// the server's second bootstrap ephemeral (serverEcdh1).
func clientBootstrapRatchet(
	svc *primitives.Services,
	clientEcdh0 primitives.KeyAgreement,
	serverEcdh0, serverEcdh1 primitives.PublicKey,
	rootKey, firstSendHeaderKey, firstRecvHeaderKey [keySize]byte,
) (ratchet1, ratchet2 *ratchetStep, err error) {
	ecdh0Pub, err := clientEcdh0.PublicKey()
	if err != nil {
		return nil, nil, err
	}

	s0, err := clientEcdh0.Derive(serverEcdh0)
	if err != nil {
		return nil, nil, err
	}
	out0, err := deriveBootstrapKDF(svc, s0, rootKey)
	if err != nil {
		return nil, nil, err
	}

	ratchet1 = &ratchetStep{
		ecdh:          clientEcdh0,
		ecdhPublic:    ecdh0Pub,
		remotePublic:  serverEcdh0,
		sendHeaderKey: firstSendHeaderKey,
		sendingChain:  initChain(out0.chainKey[:]),
		// its key rides along with round 3, which the caller sends
		// immediately after installing it.
		announced: true,
	}

	l1 := svc.NewECDH()
	if _, err = l1.Generate(); err != nil {
		return nil, nil, err
	}
	ratchet2, err = ratchetInitServerSide(svc, clientEcdh0, out0.nextRoot, serverEcdh1, l1, firstRecvHeaderKey, out0.headerKey)
	if err != nil {
		return nil, nil, err
	}
	return ratchet1, ratchet2, nil
}

// serverBootstrapRatchet builds the server's single ratchet once round 3
// (the client's first data message) has arrived, carrying the client's
// round-1 ephemeral as its embedded ECDH. serverEcdh0/serverEcdh1 are the
// server's own two ephemerals, generated while building round 2.
func serverBootstrapRatchet(
	svc *primitives.Services,
	serverEcdh0, serverEcdh1 primitives.KeyAgreement,
	clientEcdh0 primitives.PublicKey,
	rootKey, firstSendHeaderKey, firstRecvHeaderKey [keySize]byte,
) (*ratchetStep, error) {
	step, err := ratchetInitServerSide(svc, serverEcdh0, rootKey, clientEcdh0, serverEcdh1, firstRecvHeaderKey, firstSendHeaderKey)
	if err != nil {
		return nil, err
	}
	// serverEcdh1's public key already went out on the wire as part of
	// round 2.
	step.announced = true
	return step, nil
}
