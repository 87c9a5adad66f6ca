package ratchet

import "github.com/cilliemalan/microratchet-go/primitives"

// ratchetStep is one node of the ratchet list: the DH keypair (and peer
// public key) that produced it, the send/receive chains it governs, and
// the header keys used to encrypt message headers on each side. nextRoot/
// nextSendHeaderKey/nextRecvHeaderKey are the material a future DH
// ratchet (triggered by the next incoming ECDH public key) will consume;
// they are zeroed once that ratchet happens, so a completed step can't be
// replayed into a new one.
type ratchetStep struct {
	ecdh       primitives.KeyAgreement
	ecdhPublic primitives.PublicKey

	// remotePublic is the peer key this step's chains were derived
	// against, kept for Save/Load round-tripping and diagnostics.
	remotePublic primitives.PublicKey

	nextRoot [keySize]byte

	sendHeaderKey [keySize]byte
	recvHeaderKey [keySize]byte

	nextSendHeaderKey [keySize]byte
	nextRecvHeaderKey [keySize]byte
	haveNextHeaderKeys bool

	sendingChain  chainState
	receivingChain chainState

	// announced is set once this step's ecdhPublic has actually gone out
	// in a message header. Session.Send consults it to decide whether an
	// includeECDH=true call can reuse this step's key as-is (not yet
	// announced — e.g. a bootstrap step whose key still needs to make its
	// first trip across the wire) or must self-ratchet into a fresh step
	// first (already announced — reusing the key again would not advance
	// forward secrecy at all). A send without ECDH skips a step that is
	// not yet announced and uses the second-to-last step instead.
	announced bool

	next *ratchetStep
}

// ratchetList is a singly linked, newest-first list of ratchet steps,
// bounded at maxRatchets. Adding past the bound drops the oldest step.
type ratchetList struct {
	head       *ratchetStep
	count      int
	maxRatchets int
}

func newRatchetList(max int) *ratchetList {
	if max <= 0 {
		max = defaultMaxRatchets
	}
	return &ratchetList{maxRatchets: max}
}

func (l *ratchetList) add(step *ratchetStep) {
	step.next = l.head
	l.head = step
	l.count++
	for l.count > l.maxRatchets {
		// walk to the second-to-last node and drop its tail
		n := l.head
		for n.next != nil && n.next.next != nil {
			n = n.next
		}
		n.next = nil
		l.count--
	}
}

func (l *ratchetList) last() *ratchetStep {
	return l.head
}

// secondToLast returns the step just behind the head, with one exception:
// if the list holds exactly one step, that single step is returned again.
// This covers the chicken-and-egg bootstrap case where a server has only
// just created its first ratchet and has nothing "before" it to fall back
// to — the one ratchet it has is both the newest and, for this purpose,
// the previous one.
func (l *ratchetList) secondToLast() *ratchetStep {
	if l.head == nil {
		return nil
	}
	if l.head.next == nil {
		return l.head
	}
	return l.head.next
}

// find walks the list newest-first, asking verify to try each step's
// receive header key (and its upcoming one, if any) as the message's MAC
// key. Header keys aren't compared directly — the receiver has no way to
// know which step a message belongs to except by trying the MAC under
// each candidate key in turn. The first candidate verify accepts wins;
// usedNextKey reports whether the *upcoming* header key was the one that
// worked, which tells the caller a DH ratchet must happen on receipt.
func (l *ratchetList) find(verify func(headerKey [keySize]byte) bool) (step *ratchetStep, usedNextKey bool) {
	for n := l.head; n != nil; n = n.next {
		if verify(n.recvHeaderKey) {
			return n, false
		}
		if n.haveNextHeaderKeys && verify(n.nextRecvHeaderKey) {
			return n, true
		}
	}
	return nil, false
}
