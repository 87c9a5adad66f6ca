package ratchet

import "github.com/cilliemalan/microratchet-go/primitives"

// Config tunes a Session's resource bounds.
type Config struct {
	// MaxRatchets bounds how many ratchet steps are kept alive at once;
	// the oldest is dropped once a new one pushes the list past this.
	// Zero means defaultMaxRatchets.
	MaxRatchets int
}

// Session is one side of a MicroRatchet conversation: either the client
// or the server of the three-round handshake, and afterward a symmetric
// peer exchanging ratcheted data messages. A Session is not safe for
// concurrent use — callers serialize access the way they serialize access
// to any other single connection's state.
type Session struct {
	svc            *primitives.Services
	identity       primitives.Signer
	applicationKey [keySize]byte
	isServer       bool

	ratchets *ratchetList

	pendingClient *pendingClientInit
	pendingServer *pendingServerInit

	ecdhFrequency uint32
	messageNr     uint32

	peerIdentity *primitives.PublicKey

	// recordedClientIdentity is the identity a server has seen round 1
	// authenticated with, kept independent of pendingServer so a second
	// round 1 can be told apart from a different client dialing in after
	// the first one's handshake already completed.
	recordedClientIdentity     primitives.PublicKey
	haveRecordedClientIdentity bool
}

// SetPeerIdentity pins the long-term identity key a client expects the
// server to sign its init-response with. The engine has no trust store
// of its own (see identitycheck for out-of-band verification of a
// freshly-learned identity before pinning it here) — without a pinned
// key, a client cannot complete a handshake at all, since nothing would
// authenticate round 2.
func (s *Session) SetPeerIdentity(pub primitives.PublicKey) {
	s.peerIdentity = &pub
}

// New creates a Session. identity is the long-term ECDSA signing
// keypair; applicationKey is the pre-shared symmetric key that
// authenticates (and hides the contents of) the handshake's init
// messages before any DH secret exists to do that job instead.
func New(svc *primitives.Services, identity primitives.Signer, applicationKey [keySize]byte, isServer bool, cfg Config) *Session {
	return &Session{
		svc:            svc,
		identity:       identity,
		applicationKey: applicationKey,
		isServer:       isServer,
		ratchets:       newRatchetList(cfg.MaxRatchets),
		ecdhFrequency:  1,
	}
}

// IsInitialized reports whether the session has completed the handshake
// and holds at least one ratchet to send and receive data messages with.
func (s *Session) IsInitialized() bool {
	return s.ratchets.last() != nil
}

// InitiateHandshake writes round 1 of the handshake (the init request)
// into out, which must be exactly InitRequestSize() bytes. Only a client
// may call this, and only before any ratchet exists.
func (s *Session) InitiateHandshake(out []byte) error {
	if s.isServer {
		return ErrInvalidOp
	}
	if s.IsInitialized() || s.pendingClient != nil {
		return ErrInvalidOp
	}
	pending, err := buildInitRequest(s.svc, s.identity, s.applicationKey, out)
	if err != nil {
		return err
	}
	s.pendingClient = pending
	return nil
}

// InitRequestSize is the fixed size of a round-1 handshake message.
func InitRequestSize() int { return initRequestMessageSize }

// InitResponseSize is the fixed size of a round-2 handshake message.
func InitResponseSize() int { return initResponseMessageSize }

// Send encrypts payload into out, which must be exactly
// len(payload)+FrameOverhead(includeECDH) bytes, using the session's
// newest ratchet. includeECDH should be true periodically (governed by
// whatever the caller's ECDH-refresh policy is — see Session.SetECDHFrequency)
// to keep the DH ratchet advancing. If the current step's key has
// already gone out once, requesting includeECDH again self-ratchets into
// a fresh step first — reannouncing the same key twice would buy no
// forward secrecy. A send without ECDH while the newest step's key has
// not gone out yet uses the second-to-last step instead, since the peer
// cannot reach the newest step's sending chain before seeing its key.
func (s *Session) Send(payload []byte, includeECDH bool, out []byte) error {
	step := s.ratchets.last()
	if step == nil {
		return ErrInvalidOp
	}
	if includeECDH && step.announced {
		fresh, err := dhRatchetSend(s.svc, step)
		if err != nil {
			return err
		}
		s.ratchets.add(fresh)
		step = fresh
	} else if !includeECDH && !step.announced {
		step = s.ratchets.secondToLast()
	}
	headerSize := nonceSize
	if includeECDH {
		headerSize += ecNumSize
	}
	if len(out) != len(payload)+FrameOverhead(includeECDH) {
		return ErrInvalidSize
	}
	copy(out[headerSize:headerSize+len(payload)], payload)
	if err := constructMessage(s.svc, step, includeECDH, out); err != nil {
		return err
	}
	if includeECDH {
		step.announced = true
	}
	return nil
}

// SetECDHFrequency configures how often Session.AutoSend includes a
// fresh ECDH key (1 = every message, the most forward-secret and most
// expensive setting; 0 is treated as 1).
func (s *Session) SetECDHFrequency(n uint32) {
	if n == 0 {
		n = 1
	}
	s.ecdhFrequency = n
}

// AutoSend is Send with the ECDH-inclusion decision made for the caller
// according to SetECDHFrequency, mirroring the event-loop's own
// send-path policy.
func (s *Session) AutoSend(payload []byte, out []byte) error {
	s.messageNr++
	includeECDH := s.ecdhFrequency <= 1 || s.messageNr%s.ecdhFrequency == 0
	return s.Send(payload, includeECDH, out)
}

// Receive processes one inbound message, which may be a handshake
// message or a data message — Session tells them apart by size and by
// what state it's currently in. data is decrypted/consumed in place; on
// OutcomeSendBack, Payload is a message the caller must transmit back to
// the peer, not application data.
func (s *Session) Receive(data []byte) (ReceiveResult, error) {
	switch {
	case s.isServer && len(data) == initRequestMessageSize:
		return s.receiveInitRequest(data)
	case !s.isServer && len(data) == initResponseMessageSize && s.pendingClient != nil:
		return s.receiveInitResponse(data)
	default:
		return s.receiveDataMessage(data)
	}
}

func (s *Session) receiveInitRequest(data []byte) (ReceiveResult, error) {
	clientIdentity, clientEcdh, nonce, err := parseInitRequest(s.svc, s.applicationKey, data)
	if err != nil {
		return ReceiveResult{}, err
	}

	if s.haveRecordedClientIdentity {
		if s.recordedClientIdentity != clientIdentity {
			return ReceiveResult{}, ErrInvalidOp
		}
		// same client dialing in again: treat it as a restart and throw
		// away whatever state the previous attempt left behind.
		s.pendingServer = nil
		s.ratchets = newRatchetList(s.ratchets.maxRatchets)
	}
	s.recordedClientIdentity = clientIdentity
	s.haveRecordedClientIdentity = true

	response := make([]byte, initResponseMessageSize)
	pending, err := buildInitResponse(s.svc, s.identity, s.applicationKey, clientIdentity, clientEcdh, nonce, response)
	if err != nil {
		return ReceiveResult{}, err
	}
	s.pendingServer = pending

	return ReceiveResult{Outcome: OutcomeSendBack, Payload: response}, nil
}

func (s *Session) receiveInitResponse(data []byte) (ReceiveResult, error) {
	if s.peerIdentity == nil {
		return ReceiveResult{}, ErrInvalidOp
	}
	pending := s.pendingClient
	rre0, rre1, rootKey, sendHK, recvHK, nextNonce, err :=
		parseInitResponse(s.svc, s.applicationKey, *s.peerIdentity, pending.ecdh, pending.nonce, data)
	if err != nil {
		return ReceiveResult{}, err
	}

	ratchet1, ratchet2, err := clientBootstrapRatchet(s.svc, pending.ecdh, rre0, rre1, rootKey, sendHK, recvHK)
	if err != nil {
		return ReceiveResult{}, err
	}
	s.ratchets.add(ratchet1)
	s.pendingClient = nil

	// round 3: the client's initialization_nonce (now the server-chosen
	// nextNonce) as the whole payload, constructed on the minimal
	// second-to-last ratchet with its ECDH included so the server can
	// complete its own.
	out := make([]byte, len(nextNonce)+FrameOverhead(true))
	headerSize := nonceSize + ecNumSize
	copy(out[headerSize:headerSize+len(nextNonce)], nextNonce[:])
	if err := constructMessage(s.svc, ratchet1, true, out); err != nil {
		return ReceiveResult{}, err
	}

	s.ratchets.add(ratchet2)
	return ReceiveResult{Outcome: OutcomeSendBack, Payload: out}, nil
}

func (s *Session) receiveDataMessage(data []byte) (ReceiveResult, error) {
	step, usedNextKey := s.ratchets.find(func(hk [keySize]byte) bool {
		return verifyFrame(s.svc, hk, data)
	})

	if step == nil {
		// pendingServer's firstSendHeaderKey/firstRecvHeaderKey are named
		// from the server's point of view; the client derives the same two
		// keys in swapped order, so the key its round-3 message is
		// encrypted under is pending.firstRecvHeaderKey.
		if s.isServer && s.pendingServer != nil && verifyFrame(s.svc, s.pendingServer.firstRecvHeaderKey, data) {
			return s.receiveFirstServerMessage(data)
		}
		return ReceiveResult{}, ErrNotFound
	}

	headerKey := step.recvHeaderKey
	if usedNextKey {
		headerKey = step.nextRecvHeaderKey
	}
	generation, remote, ecdhPresent, headerSize, err := decryptHeader(s.svc, headerKey, data)
	if err != nil {
		return ReceiveResult{}, err
	}

	chain := &step.receivingChain
	if usedNextKey {
		if !ecdhPresent {
			return ReceiveResult{}, ErrInvalidOp
		}
		newStep, err := dhRatchetReceive(s.svc, step, remote)
		if err != nil {
			return ReceiveResult{}, err
		}
		s.ratchets.add(newStep)
		chain = &newStep.receivingChain
	}

	msgKey, err := ratchetForReceiving(s.svc.Block, chain, generation)
	if err != nil {
		return ReceiveResult{}, err
	}
	payload, err := decryptPayload(s.svc, msgKey, data, headerSize)
	if err != nil {
		return ReceiveResult{}, err
	}
	return ReceiveResult{Outcome: OutcomeReceived, Payload: payload}, nil
}

// receiveFirstServerMessage handles round 3: the server has no ratchet
// yet, but does have a pendingServer init state waiting for exactly this
// message, authenticated under firstRecvHeaderKey — the key the client
// calls its own send key, and so the one its round-3 header is
// encrypted under.
func (s *Session) receiveFirstServerMessage(data []byte) (ReceiveResult, error) {
	pending := s.pendingServer
	generation, clientEcdh0, ecdhPresent, headerSize, err := decryptHeader(s.svc, pending.firstRecvHeaderKey, data)
	if err != nil {
		return ReceiveResult{}, err
	}
	if !ecdhPresent {
		return ReceiveResult{}, ErrInvalidOp
	}

	step, err := serverBootstrapRatchet(s.svc, pending.localStep0, pending.localStep1,
		clientEcdh0, pending.rootKey, pending.firstSendHeaderKey, pending.firstRecvHeaderKey)
	if err != nil {
		return ReceiveResult{}, err
	}

	msgKey, err := ratchetForReceiving(s.svc.Block, &step.receivingChain, generation)
	if err != nil {
		return ReceiveResult{}, err
	}
	payload, err := decryptPayload(s.svc, msgKey, data, headerSize)
	if err != nil {
		return ReceiveResult{}, err
	}
	if string(payload) != string(pending.nextNonce[:]) {
		return ReceiveResult{}, ErrInvalidOp
	}

	s.ratchets.add(step)
	s.pendingServer = nil
	return ReceiveResult{Outcome: OutcomeReceived, Payload: payload}, nil
}
