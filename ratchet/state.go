package ratchet

import (
	"encoding/binary"

	"github.com/cilliemalan/microratchet-go/primitives"
)

// storageVersion is the top byte of every serialized Session. Save writes
// the current version; Load refuses anything newer than it understands,
// since an older binary has no way to know what a newer layout's extra
// fields mean.
const storageVersion = 1

const (
	flagIsServer = 1 << 0
)

// Save serializes a Session's ratchet state — every ratchet step, the
// long-term identity keypair, and the send-frequency counters — into a
// single buffer a caller can hand to a store.SessionStore. It does not
// serialize a handshake caught mid-flight: a session with a pending
// init exchange has nothing meaningful to resume from, since the peer's
// next message depends on ephemeral state that was never meant to
// survive a restart.
func (s *Session) Save() ([]byte, error) {
	if s.pendingClient != nil || s.pendingServer != nil {
		return nil, ErrInvalidOp
	}

	idBlob, err := s.identity.Store()
	if err != nil {
		return nil, err
	}

	steps := make([]*ratchetStep, 0, s.ratchets.count)
	for n := s.ratchets.head; n != nil; n = n.next {
		steps = append(steps, n)
	}

	buf := make([]byte, 0, 64+len(idBlob)+len(steps)*256)
	buf = append(buf, storageVersion)

	var flags byte
	if s.isServer {
		flags |= flagIsServer
	}
	buf = append(buf, flags)

	buf = appendUint32(buf, s.ecdhFrequency)
	buf = appendUint32(buf, s.messageNr)

	buf = appendUint32(buf, uint32(len(idBlob)))
	buf = append(buf, idBlob...)

	buf = appendUint16(buf, uint16(len(steps)))
	for _, step := range steps {
		var err error
		buf, err = appendRatchetStep(buf, step)
		if err != nil {
			return nil, err
		}
	}

	return buf, nil
}

// Load restores a Session previously produced by Save, using identity and
// applicationKey supplied by the caller. The identity's private scalar is
// part of the serialized blob (written by Signer.Store) and is loaded into
// the caller's Signer with Signer.Load; the applicationKey is a deployment
// secret, not session state, and is never stored. svc must use the same primitive backend the
// session was saved under; mixing backends produces a session that
// doesn't decrypt its own saved ratchets.
func Load(svc *primitives.Services, identity primitives.Signer, applicationKey [keySize]byte, cfg Config, data []byte) (*Session, error) {
	if len(data) < 2+4+4+4 {
		return nil, ErrInvalidSize
	}
	if data[0] > storageVersion {
		return nil, ErrUnsupportedVersion
	}
	flags := data[1]
	off := 2

	ecdhFrequency := binary.LittleEndian.Uint32(data[off:])
	off += 4
	messageNr := binary.LittleEndian.Uint32(data[off:])
	off += 4

	idLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if off+idLen > len(data) {
		return nil, ErrInvalidSize
	}
	if err := identity.Load(data[off : off+idLen]); err != nil {
		return nil, err
	}
	off += idLen

	if off+2 > len(data) {
		return nil, ErrInvalidSize
	}
	stepCount := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2

	s := New(svc, identity, applicationKey, flags&flagIsServer != 0, cfg)
	s.ecdhFrequency = ecdhFrequency
	s.messageNr = messageNr

	// steps were saved newest-first; add them oldest-first so the
	// freshly rebuilt list ends up in the same order with the same head.
	parsed := make([]*ratchetStep, 0, stepCount)
	for i := 0; i < stepCount; i++ {
		step, n, err := parseRatchetStep(svc, data[off:])
		if err != nil {
			return nil, err
		}
		off += n
		parsed = append(parsed, step)
	}
	for i := len(parsed) - 1; i >= 0; i-- {
		s.ratchets.add(parsed[i])
	}

	return s, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendRatchetStep(buf []byte, step *ratchetStep) ([]byte, error) {
	ecdhBlob, err := step.ecdh.Store()
	if err != nil {
		return nil, err
	}
	buf = appendUint32(buf, uint32(len(ecdhBlob)))
	buf = append(buf, ecdhBlob...)

	buf = append(buf, step.ecdhPublic[:]...)
	buf = append(buf, step.remotePublic[:]...)
	buf = append(buf, step.nextRoot[:]...)
	buf = append(buf, step.sendHeaderKey[:]...)
	buf = append(buf, step.recvHeaderKey[:]...)
	buf = append(buf, step.nextSendHeaderKey[:]...)
	buf = append(buf, step.nextRecvHeaderKey[:]...)

	var haveNext byte
	if step.haveNextHeaderKeys {
		haveNext = 1
	}
	buf = append(buf, haveNext)

	var announced byte
	if step.announced {
		announced = 1
	}
	buf = append(buf, announced)

	buf = appendChainState(buf, &step.sendingChain)
	buf = appendChainState(buf, &step.receivingChain)

	return buf, nil
}

func appendChainState(buf []byte, c *chainState) []byte {
	buf = append(buf, c.chainKey[:]...)
	buf = appendUint32(buf, c.generation)
	buf = append(buf, c.oldChainKey[:]...)
	buf = appendUint32(buf, c.oldGeneration)
	var haveOld byte
	if c.haveOldKey {
		haveOld = 1
	}
	return append(buf, haveOld)
}

// parseRatchetStep reads one step starting at data[0], returning the step
// and how many bytes it consumed.
func parseRatchetStep(svc *primitives.Services, data []byte) (*ratchetStep, int, error) {
	off := 0
	if len(data) < 4 {
		return nil, 0, ErrInvalidSize
	}
	ecdhLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if off+ecdhLen > len(data) {
		return nil, 0, ErrInvalidSize
	}
	ecdh := svc.NewECDH()
	if err := ecdh.Load(data[off : off+ecdhLen]); err != nil {
		return nil, 0, err
	}
	off += ecdhLen

	fixedLen := ecNumSize*2 + keySize*4 + 2
	if off+fixedLen > len(data) {
		return nil, 0, ErrInvalidSize
	}

	step := &ratchetStep{ecdh: ecdh}
	copy(step.ecdhPublic[:], data[off:off+ecNumSize])
	off += ecNumSize
	copy(step.remotePublic[:], data[off:off+ecNumSize])
	off += ecNumSize
	copy(step.nextRoot[:], data[off:off+keySize])
	off += keySize
	copy(step.sendHeaderKey[:], data[off:off+keySize])
	off += keySize
	copy(step.recvHeaderKey[:], data[off:off+keySize])
	off += keySize
	copy(step.nextSendHeaderKey[:], data[off:off+keySize])
	off += keySize
	copy(step.nextRecvHeaderKey[:], data[off:off+keySize])
	off += keySize
	step.haveNextHeaderKeys = data[off] != 0
	off++
	step.announced = data[off] != 0
	off++

	sendingChain, n, err := parseChainState(data[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n
	step.sendingChain = sendingChain

	receivingChain, n, err := parseChainState(data[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n
	step.receivingChain = receivingChain

	return step, off, nil
}

func parseChainState(data []byte) (chainState, int, error) {
	need := keySize + 4 + keySize + 4 + 1
	if len(data) < need {
		return chainState{}, 0, ErrInvalidSize
	}
	var c chainState
	off := 0
	copy(c.chainKey[:], data[off:off+keySize])
	off += keySize
	c.generation = binary.LittleEndian.Uint32(data[off:])
	off += 4
	copy(c.oldChainKey[:], data[off:off+keySize])
	off += keySize
	c.oldGeneration = binary.LittleEndian.Uint32(data[off:])
	off += 4
	c.haveOldKey = data[off] != 0
	off++
	return c, off, nil
}
