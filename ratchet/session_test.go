package ratchet

import (
	"testing"

	"github.com/cilliemalan/microratchet-go/primitives"
	"github.com/stretchr/testify/assert"
)

func newTestApplicationKey() [keySize]byte {
	var k [keySize]byte
	for i := range k {
		k[i] = byte(i * 7)
	}
	return k
}

// setupHandshakenPair runs the three-round handshake to completion and
// returns both sides ready to exchange data messages.
func setupHandshakenPair(t *testing.T) (client, server *Session) {
	appKey := newTestApplicationKey()

	serverSvc := primitives.DeterministicServices([]byte("server-seed"))
	clientSvc := primitives.DeterministicServices([]byte("client-seed"))

	serverIdentity := serverSvc.Signer()
	assert.NoError(t, serverIdentity.Generate())
	serverIdentityPub, err := serverIdentity.PublicKey()
	assert.NoError(t, err)

	clientIdentity := clientSvc.Signer()
	assert.NoError(t, clientIdentity.Generate())

	server = New(serverSvc, serverIdentity, appKey, true, Config{})
	client = New(clientSvc, clientIdentity, appKey, false, Config{})
	client.SetPeerIdentity(serverIdentityPub)

	round1 := make([]byte, InitRequestSize())
	assert.NoError(t, client.InitiateHandshake(round1))

	res1, err := server.Receive(round1)
	assert.NoError(t, err)
	assert.Equal(t, OutcomeSendBack, res1.Outcome)

	res2, err := client.Receive(res1.Payload)
	assert.NoError(t, err)
	assert.Equal(t, OutcomeSendBack, res2.Outcome)

	res3, err := server.Receive(res2.Payload)
	assert.NoError(t, err)
	assert.Equal(t, OutcomeReceived, res3.Outcome)

	assert.True(t, client.IsInitialized())
	assert.True(t, server.IsInitialized())
	return client, server
}

func TestHandshakeThenDataExchange(t *testing.T) {
	client, server := setupHandshakenPair(t)

	msg := []byte("hello from client, ratcheting forward")
	out := make([]byte, len(msg)+FrameOverhead(false))
	assert.NoError(t, client.Send(msg, false, out))

	res, err := server.Receive(out)
	assert.NoError(t, err)
	assert.Equal(t, OutcomeReceived, res.Outcome)
	assert.Equal(t, msg, res.Payload)

	reply := []byte("hello back from the server side")
	out2 := make([]byte, len(reply)+FrameOverhead(true))
	assert.NoError(t, server.Send(reply, true, out2))

	res2, err := client.Receive(out2)
	assert.NoError(t, err)
	assert.Equal(t, OutcomeReceived, res2.Outcome)
	assert.Equal(t, reply, res2.Payload)
}

func TestDataExchangeAdvancesChainAcrossManyMessages(t *testing.T) {
	client, server := setupHandshakenPair(t)

	for i := 0; i < 6; i++ {
		msg := []byte("a message advancing the sending chain forward")
		out := make([]byte, len(msg)+FrameOverhead(false))
		assert.NoError(t, client.Send(msg, false, out))

		res, err := server.Receive(out)
		assert.NoError(t, err)
		assert.Equal(t, OutcomeReceived, res.Outcome)
		assert.Equal(t, msg, res.Payload)

		reply := []byte("server answers on its own chain in the other direction")
		out2 := make([]byte, len(reply)+FrameOverhead(false))
		assert.NoError(t, server.Send(reply, false, out2))

		res2, err := client.Receive(out2)
		assert.NoError(t, err)
		assert.Equal(t, OutcomeReceived, res2.Outcome)
		assert.Equal(t, reply, res2.Payload)
	}
}

func TestDHRatchetTriggeredByFreshRemoteKeyInHeader(t *testing.T) {
	client, server := setupHandshakenPair(t)

	// the client's live step after the handshake is its second bootstrap
	// ratchet, whose key the client generated on receiving round 2 and
	// has not sent yet, so this first includeECDH=true send transmits
	// it directly rather than self-ratcheting into a fresh step first.
	msg := []byte("first message under a freshly ratcheted chain")
	out := make([]byte, len(msg)+FrameOverhead(true))
	assert.NoError(t, client.Send(msg, true, out))

	res, err := server.Receive(out)
	assert.NoError(t, err)
	assert.Equal(t, OutcomeReceived, res.Outcome)
	assert.Equal(t, msg, res.Payload)

	// the server's own reply on its freshly ratcheted receiving step,
	// without announcing anything new itself, still decrypts correctly.
	reply := []byte("server replying on the newly ratcheted chain")
	out2 := make([]byte, len(reply)+FrameOverhead(false))
	assert.NoError(t, server.Send(reply, false, out2))

	res2, err := client.Receive(out2)
	assert.NoError(t, err)
	assert.Equal(t, OutcomeReceived, res2.Outcome)
	assert.Equal(t, reply, res2.Payload)
}

func TestRepeatedECDHSendsKeepRatchetingForward(t *testing.T) {
	client, server := setupHandshakenPair(t)

	for i := 0; i < 4; i++ {
		msg := []byte("a message that always announces a fresh key")
		out := make([]byte, len(msg)+FrameOverhead(true))
		assert.NoError(t, client.Send(msg, true, out))

		res, err := server.Receive(out)
		assert.NoError(t, err)
		assert.Equal(t, OutcomeReceived, res.Outcome)
		assert.Equal(t, msg, res.Payload)
	}
}

func TestTamperedMessageFailsToDecrypt(t *testing.T) {
	client, server := setupHandshakenPair(t)

	msg := []byte("this message will be tampered with in transit")
	out := make([]byte, len(msg)+FrameOverhead(false))
	assert.NoError(t, client.Send(msg, false, out))

	out[0] ^= 0xff

	_, err := server.Receive(out)
	assert.Error(t, err)
}

func TestHandshakeRejectedWithoutPinnedPeerIdentity(t *testing.T) {
	appKey := newTestApplicationKey()
	serverSvc := primitives.DeterministicServices([]byte("server-seed-2"))
	clientSvc := primitives.DeterministicServices([]byte("client-seed-2"))

	serverIdentity := serverSvc.Signer()
	assert.NoError(t, serverIdentity.Generate())
	clientIdentity := clientSvc.Signer()
	assert.NoError(t, clientIdentity.Generate())

	server := New(serverSvc, serverIdentity, appKey, true, Config{})
	client := New(clientSvc, clientIdentity, appKey, false, Config{})

	round1 := make([]byte, InitRequestSize())
	assert.NoError(t, client.InitiateHandshake(round1))
	res1, err := server.Receive(round1)
	assert.NoError(t, err)

	_, err = client.Receive(res1.Payload)
	assert.ErrorIs(t, err, ErrInvalidOp)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	client, server := setupHandshakenPair(t)

	msg := []byte("message before saving session state")
	out := make([]byte, len(msg)+FrameOverhead(false))
	assert.NoError(t, client.Send(msg, false, out))
	_, err := server.Receive(out)
	assert.NoError(t, err)

	saved, err := client.Save()
	assert.NoError(t, err)

	restoredIdentity := client.svc.Signer()
	restored, err := Load(client.svc, restoredIdentity, client.applicationKey, Config{}, saved)
	assert.NoError(t, err)
	assert.True(t, restored.IsInitialized())
	assert.Equal(t, client.isServer, restored.isServer)
}
