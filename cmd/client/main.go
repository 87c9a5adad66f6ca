// Command client is a line-oriented demo chat peer: it dials the relay,
// drives a MicroRatchet Session (as either the handshake's client or
// its server), and exchanges plaintext lines over the resulting
// ratcheted channel. Typed lines go out; received lines print to
// stdout, prefixed with the sender's transport user ID.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/cilliemalan/microratchet-go/configs"
	"github.com/cilliemalan/microratchet-go/primitives"
	"github.com/cilliemalan/microratchet-go/ratchet"
	"github.com/cilliemalan/microratchet-go/transportdemo"
)

func main() {
	user := flag.String("user", "", "this peer's transport user ID")
	peerUser := flag.String("peer", "", "the other peer's transport user ID")
	asServer := flag.Bool("server", false, "act as the handshake's server side")
	identityHex := flag.String("identity", "", "hex-encoded private identity scalar (generated if empty)")
	peerIdentity := flag.String("peer-identity", "", "hex-encoded public identity key to pin (required for the client side)")
	flag.Parse()

	if err := configs.Load(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "loading configuration:", err)
		os.Exit(1)
	}
	if *user == "" || *peerUser == "" {
		fmt.Fprintln(os.Stderr, "both -user and -peer are required")
		os.Exit(1)
	}

	svc := primitives.Default()

	identity := svc.Signer()
	if *identityHex != "" {
		priv, err := hex.DecodeString(*identityHex)
		if err != nil {
			fmt.Fprintln(os.Stderr, "decoding -identity:", err)
			os.Exit(1)
		}
		if err := identity.Load(priv); err != nil {
			fmt.Fprintln(os.Stderr, "loading identity:", err)
			os.Exit(1)
		}
	} else if err := identity.Generate(); err != nil {
		fmt.Fprintln(os.Stderr, "generating identity:", err)
		os.Exit(1)
	}
	if pub, err := identity.PublicKey(); err == nil {
		fmt.Fprintf(os.Stderr, "identity public key: %s\n", hex.EncodeToString(pub[:]))
	}

	session := ratchet.New(svc, identity, configs.ApplicationKey, *asServer, ratchet.Config{})

	if !*asServer {
		if *peerIdentity == "" {
			fmt.Fprintln(os.Stderr, "-peer-identity is required on the client side")
			os.Exit(1)
		}
		pubBytes, err := hex.DecodeString(*peerIdentity)
		if err != nil || len(pubBytes) != primitives.ECNumSize {
			fmt.Fprintln(os.Stderr, "invalid -peer-identity")
			os.Exit(1)
		}
		var pub primitives.PublicKey
		copy(pub[:], pubBytes)
		session.SetPeerIdentity(pub)
	}

	link, err := transportdemo.Dial(configs.ServerAddress, configs.WebSocketPath, *user)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connecting to relay:", err)
		os.Exit(1)
	}
	defer link.Close()

	if !*asServer {
		out := make([]byte, ratchet.InitRequestSize())
		if err := session.InitiateHandshake(out); err != nil {
			fmt.Fprintln(os.Stderr, "starting handshake:", err)
			os.Exit(1)
		}
		if err := link.Send(*peerUser, out); err != nil {
			fmt.Fprintln(os.Stderr, "sending handshake request:", err)
			os.Exit(1)
		}
	}

	incoming := make(chan transportdemo.Envelope)
	go func() {
		for {
			env, err := link.Receive()
			if err != nil {
				fmt.Fprintln(os.Stderr, "connection closed:", err)
				close(incoming)
				return
			}
			incoming <- env
		}
	}()

	outgoing := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			outgoing <- scanner.Text()
		}
		close(outgoing)
	}()

	for {
		select {
		case env, ok := <-incoming:
			if !ok {
				return
			}
			res, err := session.Receive(env.Payload)
			if err != nil {
				fmt.Fprintln(os.Stderr, "receive error:", err)
				continue
			}
			switch res.Outcome {
			case ratchet.OutcomeSendBack:
				if err := link.Send(env.From, res.Payload); err != nil {
					fmt.Fprintln(os.Stderr, "sending handshake reply:", err)
				}
			case ratchet.OutcomeReceived:
				fmt.Printf("%s: %s\n", env.From, string(res.Payload))
			}

		case line, ok := <-outgoing:
			if !ok {
				return
			}
			if !session.IsInitialized() {
				fmt.Fprintln(os.Stderr, "handshake not complete yet, dropping message")
				continue
			}
			// every outgoing line announces a fresh ratchet key — the
			// simplest policy a line-oriented demo can follow, and the
			// one that best shows off forward secrecy.
			out := make([]byte, len(line)+ratchet.FrameOverhead(true))
			if err := session.Send([]byte(line), true, out); err != nil {
				fmt.Fprintln(os.Stderr, "send error:", err)
				continue
			}
			if err := link.Send(*peerUser, out); err != nil {
				fmt.Fprintln(os.Stderr, "transmit error:", err)
			}
		}
	}
}
