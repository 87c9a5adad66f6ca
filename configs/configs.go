// Package configs holds deployment configuration for the demo
// binaries (cmd/gen-identity, cmd/server, cmd/client). The core
// ratchet/primitives packages take every parameter they need as an
// explicit argument and never read from here.
package configs

import (
	"encoding/hex"
	"errors"
	"os"

	"github.com/joho/godotenv"
)

var errInvalidApplicationKeyLength = errors.New("configs: MR_APPLICATION_KEY must decode to 32 bytes")
var errMissingApplicationKey = errors.New("configs: MR_APPLICATION_KEY must be set")

var (
	ServerAddress   = "localhost:8080"
	RedisAddress    = "localhost:6379"
	BoltPath        = "client.db"
	PublishKeysPath = "/keys"
	WebSocketPath   = "/ws"

	// ApplicationKey is the pre-shared symmetric key that authenticates
	// a session's handshake init messages. It has no safe default —
	// Load requires MR_APPLICATION_KEY to be set.
	ApplicationKey [32]byte

	// Redis/Bolt key templates, "%s" filled with a session ID.

	ClientRatchetKey       = "client:ratchet:%s:%s"
	ClientMessagesKey      = "client:messages:%s:%s"
	ClientInitHandshakeKey = "client:initHandshake:%s:%s"
	ServerMessageQueueKey  = "server:messages:%s"
	ServerUserPubKey       = "publicKey:%s"

	ECDHFrequency = uint32(20)
)

// Load reads a .env file (if present — missing is not an error, the
// environment may already be populated by the deployment) and applies
// any MR_* overrides it or the process environment defines.
func Load(envPath string) error {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	if v := os.Getenv("MR_SERVER_ADDRESS"); v != "" {
		ServerAddress = v
	}
	if v := os.Getenv("MR_REDIS_ADDRESS"); v != "" {
		RedisAddress = v
	}
	if v := os.Getenv("MR_BOLT_PATH"); v != "" {
		BoltPath = v
	}
	if v := os.Getenv("MR_APPLICATION_KEY"); v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return err
		}
		if len(key) != len(ApplicationKey) {
			return errInvalidApplicationKeyLength
		}
		copy(ApplicationKey[:], key)
	} else {
		return errMissingApplicationKey
	}
	return nil
}
