// Package transportdemo is a minimal store-and-forward relay for the
// demo binaries: it carries opaque MicroRatchet ciphertext frames
// between two endpoints over a websocket, queuing them in redis for
// whichever side is offline. It has no idea what's inside a frame —
// the ratchet/primitives/identitycheck packages are what give the
// bytes it relays any meaning.
package transportdemo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/cilliemalan/microratchet-go/configs"
)

// Envelope is the JSON wrapper a frame travels in. Payload is the raw
// MicroRatchet message bytes (InitRequest/InitResponse/data frame,
// whichever Session.Send or InitiateHandshake produced); ID is a
// ULID that Link.Send stamps on each envelope (the relay stamps one on
// receipt only if it arrives empty) so the relay's logs can correlate a
// frame across the queue/delivery boundary.
type Envelope struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Payload []byte `json:"payload"`
}

// Relay is the server side of the demo transport: it upgrades
// connecting clients to websockets, forwards envelopes to an online
// recipient, and queues them in redis otherwise.
type Relay struct {
	ctx       context.Context
	cancelCtx context.CancelFunc

	redisClient *redis.Client
	connected   map[string]*websocket.Conn
	mutex       sync.Mutex
	logger      *logrus.Logger
	upgrader    websocket.Upgrader
}

func NewRelay(ctx context.Context, redisClient *redis.Client, logger *logrus.Logger) *Relay {
	ctx, cancel := context.WithCancel(ctx)
	return &Relay{
		ctx:         ctx,
		cancelCtx:   cancel,
		redisClient: redisClient,
		connected:   make(map[string]*websocket.Conn),
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades the connection and relays frames for the
// user named in the "userId" query parameter until it closes.
func (r *Relay) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.WithError(err).Error("websocket upgrade failed")
		return
	}
	defer ws.Close()

	userID := req.URL.Query().Get("userId")
	if userID == "" {
		r.logger.Error("connection with no userId query parameter")
		return
	}

	r.mutex.Lock()
	r.connected[userID] = ws
	r.mutex.Unlock()
	r.logger.WithField("user", userID).Info("peer connected")

	r.deliverQueued(userID, ws)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			r.logger.WithError(err).WithField("user", userID).Info("peer disconnected")
			break
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			r.logger.WithError(err).WithField("user", userID).Warn("dropping malformed envelope")
			continue
		}
		env.From = userID
		if env.ID == "" {
			env.ID = ulid.Make().String()
		}
		r.logger.WithFields(logrus.Fields{"id": env.ID, "from": env.From, "to": env.To}).Debug("relaying frame")
		r.deliver(&env)
	}

	r.mutex.Lock()
	delete(r.connected, userID)
	r.mutex.Unlock()
}

func (r *Relay) Close() error {
	r.cancelCtx()
	r.mutex.Lock()
	for _, conn := range r.connected {
		conn.Close()
	}
	r.mutex.Unlock()
	return r.redisClient.Close()
}

func (r *Relay) deliver(env *Envelope) {
	r.mutex.Lock()
	conn, online := r.connected[env.To]
	r.mutex.Unlock()

	encoded, err := json.Marshal(env)
	if err != nil {
		r.logger.WithError(err).Error("marshalling envelope")
		return
	}

	if online {
		if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
			r.logger.WithError(err).WithField("to", env.To).Error("delivering frame")
		}
		return
	}

	key := fmt.Sprintf(configs.ServerMessageQueueKey, env.To)
	if err := r.redisClient.RPush(r.ctx, key, encoded).Err(); err != nil {
		r.logger.WithError(err).WithField("to", env.To).Error("queuing frame")
	}
}

func (r *Relay) deliverQueued(userID string, ws *websocket.Conn) {
	key := fmt.Sprintf(configs.ServerMessageQueueKey, userID)
	queued, err := r.redisClient.LRange(r.ctx, key, 0, -1).Result()
	if err != nil {
		r.logger.WithError(err).WithField("user", userID).Error("retrieving queued frames")
		return
	}
	for _, raw := range queued {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			r.logger.WithError(err).WithField("user", userID).Error("delivering queued frame")
			return
		}
	}
	r.redisClient.Del(r.ctx, key)
}
