package transportdemo

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// Link is the client side of the demo transport: a single websocket
// connection to a Relay, identified on the wire by userID.
type Link struct {
	conn   *websocket.Conn
	userID string
}

// Dial connects to a Relay's websocket endpoint (address+path, e.g.
// "localhost:8080"+"/ws") and identifies this connection as userID.
func Dial(address, path, userID string) (*Link, error) {
	u := url.URL{Scheme: "ws", Host: address, Path: path, RawQuery: "userId=" + url.QueryEscape(userID)}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	return &Link{conn: conn, userID: userID}, nil
}

// Send wraps payload in an envelope addressed to peerID and writes it.
func (l *Link) Send(peerID string, payload []byte) error {
	env := Envelope{ID: ulid.Make().String(), From: l.userID, To: peerID, Payload: payload}
	encoded, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.TextMessage, encoded)
}

// Receive blocks for the next envelope addressed to this link.
func (l *Link) Receive() (Envelope, error) {
	var env Envelope
	_, raw, err := l.conn.ReadMessage()
	if err != nil {
		return env, err
	}
	err = json.Unmarshal(raw, &env)
	return env, err
}

func (l *Link) Close() error {
	return l.conn.Close()
}
