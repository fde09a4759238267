package eventhub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// writeWait bounds how long a single frame write may take before the
// connection is considered dead.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades r to a WebSocket connection, subscribes it to
// group, and forwards every event delivered to that subscriber as a JSON
// frame until the connection closes or the request context is canceled.
// This is the concrete, per-connection transport referenced by §6's
// "Event stream" contract (transport is opaque to the spec; this is one
// conforming implementation).
func ServeWebSocket(hub *Hub, group string, log *logrus.Logger, w http.ResponseWriter, r *http.Request) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := hub.Subscribe(group)
	defer hub.Unsubscribe(group, sub)

	// Drain and discard client frames so the read side doesn't back up;
	// its return signals the client went away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-clientGone:
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			payload, err := json.Marshal(event)
			if err != nil {
				log.WithError(err).Warn("eventhub: failed to marshal event for websocket frame")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		}
	}
}
