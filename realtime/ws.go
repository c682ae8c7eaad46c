package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	ds "gtarp/main_backend/database_service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Message types on the socket.
const (
	MsgSubscribe    = "subscribe"
	MsgUnsubscribe  = "unsubscribe"
	MsgSubscribed   = "subscribed"
	MsgUnsubscribed = "unsubscribed"
	MsgChange       = "change"
	MsgError        = "error"
)

// ClientMessage is sent by the browser.
type ClientMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Filter
}

// ServerMessage is sent to the browser.
type ServerMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Event   *ds.ChangeEvent `json:"event,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Authorizer checks a requested filter for the connected user and may narrow
// it, e.g. pinning user_id for non-staff callers.
type Authorizer func(f Filter) (Filter, error)

// NewUpgrader accepts browser connections from the allowed origins only. An
// empty list or "*" allows any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
}

// ServeConn runs one websocket session until the peer disconnects or ctx is
// cancelled. Every subscription opened on the socket is released on return.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn, authorize Authorizer) {
	ctx, cancel := context.WithCancel(ctx)
	send := make(chan ServerMessage, sendBuffer)
	subs := map[string]*Subscription{}
	var wg sync.WaitGroup

	defer func() {
		cancel()
		for _, s := range subs {
			s.Close()
		}
		wg.Wait()
		conn.Close()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		writePump(ctx, conn, send)
		cancel()
	}()

	enqueue := func(m ServerMessage) {
		select {
		case send <- m:
		case <-ctx.Done():
		}
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("realtime websocket read error", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			enqueue(ServerMessage{Type: MsgError, Message: "malformed message"})
			continue
		}

		switch msg.Type {
		case MsgSubscribe:
			if msg.ID == "" {
				enqueue(ServerMessage{Type: MsgError, Message: "subscription id is required"})
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				enqueue(ServerMessage{Type: MsgError, ID: msg.ID, Message: "subscription id already in use"})
				continue
			}
			filter := msg.Filter
			if authorize != nil {
				if filter, err = authorize(filter); err != nil {
					enqueue(ServerMessage{Type: MsgError, ID: msg.ID, Message: err.Error()})
					continue
				}
			}
			sub, err := h.Subscribe(filter)
			if err != nil {
				enqueue(ServerMessage{Type: MsgError, ID: msg.ID, Message: err.Error()})
				continue
			}
			subs[msg.ID] = sub

			wg.Add(1)
			go func(id string, sub *Subscription) {
				defer wg.Done()
				for ev := range sub.C {
					enqueue(ServerMessage{Type: MsgChange, ID: id, Event: &ev})
				}
			}(msg.ID, sub)
			enqueue(ServerMessage{Type: MsgSubscribed, ID: msg.ID})

		case MsgUnsubscribe:
			if sub, ok := subs[msg.ID]; ok {
				sub.Close()
				delete(subs, msg.ID)
			}
			enqueue(ServerMessage{Type: MsgUnsubscribed, ID: msg.ID})

		default:
			enqueue(ServerMessage{Type: MsgError, ID: msg.ID, Message: "unknown message type"})
		}
	}
}

// writePump is the only writer of data frames on conn.
func writePump(ctx context.Context, conn *websocket.Conn, send <-chan ServerMessage) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
