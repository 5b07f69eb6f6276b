package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oleg-messenger/oleg/internal/crypto"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxMessageSize = 64 << 10

	// Outbound frames buffered per client.
	sendBuffer = 256
)

// Engine is the part of the chat engine a connection drives.
type Engine interface {
	Connect(ctx context.Context, user, conn string)
	Disconnect(ctx context.Context, user, conn string)
	HandleCommand(ctx context.Context, user, conn, name string, raw json.RawMessage) error
}

// Client is one authenticated websocket connection.
type Client struct {
	id   string
	user string
	conn *websocket.Conn

	// Buffered channel of outbound frames
	send chan []byte

	hub       *Hub
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, user string) *Client {
	return &Client{
		id:   crypto.NewID(),
		user: user,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  hub,
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// readPump feeds inbound frames to the engine until the connection fails.
func (c *Client) readPump(ctx context.Context, eng Engine) {
	defer func() {
		eng.Disconnect(ctx, c.user, c.id)
		c.hub.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Str("conn", c.id).Msg("websocket closed")
			}
			return
		}

		f, err := ParseFrame(data)
		if err != nil {
			c.hub.logger.Debug().Err(err).Str("conn", c.id).Msg("ignoring malformed frame")
			continue
		}
		// Failures are answered by the engine on this connection.
		_ = eng.HandleCommand(ctx, c.user, c.id, f.Event, f.Data)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Upgrader builds the websocket upgrader. An empty origin list, or one
// containing "*", accepts any origin.
func Upgrader(origins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || allowed["*"] || origin == "" || allowed[origin]
		},
	}
}

// ServeWS upgrades an authenticated request and runs the connection until it
// closes.
func (h *Hub) ServeWS(eng Engine, up *websocket.Upgrader, w http.ResponseWriter, r *http.Request, user string) {
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The request context ends when this handler returns.
	ctx := context.WithoutCancel(r.Context())

	c := newClient(h, conn, user)
	h.register(c)
	eng.Connect(ctx, user, c.id)

	go c.writePump()
	go c.readPump(ctx, eng)
}
