package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 512
)

// StatusHub streams status snapshots to websocket clients, at most one
// per interval.
type StatusHub struct {
	dev        Device
	interval   time.Duration
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	upgrader   websocket.Upgrader
}

func NewStatusHub(dev Device, interval time.Duration) *StatusHub {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &StatusHub{
		dev:        dev,
		interval:   interval,
		clients:    map[*client]struct{}{},
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// dashboards are served from elsewhere on the LAN
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run owns the client set until ctx is cancelled.
func (h *StatusHub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			if msg := h.encode(); msg != nil {
				c.send <- msg
			}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case <-ticker.C:
			select {
			case <-h.dev.Updates():
			default:
				continue
			}
			if len(h.clients) == 0 {
				continue
			}
			msg := h.encode()
			if msg == nil {
				continue
			}
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// too slow, drop it
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

func (h *StatusHub) encode() []byte {
	b, err := json.Marshal(h.dev.Snapshot())
	if err != nil {
		slog.Error("marshal status snapshot", "error", err)
		return nil
	}
	return b
}

// ServeWS upgrades the request and registers the client.
func (h *StatusHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, 16)}
	select {
	case h.register <- c:
	case <-r.Context().Done():
		conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

type client struct {
	hub  *StatusHub
	conn *websocket.Conn
	send chan []byte
}

// readPump only serves control frames; clients have nothing to say.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-time.After(time.Second):
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
