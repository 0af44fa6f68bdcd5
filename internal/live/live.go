// Package live pushes re-rendered content regions to browsers over websockets.
package live

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Axmae/ambulance-management/internal/metrics"
	"github.com/Axmae/ambulance-management/internal/ui"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Message is what a client receives after each render.
type Message struct {
	Version uint64 `json:"version"`
	HTML    string `json:"html"`
	Reload  bool   `json:"reload"`
}

// Source is a region clients follow.
type Source interface {
	Subscribe(fn func(ui.Update)) (unsubscribe func())
}

// Hub upgrades requests and tracks connected clients.
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.Mutex
	clients int
}

// NewHub returns a hub. Only same-origin pages may connect.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{log: log, upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096}}
}

// Clients returns the number of open connections.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

func (h *Hub) track(delta int) {
	h.mu.Lock()
	h.clients += delta
	h.mu.Unlock()
	metrics.LiveClients.Add(float64(delta))
}

// Serve upgrades the request and streams src until the client goes away.
// It blocks for the lifetime of the connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, src Source) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan Message, sendBuffer), done: make(chan struct{}), log: h.log}
	unsubscribe := src.Subscribe(c.push)
	h.track(1)
	defer h.track(-1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	c.readPump()

	unsubscribe()
	close(c.done)
	wg.Wait()
	_ = conn.Close()
}

type client struct {
	conn *websocket.Conn
	send chan Message
	done chan struct{}
	log  zerolog.Logger
}

// push never blocks the renderer; a client too slow to keep up is told to reload.
func (c *client) push(u ui.Update) {
	msg := Message{Version: u.Version, HTML: string(u.HTML), Reload: u.Reload}
	select {
	case c.send <- msg:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- Message{Version: u.Version, Reload: true}:
		default:
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// readPump discards client messages and returns when the connection closes.
func (c *client) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
	}
}
