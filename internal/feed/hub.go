// Package feed streams presentation cues to websocket clients as JSON and
// accepts local input commands from them.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/skirmish/server/internal/core/event"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Command actions accepted from clients.
const (
	ActionMove   = "move"
	ActionJump   = "jump"
	ActionAttack = "attack"
	ActionDefend = "defend"
)

// Command is one input from a presentation client. Move carries the
// horizontal axis in X; Defend carries Active.
type Command struct {
	Action string  `json:"action"`
	X      float64 `json:"x"`
	Active bool    `json:"active"`
}

type Config struct {
	BindAddress string
	Path        string
	SendBuffer  int
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans cues out to every connected client. Publish is called from the
// game loop; clients come and go on HTTP goroutines.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*client]struct{}
	commands chan Command
	snapshot func() any
	log      *zap.Logger
}

func NewHub(cfg Config, log *zap.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.Path == "" {
		cfg.Path = "/feed"
	}
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:  make(map[*client]struct{}),
		commands: make(chan Command, 64),
		log:      log,
	}
}

// SetSnapshot installs the payload sent as a "snapshot" frame to every new
// client. It runs on the HTTP goroutine and must be safe for that.
func (h *Hub) SetSnapshot(fn func() any) { h.snapshot = fn }

// Attach subscribes the hub to every cue on bus.
func (h *Hub) Attach(bus *event.Bus) {
	bus.SubscribeAll(h.Publish)
}

// Publish encodes a cue and queues it for every client. Slow clients drop
// frames instead of stalling the game loop.
func (h *Hub) Publish(cue any) {
	f, ok := frameFor(cue)
	if !ok {
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		h.log.Warn("feed encode failed", zap.String("type", f.Type), zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Debug("feed client slow, frame dropped", zap.String("type", f.Type))
		}
	}
}

// Commands yields client input. Drained by the game loop without blocking.
func (h *Hub) Commands() <-chan Command { return h.commands }

// Clients counts connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and runs the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("feed upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, h.cfg.SendBuffer)}

	if h.snapshot != nil {
		if data, err := json.Marshal(Frame{Type: "snapshot", Data: h.snapshot()}); err == nil {
			c.send <- data
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Info("feed client connected", zap.String("addr", r.RemoteAddr))

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			h.log.Debug("feed discarding malformed command", zap.Error(err))
			continue
		}
		select {
		case h.commands <- cmd:
		default:
			h.log.Debug("feed command queue full", zap.String("action", cmd.Action))
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// Run serves the feed until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(h.cfg.Path, h)
	srv := &http.Server{Addr: h.cfg.BindAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	h.log.Info("feed listening", zap.String("addr", h.cfg.BindAddress), zap.String("path", h.cfg.Path))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
