package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/levelhost/internal/core/events"
	"github.com/zeusync/levelhost/internal/core/events/bus"
	"github.com/zeusync/levelhost/internal/core/levels"
	"github.com/zeusync/levelhost/internal/core/observability/log"
	"github.com/zeusync/levelhost/internal/core/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Envelope is the JSON frame streamed to monitor clients for every bus event.
type Envelope struct {
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject,omitempty"`
	State     string    `json:"state,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func envelopeOf(e bus.Event) Envelope {
	env := Envelope{Type: e.Type(), Source: e.Source(), Timestamp: e.Timestamp()}
	switch d := e.Data().(type) {
	case events.ServiceEvent:
		env.Subject = d.Name
		env.State = d.State
	case events.LoadFailure:
		env.Subject = d.Name
		if d.Err != nil {
			env.Error = d.Err.Error()
		}
	case *levels.Level:
		if d != nil {
			env.Subject = d.Name()
			env.State = d.State().String()
		}
	case *services.Registry:
		env.Subject = "registry"
	}
	return env
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans encoded envelopes out to every connected client and keeps a short
// history replayed to newcomers.
type hub struct {
	mu         sync.Mutex
	clients    map[*client]struct{}
	history    [][]byte
	maxHistory int
	maxClients int
	closed     bool
}

func newHub(maxClients, maxHistory int) *hub {
	return &hub{
		clients:    make(map[*client]struct{}),
		maxClients: maxClients,
		maxHistory: maxHistory,
	}
}

func (h *hub) join(c *client) ([][]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrServerClosed
	}
	if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		return nil, ErrMaxClientsReached
	}
	h.clients[c] = struct{}{}
	return append([][]byte(nil), h.history...), nil
}

func (h *hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// broadcast never blocks: a client whose buffer is full misses the frame.
func (h *hub) broadcast(msg []byte) (dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.maxHistory > 0 {
		h.history = append(h.history, msg)
		if len(h.history) > h.maxHistory {
			h.history = h.history[len(h.history)-h.maxHistory:]
		}
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		_ = c.conn.Close()
	}
}

func (m *Monitor) publish(e bus.Event) error {
	msg, err := json.Marshal(envelopeOf(e))
	if err != nil {
		return err
	}
	if dropped := m.hub.broadcast(msg); dropped > 0 {
		m.Logger().Warn("monitor clients lagging", log.Int("dropped", dropped), log.String("event", e.Type()))
	}
	return nil
}

func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.Logger().Debug("websocket upgrade failed", log.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, m.cfg.BufferSize)}
	history, err := m.hub.join(c)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	m.Logger().Debug("monitor client connected", log.String("remote", conn.RemoteAddr().String()))

	go m.writeLoop(c, history)

	// Clients only listen; reading drives close detection.
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			break
		}
	}
	m.hub.leave(c)
	m.Logger().Debug("monitor client disconnected", log.String("remote", conn.RemoteAddr().String()))
}

func (m *Monitor) writeLoop(c *client, history [][]byte) {
	defer func() { _ = c.conn.Close() }()

	write := func(msg []byte) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
		return c.conn.WriteMessage(websocket.TextMessage, msg) == nil
	}

	for _, msg := range history {
		if !write(msg) {
			return
		}
	}
	for msg := range c.send {
		if !write(msg) {
			return
		}
	}
}
