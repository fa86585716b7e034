// Package notify delivers user-visible notifications (success, error, info) to
// presentation consumers over WebSocket and in-process subscriptions.
package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/coinchange/cdsusd-vault/internal/logger"
	"github.com/coinchange/cdsusd-vault/internal/metrics"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

const (
	defaultHistorySize = 50
	clientBuffer       = 16
	writeTimeout       = 10 * time.Second
	pingInterval       = 30 * time.Second
	pongTimeout        = 2 * pingInterval
)

var hubLogger = logger.GetForComponent("notify_hub")

// Notification is one toast-style message.
type Notification struct {
	ID      uuid.UUID `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Hub fans notifications out to subscribers and keeps a short history for late joiners.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Notification]struct{}
	history     []Notification
	historySize int
	closed      bool

	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewHub creates a hub remembering the last historySize notifications.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &Hub{
		subscribers: make(map[chan Notification]struct{}),
		historySize: historySize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
}

func (h *Hub) Success(msg string) { h.Publish(LevelSuccess, msg) }

func (h *Hub) Error(msg string) { h.Publish(LevelError, msg) }

func (h *Hub) Info(msg string) { h.Publish(LevelInfo, msg) }

// Publish records a notification and delivers it to every subscriber. Subscribers that
// are not keeping up are dropped.
func (h *Hub) Publish(level Level, msg string) Notification {
	n := Notification{
		ID:      uuid.New(),
		Level:   level,
		Message: msg,
		Time:    h.now().UTC(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, n)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}

	for ch := range h.subscribers {
		select {
		case ch <- n:
		default:
			hubLogger.Warn().Msg("Dropping slow notification subscriber")
			delete(h.subscribers, ch)
			close(ch)
		}
	}

	metrics.RecordNotification(string(level))

	event := hubLogger.Info()
	if level == LevelError {
		event = hubLogger.Warn()
	}
	event.Str("level", string(level)).Str("id", n.ID.String()).Msg(msg)

	return n
}

// Recent returns the retained notifications, oldest first.
func (h *Hub) Recent() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Notification(nil), h.history...)
}

// Subscribe registers an in-process subscriber. The channel is closed when the
// subscription is cancelled, when the hub closes, or when the subscriber falls behind.
func (h *Hub) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, clientBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// ServeWS upgrades the request and streams notifications as JSON text frames, starting
// with the retained history.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hubLogger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	backlog := h.Recent()
	ch, cancel := h.Subscribe()

	metrics.AddWSClients(1)
	hubLogger.Debug().Str("remote", r.RemoteAddr).Msg("Notification stream client connected")

	done := make(chan struct{})
	go h.readPump(conn, done)

	defer func() {
		cancel()
		conn.Close()
		metrics.AddWSClients(-1)
		hubLogger.Debug().Str("remote", r.RemoteAddr).Msg("Notification stream client disconnected")
	}()

	for _, n := range backlog {
		if err := writeJSON(conn, n); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := writeJSON(conn, n); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readPump discards client frames and signals done when the peer goes away.
func (h *Hub) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}
