package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adamwoolhether/deltapipe/stream"
)

// Hub broadcasts stream events to websocket subscribers. It implements
// [stream.Sink] and [http.Handler].
type Hub struct {
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	bufferSize   int
	writeTimeout time.Duration
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	conn    *websocket.Conn
	session string
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

// New creates a Hub. Defaults: 64 queued messages per subscriber, a 10s
// write timeout, a 30s ping interval and same-origin browser clients.
func New(optFns ...Option) *Hub {
	opts := options{
		bufferSize:   64,
		writeTimeout: 10 * time.Second,
		pingInterval: 30 * time.Second,
	}
	for _, opt := range optFns {
		opt(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}

	h := Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.checkOrigin,
		},
		logger:       opts.logger,
		bufferSize:   opts.bufferSize,
		writeTimeout: opts.writeTimeout,
		pingInterval: opts.pingInterval,
		clients:      make(map[*subscriber]struct{}),
	}

	return &h
}

// ServeHTTP upgrades the request and subscribes the connection. The
// optional "session" query parameter restricts delivery to one stream.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade", "error", err)
		return
	}

	sub := &subscriber{
		conn:    conn,
		session: strings.TrimSpace(r.URL.Query().Get("session")),
		send:    make(chan []byte, h.bufferSize),
		done:    make(chan struct{}),
	}

	if !h.add(sub) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.writeTimeout))
		conn.Close()
		return
	}

	h.logger.Info("subscriber connected", "remoteaddr", r.RemoteAddr, "session", sub.session)

	go h.writePump(sub)
	h.readPump(sub)

	h.logger.Info("subscriber disconnected", "remoteaddr", r.RemoteAddr, "session", sub.session)
}

// Send enqueues ev for every matching subscriber without blocking. A
// subscriber whose queue is full is disconnected.
func (h *Hub) Send(ctx context.Context, ev stream.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return stream.ErrSinkClosed
	}

	var slow []*subscriber
	for sub := range h.clients {
		if sub.session != "" && sub.session != ev.SessionID {
			continue
		}

		select {
		case sub.send <- payload:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Warn("subscriber too slow, dropping", "session", sub.session)
		h.remove(sub)
	}

	return nil
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close disconnects every subscriber. Later Sends return
// stream.ErrSinkClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.clients))
	for sub := range h.clients {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.remove(sub)
	}

	return nil
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[sub] = struct{}{}

	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.clients, sub)
	h.mu.Unlock()

	sub.once.Do(func() {
		close(sub.done)
	})
}

// readPump discards inbound messages and returns once the peer goes away.
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.remove(sub)
		sub.conn.Close()
	}()

	sub.conn.SetReadLimit(512)
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})
	_ = sub.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drain writes whatever is still queued for sub.
func (h *Hub) drain(sub *subscriber) {
	for {
		select {
		case msg := <-sub.send:
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// writePump owns all writes to the connection.
func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case msg := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(sub)
				return
			}

		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(sub)
				return
			}

		case <-sub.done:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			h.drain(sub)
			_ = sub.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
