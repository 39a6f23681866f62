// Package stream fans committed lending events out to websocket clients.
package stream

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"lendcore/core/events"
	"lendcore/observability"
	"lendcore/observability/metrics"
)

const wsWriteTimeout = 10 * time.Second

// Message is the wire form of one event.
type Message struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	At         time.Time         `json:"at"`
}

type subscriber struct {
	ch    chan Message
	types map[string]struct{}
}

func (s *subscriber) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Hub is an events.Emitter broadcasting to subscribers. Slow subscribers
// lose messages instead of blocking the publisher.
type Hub struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	seq     uint64
	dropped uint64
	buffer  int
	origins []string
	logger  *slog.Logger
	now     func() time.Time
}

// NewHub creates a hub whose subscribers buffer up to buffer messages.
func NewHub(buffer int, origins []string, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[*subscriber]struct{}),
		buffer:  buffer,
		origins: origins,
		logger:  logger,
		now:     time.Now,
	}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(e events.Event) {
	rendered := events.Render(e)
	if rendered == nil {
		return
	}
	observability.Events().RecordEvent(rendered.Type)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	msg := Message{Sequence: h.seq, Type: rendered.Type, Attributes: rendered.Attributes, At: h.now().UTC()}
	for sub := range h.subs {
		if !sub.wants(msg.Type) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			h.dropped++
			observability.Events().RecordDropped()
		}
	}
}

// Publish emits events in order.
func (h *Hub) Publish(evts []events.Event) {
	for _, e := range evts {
		h.Emit(e)
	}
}

// Subscribe registers a listener for the given event types, or every type
// when none are given. The returned function unsubscribes.
func (h *Hub) Subscribe(eventTypes []string) (<-chan Message, func()) {
	sub := &subscriber{ch: make(chan Message, h.buffer), types: make(map[string]struct{}, len(eventTypes))}
	for _, t := range eventTypes {
		if t = strings.TrimSpace(t); t != "" {
			sub.types[t] = struct{}{}
		}
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	metrics.Lending().SetSubscribers(n)

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			n := len(h.subs)
			h.mu.Unlock()
			metrics.Lending().SetSubscribers(n)
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped reports how many messages were discarded for slow subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// ServeHTTP upgrades to a websocket and streams events until the client goes
// away. The optional "type" query parameter filters by comma separated event
// types.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter []string
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		filter = strings.Split(raw, ",")
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Debug("websocket accept failed", slog.Any("error", err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	messages, cancel := h.Subscribe(filter)
	defer cancel()
	if err := h.stream(ctx, conn, messages); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, messages <-chan Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-messages:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, msg)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
