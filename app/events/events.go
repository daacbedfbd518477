package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	CollectionStarted  = "collection_started"
	CollectionFinished = "collection_finished"
	KeywordsChanged    = "keywords_changed"
	ScheduleChanged    = "schedule_changed"
	SnapshotDeleted    = "snapshot_deleted"
)

type Event struct {
	Type      string          `json:"type"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Publisher is what producers of events depend on.
type Publisher interface {
	Publish(typ, requestID string, data any)
}

// Hub fans events out to subscribers. Slow subscribers miss events
// instead of blocking publishers.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
	buffer  int
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan Event]struct{}), buffer: 16}
}

func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Publish(typ, requestID string, data any) {
	evt := Event{Type: typ, At: time.Now().UTC(), RequestID: requestID}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			evt.Data = raw
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close drops all subscribers, ending their streams.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(string, string, any) {}

type requestIDKey struct{}

// WithRequestID tags ctx so events published on its behalf carry the id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
