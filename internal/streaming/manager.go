package streaming

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types emitted over one chat turn.
const (
	EventStatus   = "status"
	EventResponse = "response"
	EventError    = "error"
)

// Event is one progress or result message for a chat request, delivered over
// SSE or websocket.
type Event struct {
	RequestID string                 `json:"request_id"`
	Type      string                 `json:"type"`
	Step      string                 `json:"step,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Seq       uint64                 `json:"seq"`
}

// Marshal returns JSON for SSE data lines and websocket frames.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager provides in-memory pub/sub for turn events, keyed by request ID.
// A per-request ring buffer lets late subscribers replay what they missed.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = 64
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for a request; the caller must drain
// it and call Unsubscribe.
func (m *Manager) Subscribe(requestID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[requestID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[requestID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes the subscriber channel.
func (m *Manager) Unsubscribe(requestID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[requestID]; ok {
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(m.subscribers, requestID)
		}
	}
}

// Publish delivers an event to all subscribers, non-blocking. Slow
// subscribers miss events rather than stalling the turn.
func (m *Manager) Publish(requestID string, evt Event) {
	evt.RequestID = requestID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	m.mu.Lock()
	rg := m.history[requestID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[requestID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)
	subs := m.subscribers[requestID]
	m.mu.Unlock()

	for ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ReplaySince returns buffered events with Seq > since, best-effort within
// ring capacity.
func (m *Manager) ReplaySince(requestID string, since uint64) []Event {
	m.mu.RLock()
	rg := m.history[requestID]
	m.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops the history of a finished request.
func (m *Manager) Forget(requestID string) {
	m.mu.Lock()
	delete(m.history, requestID)
	m.mu.Unlock()
}

type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
