// Package broadcast fans out server-sent events — sessions-changed and
// terminal-output — to every connected WebSocket client. Slow consumers are
// dropped rather than allowed to back-pressure the producer, the same
// trade-off the terminal session broadcaster in this codebase's PTY layer
// makes for output bytes.
package broadcast

import "sync"

// capacity is the buffer depth of each subscriber's channel. A consumer that
// falls capacity messages behind starts missing events rather than stalling
// the rest of the system.
const capacity = 100

// Event is one message pushed onto the broadcast channel.
type Event struct {
	Type    string // "sessions-changed" or "terminal-output"
	Payload any
}

// Broadcaster fans out Events to any number of subscribers.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[uint64]chan Event
	nextID    uint64
}

// New creates a ready-to-use Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{listeners: make(map[uint64]chan Event)}
}

// Subscribe registers a new listener and returns its id and receive channel.
// Call Unsubscribe with the id when the consumer disconnects.
func (b *Broadcaster) Subscribe() (uint64, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, capacity)
	b.listeners[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a listener.
func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.listeners[id]; ok {
		close(ch)
		delete(b.listeners, id)
	}
}

// Publish sends ev to every current subscriber. A subscriber whose channel
// is full silently drops the event rather than blocking the publisher.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SessionsChanged publishes a sessions-changed event with no payload — the
// listener is expected to call the digest/scan endpoints to learn what
// changed.
func (b *Broadcaster) SessionsChanged() {
	b.Publish(Event{Type: "sessions-changed"})
}

// TerminalOutput publishes a chunk of PTY output for terminalID.
func (b *Broadcaster) TerminalOutput(terminalID string, data []byte) {
	b.Publish(Event{Type: "terminal-output", Payload: map[string]any{
		"terminalId": terminalID,
		"data":       string(data),
	}})
}
