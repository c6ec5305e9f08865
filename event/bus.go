// Package event provides the best-effort notification side channel for
// session lifecycle events. Delivery is fire-and-forget: slow subscribers
// drop events rather than block the engine, and consumers must tolerate
// missed or duplicate events.
package event

import (
	"sync"
	"time"

	"github.com/warp/timeclock/track"
)

// Kind identifies what happened to a session.
type Kind string

const (
	SessionStarted   Kind = "session_started"
	SessionPaused    Kind = "session_paused"
	SessionResumed   Kind = "session_resumed"
	SessionEnded     Kind = "session_ended"
	SessionAutoEnded Kind = "session_auto_ended"
)

// SessionEvent is the payload emitted on every session transition.
type SessionEvent struct {
	Kind      Kind
	SessionID string
	Username  string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    track.SessionStatus
	At        time.Time
}

// Bus is an in-process publish/subscribe channel for session events.
// Publish never blocks; a subscriber whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan SessionEvent
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan SessionEvent)}
}

// Subscribe registers a listener with the given buffer size and returns its
// channel plus a cancel function. Cancel closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan SessionEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan SessionEvent, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has buffer room.
// A nil bus is a valid no-op publisher.
func (b *Bus) Publish(evt SessionEvent) {
	if b == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Best-effort: drop rather than block the engine.
		}
	}
}
