// Package events delivers task outcome notifications.
package events

import (
	"sync"

	"OracleVerifier/internal/logger"
	"OracleVerifier/internal/model"
)

const (
	// channelBuffer is the buffer size of each subscriber channel.
	channelBuffer = 1024
)

// Bus fans outcomes out to subscribers. Emit never blocks: a subscriber
// whose buffer is full misses the outcome.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan model.Outcome
	nextID uint64
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan model.Outcome)}
}

// Emit logs the outcome and delivers it to every subscriber.
func (b *Bus) Emit(o model.Outcome) {
	attrs := []any{"task", o.TaskID, "operator", o.Operator, "status", o.Status}
	if o.Value != nil {
		attrs = append(attrs, "value", *o.Value)
	}
	if len(o.Slashable) > 0 {
		attrs = append(attrs, "slashable", len(o.Slashable))
	}
	logger.Info("task outcome", attrs...)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- o:
		default:
			logger.Warn("outcome dropped, subscriber full", "subscriber", id, "task", o.TaskID)
		}
	}
}

// Subscribe registers a subscriber. The returned function unsubscribes
// and closes the channel.
func (b *Bus) Subscribe() (<-chan model.Outcome, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.Outcome, channelBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Close closes every subscriber channel. Later Emits only log.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
