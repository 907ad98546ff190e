package events

import (
	"sync"
	"sync/atomic"
)

// Bus fans events out to in-process subscribers over buffered channels.
// A subscriber that falls behind loses events rather than blocking the
// publisher; the drop count is observable for monitoring.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
	closed bool

	dropped atomic.Int64
}

// NewBus creates a bus whose subscribers each get a channel with the given
// buffer size.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}

	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a new consumer. The returned cancel function removes
// the subscription and closes its channel; it is safe to call more than
// once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}

	return ch, cancel
}

// Publish sends the event to every subscriber without blocking. Implements
// Publisher; it never returns an error.
func (b *Bus) Publish(event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	for _, sub := range b.subs {
		select {
		case sub <- event:
		default:
			b.dropped.Add(1)
		}
	}

	return nil
}

// Dropped reports how many events were lost to full subscriber buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}

	return nil
}
