// Package inproc fans push events out from the simulated workers to every
// in-process consumer (the source service, its websocket hub, tests).
package inproc

import (
	"errors"
	"sync"

	"agent_office/internal/domain"
)

var (
	ErrBusClosed            = errors.New("event bus is closed")
	ErrSubscriberRegistered = errors.New("subscriber name already registered")
)

type Bus struct {
	mu      sync.RWMutex
	subs    map[string]chan domain.PushEvent
	buffer  int
	dropped map[string]int
	closed  bool
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:    make(map[string]chan domain.PushEvent),
		buffer:  buffer,
		dropped: make(map[string]int),
	}
}

func (b *Bus) Subscribe(name string) (<-chan domain.PushEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, ok := b.subs[name]; ok {
		return nil, ErrSubscriberRegistered
	}
	ch := make(chan domain.PushEvent, b.buffer)
	b.subs[name] = ch
	return ch, nil
}

func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[name]
	if !ok {
		return
	}
	delete(b.subs, name)
	close(ch)
}

// Publish delivers ev to every subscriber without blocking. A subscriber
// whose queue is full misses the event; the next snapshot pull corrects it.
func (b *Bus) Publish(ev domain.PushEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	for name, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped[name]++
		}
	}
	return nil
}

// Dropped reports how many events a subscriber has missed to a full queue.
func (b *Bus) Dropped(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped[name]
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for name, ch := range b.subs {
		delete(b.subs, name)
		close(ch)
	}
}
