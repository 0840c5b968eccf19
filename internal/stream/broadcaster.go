package stream

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-live-alerts/internal/models"
)

const subscriberBuffer = 64

// Broadcaster fans newly accepted events out to live consumers (toast stream,
// list refreshers). Delivery is non-blocking: a subscriber that falls behind
// misses events rather than stalling ingestion.
type Broadcaster struct {
	subscribers map[uint64]chan models.DisasterEvent
	nextID      atomic.Uint64
	mu          sync.RWMutex
	closed      bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan models.DisasterEvent),
	}
}

// Subscribe returns a closed channel if the broadcaster is already closed.
func (b *Broadcaster) Subscribe() (uint64, <-chan models.DisasterEvent) {
	id := b.nextID.Add(1)
	ch := make(chan models.DisasterEvent, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Broadcast returns the number of subscribers the event was delivered to.
func (b *Broadcaster) Broadcast(e models.DisasterEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subscribers {
		select {
		case ch <- e.Clone():
			delivered++
		default:
			// Skip slow subscribers
		}
	}
	return delivered
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, ending every stream.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
