package services

import (
	"sync"

	"rifa/internal/models"
)

// Broadcaster fans out raffle snapshots to subscribers. A subscriber that is
// not keeping up misses events instead of blocking the publisher.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan models.RaffleSnapshot]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan models.RaffleSnapshot]struct{})}
}

// Subscribe registers a listener. Call the returned func to unsubscribe; it
// closes the channel.
func (b *Broadcaster) Subscribe() (<-chan models.RaffleSnapshot, func()) {
	ch := make(chan models.RaffleSnapshot, 4)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Publish(snap models.RaffleSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Subscribers returns the number of active listeners.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
