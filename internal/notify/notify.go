// Package notify broadcasts "game created" signals to observers in this
// process, other processes (through redis) and websocket clients.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
)

// Notification announces a newly created game.
type Notification struct {
	ID        uuid.UUID   `json:"id"`
	ChainID   uint64      `json:"chainId"`
	GameID    uint64      `json:"gameId"`
	Timestamp time.Time   `json:"timestamp"`
	TxHash    common.Hash `json:"txHash"`
	// Unresolved marks GameID as a guess; observers should re-read games
	// rather than trust it.
	Unresolved bool `json:"unresolved,omitempty"`
	// Origin identifies the publishing process so bridges can drop echoes.
	Origin string `json:"origin,omitempty"`
}

func NewNotification(chainID, gameID uint64) Notification {
	return Notification{ID: uuid.New(), ChainID: chainID, GameID: gameID, Timestamp: time.Now()}
}

// Publisher accepts notifications.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Bus fans notifications out to in-process subscribers. Slow subscribers
// miss notifications rather than block publishers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]chan Notification
	seen   map[uuid.UUID]struct{}
	order  []uuid.UUID
	closed bool
	log    log.Logger
}

// seenLimit bounds the ids remembered for de-duplication.
const seenLimit = 1024

func NewBus(l log.Logger) *Bus {
	if l == nil {
		l = log.Root()
	}
	return &Bus{
		subs: make(map[uuid.UUID]chan Notification),
		seen: make(map[uuid.UUID]struct{}),
		log:  l.New("component", "bus"),
	}
}

// Subscribe registers a subscriber with the given buffer. The returned
// cancel func unregisters it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Notification, func()) {
	ch := make(chan Notification, buffer)
	id := uuid.New()
	b.mu.Lock()
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers n to every subscriber. A notification id already
// delivered is ignored.
func (b *Bus) Publish(_ context.Context, n Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	if _, dup := b.seen[n.ID]; dup {
		return nil
	}
	b.remember(n.ID)
	for id, ch := range b.subs {
		select {
		case ch <- n:
		default:
			b.log.Warn("Subscriber full, dropping notification", "subscriber", id, "game", n.GameID)
		}
	}
	return nil
}

func (b *Bus) remember(id uuid.UUID) {
	b.seen[id] = struct{}{}
	b.order = append(b.order, id)
	if len(b.order) > seenLimit {
		delete(b.seen, b.order[0])
		b.order = b.order[1:]
	}
}

// Subscribers is the number of registered subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

// Fanout publishes to several publishers, returning the first error after
// trying all of them.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, n Notification) error {
	var first error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
