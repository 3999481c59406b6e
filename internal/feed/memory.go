package feed

import (
	"context"
	"sync"

	"github.com/mmynk/tabsplit/internal/models"
)

// Ensure MemoryBroker implements Broker
var _ Broker = (*MemoryBroker)(nil)

// MemoryBroker is a Broker for a single server process.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

// NewMemory returns an empty in-process broker.
func NewMemory() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySubscription]struct{})}
}

// Publish delivers s to every current subscriber of the session.
func (b *MemoryBroker) Publish(_ context.Context, sessionID string, s models.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs[sessionID] {
		offer(sub.ch, s.Clone())
	}
	return nil
}

// Subscribe starts a subscription that ends with ctx or Close.
func (b *MemoryBroker) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		broker:    b,
		sessionID: sessionID,
		ch:        make(chan models.Session, subscriptionBuffer),
		stop:      make(chan struct{}),
	}
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*memorySubscription]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.stop:
		}
	}()
	return sub, nil
}

// Close ends every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for sub := range subs {
			sub.closeLocked()
		}
	}
	b.subs = nil
	return nil
}

func (b *MemoryBroker) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub.closeLocked()
	if subs, ok := b.subs[sub.sessionID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subs, sub.sessionID)
		}
	}
}

type memorySubscription struct {
	broker    *MemoryBroker
	sessionID string
	ch        chan models.Session
	stop      chan struct{}
	once      sync.Once
}

func (s *memorySubscription) C() <-chan models.Session { return s.ch }

func (s *memorySubscription) Close() error {
	s.broker.remove(s)
	return nil
}

// closeLocked closes the channels once. The broker lock must be held.
func (s *memorySubscription) closeLocked() {
	s.once.Do(func() {
		close(s.stop)
		close(s.ch)
	})
}
