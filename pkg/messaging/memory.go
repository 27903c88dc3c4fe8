package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker and Locker used by tests and
// single-node development setups.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string][]chan []byte
	locks  map[string]time.Time
	closed bool
	now    func() time.Time
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs:  make(map[string][]chan []byte),
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("broker closed")
	}
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// slow subscriber, drop like redis pub/sub would
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 100)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("broker closed")
	}
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(channel, ch)
	}()
	return ch, nil
}

func (b *MemoryBroker) unsubscribe(channel string, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[channel]
	for i, c := range subs {
		if c == ch {
			b.subs[channel] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (b *MemoryBroker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if exp, ok := b.locks[key]; ok && now.Before(exp) {
		return nil, ErrLockHeld
	}
	exp := now.Add(ttl)
	b.locks[key] = exp

	return func(context.Context) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.locks[key]; ok && cur.Equal(exp) {
			delete(b.locks, key)
		}
		return nil
	}, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, channel)
	}
	return nil
}

var (
	_ Broker = (*MemoryBroker)(nil)
	_ Locker = (*MemoryBroker)(nil)
)
