package messaging

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned when a lock is already owned by another holder.
var ErrLockHeld = errors.New("lock held by another holder")

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Locker provides a best-effort distributed mutex with expiry.
type Locker interface {
	// Acquire returns a release func when the lock was taken, or ErrLockHeld.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Message is the envelope published for every event.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sent_at"`
}
