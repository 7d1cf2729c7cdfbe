package domain

import (
	"context"
	"time"
)

// PriceCache caches the latest mark price per symbol. The websocket feed
// writes through it; monitor ticks read it first and fall back to the
// gateway on a miss or stale entry.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	// GetPrice returns the cached price and its timestamp, or ErrNotFound.
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// LockManager provides short-lived distributed locks, used to keep the
// monitor and the manual-close path from racing the same position through
// the exchange. The store's status guard remains the correctness mechanism;
// the lock only avoids submitting duplicate close orders.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function, or ErrLockHeld when another holder has it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter limits request rates per key, used by the API middleware.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the limit
	// for the window, counting it when permitted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus is a lightweight publish/subscribe bus for engine events
// (position closes, cooldown engagements). Payloads are opaque bytes,
// typically JSON.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of payloads for the given bus channel.
	// The subscription ends and the channel closes when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
