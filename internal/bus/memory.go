package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zerotrading/zero/internal/contracts"
)

// memoryItem is one stored value with optional expiry.
type memoryItem struct {
	raw      []byte
	expireAt time.Time // zero means no expiry
}

func (it memoryItem) expired(now time.Time) bool {
	return !it.expireAt.IsZero() && now.After(it.expireAt)
}

// MemoryBus is the in-process twin of RedisBus, backing tests and
// single-process runs without a Redis. Values still round-trip through
// JSON so encoding behavior matches the wire exactly.
type MemoryBus struct {
	mu   sync.Mutex
	kv   map[string]memoryItem
	subs map[*memorySub]struct{}
	now  func() time.Time
}

type memorySub struct {
	channels map[string]struct{}
	out      chan contracts.Message
}

var _ contracts.Bus = (*MemoryBus)(nil)

// NewMemory builds an empty in-process bus.
func NewMemory() *MemoryBus {
	return &MemoryBus{
		kv:   make(map[string]memoryItem),
		subs: make(map[*memorySub]struct{}),
		now:  time.Now,
	}
}

// Get mirrors RedisBus.Get: a missing or expired key is (false, nil).
func (b *MemoryBus) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	b.mu.Lock()
	it, ok := b.kv[key]
	if ok && it.expired(b.now()) {
		delete(b.kv, key)
		ok = false
	}
	b.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(it.raw, dest); err != nil {
		return false, fmt.Errorf("bus decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores the JSON encoding. ttl 0 means no expiry.
func (b *MemoryBus) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("bus encode %s: %w", key, err)
	}

	it := memoryItem{raw: raw}
	if ttl > 0 {
		it.expireAt = b.now().Add(ttl)
	}

	b.mu.Lock()
	b.kv[key] = it
	b.mu.Unlock()
	return nil
}

// Publish delivers to current subscribers only. A subscriber whose buffer
// is full loses the message, same as a slow consumer on Redis pub/sub.
func (b *MemoryBus) Publish(_ context.Context, channel string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus encode channel %s: %w", channel, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if _, ok := sub.channels[channel]; !ok {
			continue
		}
		select {
		case sub.out <- contracts.Message{Channel: channel, Payload: raw}:
		default:
		}
	}
	return nil
}

// Subscribe mirrors RedisBus.Subscribe: the returned channel closes when
// ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, channels ...string) (<-chan contracts.Message, error) {
	sub := &memorySub{
		channels: make(map[string]struct{}, len(channels)),
		out:      make(chan contracts.Message, 16),
	}
	for _, ch := range channels {
		sub.channels[ch] = struct{}{}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		// Close under the lock so an in-flight Publish cannot send on a
		// closed channel.
		b.mu.Lock()
		delete(b.subs, sub)
		close(sub.out)
		b.mu.Unlock()
	}()

	return sub.out, nil
}
