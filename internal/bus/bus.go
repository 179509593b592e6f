package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/pkg/logger"
	"github.com/zerotrading/zero/pkg/redis"
)

// RedisBus is the Redis-backed state bus. Values are stored as JSON under
// the keys in keys.go; notifications ride pub/sub with at-most-once
// delivery, so every consumer must be able to rebuild from KV reads alone.
type RedisBus struct {
	rdb *goredis.Client
	log *logger.Logger
}

var _ contracts.Bus = (*RedisBus)(nil)

// New wires the bus onto an existing Redis client. The bus is the backbone
// between services, so unlike the cache it refuses to run with Redis
// disabled.
func New(client *redis.Client, log *logger.Logger) (*RedisBus, error) {
	if !client.Enabled() {
		return nil, errors.New("bus requires redis: set REDIS_ENABLED=true")
	}
	return &RedisBus{
		rdb: client.Redis(),
		log: log.WithField("component", "bus"),
	}, nil
}

// Get reads and decodes a key. A missing key is (false, nil), never an
// error; transport failures wrap ErrUpstreamUnavailable so callers can
// degrade the cycle instead of crashing.
func (b *RedisBus) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := b.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("bus get %s: %w: %v", key, contracts.ErrUpstreamUnavailable, err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, fmt.Errorf("bus decode %s: %w", key, err)
	}
	return true, nil
}

// Set encodes and writes a key. ttl 0 means no expiry.
func (b *RedisBus) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("bus encode %s: %w", key, err)
	}

	if err := b.rdb.Set(ctx, key, jsonBytes, ttl).Err(); err != nil {
		return fmt.Errorf("bus set %s: %w: %v", key, contracts.ErrUpstreamUnavailable, err)
	}
	return nil
}

// Publish emits a JSON-encoded notification. Failure to publish is logged
// by callers but never fails a cycle: the KV write already happened.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload interface{}) error {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus encode channel %s: %w", channel, err)
	}

	if err := b.rdb.Publish(ctx, channel, jsonBytes).Err(); err != nil {
		return fmt.Errorf("bus publish %s: %w: %v", channel, contracts.ErrUpstreamUnavailable, err)
	}
	return nil
}

// Subscribe listens on the given channels until ctx is done. The returned
// channel closes when the subscription ends; messages that arrive while the
// consumer is busy beyond the buffer are dropped by Redis, which is fine
// under the notification-only contract.
func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) (<-chan contracts.Message, error) {
	sub := b.rdb.Subscribe(ctx, channels...)

	// Force the SUBSCRIBE onto the wire so a broken connection surfaces
	// here, not on first receive.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("bus subscribe %v: %w: %v", channels, contracts.ErrUpstreamUnavailable, err)
	}

	out := make(chan contracts.Message, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- contracts.Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
