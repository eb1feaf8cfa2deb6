package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "scheduler:refresh"

const defaultPublishTimeout = 2 * time.Second

type signal struct {
	Origin string    `json:"origin"`
	SentAt time.Time `json:"sent_at"`
}

// RedisBridge extends a local Coordinator across processes. Local publishes
// are forwarded to a Redis channel and signals from other processes are
// replayed into the local Coordinator.
type RedisBridge struct {
	client  *redis.Client
	channel string
	origin  string
	local   *Coordinator
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBridge wires local to the Redis channel.
func NewRedisBridge(client *redis.Client, channel string, local *Coordinator, logger *slog.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBridge{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		logger:  logger.With("component", "refresh_bridge", "channel", channel),
		timeout: defaultPublishTimeout,
	}
}

// Start subscribes to the channel and relays foreign signals until ctx is
// cancelled or Close is called. It returns once the subscription is active.
func (b *RedisBridge) Start(ctx context.Context) error {
	if b == nil || b.client == nil {
		return errors.New("refresh: redis client is required")
	}

	b.mu.Lock()
	if b.pubsub != nil {
		b.mu.Unlock()
		return errors.New("refresh: bridge already started")
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		b.mu.Unlock()
		return fmt.Errorf("refresh: subscribe %s: %w", b.channel, err)
	}
	b.pubsub = pubsub
	b.done = make(chan struct{})
	b.mu.Unlock()

	go b.relay(ctx, pubsub)
	return nil
}

func (b *RedisBridge) relay(ctx context.Context, pubsub *redis.PubSub) {
	defer close(b.done)
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = pubsub.Close()
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var sig signal
			if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
				b.logger.WarnContext(ctx, "discarding malformed refresh signal", "error", err)
				continue
			}
			if sig.Origin == b.origin {
				continue
			}
			b.local.Publish(ctx)
		}
	}
}

// Publish notifies local subscribers and then the other processes. A Redis
// failure is logged; local delivery has already happened.
func (b *RedisBridge) Publish(ctx context.Context) {
	b.local.Publish(ctx)

	payload, err := json.Marshal(signal{Origin: b.origin, SentAt: time.Now().UTC()})
	if err != nil {
		b.logger.ErrorContext(ctx, "encode refresh signal", "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	if err := b.client.Publish(pubCtx, b.channel, payload).Err(); err != nil {
		b.logger.ErrorContext(ctx, "publish refresh signal", "error", err)
	}
}

// Close stops relaying and waits for the relay goroutine to exit.
func (b *RedisBridge) Close() error {
	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}
