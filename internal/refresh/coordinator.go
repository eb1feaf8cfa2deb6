// Package refresh fans invalidation signals out to everything that caches
// derived scheduling state. Signals carry no payload; subscribers re-derive.
package refresh

import (
	"context"
	"log/slog"
	"sync"

	"github.com/example/portal-scheduler/internal/logging"
)

// Subscriber reacts to an invalidation signal.
type Subscriber func(ctx context.Context)

// Publisher emits invalidation signals after durable mutations.
type Publisher interface {
	Publish(ctx context.Context)
}

// Coordinator is the process-wide publish/subscribe hub.
type Coordinator struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers map[uint64]Subscriber
	logger      *slog.Logger
}

// NewCoordinator constructs an empty Coordinator.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		subscribers: make(map[uint64]Subscriber),
		logger:      logger,
	}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is idempotent.
func (c *Coordinator) Subscribe(fn Subscriber) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subscribers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		})
	}
}

// Publish invokes every current subscriber synchronously. A panicking
// subscriber is logged and does not prevent delivery to the others.
func (c *Coordinator) Publish(ctx context.Context) {
	c.mu.RLock()
	snapshot := make([]Subscriber, 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		snapshot = append(snapshot, fn)
	}
	c.mu.RUnlock()

	for _, fn := range snapshot {
		c.deliver(ctx, fn)
	}
}

// Len reports the number of registered subscribers.
func (c *Coordinator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers)
}

func (c *Coordinator) deliver(ctx context.Context, fn Subscriber) {
	defer func() {
		if r := recover(); r != nil {
			c.loggerFor(ctx).ErrorContext(ctx, "refresh subscriber panicked", "panic", r)
		}
	}()
	fn(ctx)
}

func (c *Coordinator) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return c.logger
}
