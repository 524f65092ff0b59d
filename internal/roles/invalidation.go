package roles

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// InvalidationChannel carries role and grant change notices between instances.
const InvalidationChannel = "sabha:roles:invalidate"

// Invalidatable drops cached authorization state.
type Invalidatable interface {
	Invalidate()
}

// Notifier announces that role or grant data changed.
type Notifier interface {
	Publish(ctx context.Context, reason string) error
}

// Broadcaster invalidates local caches and fans the notice out over Redis
// pub/sub so that other instances do the same.
type Broadcaster struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger

	mu      sync.RWMutex
	targets []Invalidatable
}

// NewBroadcaster constructs a Broadcaster. A nil client keeps invalidation
// local to the process.
func NewBroadcaster(client *redis.Client, logger *slog.Logger, targets ...Invalidatable) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{client: client, channel: InvalidationChannel, logger: logger, targets: targets}
}

// Register adds a cache to invalidate on every notice.
func (b *Broadcaster) Register(target Invalidatable) {
	if target == nil {
		return
	}
	b.mu.Lock()
	b.targets = append(b.targets, target)
	b.mu.Unlock()
}

// Invalidate drops every registered cache in this process.
func (b *Broadcaster) Invalidate() {
	b.mu.RLock()
	targets := append([]Invalidatable(nil), b.targets...)
	b.mu.RUnlock()
	for _, t := range targets {
		t.Invalidate()
	}
}

// Publish invalidates locally and then notifies other instances.
func (b *Broadcaster) Publish(ctx context.Context, reason string) error {
	b.Invalidate()
	if b.client == nil {
		return nil
	}
	return b.client.Publish(ctx, b.channel, reason).Err()
}

// Listen applies notices from other instances until ctx is done. ready, when
// non-nil, is closed once the subscription is confirmed.
func (b *Broadcaster) Listen(ctx context.Context, ready chan<- struct{}) error {
	if b.client == nil {
		if ready != nil {
			close(ready)
		}
		<-ctx.Done()
		return nil
	}
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.logger.Debug("role invalidation received", slog.String("reason", msg.Payload))
			b.Invalidate()
		}
	}
}
