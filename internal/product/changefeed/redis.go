package changefeed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultRedisChannel = "productdesk:changes"

// RedisBridge publishes local changes on a redis channel and relays changes
// made by other instances into the local hub, so subscriptions see writes
// from every process sharing the database.
type RedisBridge struct {
	hub     *Hub
	client  *redis.Client
	channel string
	origin  string
	log     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisBridge(hub *Hub, client *redis.Client, log *zap.Logger) *RedisBridge {
	return &RedisBridge{
		hub:     hub,
		client:  client,
		channel: DefaultRedisChannel,
		origin:  uuid.NewString(),
		log:     log.Named("changefeed.redis"),
	}
}

func (b *RedisBridge) Notify(ctx context.Context, change Change) {
	b.hub.Publish(change)

	change.Origin = b.origin
	payload, err := json.Marshal(change)
	if err != nil {
		b.log.Error("encode change", zap.Error(err))
		return
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.log.Warn("publish change", zap.String("op", change.Op), zap.Error(err))
	}
}

// Start subscribes to the redis channel and relays remote changes until Stop.
func (b *RedisBridge) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.mu.Lock()
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	go func() {
		defer close(done)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				b.relay(msg.Payload)
			}
		}
	}()

	b.log.Info("relaying changes", zap.String("channel", b.channel))
	return nil
}

func (b *RedisBridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (b *RedisBridge) relay(payload string) {
	var change Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		b.log.Warn("decode change", zap.Error(err))
		return
	}
	if change.Origin == b.origin {
		return
	}
	b.hub.Publish(change)
}
