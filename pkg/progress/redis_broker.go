package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ChannelName is the Redis pub/sub channel carrying one generation's events.
func ChannelName(generationID uuid.UUID) string {
	return fmt.Sprintf("generation:%s:progress", generationID.String())
}

// RedisBroker shares progress between API instances over Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// ConnectRedis parses a redis:// URL and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err)
	}
	log.Infof("Connected to Redis at %s (db %d).", opts.Addr, opts.DB)
	return client, nil
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode progress event: %w", err)
	}
	if err := b.client.Publish(ctx, ChannelName(ev.GenerationID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish progress event: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, generationID uuid.UUID) (<-chan Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, ChannelName(generationID))
	// Wait for the subscription confirmation so no event published after return is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", ChannelName(generationID), err)
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warnf("RedisBroker: dropping malformed event on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- ev:
			case <-done:
				return
			default:
				log.Debugf("RedisBroker: dropping event for slow subscriber of %s", generationID)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := pubsub.Close(); err != nil {
				log.Debugf("RedisBroker: closing subscription: %v", err)
			}
		})
	}
	return out, cancel, nil
}
