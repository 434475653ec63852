// Package progress fans generation progress out to live listeners.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const subscriberBuffer = 32

// Event is one progress snapshot of a generation.
type Event struct {
	GenerationID uuid.UUID `json:"generation_id"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	Step         string    `json:"step"`
	Stage        string    `json:"stage,omitempty"`
	Message      string    `json:"message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Broker delivers events to subscribers of a generation. Delivery is best effort:
// a slow subscriber misses events rather than blocking the pipeline.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, generationID uuid.UUID) (<-chan Event, func(), error)
}

// LocalBroker is the in-process Broker used when no Redis is configured.
type LocalBroker struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[*localSub]struct{}
}

type localSub struct {
	ch   chan Event
	once sync.Once
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[uuid.UUID]map[*localSub]struct{})}
}

func (b *LocalBroker) Publish(_ context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[ev.GenerationID] {
		select {
		case sub.ch <- ev:
		default:
			log.Debugf("LocalBroker: dropping event for slow subscriber of %s", ev.GenerationID)
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(_ context.Context, generationID uuid.UUID) (<-chan Event, func(), error) {
	sub := &localSub{ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	if b.subs[generationID] == nil {
		b.subs[generationID] = make(map[*localSub]struct{})
	}
	b.subs[generationID][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			b.mu.Lock()
			delete(b.subs[generationID], sub)
			if len(b.subs[generationID]) == 0 {
				delete(b.subs, generationID)
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel, nil
}

// Subscribers reports how many listeners a generation has.
func (b *LocalBroker) Subscribers(generationID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[generationID])
}
