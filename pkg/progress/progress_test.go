package progress

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBrokerDeliversToSubscribersOfGeneration(t *testing.T) {
	b := NewLocalBroker()
	ctx := context.Background()
	genA, genB := uuid.New(), uuid.New()

	chA, cancelA, err := b.Subscribe(ctx, genA)
	require.NoError(t, err)
	defer cancelA()
	chB, cancelB, err := b.Subscribe(ctx, genB)
	require.NoError(t, err)
	defer cancelB()

	require.NoError(t, b.Publish(ctx, Event{GenerationID: genA, Progress: 40, Step: "stage_3"}))

	select {
	case ev := <-chA:
		assert.Equal(t, 40, ev.Progress)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case ev := <-chB:
		t.Fatalf("unexpected event for other generation: %+v", ev)
	default:
	}
}

func TestLocalBrokerSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewLocalBroker()
	ctx := context.Background()
	gen := uuid.New()
	_, cancel, err := b.Subscribe(ctx, gen)
	require.NoError(t, err)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			_ = b.Publish(ctx, Event{GenerationID: gen, Progress: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestLocalBrokerCancelClosesAndUnregisters(t *testing.T) {
	b := NewLocalBroker()
	gen := uuid.New()
	ch, cancel, err := b.Subscribe(context.Background(), gen)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers(gen))

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers(gen))
}

func TestChannelName(t *testing.T) {
	id := uuid.MustParse("6f1c1f0e-8a7e-4c4b-9a59-0f1e2d3c4b5a")
	assert.Equal(t, "generation:6f1c1f0e-8a7e-4c4b-9a59-0f1e2d3c4b5a:progress", ChannelName(id))
}

func TestIsAcknowledgement(t *testing.T) {
	for _, s := range []string{"yes", "OK", " okay ", "Approve", "approved", "Looks good!", "looks  good", "continue", "proceed.", "go ahead", "next"} {
		assert.True(t, IsAcknowledgement(s), s)
	}
	for _, s := range []string{"", "no", "make it brighter", "yes but shorter", "okay then change the music"} {
		assert.False(t, IsAcknowledgement(s), s)
	}
}
