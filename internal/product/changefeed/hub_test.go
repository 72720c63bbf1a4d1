package changefeed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToEverySubscriber(t *testing.T) {
	hub := NewHub()
	first, err := hub.Subscribe(TopicProducts)
	require.NoError(t, err)
	defer first.Close()
	second, err := hub.Subscribe(TopicProducts)
	require.NoError(t, err)
	defer second.Close()

	hub.Notify(context.Background(), Change{Topic: TopicProducts, Op: OpCreate, ID: "1"})

	for _, sub := range []*Subscription{first, second} {
		select {
		case change := <-sub.Changes():
			assert.Equal(t, OpCreate, change.Op)
		case <-time.After(time.Second):
			t.Fatal("expected change")
		}
	}
}

func TestHubCoalescesPendingChanges(t *testing.T) {
	hub := NewHub()
	sub, err := hub.Subscribe(TopicProducts)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		hub.Publish(Change{Topic: TopicProducts, Op: OpUpdate})
	}

	<-sub.Changes()
	select {
	case <-sub.Changes():
		t.Fatal("expected a single pending change")
	default:
	}
}

func TestHubCloseReleasesStream(t *testing.T) {
	hub := NewHub()
	sub, err := hub.Subscribe(TopicProducts)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers(TopicProducts))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers(TopicProducts))

	hub.Publish(Change{Topic: TopicProducts, Op: OpDelete})
	select {
	case <-sub.Changes():
		t.Fatal("closed subscription received a change")
	default:
	}
}

func TestHubRejectsEmptyTopic(t *testing.T) {
	_, err := NewHub().Subscribe("  ")
	assert.Error(t, err)
}

func TestHubSubscribeRacingLastClose(t *testing.T) {
	hub := NewHub()

	for i := 0; i < 500; i++ {
		leaving, err := hub.Subscribe(TopicProducts)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var joining *Subscription
		wg.Add(2)
		go func() {
			defer wg.Done()
			leaving.Close()
		}()
		go func() {
			defer wg.Done()
			sub, err := hub.Subscribe(TopicProducts)
			assert.NoError(t, err)
			joining = sub
		}()
		wg.Wait()

		require.NotNil(t, joining)
		require.Equal(t, 1, hub.Subscribers(TopicProducts))
		hub.Publish(Change{Topic: TopicProducts, Op: OpUpdate})
		select {
		case <-joining.Changes():
		default:
			t.Fatalf("round %d: subscriber missed the change", i)
		}
		joining.Close()
	}
	assert.Zero(t, hub.Subscribers(TopicProducts))
}
