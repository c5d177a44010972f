package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trustlab/kestrel/internal/domain"
)

// collect subscribes and returns a channel the handler feeds.
func collect(t *testing.T, bus *ChannelBus, topic string) (<-chan *domain.Message, domain.Subscription) {
	t.Helper()

	ch := make(chan *domain.Message, 100)
	sub, err := bus.Subscribe(context.Background(), topic, func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return ch, sub
}

func waitMsg(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		ch, _ := collect(t, bus, "test.topic")

		if err := bus.Publish(ctx, "test.topic", []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		msg := waitMsg(t, ch)
		if string(msg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got '%s'", msg.Payload)
		}
		if msg.Topic != "test.topic" {
			t.Errorf("expected topic 'test.topic', got '%s'", msg.Topic)
		}
		if msg.ID == "" || msg.Timestamp == 0 {
			t.Errorf("envelope fields not populated: %+v", msg)
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		published, _ := collect(t, bus, domain.TopicEpochPublished)
		alerts, _ := collect(t, bus, domain.TopicRingAlert)

		bus.Publish(ctx, domain.TopicEpochPublished, []byte("epoch-1"))
		waitMsg(t, published)

		select {
		case msg := <-alerts:
			t.Errorf("ring subscriber received foreign message %s", msg.Topic)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		ch, sub := collect(t, bus, "unsub.topic")

		bus.Publish(ctx, "unsub.topic", []byte("msg1"))
		waitMsg(t, ch)

		sub.Unsubscribe()
		time.Sleep(10 * time.Millisecond)

		bus.Publish(ctx, "unsub.topic", []byte("msg2"))
		select {
		case msg := <-ch:
			t.Errorf("received %s after unsubscribe", msg.Payload)
		case <-time.After(50 * time.Millisecond):
		}

		// The subscription is deregistered, not just cancelled, so the
		// bus no longer fans out to its buffer at all.
		bus.mu.RLock()
		_, registered := bus.subscriptions["unsub.topic"]
		bus.mu.RUnlock()
		if registered {
			t.Error("subscription still registered after unsubscribe")
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		ch1, _ := collect(t, bus, "multi.topic")
		ch2, _ := collect(t, bus, "multi.topic")

		bus.Publish(ctx, "multi.topic", []byte("broadcast"))

		waitMsg(t, ch1)
		waitMsg(t, ch2)
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		_, sub := collect(t, bus, "my.topic")
		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	collect(t, bus, "close.topic")

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Publish(ctx, "close.topic", []byte("data")); err == nil {
		t.Error("expected publish error after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
	if _, err := bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	}); err == nil {
		t.Error("expected subscribe error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	const messageCount = 100

	var received atomic.Int32
	done := make(chan struct{})
	bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		if received.Add(1) == messageCount {
			close(done)
		}
		return nil
	})

	for i := 0; i < messageCount; i++ {
		bus.Publish(ctx, "load.topic", []byte("msg"))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}
