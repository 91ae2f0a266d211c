package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/replicant/internal/protocol"
	"github.com/roach88/replicant/internal/replicant"
)

// chanSink is a test sink backed by a bounded channel, mirroring how the
// server's write pump accepts messages.
type chanSink struct {
	id string
	ch chan protocol.Message
}

func newChanSink(id string, capacity int) *chanSink {
	return &chanSink{id: id, ch: make(chan protocol.Message, capacity)}
}

func (s *chanSink) ID() string { return s.id }

func (s *chanSink) Send(msg protocol.Message) bool {
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *chanSink) drain() []protocol.Message {
	var out []protocol.Message
	for {
		select {
		case msg := <-s.ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

var counterKey = replicant.NewKey("my-bundle", "counter")

func TestPublish_DeliversToSubscribers(t *testing.T) {
	r := NewRegistry()
	a := newChanSink("conn-a", 8)
	b := newChanSink("conn-b", 8)

	r.Subscribe(a, counterKey)
	r.Subscribe(b, counterKey)

	r.Publish(counterKey, replicant.MustParseValue(`5`), 1)

	for _, sink := range []*chanSink{a, b} {
		msgs := sink.drain()
		require.Len(t, msgs, 1, "sink %s", sink.id)
		assert.Equal(t, protocol.TypeChange, msgs[0].Type)
		assert.Equal(t, uint64(1), msgs[0].Revision)
		assert.True(t, msgs[0].Value.Equal(replicant.MustParseValue(`5`)))
	}
}

func TestPublish_PerKeyFIFO(t *testing.T) {
	r := NewRegistry()
	sink := newChanSink("conn-a", 16)
	r.Subscribe(sink, counterKey)

	for i := 1; i <= 5; i++ {
		r.Publish(counterKey, replicant.MustParseValue(`1`), uint64(i))
	}

	msgs := sink.drain()
	require.Len(t, msgs, 5)
	for i, msg := range msgs {
		assert.Equal(t, uint64(i+1), msg.Revision, "changes must arrive in publish order")
	}
}

func TestPublish_OnlyExactKey(t *testing.T) {
	r := NewRegistry()
	sink := newChanSink("conn-a", 8)
	r.Subscribe(sink, counterKey)

	r.Publish(replicant.NewKey("my-bundle", "other"), replicant.MustParseValue(`1`), 1)
	r.Publish(replicant.NewKey("other-bundle", "counter"), replicant.MustParseValue(`1`), 1)

	assert.Empty(t, sink.drain())
}

func TestSubscribe_Idempotent(t *testing.T) {
	r := NewRegistry()
	sink := newChanSink("conn-a", 8)

	r.Subscribe(sink, counterKey)
	r.Subscribe(sink, counterKey)
	assert.Equal(t, 1, r.Subscribers(counterKey))

	r.Publish(counterKey, replicant.MustParseValue(`1`), 1)
	assert.Len(t, sink.drain(), 1, "resubscribe must not duplicate delivery")
}

func TestUnsubscribe_NoOpWhenAbsent(t *testing.T) {
	r := NewRegistry()

	// Never subscribed: must not panic or error.
	r.Unsubscribe("ghost", counterKey)
	r.UnsubscribeAll("ghost")

	sink := newChanSink("conn-a", 8)
	r.Subscribe(sink, counterKey)
	r.Unsubscribe("conn-a", counterKey)
	r.Unsubscribe("conn-a", counterKey) // second time is a no-op too

	r.Publish(counterKey, replicant.MustParseValue(`1`), 1)
	assert.Empty(t, sink.drain())
}

func TestUnsubscribeAll_RemovesEveryKey(t *testing.T) {
	r := NewRegistry()
	sink := newChanSink("conn-a", 8)
	other := replicant.NewKey("my-bundle", "scoreboard")

	r.Subscribe(sink, counterKey)
	r.Subscribe(sink, other)

	r.UnsubscribeAll("conn-a")

	r.Publish(counterKey, replicant.MustParseValue(`1`), 1)
	r.Publish(other, replicant.MustParseValue(`1`), 1)
	assert.Empty(t, sink.drain())
	assert.Equal(t, 0, r.Subscribers(counterKey))
}

func TestPublish_DropsSaturatedSink(t *testing.T) {
	r := NewRegistry()
	slow := newChanSink("slow", 1)
	fast := newChanSink("fast", 8)

	r.Subscribe(slow, counterKey)
	r.Subscribe(fast, counterKey)

	// Second publish overflows slow's buffer of 1; it gets dropped, the
	// publisher never blocks, and fast keeps receiving.
	r.Publish(counterKey, replicant.MustParseValue(`1`), 1)
	r.Publish(counterKey, replicant.MustParseValue(`2`), 2)
	r.Publish(counterKey, replicant.MustParseValue(`3`), 3)

	assert.Len(t, slow.drain(), 1)
	assert.Len(t, fast.drain(), 3)
	assert.Equal(t, 1, r.Subscribers(counterKey), "slow sink must be dropped")
}

func TestPublishDeleted_VoidsSubscriptions(t *testing.T) {
	r := NewRegistry()
	sink := newChanSink("conn-a", 8)
	r.Subscribe(sink, counterKey)

	r.PublishDeleted(counterKey)

	msgs := sink.drain()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Deleted)
	assert.Equal(t, 0, r.Subscribers(counterKey), "deletion voids subscriptions")

	// Later publishes reach nobody.
	r.Publish(counterKey, replicant.MustParseValue(`9`), 9)
	assert.Empty(t, sink.drain())
}

func TestWatch_HandleUnsubscribes(t *testing.T) {
	r := NewRegistry()

	var got []protocol.Message
	unsubscribe := r.Watch(counterKey, func(msg protocol.Message) {
		got = append(got, msg)
	})

	r.Publish(counterKey, replicant.MustParseValue(`1`), 1)
	require.Len(t, got, 1)

	unsubscribe()
	unsubscribe() // safe to call twice

	r.Publish(counterKey, replicant.MustParseValue(`2`), 2)
	assert.Len(t, got, 1)
}

func TestWatch_ListenerMayUnsubscribeItself(t *testing.T) {
	r := NewRegistry()

	var calls int
	var unsubscribe func()
	unsubscribe = r.Watch(counterKey, func(msg protocol.Message) {
		calls++
		unsubscribe()
	})

	// The listener runs on the publisher's goroutine; re-entering the
	// registry from it must not wedge the publish.
	done := make(chan struct{})
	go func() {
		r.Publish(counterKey, replicant.MustParseValue(`1`), 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not return while its listener unsubscribed itself")
	}

	require.Equal(t, 1, calls)
	assert.Equal(t, 0, r.Subscribers(counterKey))

	r.Publish(counterKey, replicant.MustParseValue(`2`), 2)
	assert.Equal(t, 1, calls, "listener removed itself after the first delivery")
}
