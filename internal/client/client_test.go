package client

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/replicant/internal/engine"
	"github.com/roach88/replicant/internal/pubsub"
	"github.com/roach88/replicant/internal/replicant"
	"github.com/roach88/replicant/internal/schema"
	"github.com/roach88/replicant/internal/server"
	"github.com/roach88/replicant/internal/store"
)

// transition is one listener invocation.
type transition struct {
	newValue replicant.Value
	oldValue replicant.Value
}

// watch registers a channel-backed listener on a proxy.
func watch(t *testing.T, p *Proxy) <-chan transition {
	t.Helper()
	ch := make(chan transition, 16)
	remove := p.OnChange(func(newValue, oldValue replicant.Value) {
		ch <- transition{newValue: newValue, oldValue: oldValue}
	})
	t.Cleanup(remove)
	return ch
}

func await(t *testing.T, ch <-chan transition) transition {
	t.Helper()
	select {
	case tr := <-ch:
		return tr
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for listener")
		return transition{}
	}
}

func awaitSynced(t *testing.T, p *Proxy) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p.State() == Synced {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("proxy %s never reached synced, state %s", p.Key(), p.State())
}

func newTestStack(t *testing.T) (string, *engine.Engine) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	registry := pubsub.NewRegistry()
	eng := engine.New(s, schema.NewValidator(), registry, engine.Options{})
	ts := httptest.NewServer(server.New(eng, registry, server.Options{}))
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http"), eng
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := Dial(t.Context(), url, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestProxy_SyncsInitialSnapshot(t *testing.T) {
	url, _ := newTestStack(t)
	c := newTestClient(t, url)

	p := c.Replicant("my-bundle", "counter", replicant.MustParseValue(`0`))
	awaitSynced(t, p)

	value, revision := p.Get()
	assert.Equal(t, uint64(0), revision)
	assert.True(t, value.Equal(replicant.MustParseValue(`0`)))
}

func TestProxy_RemoteChangeReachesListener(t *testing.T) {
	url, _ := newTestStack(t)

	writer := newTestClient(t, url)
	watcher := newTestClient(t, url)

	wp := writer.Replicant("my-bundle", "counter", replicant.MustParseValue(`0`))
	awaitSynced(t, wp)

	bp := watcher.Replicant("my-bundle", "counter", replicant.MustParseValue(`0`))
	awaitSynced(t, bp)
	events := watch(t, bp)

	require.NoError(t, wp.Set(replicant.MustParseValue(`5`)))

	tr := await(t, events)
	assert.True(t, tr.newValue.Equal(replicant.MustParseValue(`5`)))
	assert.True(t, tr.oldValue.Equal(replicant.MustParseValue(`0`)))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, revision := bp.Get(); revision == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	_, revision := bp.Get()
	assert.Equal(t, uint64(1), revision)
}

func TestProxy_SetIsOptimistic(t *testing.T) {
	url, _ := newTestStack(t)
	c := newTestClient(t, url)

	p := c.Replicant("my-bundle", "counter", replicant.MustParseValue(`0`))
	awaitSynced(t, p)
	events := watch(t, p)

	require.NoError(t, p.Set(replicant.MustParseValue(`7`)))

	// The listener fires before any server echo: the local value is
	// already the written one.
	tr := await(t, events)
	assert.True(t, tr.newValue.Equal(replicant.MustParseValue(`7`)))

	value, _ := p.Get()
	assert.True(t, value.Equal(replicant.MustParseValue(`7`)))
}

func TestProxy_RejectedWriteRollsBack(t *testing.T) {
	url, eng := newTestStack(t)

	schemaDoc := replicant.MustParseValue(`{"$schema":"http://json-schema.org/draft-07/schema#","type":"integer"}`)
	_, err := eng.Create(t.Context(), "my-bundle", "counter", replicant.MustParseValue(`0`), schemaDoc)
	require.NoError(t, err)

	c := newTestClient(t, url)
	p := c.Replicant("my-bundle", "counter", nil)
	awaitSynced(t, p)
	events := watch(t, p)

	require.NoError(t, p.Set(replicant.MustParseValue(`"nope"`)))

	optimistic := await(t, events)
	assert.True(t, optimistic.newValue.Equal(replicant.MustParseValue(`"nope"`)))

	rollback := await(t, events)
	assert.True(t, rollback.newValue.Equal(replicant.MustParseValue(`0`)),
		"rollback must restore the last synced value")
	assert.True(t, rollback.oldValue.Equal(replicant.MustParseValue(`"nope"`)))

	value, revision := p.Get()
	assert.True(t, value.Equal(replicant.MustParseValue(`0`)))
	assert.Equal(t, uint64(0), revision)
}

func TestProxy_EchoedChangeIsIdempotent(t *testing.T) {
	url, _ := newTestStack(t)
	c := newTestClient(t, url)

	p := c.Replicant("my-bundle", "counter", replicant.MustParseValue(`0`))
	awaitSynced(t, p)
	events := watch(t, p)

	require.NoError(t, p.Set(replicant.MustParseValue(`3`)))
	await(t, events) // optimistic notification

	// The echoed change carries the same value; equality suppresses a
	// second notification, but the revision still advances.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, revision := p.Get(); revision == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	_, revision := p.Get()
	assert.Equal(t, uint64(1), revision)

	select {
	case tr := <-events:
		t.Fatalf("unexpected notification: %s -> %s", tr.oldValue, tr.newValue)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestProxy_ResubscribeRecoversLatestOnly(t *testing.T) {
	url, eng := newTestStack(t)

	// A first client establishes the key, then goes away entirely.
	first := newTestClient(t, url)
	fp := first.Replicant("my-bundle", "counter", replicant.MustParseValue(`0`))
	awaitSynced(t, fp)
	require.NoError(t, first.Close())

	// Writes happen while nobody from the first client is listening.
	ctx := t.Context()
	for i := 1; i <= 3; i++ {
		_, _, err := eng.Set(ctx, "my-bundle", "counter", replicant.MustParseValue(`9`), "offline-writer")
		require.NoError(t, err)
	}

	// A fresh connection resubscribes: one snapshot carrying the latest
	// state, no replay of the intermediate revisions.
	second := newTestClient(t, url)
	sp := second.Replicant("my-bundle", "counter", replicant.MustParseValue(`0`))
	awaitSynced(t, sp)

	value, revision := sp.Get()
	assert.Equal(t, uint64(3), revision)
	assert.True(t, value.Equal(replicant.MustParseValue(`9`)))
}

func TestProxy_DestroyStopsTracking(t *testing.T) {
	url, _ := newTestStack(t)
	c := newTestClient(t, url)

	p := c.Replicant("my-bundle", "counter", replicant.MustParseValue(`0`))
	awaitSynced(t, p)

	p.Destroy()
	assert.Error(t, p.Set(replicant.MustParseValue(`1`)))

	// A new proxy for the same key starts fresh.
	again := c.Replicant("my-bundle", "counter", replicant.MustParseValue(`0`))
	assert.NotSame(t, p, again)
	awaitSynced(t, again)
}

func TestProxy_SnapshotOlderThanSyncedChangeIgnored(t *testing.T) {
	p := newProxy(nil, replicant.NewKey("my-bundle", "counter"), replicant.MustParseValue(`0`))
	p.enterSubscribing()

	// A commit landing between the server's snapshot read and the
	// snapshot's enqueue delivers change(2) ahead of initial(1). The
	// stale snapshot must not roll the proxy back.
	p.handleChange(replicant.MustParseValue(`5`), 2)
	p.handleInitial(replicant.MustParseValue(`4`), 1)

	value, revision := p.Get()
	assert.Equal(t, uint64(2), revision)
	assert.True(t, value.Equal(replicant.MustParseValue(`5`)))
	assert.Equal(t, Synced, p.State())

	// After a reconnect the proxy is Subscribing again; there the
	// snapshot is authoritative even at a lower revision.
	p.enterDisconnected()
	p.enterSubscribing()
	p.handleInitial(replicant.MustParseValue(`4`), 1)

	value, revision = p.Get()
	assert.Equal(t, uint64(1), revision)
	assert.True(t, value.Equal(replicant.MustParseValue(`4`)))
}
