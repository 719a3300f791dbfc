package native

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/posthog/posthog-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calqbridge/internal/logger"
)

type fakePostHog struct {
	mu         sync.Mutex
	writeKey   string
	config     posthog.Config
	messages   []posthog.Message
	closed     bool
	enqueueErr error
}

func (f *fakePostHog) Enqueue(msg posthog.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakePostHog) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePostHog) sent() []posthog.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]posthog.Message(nil), f.messages...)
}

type fakeFactory struct {
	created []*fakePostHog
	err     error
}

func (f *fakeFactory) open(writeKey string, config posthog.Config) (enqueuer, error) {
	if f.err != nil {
		return nil, f.err
	}
	client := &fakePostHog{writeKey: writeKey, config: config}
	f.created = append(f.created, client)
	return client, nil
}

func (f *fakeFactory) latest() *fakePostHog {
	return f.created[len(f.created)-1]
}

type failingStore struct {
	*MemoryStore
	saveErr error
}

func (s *failingStore) Save(ctx context.Context, session *Session) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.MemoryStore.Save(ctx, session)
}

func newTestClient(t *testing.T, store SessionStore) (*Client, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{}
	c := NewClient(nil, store, logger.Discard("native-test"))
	c.factory = factory.open
	return c, factory
}

func startedClient(t *testing.T) (*Client, *fakeFactory) {
	t.Helper()
	c, factory := newTestClient(t, nil)
	_, err := c.Init(context.Background(), "phc_key")
	require.NoError(t, err)
	return c, factory
}

func decodeSnapshot(t *testing.T, payload json.RawMessage) Snapshot {
	t.Helper()
	var s Snapshot
	require.NoError(t, json.Unmarshal(payload, &s))
	return s
}

func TestOperationsBeforeInit(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, nil)

	_, err := c.Track(ctx, "purchase", "{}")
	assert.ErrorIs(t, err, ErrSessionNotStarted)
	_, err = c.TrackSale(ctx, "sale", "{}", "USD", 1)
	assert.ErrorIs(t, err, ErrSessionNotStarted)
	_, err = c.SetGlobalProperty(ctx, "plan", "pro")
	assert.ErrorIs(t, err, ErrSessionNotStarted)
	_, err = c.Identify(ctx, "user-1")
	assert.ErrorIs(t, err, ErrSessionNotStarted)
	_, err = c.Profile(ctx, "{}")
	assert.ErrorIs(t, err, ErrSessionNotStarted)
	_, err = c.Clear(ctx)
	assert.ErrorIs(t, err, ErrSessionNotStarted)
	_, err = c.Flush(ctx)
	assert.ErrorIs(t, err, ErrSessionNotStarted)
	assert.Nil(t, c.Session())
}

func TestInitStartsAnonymousSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c, factory := newTestClient(t, store)

	payload, err := c.Init(ctx, "phc_key")
	require.NoError(t, err)

	snap := decodeSnapshot(t, payload)
	assert.NotEmpty(t, snap.Actor)
	assert.False(t, snap.Identified)

	require.Len(t, factory.created, 1)
	assert.Equal(t, "phc_key", factory.latest().writeKey)
	assert.Equal(t, DefaultConfig().PostHogHost, factory.latest().config.Endpoint)
	assert.Equal(t, DefaultConfig().BatchSize, factory.latest().config.BatchSize)

	saved, err := store.Load(ctx, "phc_key")
	require.NoError(t, err)
	assert.Equal(t, snap.Actor, saved.ActorID)
}

func TestInitSameKeyKeepsClient(t *testing.T) {
	ctx := context.Background()
	c, factory := startedClient(t)
	first := c.Session().ActorID

	payload, err := c.Init(ctx, "phc_key")
	require.NoError(t, err)
	assert.Equal(t, first, decodeSnapshot(t, payload).Actor)
	assert.Len(t, factory.created, 1)
}

func TestInitOtherKeyReplacesClient(t *testing.T) {
	ctx := context.Background()
	c, factory := startedClient(t)
	old := factory.latest()

	_, err := c.Init(ctx, "phc_other")
	require.NoError(t, err)
	assert.True(t, old.closed)
	assert.Len(t, factory.created, 2)
	assert.Equal(t, "phc_other", c.Session().WriteKey)
}

func TestInitRestoresSavedSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, &Session{
		WriteKey:         "phc_key",
		ActorID:          "user-7",
		Identified:       true,
		GlobalProperties: map[string]string{"plan": "pro"},
	}))

	c, _ := newTestClient(t, store)
	payload, err := c.Init(ctx, "phc_key")
	require.NoError(t, err)
	assert.Equal(t, Snapshot{Actor: "user-7", Identified: true}, decodeSnapshot(t, payload))
	assert.Equal(t, "pro", c.Session().GlobalProperties["plan"])
}

func TestInitFactoryFailure(t *testing.T) {
	c, factory := newTestClient(t, nil)
	factory.err = errors.New("bad endpoint")

	_, err := c.Init(context.Background(), "phc_key")
	assert.ErrorContains(t, err, "bad endpoint")

	_, err = c.Track(context.Background(), "purchase", "{}")
	assert.ErrorIs(t, err, ErrSessionNotStarted)
}

func TestTrackMergesGlobalProperties(t *testing.T) {
	ctx := context.Background()
	c, factory := startedClient(t)

	_, err := c.SetGlobalProperty(ctx, "plan", "free")
	require.NoError(t, err)
	_, err = c.SetGlobalProperty(ctx, "platform", "android")
	require.NoError(t, err)

	_, err = c.Track(ctx, "purchase", `{"item":"x","plan":"pro","qty":2}`)
	require.NoError(t, err)

	sent := factory.latest().sent()
	require.Len(t, sent, 1)
	capture, ok := sent[0].(posthog.Capture)
	require.True(t, ok)
	assert.Equal(t, "purchase", capture.Event)
	assert.Equal(t, c.Session().ActorID, capture.DistinctId)
	assert.Equal(t, "x", capture.Properties["item"])
	assert.Equal(t, "pro", capture.Properties["plan"])
	assert.Equal(t, "android", capture.Properties["platform"])
	assert.Equal(t, json.Number("2"), capture.Properties["qty"])
}

func TestTrackRejectsMalformedProperties(t *testing.T) {
	c, factory := startedClient(t)

	for _, props := range []string{"not json", "[1,2]", "null"} {
		_, err := c.Track(context.Background(), "purchase", props)
		assert.ErrorIs(t, err, ErrInvalidProperties, props)
	}
	assert.Empty(t, factory.latest().sent())
}

func TestTrackEnqueueFailure(t *testing.T) {
	c, factory := startedClient(t)
	factory.latest().enqueueErr = errors.New("queue full")

	_, err := c.Track(context.Background(), "purchase", "{}")
	assert.ErrorContains(t, err, "queue full")
}

func TestTrackSaleAddsRevenueProperties(t *testing.T) {
	c, factory := startedClient(t)

	_, err := c.TrackSale(context.Background(), "refund", `{"order":"o-1"}`, "USD", -5)
	require.NoError(t, err)

	sent := factory.latest().sent()
	require.Len(t, sent, 1)
	capture := sent[0].(posthog.Capture)
	assert.Equal(t, "refund", capture.Event)
	assert.Equal(t, "USD", capture.Properties[PropertySaleCurrency])
	assert.Equal(t, float64(-5), capture.Properties[PropertySaleValue])
	assert.Equal(t, "o-1", capture.Properties["order"])
}

func TestIdentify(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c, factory := newTestClient(t, store)
	_, err := c.Init(ctx, "phc_key")
	require.NoError(t, err)
	anonymous := c.Session().ActorID

	payload, err := c.Identify(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, Snapshot{Actor: "user-1", Identified: true}, decodeSnapshot(t, payload))

	sent := factory.latest().sent()
	require.Len(t, sent, 1)
	assert.Equal(t, posthog.Alias{DistinctId: "user-1", Alias: anonymous}, sent[0])

	saved, err := store.Load(ctx, "phc_key")
	require.NoError(t, err)
	assert.Equal(t, "user-1", saved.ActorID)
	assert.True(t, saved.Identified)

	t.Run("same actor is a no-op", func(t *testing.T) {
		_, err := c.Identify(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, factory.latest().sent(), 1)
	})

	t.Run("different actor is refused", func(t *testing.T) {
		_, err := c.Identify(ctx, "user-2")
		assert.ErrorIs(t, err, ErrAlreadyIdentified)
		assert.Equal(t, "user-1", c.Session().ActorID)
	})
}

func TestIdentifySaveFailureSendsNoAlias(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore()}
	c, factory := newTestClient(t, store)
	_, err := c.Init(ctx, "phc_key")
	require.NoError(t, err)
	anonymous := c.Session().ActorID

	store.saveErr = errors.New("disk full")
	_, err = c.Identify(ctx, "user-1")
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, factory.latest().sent())
	assert.Equal(t, anonymous, c.Session().ActorID)
	assert.False(t, c.Session().Identified)

	store.saveErr = nil
	_, err = c.Identify(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, []posthog.Message{posthog.Alias{DistinctId: "user-2", Alias: anonymous}}, factory.latest().sent())
}

func TestIdentifyAliasFailureRestoresAnonymousSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c, factory := newTestClient(t, store)
	_, err := c.Init(ctx, "phc_key")
	require.NoError(t, err)
	anonymous := c.Session().ActorID

	factory.latest().enqueueErr = errors.New("queue full")
	_, err = c.Identify(ctx, "user-1")
	assert.ErrorContains(t, err, "queue full")
	assert.Equal(t, anonymous, c.Session().ActorID)
	assert.False(t, c.Session().Identified)

	saved, err := store.Load(ctx, "phc_key")
	require.NoError(t, err)
	assert.Equal(t, anonymous, saved.ActorID)
	assert.False(t, saved.Identified)
}

func TestIdentifyAsCurrentAnonymousActor(t *testing.T) {
	ctx := context.Background()
	c, factory := startedClient(t)
	anonymous := c.Session().ActorID

	payload, err := c.Identify(ctx, anonymous)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{Actor: anonymous, Identified: true}, decodeSnapshot(t, payload))
	assert.Empty(t, factory.latest().sent())

	_, err = c.Profile(ctx, `{"age":30}`)
	assert.NoError(t, err)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	c, factory := startedClient(t)

	_, err := c.Profile(ctx, `{"age":30}`)
	assert.ErrorIs(t, err, ErrNotIdentified)

	_, err = c.Identify(ctx, "user-1")
	require.NoError(t, err)

	_, err = c.Profile(ctx, `{"age":30}`)
	require.NoError(t, err)

	sent := factory.latest().sent()
	require.Len(t, sent, 2)
	identify, ok := sent[1].(posthog.Identify)
	require.True(t, ok)
	assert.Equal(t, "user-1", identify.DistinctId)
	assert.Equal(t, json.Number("30"), identify.Properties["age"])
}

func TestClearStartsNewAnonymousSession(t *testing.T) {
	ctx := context.Background()
	c, _ := startedClient(t)

	_, err := c.SetGlobalProperty(ctx, "plan", "pro")
	require.NoError(t, err)
	_, err = c.Identify(ctx, "user-1")
	require.NoError(t, err)

	payload, err := c.Clear(ctx)
	require.NoError(t, err)

	snap := decodeSnapshot(t, payload)
	assert.NotEqual(t, "user-1", snap.Actor)
	assert.False(t, snap.Identified)
	assert.Empty(t, c.Session().GlobalProperties)

	_, err = c.Identify(ctx, "user-2")
	assert.NoError(t, err)
}

func TestFlushReplacesPostHogClient(t *testing.T) {
	ctx := context.Background()
	c, factory := startedClient(t)
	first := factory.latest()

	_, err := c.Track(ctx, "before", "{}")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = c.Flush(ctx)
		require.NoError(t, err)
	}
	assert.True(t, first.closed)
	assert.Len(t, factory.created, 3)

	_, err = c.Track(ctx, "after", "{}")
	require.NoError(t, err)
	assert.Len(t, first.sent(), 1)
	assert.Len(t, factory.latest().sent(), 1)
}

func TestFailedSaveLeavesSessionUnchanged(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore()}
	c, _ := newTestClient(t, store)
	_, err := c.Init(ctx, "phc_key")
	require.NoError(t, err)

	store.saveErr = errors.New("disk full")
	_, err = c.SetGlobalProperty(ctx, "plan", "pro")
	assert.ErrorContains(t, err, "disk full")
	assert.NotContains(t, c.Session().GlobalProperties, "plan")
}

func TestClose(t *testing.T) {
	c, factory := startedClient(t)

	require.NoError(t, c.Close())
	assert.True(t, factory.latest().closed)

	_, err := c.Track(context.Background(), "purchase", "{}")
	assert.ErrorIs(t, err, ErrSessionNotStarted)
	assert.NoError(t, c.Close())
}

func TestMemoryStoreCopiesSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	s := newAnonymousSession("phc_key")
	require.NoError(t, store.Save(ctx, s))
	s.GlobalProperties["plan"] = "mutated"

	loaded, err := store.Load(ctx, "phc_key")
	require.NoError(t, err)
	assert.NotContains(t, loaded.GlobalProperties, "plan")
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("CALQ_POSTHOG_HOST", "https://eu.posthog.com")
	t.Setenv("CALQ_BATCH_SIZE", "10")
	t.Setenv("CALQ_FLUSH_INTERVAL_MS", "250")
	t.Setenv("CALQ_VERBOSE", "true")

	cfg := LoadConfig()
	assert.Equal(t, "https://eu.posthog.com", cfg.PostHogHost)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, int64(250), cfg.FlushInterval.Milliseconds())
	assert.True(t, cfg.Verbose)

	t.Setenv("CALQ_BATCH_SIZE", "lots")
	assert.Equal(t, DefaultConfig().BatchSize, LoadConfig().BatchSize)
}
