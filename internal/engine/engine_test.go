package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmvargas/charla/internal/models"
	"github.com/jmvargas/charla/internal/store"
	"github.com/jmvargas/charla/internal/store/memstore"
)

const waitTimeout = 2 * time.Second

// fakeStore hands the test direct control of both watch streams and
// records watcher cancellations.
type fakeStore struct {
	mu        sync.Mutex
	convCh    chan []models.Conversation
	lastChs   map[string]chan *models.Message
	cancelled map[string]int
	profiles  map[string]models.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convCh:    make(chan []models.Conversation, 8),
		lastChs:   make(map[string]chan *models.Message),
		cancelled: make(map[string]int),
		profiles:  make(map[string]models.User),
	}
}

func (f *fakeStore) GetProfile(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.profiles[email]; ok {
		copied := u
		return &copied, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) PutProfile(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[user.Email] = *user
	return nil
}

func (f *fakeStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateConversation(ctx context.Context, conv *models.Conversation) (bool, error) {
	return false, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return nil, nil
}

func (f *fakeStore) WatchConversations(ctx context.Context, email string) (<-chan []models.Conversation, store.CancelFunc) {
	return f.convCh, func() {}
}

func (f *fakeStore) WatchLastMessage(ctx context.Context, conversationID string) (<-chan *models.Message, store.CancelFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan *models.Message, 8)
	f.lastChs[conversationID] = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled[conversationID]++
	}
}

func (f *fakeStore) WatchMessages(ctx context.Context, conversationID string) (<-chan []models.Message, store.CancelFunc) {
	return make(chan []models.Message), func() {}
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) pushSet(convs ...models.Conversation) {
	f.convCh <- convs
}

func (f *fakeStore) pushLast(t *testing.T, conversationID string, msg *models.Message) {
	t.Helper()
	f.mu.Lock()
	ch, ok := f.lastChs[conversationID]
	f.mu.Unlock()
	require.True(t, ok, "no last-message watcher for %s", conversationID)
	ch <- msg
}

func (f *fakeStore) cancelCount(conversationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[conversationID]
}

func conv(id string, a, b string, createdAt time.Time) models.Conversation {
	return models.Conversation{
		ID:           id,
		Participants: [2]string{a, b},
		ParticipantNames: map[string]string{
			a: "A",
			b: "B",
		},
		CreatedAt: createdAt,
	}
}

func waitSnapshot(t *testing.T, ch <-chan Snapshot, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case snap, ok := <-ch:
			require.True(t, ok, "snapshot channel closed")
			if cond(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			panic("unreachable")
		}
	}
}

func startEngine(t *testing.T, st store.Store, self string) (*Engine, <-chan Snapshot) {
	t.Helper()
	e := New(st, self, DefaultOptions())
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	ch, cancel := e.Subscribe()
	t.Cleanup(cancel)
	return e, ch
}

func TestEngine_Lifecycle(t *testing.T) {
	e := New(newFakeStore(), "me@x", DefaultOptions())
	require.ErrorIs(t, e.Stop(), ErrNotStarted)
	require.NoError(t, e.Start(context.Background()))
	require.ErrorIs(t, e.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop())
}

func TestEngine_DiscoveryInsertsWithCreationOrder(t *testing.T) {
	st := newFakeStore()
	_, snaps := startEngine(t, st, "me@x")

	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	older := conv("chat_ana@x_me@x", "ana@x", "me@x", base)
	newer := conv("chat_bruno@x_me@x", "bruno@x", "me@x", base.Add(time.Hour))
	st.pushSet(older, newer)

	snap := waitSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Entries) == 2 })

	// Empty conversations order by creation time, newest first.
	require.Equal(t, newer.ID, snap.Entries[0].ConversationID)
	require.Equal(t, older.ID, snap.Entries[1].ConversationID)
	for _, entry := range snap.Entries {
		require.Nil(t, entry.LastMessage)
	}
	require.Equal(t, older.CreatedAt, snap.Entries[1].SortKey)
}

func TestEngine_LastMessageReorders(t *testing.T) {
	st := newFakeStore()
	_, snaps := startEngine(t, st, "me@x")

	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	a := conv("chat_ana@x_me@x", "ana@x", "me@x", base)
	b := conv("chat_bruno@x_me@x", "bruno@x", "me@x", base.Add(time.Hour))
	st.pushSet(a, b)
	waitSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Entries) == 2 })

	// A message in the older conversation moves it to the top.
	st.pushLast(t, a.ID, &models.Message{
		ID:             "m1",
		ConversationID: a.ID,
		Sender:         "ana@x",
		Text:           "hola",
		Timestamp:      base.Add(2 * time.Hour),
	})

	snap := waitSnapshot(t, snaps, func(s Snapshot) bool {
		return len(s.Entries) == 2 && s.Entries[0].LastMessage != nil
	})
	require.Equal(t, a.ID, snap.Entries[0].ConversationID)
	require.Equal(t, "hola", snap.Entries[0].LastMessage.Text)
	require.Equal(t, base.Add(2*time.Hour), snap.Entries[0].SortKey)
}

func TestEngine_NilLastMessageFallsBackToCreation(t *testing.T) {
	st := newFakeStore()
	_, snaps := startEngine(t, st, "me@x")

	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	a := conv("chat_ana@x_me@x", "ana@x", "me@x", base)
	st.pushSet(a)
	waitSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Entries) == 1 })

	st.pushLast(t, a.ID, &models.Message{ID: "m1", ConversationID: a.ID, Sender: "ana@x", Text: "hola", Timestamp: base.Add(time.Hour)})
	waitSnapshot(t, snaps, func(s Snapshot) bool {
		return len(s.Entries) == 1 && s.Entries[0].LastMessage != nil
	})

	st.pushLast(t, a.ID, nil)
	snap := waitSnapshot(t, snaps, func(s Snapshot) bool {
		return len(s.Entries) == 1 && s.Entries[0].LastMessage == nil
	})
	require.Equal(t, base, snap.Entries[0].SortKey)
}

func TestEngine_RemovalReleasesWatcher(t *testing.T) {
	st := newFakeStore()
	_, snaps := startEngine(t, st, "me@x")

	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	a := conv("chat_ana@x_me@x", "ana@x", "me@x", base)
	st.pushSet(a)
	waitSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Entries) == 1 })

	st.pushSet()
	waitSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Entries) == 0 })

	require.Eventually(t, func() bool {
		return st.cancelCount(a.ID) == 1
	}, waitTimeout, 10*time.Millisecond, "watcher must be cancelled when discovery drops the conversation")
}

func TestEngine_StopReleasesAllWatchers(t *testing.T) {
	st := newFakeStore()
	e, snaps := startEngine(t, st, "me@x")

	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	a := conv("chat_ana@x_me@x", "ana@x", "me@x", base)
	b := conv("chat_bruno@x_me@x", "bruno@x", "me@x", base)
	st.pushSet(a, b)
	waitSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Entries) == 2 })

	require.NoError(t, e.Stop())
	require.Equal(t, 1, st.cancelCount(a.ID))
	require.Equal(t, 1, st.cancelCount(b.ID))
}

func TestEngine_StaleLastMessageDropped(t *testing.T) {
	st := newFakeStore()
	_, snaps := startEngine(t, st, "me@x")

	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	a := conv("chat_ana@x_me@x", "ana@x", "me@x", base)
	st.pushSet(a)
	waitSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Entries) == 1 })

	// Capture the channel before the conversation vanishes; a late event on
	// it must not resurrect the entry.
	st.mu.Lock()
	late := st.lastChs[a.ID]
	st.mu.Unlock()

	st.pushSet()
	waitSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Entries) == 0 })

	late <- &models.Message{ID: "m9", ConversationID: a.ID, Sender: "ana@x", Text: "tarde", Timestamp: base.Add(time.Hour)}

	snap := waitSnapshot(t, snaps, func(s Snapshot) bool { return s.Seq >= 3 })
	require.Empty(t, snap.Entries)
}

func TestEngine_NameResolution(t *testing.T) {
	st := memstore.New()
	defer st.Close()
	ctx := context.Background()

	require.NoError(t, st.PutProfile(ctx, &models.User{Email: "me@x.com", DisplayName: "Me"}))
	require.NoError(t, st.PutProfile(ctx, &models.User{Email: "ana@x.com", DisplayName: "Ana"}))

	c := models.Conversation{
		ID:           "chat_ana@x.com_me@x.com",
		Participants: [2]string{"ana@x.com", "me@x.com"},
		ParticipantNames: map[string]string{
			"ana@x.com": "Ana (snapshot)",
			"me@x.com":  "Me",
		},
	}
	_, err := st.CreateConversation(ctx, &c)
	require.NoError(t, err)

	// Unregistered participant: the name snapshot from the conversation
	// document is the fallback.
	d := models.Conversation{
		ID:           "chat_ghost@x.com_me@x.com",
		Participants: [2]string{"ghost@x.com", "me@x.com"},
		ParticipantNames: map[string]string{
			"ghost@x.com": "Ghost",
			"me@x.com":    "Me",
		},
	}
	_, err = st.CreateConversation(ctx, &d)
	require.NoError(t, err)

	// Neither profile nor snapshot: placeholder.
	e := models.Conversation{
		ID:               "chat_me@x.com_nobody@x.com",
		Participants:     [2]string{"me@x.com", "nobody@x.com"},
		ParticipantNames: map[string]string{},
	}
	_, err = st.CreateConversation(ctx, &e)
	require.NoError(t, err)

	_, snaps := startEngine(t, st, "me@x.com")
	snap := waitSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Entries) == 3 })

	names := make(map[string]string)
	for _, entry := range snap.Entries {
		names[entry.ConversationID] = entry.DisplayName
	}
	require.Equal(t, "Ana", names[c.ID], "registered profile wins over the snapshot")
	require.Equal(t, "Ghost", names[d.ID], "name snapshot used when no profile exists")
	require.Equal(t, "Unknown", names[e.ID], "placeholder when nothing resolves")
}

func TestEngine_EndToEndWithMemstore(t *testing.T) {
	st := memstore.New()
	defer st.Close()
	ctx := context.Background()

	require.NoError(t, st.PutProfile(ctx, &models.User{Email: "me@x.com", DisplayName: "Me"}))
	require.NoError(t, st.PutProfile(ctx, &models.User{Email: "ana@x.com", DisplayName: "Ana"}))
	require.NoError(t, st.PutProfile(ctx, &models.User{Email: "bruno@x.com", DisplayName: "Bruno"}))

	mk := func(other string) models.Conversation {
		a, b := other, "me@x.com"
		if b < a {
			a, b = b, a
		}
		c := models.Conversation{
			ID:               "chat_" + a + "_" + b,
			Participants:     [2]string{a, b},
			ParticipantNames: map[string]string{},
		}
		_, err := st.CreateConversation(ctx, &c)
		require.NoError(t, err)
		return c
	}
	ana := mk("ana@x.com")
	bruno := mk("bruno@x.com")

	_, snaps := startEngine(t, st, "me@x.com")
	waitSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Entries) == 2 })

	_, err := st.AppendMessage(ctx, &models.Message{ConversationID: ana.ID, Sender: "ana@x.com", Text: "hola"})
	require.NoError(t, err)
	snap := waitSnapshot(t, snaps, func(s Snapshot) bool {
		return len(s.Entries) == 2 && s.Entries[0].LastMessage != nil
	})
	require.Equal(t, ana.ID, snap.Entries[0].ConversationID)

	_, err = st.AppendMessage(ctx, &models.Message{ConversationID: bruno.ID, Sender: "me@x.com", Text: "qué tal"})
	require.NoError(t, err)
	snap = waitSnapshot(t, snaps, func(s Snapshot) bool {
		return len(s.Entries) == 2 &&
			s.Entries[0].ConversationID == bruno.ID &&
			s.Entries[0].LastMessage != nil
	})
	require.Equal(t, "you", snap.Entries[0].PreviewLabel("me@x.com"))
	require.Equal(t, "Ana", snap.Entries[1].PreviewLabel("me@x.com"))
}

func TestEngine_SettledIncludesPreviews(t *testing.T) {
	st := memstore.New()
	defer st.Close()
	ctx := context.Background()

	// Conversation and message exist before the engine starts; a settled
	// snapshot must already carry the preview.
	c := models.Conversation{
		ID:           "chat_ana@x.com_me@x.com",
		Participants: [2]string{"ana@x.com", "me@x.com"},
		ParticipantNames: map[string]string{
			"ana@x.com": "Ana",
			"me@x.com":  "Me",
		},
	}
	_, err := st.CreateConversation(ctx, &c)
	require.NoError(t, err)
	sent, err := st.AppendMessage(ctx, &models.Message{ConversationID: c.ID, Sender: "ana@x.com", Text: "hola"})
	require.NoError(t, err)

	e := New(st, "me@x.com", DefaultOptions())
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })

	select {
	case <-e.Settled():
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for engine to settle")
	}

	snap := e.Current()
	require.Len(t, snap.Entries, 1)
	require.NotNil(t, snap.Entries[0].LastMessage, "settled snapshot must include the last message")
	require.Equal(t, "hola", snap.Entries[0].LastMessage.Text)
	require.Equal(t, sent.Timestamp, snap.Entries[0].SortKey)
}

func TestEngine_SettledWithNoConversations(t *testing.T) {
	st := memstore.New()
	defer st.Close()

	e := New(st, "me@x.com", DefaultOptions())
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })

	select {
	case <-e.Settled():
	case <-time.After(waitTimeout):
		t.Fatal("an empty membership set must settle immediately")
	}
	require.Empty(t, e.Current().Entries)
}

func TestEngine_SubscribeAfterStop(t *testing.T) {
	st := newFakeStore()
	e, snaps := startEngine(t, st, "me@x")

	st.pushSet(conv("chat_ana@x_me@x", "ana@x", "me@x", time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)))
	waitSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Entries) == 1 })
	require.NoError(t, e.Stop())

	// A late subscriber gets the final snapshot and a closed channel
	// instead of blocking forever.
	ch, cancel := e.Subscribe()
	defer cancel()

	snap := waitSnapshot(t, ch, func(s Snapshot) bool { return true })
	require.Len(t, snap.Entries, 1)

	select {
	case _, ok := <-ch:
		require.False(t, ok, "channel must be closed after the final snapshot")
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestEngine_SubscribeDeliversCurrentSnapshot(t *testing.T) {
	st := newFakeStore()
	e, snaps := startEngine(t, st, "me@x")

	st.pushSet(conv("chat_ana@x_me@x", "ana@x", "me@x", time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)))
	waitSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Entries) == 1 })

	// A late subscriber gets the current state immediately.
	late, cancel := e.Subscribe()
	defer cancel()
	snap := waitSnapshot(t, late, func(s Snapshot) bool { return true })
	require.Len(t, snap.Entries, 1)
}
