// Package engine is the real-time reconciliation core behind the
// conversation list. It merges two independently-arriving event streams —
// conversation membership from discovery and per-conversation last messages
// from watchers — into a single totally-ordered view, published to
// subscribers as immutable snapshots.
package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jmvargas/charla/internal/logging"
	"github.com/jmvargas/charla/internal/models"
	"github.com/jmvargas/charla/internal/store"
)

// Engine lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotStarted     = errors.New("engine not started")
)

// Options contains engine configuration.
type Options struct {
	// PlaceholderName is shown when a participant's display name cannot be
	// resolved from any source.
	PlaceholderName string

	// EventBuffer is the capacity of the internal event channel.
	EventBuffer int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		PlaceholderName: "Unknown",
		EventBuffer:     64,
	}
}

// Engine folds discovery and watcher events into the conversation list for
// one user. The entry map is owned exclusively by the merge goroutine; all
// other goroutines interact with it through events or published snapshots.
type Engine struct {
	store store.Store
	self  string
	opts  Options
	log   zerolog.Logger

	events  chan event
	settled chan struct{}

	mu      sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
	last    Snapshot
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an Engine for the user identified by self (an email).
func New(st store.Store, self string, opts Options) *Engine {
	if opts.PlaceholderName == "" {
		opts.PlaceholderName = DefaultOptions().PlaceholderName
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultOptions().EventBuffer
	}
	return &Engine{
		store:  st,
		self:   self,
		opts:   opts,
		log:    logging.Component("engine").With().Str("user", self).Logger(),
		events:  make(chan event, opts.EventBuffer),
		settled: make(chan struct{}),
		subs:    make(map[int]chan Snapshot),
		done:    make(chan struct{}),
	}
}

// Start launches discovery and the merge loop. It returns immediately;
// snapshots begin flowing once discovery delivers its first membership set.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	go e.runDiscovery(runCtx)
	go e.mergeLoop(runCtx)

	e.log.Info().Msg("engine started")
	return nil
}

// Stop tears the engine down: discovery, every last-message watcher and all
// subscriber channels are released. Idempotent after the first call.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	<-e.done

	e.mu.Lock()
	e.stopped = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	e.mu.Unlock()

	e.log.Info().Msg("engine stopped")
	return nil
}

// Subscribe registers a snapshot consumer. Delivery is latest-wins: a slow
// consumer skips intermediate snapshots but always ends on the newest one,
// and never blocks the merge loop. The current snapshot, if any, is
// delivered immediately. The returned cancel is idempotent. After Stop the
// channel comes back already closed (after the final snapshot, if any).
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	e.mu.Lock()
	if e.stopped {
		if e.last.Seq > 0 {
			ch <- e.last
		}
		close(ch)
		e.mu.Unlock()
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	if e.last.Seq > 0 {
		ch <- e.last
	}
	e.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			if _, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(ch)
			}
			e.mu.Unlock()
		})
	}
	return ch, cancel
}

// Current returns the most recently published snapshot.
func (e *Engine) Current() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Settled returns a channel that is closed once the first membership set
// has arrived and every conversation in it has received its first
// last-message report. Until then snapshots order by creation time only;
// one-shot consumers should wait for this before reading Current.
func (e *Engine) Settled() <-chan struct{} {
	return e.settled
}

// entryState pairs an entry with the conversation metadata needed to
// recompute its sort key.
type entryState struct {
	conv  models.Conversation
	entry Entry
}

// mergeLoop is the single serialization point: every event, regardless of
// source, is applied here one at a time, and a fresh snapshot is published
// after each apply.
func (e *Engine) mergeLoop(ctx context.Context) {
	defer close(e.done)

	entries := make(map[string]*entryState)
	registry := newWatcherRegistry(e)
	defer registry.releaseAll()

	var seq uint64
	discovered := false
	isSettled := false

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.events:
			switch ev := ev.(type) {
			case conversationSetEvent:
				e.applyConversationSet(ctx, entries, registry, ev)
				discovered = true
			case lastMessageEvent:
				registry.reported(ev.conversationID)
				e.applyLastMessage(entries, ev)
			}
			seq++
			e.publish(buildSnapshot(seq, entries))
			if !isSettled && discovered && len(registry.pending) == 0 {
				isSettled = true
				close(e.settled)
			}
		}
	}
}

// applyConversationSet reconciles the entry map and watcher registry
// against a complete membership set. New ids are inserted with no preview
// and sortKey = createdAt; vanished ids lose their entry and their watcher;
// surviving ids only get display-name patches, their sort key is untouched.
func (e *Engine) applyConversationSet(ctx context.Context, entries map[string]*entryState, registry *watcherRegistry, ev conversationSetEvent) {
	seen := make(map[string]struct{}, len(ev.set))
	for _, dc := range ev.set {
		id := dc.conv.ID
		seen[id] = struct{}{}

		if state, ok := entries[id]; ok {
			state.entry.DisplayName = dc.name
			continue
		}

		entries[id] = &entryState{
			conv: dc.conv,
			entry: Entry{
				ConversationID: id,
				DisplayName:    dc.name,
				SortKey:        dc.conv.CreatedAt,
			},
		}
		registry.acquire(ctx, id)
	}

	for id := range entries {
		if _, ok := seen[id]; ok {
			continue
		}
		delete(entries, id)
		registry.release(id)
	}
}

// applyLastMessage replaces a conversation's preview. nil means the
// conversation is (still) empty, so ordering falls back to creation time.
// Events for ids discovery no longer reports are stale and dropped.
func (e *Engine) applyLastMessage(entries map[string]*entryState, ev lastMessageEvent) {
	state, ok := entries[ev.conversationID]
	if !ok {
		return
	}

	if ev.msg == nil {
		state.entry.LastMessage = nil
		state.entry.SortKey = state.conv.CreatedAt
		return
	}

	state.entry.LastMessage = &Preview{
		Text:      ev.msg.Text,
		Sender:    ev.msg.Sender,
		Timestamp: ev.msg.Timestamp,
	}
	// Messages postdate creation in practice; max() guards against a
	// backend with second-granularity timestamps rounding below createdAt.
	state.entry.SortKey = ev.msg.Timestamp
	if state.conv.CreatedAt.After(state.entry.SortKey) {
		state.entry.SortKey = state.conv.CreatedAt
	}
}

func buildSnapshot(seq uint64, entries map[string]*entryState) Snapshot {
	out := make([]Entry, 0, len(entries))
	for _, state := range entries {
		entry := state.entry
		if entry.LastMessage != nil {
			preview := *entry.LastMessage
			entry.LastMessage = &preview
		}
		out = append(out, entry)
	}
	sortEntries(out)
	return Snapshot{Seq: seq, Entries: out}
}

// publish stores the snapshot and offers it to every subscriber,
// displacing an unconsumed older snapshot rather than waiting.
func (e *Engine) publish(snap Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.last = snap
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
