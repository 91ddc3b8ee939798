package engine

import (
	"context"

	"github.com/jmvargas/charla/internal/store"
)

// watcherRegistry keeps exactly one live last-message subscription per
// conversation id. Acquire on an id already held bumps a reference count
// and reuses the running subscription; release tears the subscription down
// only when the count reaches zero. Discovery's membership set is the sole
// authority for which ids are held: the merge loop reconciles the registry
// on every conversationSetEvent, so a conversation leaving the set always
// releases its watcher.
type watcherRegistry struct {
	engine   *Engine
	watchers map[string]*lastWatcher

	// pending holds ids whose watcher has not yet delivered its first
	// report; while non-empty the list is still catching up on previews.
	pending map[string]struct{}
}

type lastWatcher struct {
	refs   int
	cancel store.CancelFunc
}

func newWatcherRegistry(e *Engine) *watcherRegistry {
	return &watcherRegistry{
		engine:   e,
		watchers: make(map[string]*lastWatcher),
		pending:  make(map[string]struct{}),
	}
}

// acquire ensures a last-message watcher is running for conversationID.
// Only called from the merge loop.
func (r *watcherRegistry) acquire(ctx context.Context, conversationID string) {
	if w, ok := r.watchers[conversationID]; ok {
		w.refs++
		return
	}

	updates, cancel := r.engine.store.WatchLastMessage(ctx, conversationID)
	r.watchers[conversationID] = &lastWatcher{refs: 1, cancel: cancel}
	r.pending[conversationID] = struct{}{}
	r.engine.log.Debug().Str("conversation_id", conversationID).Msg("last-message watcher started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-updates:
				if !ok {
					return
				}
				select {
				case r.engine.events <- lastMessageEvent{conversationID: conversationID, msg: msg}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// release drops one reference; at zero the subscription is cancelled.
// Idempotent for ids that are not held. Only called from the merge loop.
func (r *watcherRegistry) release(conversationID string) {
	w, ok := r.watchers[conversationID]
	if !ok {
		return
	}
	w.refs--
	if w.refs > 0 {
		return
	}
	delete(r.watchers, conversationID)
	delete(r.pending, conversationID)
	w.cancel()
	r.engine.log.Debug().Str("conversation_id", conversationID).Msg("last-message watcher released")
}

// reported marks a conversation's watcher as having delivered at least one
// update. Only called from the merge loop.
func (r *watcherRegistry) reported(conversationID string) {
	delete(r.pending, conversationID)
}

// releaseAll cancels every held subscription; used on shutdown.
func (r *watcherRegistry) releaseAll() {
	for id, w := range r.watchers {
		delete(r.watchers, id)
		w.cancel()
	}
}
