package memstore

import (
	"context"
	"sync"

	"github.com/jmvargas/charla/internal/models"
	"github.com/jmvargas/charla/internal/store"
)

// watcher drives one subscription. Mutations kick it (level-triggered);
// its goroutine recomputes the snapshot at send time, so a burst of writes
// collapses into a single up-to-date emission.
type watcher struct {
	kick   chan struct{}
	done   chan struct{}
	once   sync.Once
	cancel store.CancelFunc
}

func (s *Store) newWatcher(ctx context.Context, run func(w *watcher)) *watcher {
	w := &watcher{
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	w.kick <- struct{}{} // initial emission

	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	closed := s.closed
	if !closed {
		s.watchers[id] = w
	}
	s.mu.Unlock()

	w.cancel = func() {
		w.once.Do(func() {
			close(w.done)
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
	if closed {
		w.cancel()
	}

	go run(w)
	return w
}

func (w *watcher) wait(ctx context.Context) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case <-ctx.Done():
		return false
	case <-w.done:
		return false
	case <-w.kick:
		return true
	}
}

func (s *Store) kickAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.watchers {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

func (s *Store) WatchConversations(ctx context.Context, email string) (<-chan []models.Conversation, store.CancelFunc) {
	out := make(chan []models.Conversation, watchBuffer)
	w := s.newWatcher(ctx, func(w *watcher) {
		defer close(out)
		for w.wait(ctx) {
			snapshot := s.conversationsFor(email)
			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			case <-w.done:
				return
			}
		}
	})
	return out, w.cancel
}

func (s *Store) WatchLastMessage(ctx context.Context, conversationID string) (<-chan *models.Message, store.CancelFunc) {
	out := make(chan *models.Message, watchBuffer)
	w := s.newWatcher(ctx, func(w *watcher) {
		defer close(out)
		for w.wait(ctx) {
			snapshot := s.lastMessage(conversationID)
			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			case <-w.done:
				return
			}
		}
	})
	return out, w.cancel
}

func (s *Store) WatchMessages(ctx context.Context, conversationID string) (<-chan []models.Message, store.CancelFunc) {
	out := make(chan []models.Message, watchBuffer)
	w := s.newWatcher(ctx, func(w *watcher) {
		defer close(out)
		for w.wait(ctx) {
			snapshot, err := s.ListMessages(ctx, conversationID)
			if err != nil {
				return
			}
			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			case <-w.done:
				return
			}
		}
	})
	return out, w.cancel
}
