package pgstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jmvargas/charla/internal/models"
	"github.com/jmvargas/charla/internal/store"
)

// fallbackInterval bounds how stale a watch stream can get if a
// notification is lost (listener reconnect, missed NOTIFY).
const fallbackInterval = 5 * time.Second

type watcherSet struct {
	mu      sync.RWMutex
	nextID  int
	kickers map[int]chan struct{}
}

func newWatcherSet() *watcherSet {
	return &watcherSet{kickers: make(map[int]chan struct{})}
}

func (ws *watcherSet) add() (int, chan struct{}) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	id := ws.nextID
	ws.nextID++
	kick := make(chan struct{}, 1)
	ws.kickers[id] = kick
	return id, kick
}

func (ws *watcherSet) remove(id int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.kickers, id)
}

func (ws *watcherSet) kickAll() {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	for _, kick := range ws.kickers {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
}

// listen holds a dedicated connection on LISTEN and fans notifications
// out to all active watchers. It reconnects with a short delay if the
// connection drops.
func (s *Store) listen() {
	for {
		if s.ctx.Err() != nil {
			return
		}
		if err := s.listenOnce(); err != nil && s.ctx.Err() == nil {
			s.log.Warn().Err(err).Msg("notification listener disconnected")
			// Watchers may have missed events while disconnected.
			s.watchers.kickAll()
			select {
			case <-time.After(time.Second):
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *Store) listenOnce() error {
	conn, err := s.pool.Acquire(s.ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(s.ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	for {
		if _, err := conn.Conn().WaitForNotification(s.ctx); err != nil {
			return err
		}
		s.watchers.kickAll()
	}
}

func (s *Store) notify(ctx context.Context) {
	if _, err := s.pool.Exec(ctx, "SELECT pg_notify($1, '')", notifyChannel); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish change notification")
	}
}

// runWatch emits the result of fetch whenever its serialized form
// changes, starting with an immediate emission of the current state.
// Re-checks are triggered by notifications, with a periodic fallback.
func runWatch[T any](s *Store, ctx context.Context, fetch func(context.Context) (T, error)) (<-chan T, store.CancelFunc) {
	out := make(chan T, 1)
	watchCtx, cancelCtx := context.WithCancel(ctx)
	id, kick := s.watchers.add()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelCtx()
			s.watchers.remove(id)
		})
	}

	go func() {
		defer close(out)
		defer cancel()

		var lastFingerprint string
		first := true
		timer := time.NewTimer(fallbackInterval)
		defer timer.Stop()

		for {
			value, err := fetch(watchCtx)
			if err != nil {
				if watchCtx.Err() != nil || s.ctx.Err() != nil {
					return
				}
				s.log.Warn().Err(err).Msg("watch query failed")
			} else {
				fingerprint := fingerprintOf(value)
				if first || fingerprint != lastFingerprint {
					select {
					case out <- value:
					case <-watchCtx.Done():
						return
					case <-s.ctx.Done():
						return
					}
					lastFingerprint = fingerprint
					first = false
				}
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(fallbackInterval)

			select {
			case <-kick:
			case <-timer.C:
			case <-watchCtx.Done():
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()

	return out, cancel
}

func fingerprintOf(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func (s *Store) WatchConversations(ctx context.Context, email string) (<-chan []models.Conversation, store.CancelFunc) {
	return runWatch(s, ctx, func(ctx context.Context) ([]models.Conversation, error) {
		return s.listConversations(ctx, email)
	})
}

func (s *Store) WatchLastMessage(ctx context.Context, conversationID string) (<-chan *models.Message, store.CancelFunc) {
	return runWatch(s, ctx, func(ctx context.Context) (*models.Message, error) {
		return s.lastMessage(ctx, conversationID)
	})
}

func (s *Store) WatchMessages(ctx context.Context, conversationID string) (<-chan []models.Message, store.CancelFunc) {
	return runWatch(s, ctx, func(ctx context.Context) ([]models.Message, error) {
		return s.ListMessages(ctx, conversationID)
	})
}
