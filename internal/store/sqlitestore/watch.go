package sqlitestore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jmvargas/charla/internal/models"
	"github.com/jmvargas/charla/internal/store"
)

// pollWatch emits the result of fetch whenever its serialized form
// changes, starting with an immediate emission of the current state.
// The poll cadence backs off while the result is stable and snaps back
// to the minimum interval after each change.
func pollWatch[T any](s *Store, ctx context.Context, fetch func(context.Context) (T, error)) (<-chan T, store.CancelFunc) {
	out := make(chan T, watchBuffer)
	watchCtx, cancelCtx := context.WithCancel(ctx)

	var once sync.Once
	cancel := func() {
		once.Do(cancelCtx)
	}

	go func() {
		defer close(out)

		var lastFingerprint string
		first := true
		interval := s.opts.PollInterval

		for {
			value, err := fetch(watchCtx)
			if err != nil {
				if watchCtx.Err() != nil || s.ctx.Err() != nil {
					return
				}
				s.log.Warn().Err(err).Msg("watch poll failed")
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
					interval = s.opts.PollInterval
				} else {
					interval *= 2
					if interval > s.opts.PollMax {
						interval = s.opts.PollMax
					}
				}
			}

			select {
			case <-time.After(interval):
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
	return pollWatch(s, ctx, func(ctx context.Context) ([]models.Conversation, error) {
		return s.listConversations(ctx, email)
	})
}

func (s *Store) WatchLastMessage(ctx context.Context, conversationID string) (<-chan *models.Message, store.CancelFunc) {
	return pollWatch(s, ctx, func(ctx context.Context) (*models.Message, error) {
		return s.lastMessage(ctx, conversationID)
	})
}

func (s *Store) WatchMessages(ctx context.Context, conversationID string) (<-chan []models.Message, store.CancelFunc) {
	return pollWatch(s, ctx, func(ctx context.Context) ([]models.Message, error) {
		return s.ListMessages(ctx, conversationID)
	})
}
