package engine

import (
	"context"
	"errors"

	"github.com/jmvargas/charla/internal/models"
	"github.com/jmvargas/charla/internal/store"
)

// runDiscovery consumes the store's membership stream for the engine's user
// and forwards complete, name-resolved conversation sets to the merge loop.
// Reconnect and retry live below the store boundary; a dropped stream here
// only means the engine stops seeing changes until the store recovers.
func (e *Engine) runDiscovery(ctx context.Context) {
	sets, cancel := e.store.WatchConversations(ctx, e.self)
	defer cancel()

	// Profile lookups are cached for the lifetime of this discovery
	// session; a rename shows up after the next session starts.
	names := make(map[string]string)

	for {
		select {
		case <-ctx.Done():
			return
		case convs, ok := <-sets:
			if !ok {
				return
			}
			set := make([]discoveredConversation, 0, len(convs))
			for _, conv := range convs {
				set = append(set, discoveredConversation{
					conv: conv,
					name: e.resolveName(ctx, names, conv),
				})
			}
			select {
			case e.events <- conversationSetEvent{set: set}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// resolveName returns the display name for the other participant: their
// current profile if it resolves, the name snapshot taken at conversation
// creation if not, and the placeholder when neither is available. A failed
// lookup never fails the list.
func (e *Engine) resolveName(ctx context.Context, cache map[string]string, conv models.Conversation) string {
	other := conv.OtherParticipant(e.self)
	if name, ok := cache[other]; ok {
		return name
	}

	name := ""
	profile, err := e.store.GetProfile(ctx, other)
	switch {
	case err == nil:
		name = profile.DisplayName
	case errors.Is(err, store.ErrNotFound):
		// Unregistered or deleted profile; fall through to the snapshot.
	default:
		e.log.Warn().Err(err).Str("email", other).Msg("profile lookup failed")
	}

	if name == "" {
		name = conv.ParticipantNames[other]
	}
	if name == "" {
		name = e.opts.PlaceholderName
	}
	cache[other] = name
	return name
}
