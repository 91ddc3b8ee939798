// Package identity owns the deterministic conversation-identity protocol:
// deriving the canonical id for a participant pair and the idempotent
// create-if-absent flow that guarantees a single conversation per pair.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jmvargas/charla/internal/logging"
	"github.com/jmvargas/charla/internal/models"
	"github.com/jmvargas/charla/internal/store"
)

const (
	idPrefix    = "chat_"
	idSeparator = "_"
)

// ErrUnknownUser is returned when the other participant has no registered
// profile. Adding an unregistered contact is a caller mistake, not a race.
var ErrUnknownUser = errors.New("no registered user with that email")

// CanonicalID derives the conversation id for a pair of participant emails.
// The pair is sorted lexicographically before joining, so the derivation is
// commutative: CanonicalID(a, b) == CanonicalID(b, a).
func CanonicalID(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if b < a {
		a, b = b, a
	}
	return idPrefix + a + idSeparator + b
}

// SortPair returns the two emails in canonical (ascending) order.
func SortPair(a, b string) (string, string) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if b < a {
		return b, a
	}
	return a, b
}

// Resolver performs create-if-absent conversation resolution against a
// store. It never mutates an existing conversation.
type Resolver struct {
	store store.Store
	log   zerolog.Logger
}

// NewResolver creates a Resolver backed by st.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{
		store: st,
		log:   logging.Component("identity"),
	}
}

// CreateIfAbsent resolves the conversation between self and other, creating
// it when missing. Finding the conversation already present is a normal
// outcome (the other party may have added the contact first, or a concurrent
// call won the create); the existing document is returned unchanged either
// way. created reports whether this call performed the write.
func (r *Resolver) CreateIfAbsent(ctx context.Context, self, other string) (conv *models.Conversation, created bool, err error) {
	if err := models.ValidatePair(self, other); err != nil {
		return nil, false, err
	}

	selfProfile, err := r.store.GetProfile(ctx, self)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: %s", ErrUnknownUser, self)
		}
		return nil, false, fmt.Errorf("resolving own profile: %w", err)
	}
	otherProfile, err := r.store.GetProfile(ctx, other)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: %s", ErrUnknownUser, other)
		}
		return nil, false, fmt.Errorf("resolving contact profile: %w", err)
	}

	first, second := SortPair(self, other)
	candidate := &models.Conversation{
		ID:           CanonicalID(self, other),
		Participants: [2]string{first, second},
		ParticipantNames: map[string]string{
			selfProfile.Email:  selfProfile.DisplayName,
			otherProfile.Email: otherProfile.DisplayName,
		},
	}

	created, err = r.store.CreateConversation(ctx, candidate)
	if err != nil {
		return nil, false, fmt.Errorf("creating conversation %s: %w", candidate.ID, err)
	}
	if created {
		r.log.Info().Str("conversation_id", candidate.ID).Msg("conversation created")
		return candidate, true, nil
	}

	// Lost the create (or the conversation predates this call): the stored
	// document is authoritative.
	existing, err := r.store.GetConversation(ctx, candidate.ID)
	if err != nil {
		return nil, false, fmt.Errorf("reading existing conversation %s: %w", candidate.ID, err)
	}
	r.log.Debug().Str("conversation_id", existing.ID).Msg("conversation already existed")
	return existing, false, nil
}
