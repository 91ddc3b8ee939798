// Package memstore is the in-memory store backend. It is the default
// driver for single-process use and the fake injected by tests; every
// behavior the Store contract promises (atomic conditional create, server
// timestamps, snapshot watch streams) is implemented here for real.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmvargas/charla/internal/models"
	"github.com/jmvargas/charla/internal/store"
)

const watchBuffer = 1

// Option configures a Store.
type Option func(*Store)

// WithNow overrides the server clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store implements store.Store entirely in memory.
type Store struct {
	mu            sync.RWMutex
	profiles      map[string]models.User
	conversations map[string]models.Conversation
	messages      map[string][]models.Message
	watchers      map[int]*watcher
	nextWatcher   int
	closed        bool
	now           func() time.Time
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		profiles:      make(map[string]models.User),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
		watchers:      make(map[int]*watcher),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) GetProfile(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	user, ok := s.profiles[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := user
	return &copied, nil
}

func (s *Store) PutProfile(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	stored := *user
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.profiles[stored.Email] = stored
	*user = stored
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	conv, ok := s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *models.Conversation) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, store.ErrClosed
	}
	if _, exists := s.conversations[conv.ID]; exists {
		s.mu.Unlock()
		return false, nil
	}
	stored := *cloneConversation(*conv)
	stored.CreatedAt = s.now()
	s.conversations[stored.ID] = stored
	conv.CreatedAt = stored.CreatedAt
	s.mu.Unlock()

	s.kickAll()
	return true, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrClosed
	}
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}

	stored := *msg
	stored.ID = uuid.New().String()
	stored.Timestamp = s.now()
	// Server timestamps are monotonic per conversation even if the clock
	// stalls between commits.
	history := s.messages[msg.ConversationID]
	if n := len(history); n > 0 && !stored.Timestamp.After(history[n-1].Timestamp) {
		stored.Timestamp = history[n-1].Timestamp.Add(time.Millisecond)
	}
	s.messages[msg.ConversationID] = append(history, stored)
	s.mu.Unlock()

	s.kickAll()
	copied := stored
	return &copied, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	history := s.messages[conversationID]
	out := make([]models.Message, len(history))
	copy(out, history)
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	watchers := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.watchers = make(map[int]*watcher)
	s.mu.Unlock()

	for _, w := range watchers {
		w.cancel()
	}
	return nil
}

func (s *Store) conversationsFor(email string) []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Conversation
	for _, conv := range s.conversations {
		if conv.HasParticipant(email) {
			out = append(out, *cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) lastMessage(conversationID string) *models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.messages[conversationID]
	if len(history) == 0 {
		return nil
	}
	copied := history[len(history)-1]
	return &copied
}

func cloneConversation(conv models.Conversation) *models.Conversation {
	copied := conv
	copied.ParticipantNames = make(map[string]string, len(conv.ParticipantNames))
	for k, v := range conv.ParticipantNames {
		copied.ParticipantNames[k] = v
	}
	return &copied
}
