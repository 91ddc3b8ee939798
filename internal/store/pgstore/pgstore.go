// Package pgstore is the PostgreSQL store backend, built on pgx
// connection pooling. Watch streams are driven by LISTEN/NOTIFY with a
// periodic fallback re-check.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jmvargas/charla/internal/logging"
	"github.com/jmvargas/charla/internal/models"
	"github.com/jmvargas/charla/internal/store"
)

const notifyChannel = "charla_events"

// Store implements store.Store on a PostgreSQL database.
type Store struct {
	pool   *pgxpool.Pool
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	watchers *watcherSet
}

// Open connects to the database at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	storeCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		pool:     pool,
		log:      logging.Component("pgstore"),
		ctx:      storeCtx,
		cancel:   cancel,
		watchers: newWatcherSet(),
	}
	if err := s.ensureSchema(ctx); err != nil {
		cancel()
		pool.Close()
		return nil, err
	}
	go s.listen()
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			email TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			participant_a TEXT NOT NULL,
			participant_b TEXT NOT NULL,
			names_json TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender TEXT NOT NULL,
			body TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS conversations_participant_a_idx ON conversations(participant_a)`,
		`CREATE INDEX IF NOT EXISTS conversations_participant_b_idx ON conversations(participant_b)`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_ts_idx ON messages(conversation_id, ts)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize chat schema: %w", err)
		}
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.pool.QueryRow(ctx, `
		SELECT email, id, name, created_at FROM profiles WHERE email = $1
	`, email).Scan(&user.Email, &user.ID, &user.DisplayName, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return &user, nil
}

func (s *Store) PutProfile(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (email, id, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
	`, user.Email, user.ID, user.DisplayName, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	s.notify(ctx)
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, participant_a, participant_b, names_json, created_at
		FROM conversations WHERE id = $1
	`, id)
	return scanConversation(row.Scan)
}

func (s *Store) CreateConversation(ctx context.Context, conv *models.Conversation) (bool, error) {
	namesJSON, err := json.Marshal(conv.ParticipantNames)
	if err != nil {
		return false, fmt.Errorf("failed to marshal participant names: %w", err)
	}
	createdAt := time.Now().UTC()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b, names_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, conv.ID, conv.Participants[0], conv.Participants[1], string(namesJSON), createdAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert conversation: %w", err)
	}
	created := tag.RowsAffected() > 0
	if created {
		conv.CreatedAt = createdAt
		s.notify(ctx)
	}
	return created, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	stored := *msg
	stored.ID = uuid.New().String()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Lock the conversation row so commit-time timestamps stay
		// monotonic per conversation across concurrent writers.
		var exists int
		err := tx.QueryRow(ctx, `
			SELECT 1 FROM conversations WHERE id = $1 FOR UPDATE
		`, msg.ConversationID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock conversation: %w", err)
		}

		ts := time.Now().UTC()
		var lastTS *time.Time
		if err := tx.QueryRow(ctx, `
			SELECT MAX(ts) FROM messages WHERE conversation_id = $1
		`, msg.ConversationID).Scan(&lastTS); err != nil {
			return fmt.Errorf("failed to read last timestamp: %w", err)
		}
		if lastTS != nil && !ts.After(*lastTS) {
			ts = lastTS.Add(time.Millisecond)
		}
		stored.Timestamp = ts

		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, sender, body, ts)
			VALUES ($1, $2, $3, $4, $5)
		`, stored.ID, stored.ConversationID, stored.Sender, stored.Text, ts); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx)
	return &stored, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender, body, ts
		FROM messages
		WHERE conversation_id = $1
		ORDER BY ts, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Text, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

func (s *Store) listConversations(ctx context.Context, email string) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, participant_a, participant_b, names_json, created_at
		FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY id
	`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return conversations, nil
}

func (s *Store) lastMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	var msg models.Message
	err := s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, sender, body, ts
		FROM messages
		WHERE conversation_id = $1
		ORDER BY ts DESC, id DESC
		LIMIT 1
	`, conversationID).Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Text, &msg.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last message: %w", err)
	}
	return &msg, nil
}

// Close stops the notification listener and watch goroutines, then
// releases the pool.
func (s *Store) Close() error {
	s.cancel()
	s.pool.Close()
	return nil
}

func scanConversation(scan func(dest ...any) error) (*models.Conversation, error) {
	var conv models.Conversation
	var namesJSON string
	err := scan(&conv.ID, &conv.Participants[0], &conv.Participants[1], &namesJSON, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	if err := json.Unmarshal([]byte(namesJSON), &conv.ParticipantNames); err != nil {
		return nil, fmt.Errorf("failed to parse participant names: %w", err)
	}
	return &conv, nil
}
