// Package sqlitestore is the SQLite store backend. Reads and writes go
// through database/sql with busy-retry handling; the watch streams are
// driven by adaptive polling, since SQLite has no change notification
// across connections.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/jmvargas/charla/internal/logging"
	"github.com/jmvargas/charla/internal/models"
	"github.com/jmvargas/charla/internal/store"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultPollMax      = 2 * time.Second
	watchBuffer         = 1
)

// Options configures a Store.
type Options struct {
	// PollInterval is the minimum change-poll cadence for watch streams.
	PollInterval time.Duration

	// PollMax caps the poll backoff while a subscription is idle.
	PollMax time.Duration
}

// Store implements store.Store on a SQLite database file.
type Store struct {
	db     *sql.DB
	opts   Options
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// Open opens (creating if needed) the database at path.
func Open(path string, opts Options) (*Store, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollMax < opts.PollInterval {
		opts.PollMax = defaultPollMax
	}
	if opts.PollMax < opts.PollInterval {
		opts.PollMax = opts.PollInterval
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to chat database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:     db,
		opts:   opts,
		log:    logging.Component("sqlitestore"),
		ctx:    ctx,
		cancel: cancel,
	}
	if err := s.ensureSchema(context.Background()); err != nil {
		cancel()
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			email TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			participant_a TEXT NOT NULL,
			participant_b TEXT NOT NULL,
			names_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender TEXT NOT NULL,
			body TEXT NOT NULL,
			ts TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS conversations_participant_a_idx ON conversations(participant_a)`,
		`CREATE INDEX IF NOT EXISTS conversations_participant_b_idx ON conversations(participant_b)`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_ts_idx ON messages(conversation_id, ts)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize chat schema: %w", err)
		}
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT email, id, name, created_at FROM profiles WHERE email = ?
	`, email)

	var user models.User
	var createdAt string
	if err := row.Scan(&user.Email, &user.ID, &user.DisplayName, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = ts
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
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO profiles (email, id, name, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(email) DO UPDATE SET name = excluded.name
		`, user.Email, user.ID, user.DisplayName, formatTime(user.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert profile: %w", err)
		}
		return nil
	})
}

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, participant_a, participant_b, names_json, created_at
		FROM conversations WHERE id = ?
	`, id)
	return scanConversation(row.Scan)
}

func (s *Store) CreateConversation(ctx context.Context, conv *models.Conversation) (bool, error) {
	namesJSON, err := json.Marshal(conv.ParticipantNames)
	if err != nil {
		return false, fmt.Errorf("failed to marshal participant names: %w", err)
	}
	createdAt := time.Now().UTC()

	var created bool
	err = s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO conversations (id, participant_a, participant_b, names_json, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, conv.ID, conv.Participants[0], conv.Participants[1], string(namesJSON), formatTime(createdAt))
		if err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read insert result: %w", err)
		}
		created = affected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if created {
		conv.CreatedAt = createdAt
	}
	return created, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	stored := *msg
	stored.ID = uuid.New().String()

	err := s.transactionWithRetry(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(1) FROM conversations WHERE id = ?
		`, msg.ConversationID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check conversation: %w", err)
		}
		if exists == 0 {
			return store.ErrNotFound
		}

		// Commit-time timestamp, kept monotonic per conversation.
		ts := time.Now().UTC()
		var lastTS sql.NullString
		if err := tx.QueryRowContext(ctx, `
			SELECT MAX(ts) FROM messages WHERE conversation_id = ?
		`, msg.ConversationID).Scan(&lastTS); err != nil {
			return fmt.Errorf("failed to read last timestamp: %w", err)
		}
		if lastTS.Valid && lastTS.String != "" {
			last, err := parseTime(lastTS.String)
			if err != nil {
				return err
			}
			if !ts.After(last) {
				ts = last.Add(time.Millisecond)
			}
		}
		stored.Timestamp = ts

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sender, body, ts)
			VALUES (?, ?, ?, ?, ?)
		`, stored.ID, stored.ConversationID, stored.Sender, stored.Text, formatTime(ts)); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender, body, ts
		FROM messages
		WHERE conversation_id = ?
		ORDER BY ts, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		var ts string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Text, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		parsed, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		msg.Timestamp = parsed
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

func (s *Store) listConversations(ctx context.Context, email string) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, participant_a, participant_b, names_json, created_at
		FROM conversations
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY id
	`, email, email)
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
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender, body, ts
		FROM messages
		WHERE conversation_id = ?
		ORDER BY ts DESC, id DESC
		LIMIT 1
	`, conversationID)

	var msg models.Message
	var ts string
	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Text, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan last message: %w", err)
	}
	parsed, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	msg.Timestamp = parsed
	return &msg, nil
}

// Close stops all watch goroutines and closes the database.
func (s *Store) Close() error {
	s.cancel()
	return s.db.Close()
}

func scanConversation(scan func(dest ...any) error) (*models.Conversation, error) {
	var conv models.Conversation
	var namesJSON, createdAt string
	if err := scan(&conv.ID, &conv.Participants[0], &conv.Participants[1], &namesJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	if err := json.Unmarshal([]byte(namesJSON), &conv.ParticipantNames); err != nil {
		return nil, fmt.Errorf("failed to parse participant names: %w", err)
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = ts
	return &conv, nil
}

// timeLayout keeps the fractional seconds zero-padded to full width so
// the TEXT columns sort lexicographically in timestamp order (RFC3339Nano
// trims trailing zeros, which breaks that within a second).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
