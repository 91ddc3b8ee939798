// Package store defines the document-store boundary the chat core runs
// against. The backing store owns persistence, server-side timestamps and
// connection liveness; this package only specifies the contract the engine,
// identity resolver and transports consume.
package store

import (
	"context"
	"errors"

	"github.com/jmvargas/charla/internal/models"
)

// Store errors. Backends translate their native errors into these so
// callers can branch without knowing the driver.
var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

// CancelFunc releases a watch subscription. Idempotent; after the first
// call the subscription's channel is closed once in-flight sends drain.
type CancelFunc func()

// Store is the full document-store surface. All watch streams follow the
// snapshot contract: every emission supersedes all prior emissions, and the
// first emission reflects current state, so consumers never need an initial
// read alongside the subscription.
type Store interface {
	// GetProfile returns the profile registered under email, or ErrNotFound.
	GetProfile(ctx context.Context, email string) (*models.User, error)

	// PutProfile registers or replaces a profile document.
	PutProfile(ctx context.Context, user *models.User) error

	// GetConversation returns the conversation at id, or ErrNotFound.
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)

	// CreateConversation atomically creates conv unless a document already
	// exists at conv.ID. Exactly one concurrent caller observes created=true;
	// everyone else gets created=false and a nil error. CreatedAt is assigned
	// by the store at commit time.
	CreateConversation(ctx context.Context, conv *models.Conversation) (created bool, err error)

	// AppendMessage persists msg, assigning its ID and server Timestamp.
	// The returned message carries the authoritative values.
	AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, error)

	// ListMessages returns the full history of a conversation ordered by
	// timestamp ascending.
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	// WatchConversations streams the complete set of conversations whose
	// participants include email, re-emitting the full set on every change.
	WatchConversations(ctx context.Context, email string) (<-chan []models.Conversation, CancelFunc)

	// WatchLastMessage streams the single most recent message of a
	// conversation, or nil while it is empty.
	WatchLastMessage(ctx context.Context, conversationID string) (<-chan *models.Message, CancelFunc)

	// WatchMessages streams the full ordered history of a conversation.
	WatchMessages(ctx context.Context, conversationID string) (<-chan []models.Message, CancelFunc)

	// Close releases all subscriptions and backing resources.
	Close() error
}
