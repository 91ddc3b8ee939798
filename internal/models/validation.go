package models

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors surfaced to callers before anything touches the store.
var (
	ErrEmptyEmail     = errors.New("email is required")
	ErrInvalidEmail   = errors.New("email must contain '@'")
	ErrSelfPair       = errors.New("cannot start a conversation with yourself")
	ErrEmptyText      = errors.New("message text is required")
	ErrEmptyName      = errors.New("display name is required")
	ErrNoConversation = errors.New("conversation id is required")
)

// ValidationError wraps a field-level validation failure.
type ValidationError struct {
	Field string
	Err   error
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Err)
}

func (v *ValidationError) Unwrap() error { return v.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// ValidateEmail checks that email is non-empty and plausibly addressable.
// Full RFC validation is the registration front end's problem; the core only
// needs identifiers it can sort and compare.
func ValidateEmail(field, email string) error {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return invalid(field, ErrEmptyEmail)
	}
	if !strings.Contains(trimmed, "@") {
		return invalid(field, ErrInvalidEmail)
	}
	return nil
}

// ValidatePair checks both participant emails and rejects self-pairs.
func ValidatePair(a, b string) error {
	if err := ValidateEmail("participant", a); err != nil {
		return err
	}
	if err := ValidateEmail("other", b); err != nil {
		return err
	}
	if strings.TrimSpace(a) == strings.TrimSpace(b) {
		return invalid("other", ErrSelfPair)
	}
	return nil
}

// Validate checks a user profile before it is written.
func (u *User) Validate() error {
	if err := ValidateEmail("email", u.Email); err != nil {
		return err
	}
	if strings.TrimSpace(u.DisplayName) == "" {
		return invalid("name", ErrEmptyName)
	}
	return nil
}

// Validate checks an outgoing message before it is written.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.ConversationID) == "" {
		return invalid("conversationId", ErrNoConversation)
	}
	if err := ValidateEmail("sender", m.Sender); err != nil {
		return err
	}
	if strings.TrimSpace(m.Text) == "" {
		return invalid("text", ErrEmptyText)
	}
	return nil
}
