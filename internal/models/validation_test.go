package models

import (
	"errors"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{name: "valid", email: "ana@example.com", wantErr: nil},
		{name: "empty", email: "", wantErr: ErrEmptyEmail},
		{name: "whitespace only", email: "   ", wantErr: ErrEmptyEmail},
		{name: "missing at sign", email: "ana.example.com", wantErr: ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail("email", tt.email)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateEmail() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateEmail() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePair(t *testing.T) {
	if err := ValidatePair("ana@x.com", "bruno@x.com"); err != nil {
		t.Fatalf("ValidatePair() = %v, want nil", err)
	}
	if err := ValidatePair("ana@x.com", "ana@x.com"); !errors.Is(err, ErrSelfPair) {
		t.Fatalf("ValidatePair() = %v, want ErrSelfPair", err)
	}
	if err := ValidatePair("ana@x.com", " ana@x.com "); !errors.Is(err, ErrSelfPair) {
		t.Fatalf("ValidatePair() with padding = %v, want ErrSelfPair", err)
	}
	if err := ValidatePair("", "bruno@x.com"); !errors.Is(err, ErrEmptyEmail) {
		t.Fatalf("ValidatePair() = %v, want ErrEmptyEmail", err)
	}
}

func TestValidationError_FieldInMessage(t *testing.T) {
	err := ValidateEmail("sender", "")
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if valErr.Field != "sender" {
		t.Fatalf("Field = %q, want %q", valErr.Field, "sender")
	}
}

func TestUserValidate(t *testing.T) {
	u := &User{Email: "ana@x.com", DisplayName: "Ana"}
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	u = &User{Email: "ana@x.com"}
	if err := u.Validate(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("Validate() = %v, want ErrEmptyName", err)
	}
}

func TestMessageValidate(t *testing.T) {
	m := &Message{ConversationID: "chat_a@x_b@x", Sender: "a@x", Text: "hola"}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	m = &Message{Sender: "a@x", Text: "hola"}
	if err := m.Validate(); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("Validate() = %v, want ErrNoConversation", err)
	}
	m = &Message{ConversationID: "chat_a@x_b@x", Sender: "a@x", Text: "  "}
	if err := m.Validate(); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("Validate() = %v, want ErrEmptyText", err)
	}
}

func TestConversationParticipants(t *testing.T) {
	c := &Conversation{Participants: [2]string{"ana@x.com", "bruno@x.com"}}
	if got := c.OtherParticipant("ana@x.com"); got != "bruno@x.com" {
		t.Fatalf("OtherParticipant() = %q, want %q", got, "bruno@x.com")
	}
	if got := c.OtherParticipant("bruno@x.com"); got != "ana@x.com" {
		t.Fatalf("OtherParticipant() = %q, want %q", got, "ana@x.com")
	}
	if !c.HasParticipant("ana@x.com") || c.HasParticipant("zoe@x.com") {
		t.Fatal("HasParticipant() membership check failed")
	}
}
