// Package session is the boundary to the authentication collaborator: it
// answers "who is the current user" and nothing else. Credential handling
// lives outside this repository.
package session

import (
	"errors"

	"github.com/jmvargas/charla/internal/models"
)

// ErrNoIdentity is returned when no user is signed in.
var ErrNoIdentity = errors.New("no current user identity")

// Identity describes the signed-in user.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
}

// Provider yields the current identity.
type Provider interface {
	// Current returns the signed-in identity, or ErrNoIdentity.
	Current() (Identity, error)
}

// Static is a Provider fixed at construction, used by the CLI (identity
// from config/flags) and by tests.
type Static struct {
	identity Identity
	ok       bool
}

// NewStatic builds a Static provider for email. An empty email means no
// one is signed in.
func NewStatic(id, email, displayName string) *Static {
	return &Static{
		identity: Identity{ID: id, Email: email, DisplayName: displayName},
		ok:       email != "",
	}
}

func (s *Static) Current() (Identity, error) {
	if !s.ok {
		return Identity{}, ErrNoIdentity
	}
	return s.identity, nil
}

// UserFromIdentity converts an identity into a profile document shape.
func UserFromIdentity(id Identity) *models.User {
	return &models.User{ID: id.ID, Email: id.Email, DisplayName: id.DisplayName}
}
