// Package repository declares the storage interfaces the services depend on.
//
// Implementations report uniqueness violations as apperror.Conflict with the
// offending field set ("email", "username", "participation") and missing rows
// as apperror.NotFound. Everything else is an opaque store failure.
package repository

import (
	"context"

	"github.com/sakif/jamspace/internal/model"
)

// ListOptions pages a list query.
type ListOptions struct {
	Limit  int
	Offset int
}

// AccountRepository stores accounts and their one-to-one profiles.
type AccountRepository interface {
	// CreateWithProfile inserts the account and its profile atomically and
	// fills in the generated ID and CreatedAt.
	CreateWithProfile(ctx context.Context, account *model.Account, profile *model.Profile) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)

	GetProfile(ctx context.Context, accountID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, profile *model.Profile) error
	// SetFallbackAvatar stores url as the profile's external avatar unless the
	// account already has an uploaded one. Reports whether a row changed.
	SetFallbackAvatar(ctx context.Context, accountID, url string) (bool, error)
}

// JamRepository stores jam sessions. Deleting a session removes its
// participations and messages.
type JamRepository interface {
	Create(ctx context.Context, jam *model.JamSession) error
	GetByID(ctx context.Context, id string) (*model.JamSession, error)
	List(ctx context.Context, opts ListOptions) ([]model.JamSession, error)
	// ListForAccount returns sessions the account created or joined, each
	// once, ordered by DateTime ascending.
	ListForAccount(ctx context.Context, accountID string) ([]model.JamSession, error)
	Delete(ctx context.Context, id string) error
}

// ParticipationRepository stores who joined which session.
type ParticipationRepository interface {
	Create(ctx context.Context, p *model.Participation) error
	Exists(ctx context.Context, accountID, jamID string) (bool, error)
	Delete(ctx context.Context, accountID, jamID string) error
	ListByJam(ctx context.Context, jamID string) ([]model.Participation, error)
}

// MessageRepository stores session chat.
type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	// ListByJam returns messages oldest first.
	ListByJam(ctx context.Context, jamID string) ([]model.Message, error)
}
