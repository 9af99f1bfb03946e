//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_repositories.go -package=mocks
package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/prudhvinik1/edgerelay/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique column already holds the value.
	ErrAlreadyExists = errors.New("already exists")

	// ErrStoreUnavailable wraps any failure of the message store to accept or return records.
	ErrStoreUnavailable = errors.New("message store unavailable")
	// ErrInvalidMessage is returned when the store refuses the content of a record.
	ErrInvalidMessage = errors.New("message rejected by store")
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	UpdateProfilePhoto(ctx context.Context, id uuid.UUID, url string) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}

// MessageRepository is the durable append-only message store.
type MessageRepository interface {
	// Insert persists msg and fills in its ID. CreatedAt is kept as given.
	Insert(ctx context.Context, msg *models.Message) error
	// QueryBetween returns the messages exchanged between a and b in either
	// direction, oldest first.
	QueryBetween(ctx context.Context, a, b models.UserID) ([]*models.Message, error)
}

type PresenceRepository interface {
	SetPresence(ctx context.Context, presence *models.Presence) error
	DeletePresence(ctx context.Context, userID models.UserID) error
	GetBulkPresence(ctx context.Context, userIDs []models.UserID) (map[models.UserID]models.Presence, error)
}
