package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Still-River/river/internal/domain"
	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

type JournalRepository interface {
	List(ctx context.Context) ([]*domain.Journal, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Journal, []*domain.Prompt, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Journal, error)
	Create(ctx context.Context, journal *domain.Journal) error
	UpsertPrompts(ctx context.Context, prompts []*domain.Prompt) error
}

type ResponseRepository interface {
	GetByUserAndJournal(ctx context.Context, userID, journalID uint) (map[string]string, error)
	Upsert(ctx context.Context, userID, journalID uint, prompts map[string]domain.PromptRef, responses map[string]string, now time.Time) error
}

type ProgressRepository interface {
	Get(ctx context.Context, userID, journalID uint) (*domain.ProgressState, error)
	Upsert(ctx context.Context, userID, journalID uint, activeStep int, todo bool, skippedAt *string, now time.Time) (*domain.ProgressState, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*domain.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*domain.User, error)
	UpsertGoogleUser(ctx context.Context, user *domain.User) (*domain.User, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.UserSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSession, error)
	Update(ctx context.Context, session *domain.UserSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TxRepositories are the stores that take part in a progress save.
type TxRepositories struct {
	Response ResponseRepository
	Progress ProgressRepository
}

// Transactor runs fn with stores bound to a single database transaction.
// Returning an error from fn rolls the transaction back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(tx TxRepositories) error) error
}

type Repositories struct {
	Journal    JournalRepository
	Response   ResponseRepository
	Progress   ProgressRepository
	User       UserRepository
	Session    SessionRepository
	Transactor Transactor
}
