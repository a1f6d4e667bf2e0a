package postgres

import (
	"context"
	"errors"

	"github.com/Still-River/river/internal/domain"
	"github.com/Still-River/river/internal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewConnection(databaseURL string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
}

// Migrate creates or updates every table. It is a start-up step and is
// never run from repository constructors.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.UserSession{},
		&domain.Journal{},
		&domain.Prompt{},
		&domain.Response{},
		&domain.ProgressState{},
	)
}

func NewRepositories(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		Journal:    NewJournalRepository(db),
		Response:   NewResponseRepository(db),
		Progress:   NewProgressRepository(db),
		User:       NewUserRepository(db),
		Session:    NewSessionRepository(db),
		Transactor: NewTransactor(db),
	}
}

type transactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *transactor {
	return &transactor{db: db}
}

func (t *transactor) WithinTransaction(ctx context.Context, fn func(tx repository.TxRepositories) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repository.TxRepositories{
			Response: NewResponseRepository(tx),
			Progress: NewProgressRepository(tx),
		})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrNotFound
	}
	return err
}
