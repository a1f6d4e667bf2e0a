package postgres

import (
	"context"
	"strconv"

	"github.com/Still-River/river/internal/domain"
	"github.com/Still-River/river/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type journalRepository struct {
	db *gorm.DB
}

func NewJournalRepository(db *gorm.DB) *journalRepository {
	return &journalRepository{db: db}
}

func (r *journalRepository) List(ctx context.Context) ([]*domain.Journal, error) {
	var journals []*domain.Journal
	err := r.db.WithContext(ctx).Order("id ASC").Find(&journals).Error
	if err != nil {
		return nil, err
	}
	return journals, nil
}

// GetByIdentifier resolves identifier as an id when it is all digits and as
// a slug otherwise, then loads the prompts in position order.
func (r *journalRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Journal, []*domain.Prompt, error) {
	var journal domain.Journal
	var err error

	if isDigits(identifier) {
		id, parseErr := strconv.ParseUint(identifier, 10, 32)
		if parseErr != nil {
			return nil, nil, repository.ErrNotFound
		}
		err = r.db.WithContext(ctx).First(&journal, "id = ?", uint(id)).Error
	} else {
		err = r.db.WithContext(ctx).First(&journal, "slug = ?", identifier).Error
	}
	if err != nil {
		return nil, nil, notFound(err)
	}

	var prompts []*domain.Prompt
	err = r.db.WithContext(ctx).
		Where("journal_id = ?", journal.ID).
		Order("position ASC").
		Find(&prompts).Error
	if err != nil {
		return nil, nil, err
	}

	return &journal, prompts, nil
}

func (r *journalRepository) GetBySlug(ctx context.Context, slug string) (*domain.Journal, error) {
	var journal domain.Journal
	if err := r.db.WithContext(ctx).First(&journal, "slug = ?", slug).Error; err != nil {
		return nil, notFound(err)
	}
	return &journal, nil
}

func (r *journalRepository) Create(ctx context.Context, journal *domain.Journal) error {
	return r.db.WithContext(ctx).Create(journal).Error
}

// UpsertPrompts inserts prompts or refreshes their content, keyed by
// (journal_id, prompt_key).
func (r *journalRepository) UpsertPrompts(ctx context.Context, prompts []*domain.Prompt) error {
	if len(prompts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "journal_id"}, {Name: "prompt_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "question", "guidance", "placeholder", "examples", "optional", "position", "updated_at",
			}),
		}).
		Create(prompts).Error
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
