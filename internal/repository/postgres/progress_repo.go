package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Still-River/river/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type progressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *progressRepository {
	return &progressRepository{db: db}
}

// Get returns nil with no error when the user has never saved progress.
func (r *progressRepository) Get(ctx context.Context, userID, journalID uint) (*domain.ProgressState, error) {
	var state domain.ProgressState
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND journal_id = ?", userID, journalID).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// Upsert stores the cursor for (user, journal). A nil or blank skippedAt
// clears the column; anything else must parse as a timestamp.
func (r *progressRepository) Upsert(ctx context.Context, userID, journalID uint, activeStep int, todo bool, skippedAt *string, now time.Time) (*domain.ProgressState, error) {
	var skipped *time.Time
	if skippedAt != nil && strings.TrimSpace(*skippedAt) != "" {
		t, err := domain.ParseTimestamp(*skippedAt)
		if err != nil {
			return nil, err
		}
		skipped = &t
	}

	state := &domain.ProgressState{
		UserID:     userID,
		JournalID:  journalID,
		ActiveStep: activeStep,
		Todo:       todo,
		SkippedAt:  skipped,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "journal_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"active_step", "todo", "skipped_at", "updated_at"}),
		}).
		Create(state).Error
	if err != nil {
		return nil, err
	}
	return state, nil
}
