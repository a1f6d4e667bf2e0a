package postgres

import (
	"context"
	"sort"
	"time"

	"github.com/Still-River/river/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type responseRepository struct {
	db *gorm.DB
}

func NewResponseRepository(db *gorm.DB) *responseRepository {
	return &responseRepository{db: db}
}

type responseRow struct {
	PromptKey string
	Response  string
}

func (r *responseRepository) GetByUserAndJournal(ctx context.Context, userID, journalID uint) (map[string]string, error) {
	var rows []responseRow
	err := r.db.WithContext(ctx).
		Table("journal_responses AS jr").
		Select("jp.prompt_key, jr.response").
		Joins("INNER JOIN journal_prompts jp ON jp.id = jr.prompt_id").
		Where("jr.user_id = ? AND jr.journal_id = ?", userID, journalID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(rows))
	for _, row := range rows {
		result[row.PromptKey] = row.Response
	}
	return result, nil
}

// Upsert writes one row per response whose key names a known prompt. Keys
// with no matching prompt are skipped.
func (r *responseRepository) Upsert(ctx context.Context, userID, journalID uint, prompts map[string]domain.PromptRef, responses map[string]string, now time.Time) error {
	keys := make([]string, 0, len(responses))
	for key := range responses {
		if _, ok := prompts[key]; ok {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	// stable statement order keeps lock acquisition consistent across saves
	sort.Strings(keys)

	rows := make([]*domain.Response, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, &domain.Response{
			UserID:    userID,
			JournalID: journalID,
			PromptID:  prompts[key].ID,
			Text:      responses[key],
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "prompt_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"response", "updated_at"}),
		}).
		Create(rows).Error
}
