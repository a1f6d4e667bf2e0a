package domain

import (
	"strings"
	"time"
)

// Response is a user's saved answer to one prompt. At most one row exists
// per (user, prompt).
type Response struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"userId" gorm:"not null;uniqueIndex:idx_journal_responses_user_prompt;index:idx_journal_responses_user_journal"`
	JournalID uint      `json:"journalId" gorm:"not null;index:idx_journal_responses_user_journal"`
	PromptID  uint      `json:"promptId" gorm:"not null;uniqueIndex:idx_journal_responses_user_prompt"`
	Text      string    `json:"text" gorm:"column:response;type:text;not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Prompt  *Prompt  `json:"-" gorm:"foreignKey:PromptID;constraint:OnDelete:CASCADE"`
	Journal *Journal `json:"-" gorm:"foreignKey:JournalID;constraint:OnDelete:CASCADE"`
}

func (Response) TableName() string {
	return "journal_responses"
}

// ProgressState is a user's cursor within one journal.
type ProgressState struct {
	UserID     uint       `json:"-" gorm:"primaryKey;autoIncrement:false"`
	JournalID  uint       `json:"-" gorm:"primaryKey;autoIncrement:false"`
	ActiveStep int        `json:"activeStep" gorm:"not null"`
	Todo       bool       `json:"todo" gorm:"not null"`
	SkippedAt  *time.Time `json:"skippedAt"`
	CreatedAt  time.Time  `json:"-"`
	UpdatedAt  time.Time  `json:"lastUpdated"`

	Journal *Journal `json:"-" gorm:"foreignKey:JournalID;constraint:OnDelete:CASCADE"`
}

func (ProgressState) TableName() string {
	return "journal_user_states"
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the common SQL-ish layouts. Input
// without a zone is read as UTC. The result is UTC truncated to seconds.
func ParseTimestamp(input string) (time.Time, error) {
	value := strings.TrimSpace(input)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return NormalizeTime(t), nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

// NormalizeTime converts t to the stored representation.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// FormatTimestamp renders a stored time on the wire.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FormatOptionalTimestamp is FormatTimestamp for nullable columns.
func FormatOptionalTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTimestamp(*t)
	return &s
}
