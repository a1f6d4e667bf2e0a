package domain

import (
	"encoding/json"
	"log"
	"time"

	"gorm.io/datatypes"
)

// DefaultJournalSlug identifies the journal that is seeded on every start.
const DefaultJournalSlug = "values-journal"

type Journal struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Slug        string    `json:"slug" gorm:"size:64;uniqueIndex;not null"`
	Title       string    `json:"title" gorm:"size:255;not null"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// Prompt is one question of a journal. Key and Position are each unique
// within the journal; Position drives display and navigation order.
type Prompt struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	JournalID   uint           `json:"-" gorm:"not null;uniqueIndex:idx_journal_prompts_key;uniqueIndex:idx_journal_prompts_position"`
	Key         string         `json:"key" gorm:"column:prompt_key;size:64;not null;uniqueIndex:idx_journal_prompts_key"`
	Title       string         `json:"title" gorm:"size:255;not null"`
	Question    string         `json:"question" gorm:"type:text;not null"`
	Guidance    string         `json:"guidance" gorm:"type:text;not null"`
	Placeholder string         `json:"placeholder" gorm:"type:text;not null"`
	Examples    datatypes.JSON `json:"-" gorm:"type:jsonb;not null"`
	Optional    bool           `json:"optional" gorm:"not null"`
	Position    int            `json:"position" gorm:"not null;uniqueIndex:idx_journal_prompts_position"`
	CreatedAt   time.Time      `json:"-"`
	UpdatedAt   time.Time      `json:"-"`

	Journal *Journal `json:"-" gorm:"foreignKey:JournalID;constraint:OnDelete:CASCADE"`
}

func (Prompt) TableName() string {
	return "journal_prompts"
}

// ExampleList decodes the stored examples column.
func (p *Prompt) ExampleList() []string {
	return ParseExamplesOrEmpty(p.Examples)
}

// ParseExamplesOrEmpty decodes a JSON list of strings. Malformed data yields
// an empty list and a warning instead of an error.
func ParseExamplesOrEmpty(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}

	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		log.Printf("WARN [domain.ParseExamplesOrEmpty] malformed examples %q: %v", string(raw), err)
		return []string{}
	}

	examples := make([]string, 0, len(values))
	for _, v := range values {
		switch s := v.(type) {
		case string:
			examples = append(examples, s)
		case nil:
			examples = append(examples, "")
		default:
			b, _ := json.Marshal(s)
			examples = append(examples, string(b))
		}
	}
	return examples
}

// EncodeExamples is the inverse of ParseExamplesOrEmpty.
func EncodeExamples(examples []string) datatypes.JSON {
	if examples == nil {
		examples = []string{}
	}
	b, _ := json.Marshal(examples)
	return datatypes.JSON(b)
}

// PromptRef is the subset of a prompt needed to validate a save payload.
type PromptRef struct {
	ID       uint
	Optional bool
}

// PromptIndex maps prompt keys to their ids and optional flags.
func PromptIndex(prompts []*Prompt) map[string]PromptRef {
	index := make(map[string]PromptRef, len(prompts))
	for _, p := range prompts {
		index[p.Key] = PromptRef{ID: p.ID, Optional: p.Optional}
	}
	return index
}
