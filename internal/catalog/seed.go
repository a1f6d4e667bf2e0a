// Package catalog holds the built-in journal definitions and seeds them into
// the journal store.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/Still-River/river/internal/domain"
	"github.com/Still-River/river/internal/repository"
	"gopkg.in/yaml.v3"
)

//go:embed values_journal.yaml
var valuesJournalYAML []byte

// Definition is a journal as declared in a seed file.
type Definition struct {
	Slug        string             `yaml:"slug"`
	Title       string             `yaml:"title"`
	Description string             `yaml:"description"`
	Prompts     []PromptDefinition `yaml:"prompts"`
}

type PromptDefinition struct {
	Key         string   `yaml:"key"`
	Title       string   `yaml:"title"`
	Question    string   `yaml:"question"`
	Guidance    string   `yaml:"guidance"`
	Placeholder string   `yaml:"placeholder"`
	Examples    []string `yaml:"examples"`
	Optional    bool     `yaml:"optional"`
}

// ValuesJournal returns the definition of the default journal.
func ValuesJournal() (*Definition, error) {
	return Parse(valuesJournalYAML)
}

// Parse decodes and validates a seed file.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse journal definition: %w", err)
	}
	if def.Slug == "" || def.Title == "" {
		return nil, errors.New("journal definition needs a slug and a title")
	}

	seen := make(map[string]bool, len(def.Prompts))
	for i, p := range def.Prompts {
		if p.Key == "" {
			return nil, fmt.Errorf("prompt %d of %s has no key", i+1, def.Slug)
		}
		if seen[p.Key] {
			return nil, fmt.Errorf("duplicate prompt key %q in %s", p.Key, def.Slug)
		}
		seen[p.Key] = true
	}
	return &def, nil
}

// Seed installs the built-in journals. It is safe to run on every start.
func Seed(ctx context.Context, journals repository.JournalRepository) error {
	def, err := ValuesJournal()
	if err != nil {
		return err
	}
	return Install(ctx, journals, def, time.Now())
}

// Install creates the journal when its slug is unknown, then upserts every
// prompt with position = declaration order, starting at 1.
func Install(ctx context.Context, journals repository.JournalRepository, def *Definition, now time.Time) error {
	now = domain.NormalizeTime(now)

	journal, err := journals.GetBySlug(ctx, def.Slug)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to look up journal %s: %w", def.Slug, err)
		}
		journal = &domain.Journal{
			Slug:      def.Slug,
			Title:     def.Title,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if def.Description != "" {
			description := def.Description
			journal.Description = &description
		}
		if err := journals.Create(ctx, journal); err != nil {
			return fmt.Errorf("failed to create journal %s: %w", def.Slug, err)
		}
	}

	prompts := make([]*domain.Prompt, 0, len(def.Prompts))
	for i, p := range def.Prompts {
		prompts = append(prompts, &domain.Prompt{
			JournalID:   journal.ID,
			Key:         p.Key,
			Title:       p.Title,
			Question:    p.Question,
			Guidance:    p.Guidance,
			Placeholder: p.Placeholder,
			Examples:    domain.EncodeExamples(p.Examples),
			Optional:    p.Optional,
			Position:    i + 1,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := journals.UpsertPrompts(ctx, prompts); err != nil {
		return fmt.Errorf("failed to seed prompts for %s: %w", def.Slug, err)
	}
	return nil
}
