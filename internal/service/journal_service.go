package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Still-River/river/internal/domain"
	"github.com/Still-River/river/internal/repository"
)

// MessageTypeProgressSaved is published to a user's other connections after
// every committed save.
const MessageTypeProgressSaved = "PROGRESS_SAVED"

// Notifier delivers a message to every live connection of one user.
type Notifier interface {
	NotifyUser(userID uint, messageType string, payload interface{})
}

type JournalService struct {
	journalRepo  repository.JournalRepository
	responseRepo repository.ResponseRepository
	progressRepo repository.ProgressRepository
	transactor   repository.Transactor
	notifier     Notifier
	now          func() time.Time
}

func NewJournalService(repos *repository.Repositories, notifier Notifier) *JournalService {
	return &JournalService{
		journalRepo:  repos.Journal,
		responseRepo: repos.Response,
		progressRepo: repos.Progress,
		transactor:   repos.Transactor,
		notifier:     notifier,
		now:          time.Now,
	}
}

// WithTransactor swaps the transaction runner. Tests use it to inject faults.
func (s *JournalService) WithTransactor(t repository.Transactor) *JournalService {
	s.transactor = t
	return s
}

type JournalSummary struct {
	ID          uint    `json:"id"`
	Slug        string  `json:"slug"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

type PromptView struct {
	ID          uint     `json:"id"`
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Question    string   `json:"question"`
	Guidance    string   `json:"guidance"`
	Placeholder string   `json:"placeholder"`
	Examples    []string `json:"examples"`
	Optional    bool     `json:"optional"`
	Position    int      `json:"position"`
}

type JournalDetail struct {
	JournalSummary
	Prompts []PromptView `json:"prompts"`
}

type StateView struct {
	ActiveStep  int     `json:"activeStep"`
	Todo        bool    `json:"todo"`
	SkippedAt   *string `json:"skippedAt"`
	LastUpdated *string `json:"lastUpdated"`
}

// JournalView is a journal with the caller's saved progress. Anonymous
// callers get a nil UserState and no responses.
type JournalView struct {
	Journal   JournalDetail     `json:"journal"`
	UserState *StateView        `json:"userState"`
	Responses map[string]string `json:"responses"`
}

type SaveResult struct {
	State     StateView         `json:"state"`
	Responses map[string]string `json:"responses"`
}

// ProgressSavedEvent is the payload of a PROGRESS_SAVED message.
type ProgressSavedEvent struct {
	JournalID   uint              `json:"journalId"`
	JournalSlug string            `json:"journalSlug"`
	State       StateView         `json:"state"`
	Responses   map[string]string `json:"responses"`
}

func (s *JournalService) ListJournals(ctx context.Context) ([]JournalSummary, error) {
	journals, err := s.journalRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]JournalSummary, 0, len(journals))
	for _, j := range journals {
		result = append(result, summarize(j))
	}
	return result, nil
}

func (s *JournalService) GetJournalView(ctx context.Context, auth AuthContext, identifier string) (*JournalView, error) {
	journal, prompts, err := s.resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	view := &JournalView{
		Journal:   detail(journal, prompts),
		Responses: map[string]string{},
	}
	if !auth.Authenticated() {
		return view, nil
	}

	state, err := s.progressRepo.Get(ctx, auth.UserID, journal.ID)
	if err != nil {
		return nil, err
	}
	if state != nil {
		v := stateView(state)
		view.UserState = &v
	}

	view.Responses, err = s.responseRepo.GetByUserAndJournal(ctx, auth.UserID, journal.ID)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// SaveProgress writes the caller's responses and cursor in one transaction
// and returns the committed state with every saved response.
func (s *JournalService) SaveProgress(ctx context.Context, auth AuthContext, identifier string, body []byte) (*SaveResult, error) {
	journal, prompts, err := s.resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if !auth.Authenticated() {
		return nil, ErrUnauthorized
	}

	index := domain.PromptIndex(prompts)

	payload, err := DecodeProgressPayload(body)
	if err != nil {
		return nil, err
	}

	now := domain.NormalizeTime(s.now())

	var saved *domain.ProgressState
	err = s.transactor.WithinTransaction(ctx, func(tx repository.TxRepositories) error {
		if err := tx.Response.Upsert(ctx, auth.UserID, journal.ID, index, payload.Responses, now); err != nil {
			return err
		}
		state, err := tx.Progress.Upsert(ctx, auth.UserID, journal.ID, payload.ActiveStep, payload.Todo, payload.SkippedAt, now)
		if err != nil {
			return err
		}
		saved = state
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTimestamp) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		log.Printf("ERROR [journal.SaveProgress] user=%d journal=%d: %v", auth.UserID, journal.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	responses, err := s.responseRepo.GetByUserAndJournal(ctx, auth.UserID, journal.ID)
	if err != nil {
		log.Printf("ERROR [journal.SaveProgress] re-read user=%d journal=%d: %v", auth.UserID, journal.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	result := &SaveResult{
		State:     stateView(saved),
		Responses: responses,
	}

	if s.notifier != nil {
		s.notifier.NotifyUser(auth.UserID, MessageTypeProgressSaved, ProgressSavedEvent{
			JournalID:   journal.ID,
			JournalSlug: journal.Slug,
			State:       result.State,
			Responses:   result.Responses,
		})
	}

	return result, nil
}

func (s *JournalService) resolve(ctx context.Context, identifier string) (*domain.Journal, []*domain.Prompt, error) {
	journal, prompts, err := s.journalRepo.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrJournalNotFound
		}
		return nil, nil, err
	}
	return journal, prompts, nil
}

func summarize(j *domain.Journal) JournalSummary {
	return JournalSummary{
		ID:          j.ID,
		Slug:        j.Slug,
		Title:       j.Title,
		Description: j.Description,
	}
}

func detail(j *domain.Journal, prompts []*domain.Prompt) JournalDetail {
	views := make([]PromptView, 0, len(prompts))
	for _, p := range prompts {
		views = append(views, PromptView{
			ID:          p.ID,
			Key:         p.Key,
			Title:       p.Title,
			Question:    p.Question,
			Guidance:    p.Guidance,
			Placeholder: p.Placeholder,
			Examples:    p.ExampleList(),
			Optional:    p.Optional,
			Position:    p.Position,
		})
	}
	return JournalDetail{JournalSummary: summarize(j), Prompts: views}
}

func stateView(state *domain.ProgressState) StateView {
	lastUpdated := domain.FormatTimestamp(state.UpdatedAt)
	return StateView{
		ActiveStep:  state.ActiveStep,
		Todo:        state.Todo,
		SkippedAt:   domain.FormatOptionalTimestamp(state.SkippedAt),
		LastUpdated: &lastUpdated,
	}
}
