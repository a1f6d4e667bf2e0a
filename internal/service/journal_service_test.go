package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Still-River/river/internal/domain"
	"github.com/Still-River/river/internal/repository"
	"github.com/Still-River/river/internal/repository/postgres"
	"github.com/Still-River/river/internal/service"
	"github.com/Still-River/river/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedNotification struct {
	userID      uint
	messageType string
	payload     interface{}
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []recordedNotification
}

func (n *recordingNotifier) NotifyUser(userID uint, messageType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, recordedNotification{userID, messageType, payload})
}

type failingProgressRepository struct{}

func (failingProgressRepository) Get(ctx context.Context, userID, journalID uint) (*domain.ProgressState, error) {
	return nil, nil
}

func (failingProgressRepository) Upsert(ctx context.Context, userID, journalID uint, activeStep int, todo bool, skippedAt *string, now time.Time) (*domain.ProgressState, error) {
	return nil, errors.New("injected progress failure")
}

// faultyTransactor runs the real response store inside a real transaction
// but fails the progress write.
type faultyTransactor struct {
	db *gorm.DB
}

func (f faultyTransactor) WithinTransaction(ctx context.Context, fn func(tx repository.TxRepositories) error) error {
	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repository.TxRepositories{
			Response: postgres.NewResponseRepository(tx),
			Progress: failingProgressRepository{},
		})
	})
}

func newJournalService(t *testing.T) (*testutil.TestDB, *service.JournalService, *recordingNotifier) {
	t.Helper()

	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	notifier := &recordingNotifier{}
	return testDB, service.NewJournalService(repos, notifier), notifier
}

func TestJournalService_GetJournalView_Anonymous(t *testing.T) {
	testDB, svc, _ := newJournalService(t)
	testutil.SeedValuesJournal(t, testDB.DB)

	view, err := svc.GetJournalView(context.Background(), service.Anonymous(), "values-journal")
	require.NoError(t, err)

	assert.Nil(t, view.UserState)
	assert.NotNil(t, view.Responses)
	assert.Empty(t, view.Responses)
	assert.Equal(t, "Values Priming Journal", view.Journal.Title)
	require.Len(t, view.Journal.Prompts, 4)
	assert.Equal(t, "strongMemories", view.Journal.Prompts[0].Key)
	assert.Len(t, view.Journal.Prompts[0].Examples, 3)
}

func TestJournalService_NotFound(t *testing.T) {
	testDB, svc, _ := newJournalService(t)
	testutil.SeedValuesJournal(t, testDB.DB)
	ctx := context.Background()

	_, err := svc.GetJournalView(ctx, service.Anonymous(), "nope")
	assert.ErrorIs(t, err, service.ErrJournalNotFound)

	// not found wins over unauthorised
	_, err = svc.SaveProgress(ctx, service.Anonymous(), "nope", []byte(`{}`))
	assert.ErrorIs(t, err, service.ErrJournalNotFound)
}

func TestJournalService_SaveProgress_RequiresUser(t *testing.T) {
	testDB, svc, notifier := newJournalService(t)
	testutil.SeedValuesJournal(t, testDB.DB)

	_, err := svc.SaveProgress(context.Background(), service.Anonymous(), "values-journal", []byte(`{"activeStep":1}`))
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	assert.Equal(t, int64(0), testDB.Count(t, "journal_user_states"))
	assert.Empty(t, notifier.notifications)
}

func TestJournalService_SaveProgress_IsIdempotent(t *testing.T) {
	testDB, svc, _ := newJournalService(t)
	testutil.SeedValuesJournal(t, testDB.DB)
	user := testutil.NewUserBuilder().Build(t, testDB.DB)
	ctx := context.Background()
	auth := service.AuthFor(user.ID)

	body := []byte(`{"responses":{"strongMemories":"Test."},"activeStep":1,"todo":true,"skippedAt":"2025-01-02T03:04:05Z"}`)

	first, err := svc.SaveProgress(ctx, auth, "values-journal", body)
	require.NoError(t, err)
	second, err := svc.SaveProgress(ctx, auth, "values-journal", body)
	require.NoError(t, err)

	assert.Equal(t, first.State.ActiveStep, second.State.ActiveStep)
	assert.Equal(t, first.State.Todo, second.State.Todo)
	assert.Equal(t, first.State.SkippedAt, second.State.SkippedAt)
	assert.Equal(t, first.Responses, second.Responses)
	require.NotNil(t, second.State.SkippedAt)
	assert.Equal(t, "2025-01-02T03:04:05Z", *second.State.SkippedAt)

	assert.Equal(t, int64(1), testDB.Count(t, "journal_responses"))
	assert.Equal(t, int64(1), testDB.Count(t, "journal_user_states"))
}

func TestJournalService_SaveProgress_Isolation(t *testing.T) {
	testDB, svc, _ := newJournalService(t)
	testutil.SeedValuesJournal(t, testDB.DB)
	alice := testutil.NewUserBuilder().Build(t, testDB.DB)
	bob := testutil.NewUserBuilder().Build(t, testDB.DB)
	ctx := context.Background()

	_, err := svc.SaveProgress(ctx, service.AuthFor(alice.ID), "values-journal",
		[]byte(`{"responses":{"strongMemories":"alice only"},"activeStep":3}`))
	require.NoError(t, err)

	view, err := svc.GetJournalView(ctx, service.AuthFor(bob.ID), "values-journal")
	require.NoError(t, err)
	assert.Nil(t, view.UserState)
	assert.Empty(t, view.Responses)

	view, err = svc.GetJournalView(ctx, service.AuthFor(alice.ID), "values-journal")
	require.NoError(t, err)
	require.NotNil(t, view.UserState)
	assert.Equal(t, 3, view.UserState.ActiveStep)
	assert.Equal(t, "alice only", view.Responses["strongMemories"])
}

func TestJournalService_SaveProgress_AtomicOnProgressFailure(t *testing.T) {
	testDB, svc, notifier := newJournalService(t)
	testutil.SeedValuesJournal(t, testDB.DB)
	user := testutil.NewUserBuilder().Build(t, testDB.DB)

	svc.WithTransactor(faultyTransactor{db: testDB.DB})

	_, err := svc.SaveProgress(context.Background(), service.AuthFor(user.ID), "values-journal",
		[]byte(`{"responses":{"strongMemories":"never committed"},"activeStep":1}`))
	assert.ErrorIs(t, err, service.ErrPersistenceFailure)

	assert.Equal(t, int64(0), testDB.Count(t, "journal_responses"))
	assert.Equal(t, int64(0), testDB.Count(t, "journal_user_states"))
	assert.Empty(t, notifier.notifications)
}

func TestJournalService_SaveProgress_InvalidTimestampRollsBack(t *testing.T) {
	testDB, svc, _ := newJournalService(t)
	testutil.SeedValuesJournal(t, testDB.DB)
	user := testutil.NewUserBuilder().Build(t, testDB.DB)

	_, err := svc.SaveProgress(context.Background(), service.AuthFor(user.ID), "values-journal",
		[]byte(`{"responses":{"strongMemories":"x"},"skippedAt":"the day after tomorrow"}`))
	assert.ErrorIs(t, err, service.ErrInvalidPayload)

	assert.Equal(t, int64(0), testDB.Count(t, "journal_responses"))
	assert.Equal(t, int64(0), testDB.Count(t, "journal_user_states"))
}

func TestJournalService_SaveProgress_PayloadRules(t *testing.T) {
	testDB, svc, _ := newJournalService(t)
	journal, _ := testutil.SeedValuesJournal(t, testDB.DB)
	user := testutil.NewUserBuilder().Build(t, testDB.DB)
	ctx := context.Background()
	auth := service.AuthFor(user.ID)

	tests := []struct {
		name       string
		identifier string
		body       string
		wantStep   int
		wantErr    error
		wantRows   int64
	}{
		{
			name:       "negative step clamped",
			identifier: "values-journal",
			body:       `{"activeStep":-5}`,
			wantStep:   0,
		},
		{
			name:       "unknown key tolerated",
			identifier: "values-journal",
			body:       `{"responses":{"nonexistentKey":"x"},"activeStep":1}`,
			wantStep:   1,
		},
		{
			name:       "numeric identifier",
			identifier: fmt.Sprint(journal.ID),
			body:       `{"responses":{"admiredPerson":"grandmother"},"activeStep":2}`,
			wantStep:   2,
			wantRows:   1,
		},
		{
			name:       "responses must be a mapping",
			identifier: "values-journal",
			body:       `{"responses":"text"}`,
			wantErr:    service.ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testDB.DB.Exec("DELETE FROM journal_responses")
			testDB.DB.Exec("DELETE FROM journal_user_states")

			result, err := svc.SaveProgress(ctx, auth, tt.identifier, []byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStep, result.State.ActiveStep)
			assert.Equal(t, tt.wantRows, testDB.Count(t, "journal_responses"))
		})
	}
}

func TestJournalService_SaveProgress_ReturnsAllResponsesAndNotifies(t *testing.T) {
	testDB, svc, notifier := newJournalService(t)
	journal, _ := testutil.SeedValuesJournal(t, testDB.DB)
	user := testutil.NewUserBuilder().Build(t, testDB.DB)
	ctx := context.Background()
	auth := service.AuthFor(user.ID)

	_, err := svc.SaveProgress(ctx, auth, "values-journal", []byte(`{"responses":{"strongMemories":"one"}}`))
	require.NoError(t, err)
	result, err := svc.SaveProgress(ctx, auth, "values-journal", []byte(`{"responses":{"admiredPerson":"two"},"activeStep":1}`))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"strongMemories": "one", "admiredPerson": "two"}, result.Responses)
	require.NotNil(t, result.State.LastUpdated)
	_, err = time.Parse(time.RFC3339, *result.State.LastUpdated)
	assert.NoError(t, err)

	require.Len(t, notifier.notifications, 2)
	last := notifier.notifications[1]
	assert.Equal(t, user.ID, last.userID)
	assert.Equal(t, service.MessageTypeProgressSaved, last.messageType)
	event, ok := last.payload.(service.ProgressSavedEvent)
	require.True(t, ok)
	assert.Equal(t, journal.ID, event.JournalID)
	assert.Equal(t, 1, event.State.ActiveStep)
}

func TestJournalService_ListJournals(t *testing.T) {
	testDB, svc, _ := newJournalService(t)
	testutil.SeedValuesJournal(t, testDB.DB)

	journals, err := svc.ListJournals(context.Background())
	require.NoError(t, err)
	require.Len(t, journals, 1)
	assert.Equal(t, "values-journal", journals[0].Slug)
	require.NotNil(t, journals[0].Description)
}
