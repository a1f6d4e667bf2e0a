package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/Still-River/river/internal/catalog"
	"github.com/Still-River/river/internal/domain"
	repoPostgres "github.com/Still-River/river/internal/repository/postgres"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	id       uint
	googleID string
	email    string
	name     *string
}

// NewUserBuilder creates a new UserBuilder with default values
func NewUserBuilder() *UserBuilder {
	suffix := uuid.New().String()[:8]
	return &UserBuilder{
		googleID: "google-" + suffix,
		email:    fmt.Sprintf("user_%s@example.com", suffix),
	}
}

// WithID pins the primary key
func (b *UserBuilder) WithID(id uint) *UserBuilder {
	b.id = id
	return b
}

// WithGoogleID sets the Google subject
func (b *UserBuilder) WithGoogleID(googleID string) *UserBuilder {
	b.googleID = googleID
	return b
}

// WithEmail sets the email
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.email = email
	return b
}

// WithName sets the display name
func (b *UserBuilder) WithName(name string) *UserBuilder {
	b.name = &name
	return b
}

// Build creates the user in the database
func (b *UserBuilder) Build(t *testing.T, db *gorm.DB) *domain.User {
	t.Helper()

	user := &domain.User{
		ID:        b.id,
		GoogleID:  b.googleID,
		Email:     b.email,
		Name:      b.name,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	if b.id != 0 {
		// keep the serial ahead of pinned ids
		db.Exec("SELECT setval(pg_get_serial_sequence('users', 'id'), GREATEST((SELECT MAX(id) FROM users), 1))")
	}

	return user
}

// BuildAndAuthenticate creates the user and a signed-in session, returning
// the session cookie
func (b *UserBuilder) BuildAndAuthenticate(t *testing.T, ts *TestServer) (*domain.User, *http.Cookie) {
	t.Helper()

	user := b.Build(t, ts.DB.DB)
	return user, Authenticate(t, ts, user.ID)
}

// Authenticate opens a session for userID and returns its cookie
func Authenticate(t *testing.T, ts *TestServer, userID uint) *http.Cookie {
	t.Helper()

	session, err := ts.Services.Session.StartFor(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	cookie, err := ts.Services.Session.Cookie(session)
	if err != nil {
		t.Fatalf("failed to sign session cookie: %v", err)
	}
	return cookie
}

// SeedValuesJournal installs the built-in journal and returns it with its prompts
func SeedValuesJournal(t *testing.T, db *gorm.DB) (*domain.Journal, []*domain.Prompt) {
	t.Helper()

	repo := repoPostgres.NewJournalRepository(db)
	if err := catalog.Seed(context.Background(), repo); err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}

	journal, prompts, err := repo.GetByIdentifier(context.Background(), domain.DefaultJournalSlug)
	if err != nil {
		t.Fatalf("failed to load seeded journal: %v", err)
	}
	return journal, prompts
}

// JournalBuilder creates test journals with a builder pattern
type JournalBuilder struct {
	slug    string
	title   string
	prompts []catalog.PromptDefinition
}

// NewJournalBuilder creates a new JournalBuilder with default values
func NewJournalBuilder() *JournalBuilder {
	return &JournalBuilder{
		slug:  "journal-" + uuid.New().String()[:8],
		title: "Test Journal",
	}
}

// WithSlug sets the slug
func (b *JournalBuilder) WithSlug(slug string) *JournalBuilder {
	b.slug = slug
	return b
}

// WithPrompt appends a prompt
func (b *JournalBuilder) WithPrompt(key string, optional bool) *JournalBuilder {
	b.prompts = append(b.prompts, catalog.PromptDefinition{
		Key:         key,
		Title:       key,
		Question:    "What about " + key + "?",
		Guidance:    "Think about " + key + ".",
		Placeholder: "Write about " + key,
		Examples:    []string{key + " example"},
		Optional:    optional,
	})
	return b
}

// Build creates the journal and its prompts in the database
func (b *JournalBuilder) Build(t *testing.T, db *gorm.DB) (*domain.Journal, []*domain.Prompt) {
	t.Helper()

	repo := repoPostgres.NewJournalRepository(db)
	def := &catalog.Definition{Slug: b.slug, Title: b.title, Prompts: b.prompts}
	if err := catalog.Install(context.Background(), repo, def, time.Now()); err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}

	journal, prompts, err := repo.GetByIdentifier(context.Background(), b.slug)
	if err != nil {
		t.Fatalf("failed to load journal: %v", err)
	}
	return journal, prompts
}

// CreateAuthenticatedRequest creates an HTTP request carrying the session
// cookie. A string or []byte body is sent verbatim, anything else as JSON.
func CreateAuthenticatedRequest(t *testing.T, method, url string, body interface{}, cookie *http.Cookie) *http.Request {
	t.Helper()

	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
		bodyReader = bytes.NewBuffer(nil)
	case string:
		bodyReader = bytes.NewBufferString(b)
	case []byte:
		bodyReader = bytes.NewBuffer(b)
	default:
		jsonBody, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}

	return req
}
