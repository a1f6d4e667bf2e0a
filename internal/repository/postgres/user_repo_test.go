package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/Still-River/river/internal/domain"
	"github.com/Still-River/river/internal/repository"
	"github.com/Still-River/river/internal/repository/postgres"
	"github.com/Still-River/river/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestUserRepository_UpsertGoogleUser(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewUserRepository(testDB.DB)
	ctx := context.Background()

	created, err := repo.UpsertGoogleUser(ctx, &domain.User{
		GoogleID:  "sub-1",
		Email:     "first@example.com",
		Name:      strPtr("First"),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	updated, err := repo.UpsertGoogleUser(ctx, &domain.User{
		GoogleID:  "sub-1",
		Email:     "renamed@example.com",
		Name:      strPtr("Renamed"),
		AvatarURL: strPtr("https://example.com/a.png"),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID, "same subject must keep the same user")
	assert.Equal(t, "renamed@example.com", updated.Email)
	require.NotNil(t, updated.Name)
	assert.Equal(t, "Renamed", *updated.Name)
	require.NotNil(t, updated.AvatarURL)
	assert.Equal(t, int64(1), testDB.Count(t, "users"))
}

func TestUserRepository_GetByID(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewUserRepository(testDB.DB)
	ctx := context.Background()

	user := testutil.NewUserBuilder().WithEmail("getbyid@example.com").Build(t, testDB.DB)

	tests := []struct {
		name    string
		id      uint
		wantErr error
	}{
		{name: "existing user", id: user.ID},
		{name: "non-existent user", id: user.ID + 1000, wantErr: repository.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.GetByID(ctx, tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, user.ID, got.ID)
			assert.Equal(t, "getbyid@example.com", got.Email)
		})
	}
}

func TestUserRepository_GetByGoogleID(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewUserRepository(testDB.DB)
	ctx := context.Background()

	user := testutil.NewUserBuilder().WithGoogleID("google-known").Build(t, testDB.DB)

	got, err := repo.GetByGoogleID(ctx, "google-known")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = repo.GetByGoogleID(ctx, "google-unknown")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
