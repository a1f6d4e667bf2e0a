package client

import (
	"context"
	"fmt"
	"time"
)

// Backend persists one journal's progress. RemoteBackend talks to the API
// for a signed-in user; LocalBackend keeps an anonymous user's progress on
// this machine.
type Backend interface {
	Load(ctx context.Context, journal string) (*JournalView, error)
	Save(ctx context.Context, journal string, snap Snapshot) (*SaveResponse, error)
	Name() string
}

type RemoteBackend struct {
	api *APIClient
}

func NewRemoteBackend(api *APIClient) *RemoteBackend {
	return &RemoteBackend{api: api}
}

func (b *RemoteBackend) Name() string { return "remote" }

func (b *RemoteBackend) Load(ctx context.Context, journal string) (*JournalView, error) {
	return b.api.GetJournal(ctx, journal)
}

func (b *RemoteBackend) Save(ctx context.Context, journal string, snap Snapshot) (*SaveResponse, error) {
	return b.api.SaveResponses(ctx, journal, snap)
}

// LocalBackend reads the prompt catalog anonymously from the API and keeps
// progress in a LocalStore.
type LocalBackend struct {
	api   *APIClient
	store *LocalStore
	now   func() time.Time
}

func NewLocalBackend(api *APIClient, store *LocalStore) *LocalBackend {
	return &LocalBackend{api: api, store: store, now: time.Now}
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) Load(ctx context.Context, journal string) (*JournalView, error) {
	view, err := b.api.GetJournal(ctx, journal)
	if err != nil {
		return nil, err
	}

	state, err := b.store.LoadState(ctx, StorageKey(journal), DefaultState(view.Journal.Prompts))
	if err != nil {
		return nil, fmt.Errorf("failed to read local progress: %w", err)
	}

	view.Responses = state.Responses
	view.UserState = &ServerState{
		ActiveStep:  state.ActiveStep,
		Todo:        state.Todo,
		SkippedAt:   state.SkippedAt,
		LastUpdated: state.LastUpdated,
	}
	return view, nil
}

// Save stores snap and echoes it back the way the server would.
func (b *LocalBackend) Save(ctx context.Context, journal string, snap Snapshot) (*SaveResponse, error) {
	lastUpdated := b.now().UTC().Truncate(time.Second).Format(time.RFC3339)
	state := State{
		Responses:   copyResponses(snap.Responses),
		ActiveStep:  snap.ActiveStep,
		Todo:        snap.Todo,
		SkippedAt:   snap.SkippedAt,
		LastUpdated: &lastUpdated,
	}
	if err := b.store.SaveState(ctx, StorageKey(journal), state); err != nil {
		return nil, fmt.Errorf("failed to write local progress: %w", err)
	}

	return &SaveResponse{
		State: ServerState{
			ActiveStep:  state.ActiveStep,
			Todo:        state.Todo,
			SkippedAt:   state.SkippedAt,
			LastUpdated: state.LastUpdated,
		},
		Responses: copyResponses(state.Responses),
	}, nil
}

// SelectBackend picks RemoteBackend when the API reports a signed-in user
// and LocalBackend otherwise. The user is nil for the local backend.
func SelectBackend(ctx context.Context, api *APIClient, store *LocalStore) (Backend, *User, error) {
	user, err := api.Me(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check session: %w", err)
	}
	if user != nil {
		return NewRemoteBackend(api), user, nil
	}
	if store == nil {
		return nil, nil, fmt.Errorf("not signed in and no local store configured")
	}
	return NewLocalBackend(api, store), nil, nil
}
