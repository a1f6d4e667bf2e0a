package service

import (
	"github.com/Still-River/river/internal/config"
	"github.com/Still-River/river/internal/repository"
)

type Services struct {
	Auth    *AuthService
	Session *SessionService
	Journal *JournalService
}

func NewServices(repos *repository.Repositories, provider IdentityProvider, notifier Notifier, cfg *config.Config) *Services {
	sessions := NewSessionService(repos.Session, cfg)
	return &Services{
		Auth:    NewAuthService(repos.User, sessions, provider, cfg),
		Session: sessions,
		Journal: NewJournalService(repos, notifier),
	}
}
