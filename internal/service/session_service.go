package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Still-River/river/internal/config"
	"github.com/Still-River/river/internal/domain"
	"github.com/Still-River/river/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionIssuer = "river-api"

// SessionClaims are carried in the session cookie. Subject is the id of the
// user_sessions row holding the server-side state.
type SessionClaims struct {
	jwt.RegisteredClaims
}

type SessionService struct {
	sessionRepo repository.SessionRepository
	cfg         *config.Config
	now         func() time.Time
}

func NewSessionService(sessionRepo repository.SessionRepository, cfg *config.Config) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Start creates an anonymous session.
func (s *SessionService) Start(ctx context.Context) (*domain.UserSession, error) {
	return s.create(ctx, nil)
}

// StartFor creates a session already bound to userID.
func (s *SessionService) StartFor(ctx context.Context, userID uint) (*domain.UserSession, error) {
	return s.create(ctx, &userID)
}

func (s *SessionService) create(ctx context.Context, userID *uint) (*domain.UserSession, error) {
	now := domain.NormalizeTime(s.now())
	session := &domain.UserSession{
		ID:        uuid.New(),
		UserID:    userID,
		ExpiresAt: now.Add(s.cfg.SessionLifetime()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) Save(ctx context.Context, session *domain.UserSession) error {
	return s.sessionRepo.Update(ctx, session)
}

// Regenerate replaces old with a fresh session id bound to userID, so a
// session fixed before login is never authenticated.
func (s *SessionService) Regenerate(ctx context.Context, old *domain.UserSession, userID uint) (*domain.UserSession, error) {
	if old != nil {
		if err := s.sessionRepo.Delete(ctx, old.ID); err != nil {
			return nil, err
		}
	}
	return s.StartFor(ctx, userID)
}

func (s *SessionService) Destroy(ctx context.Context, session *domain.UserSession) error {
	if session == nil {
		return nil
	}
	return s.sessionRepo.Delete(ctx, session.ID)
}

// ClearUser drops the user binding but keeps the session.
func (s *SessionService) ClearUser(ctx context.Context, session *domain.UserSession) error {
	session.UserID = nil
	return s.sessionRepo.Update(ctx, session)
}

func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.sessionRepo.DeleteExpired(ctx, s.now())
}

// Token signs the cookie value for session.
func (s *SessionService) Token(session *domain.UserSession) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.ID.String(),
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.SessionSecret))
}

// Resolve verifies a cookie value and loads its session row.
func (s *SessionService) Resolve(ctx context.Context, tokenString string) (*domain.UserSession, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.SessionSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrInvalidSession
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidSession
	}

	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	if session.IsExpired(s.now()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// Cookie builds the Set-Cookie value carrying session.
func (s *SessionService) Cookie(session *domain.UserSession) (*http.Cookie, error) {
	token, err := s.Token(session)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     s.cfg.SessionName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.SessionSecure,
		SameSite: s.cfg.SameSite(),
	}, nil
}

// ExpiredCookie removes the session cookie from the browser.
func (s *SessionService) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.SessionName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cfg.SessionSecure,
		SameSite: s.cfg.SameSite(),
	}
}

func (s *SessionService) CookieName() string {
	return s.cfg.SessionName
}
