package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/Still-River/river/internal/config"
	"github.com/Still-River/river/internal/domain"
	"github.com/Still-River/river/internal/oauth"
	"github.com/Still-River/river/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

// IdentityProvider is the OAuth provider used for login.
type IdentityProvider interface {
	AuthorizationURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchIdentity(ctx context.Context, token *oauth2.Token) (*oauth.Identity, error)
}

type AuthService struct {
	userRepo        repository.UserRepository
	sessions        *SessionService
	provider        IdentityProvider
	defaultRedirect string
	defaultOrigin   string
}

func NewAuthService(userRepo repository.UserRepository, sessions *SessionService, provider IdentityProvider, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo:        userRepo,
		sessions:        sessions,
		provider:        provider,
		defaultRedirect: cfg.FrontendAppURL,
		defaultOrigin:   originOf(cfg.FrontendAppURL),
	}
}

type LoginStart struct {
	AuthURL string
	Session *domain.UserSession
	// Created is true when Session did not exist before and needs a cookie.
	Created bool
}

// BeginGoogleLogin stores a fresh OAuth state and the post-login redirect
// in the session, creating one when session is nil.
func (s *AuthService) BeginGoogleLogin(ctx context.Context, session *domain.UserSession, redirect string) (*LoginStart, error) {
	start := &LoginStart{Session: session}
	if session == nil {
		created, err := s.sessions.Start(ctx)
		if err != nil {
			return nil, err
		}
		start.Session = created
		start.Created = true
	}

	state, err := generateState()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(state), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	start.Session.StateHash = string(hash)
	start.Session.RedirectURL = s.SanitizeRedirect(redirect)
	if err := s.sessions.Save(ctx, start.Session); err != nil {
		return nil, err
	}

	authURL, err := s.provider.AuthorizationURL(state)
	if err != nil {
		return start, err
	}
	start.AuthURL = authURL
	return start, nil
}

type CallbackParams struct {
	State string
	Code  string
	Error string
}

type LoginResult struct {
	RedirectURL string
	// Session is the regenerated session after a successful login.
	Session *domain.UserSession
	User    *domain.User
}

// CompleteGoogleLogin finishes the OAuth round trip. Failures are reported
// through the query string of RedirectURL, never as an error; the returned
// error is reserved for store failures.
func (s *AuthService) CompleteGoogleLogin(ctx context.Context, session *domain.UserSession, params CallbackParams) (*LoginResult, error) {
	redirectBase := s.defaultRedirect
	var stateHash string
	if session != nil {
		if session.RedirectURL != "" {
			redirectBase = session.RedirectURL
		}
		stateHash = session.StateHash
		session.RedirectURL = ""
		session.StateHash = ""
		if err := s.sessions.Save(ctx, session); err != nil {
			return nil, err
		}
	}

	fail := func(query url.Values) *LoginResult {
		return &LoginResult{RedirectURL: appendQuery(redirectBase, query)}
	}

	if params.Error != "" {
		return fail(url.Values{"error": {params.Error}}), nil
	}
	if params.State == "" || stateHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(stateHash), []byte(params.State)) != nil {
		return fail(url.Values{"error": {"invalid_state"}}), nil
	}
	if params.Code == "" {
		return fail(url.Values{"error": {"missing_code"}}), nil
	}

	token, err := s.provider.Exchange(ctx, params.Code)
	var identity *oauth.Identity
	if err == nil {
		identity, err = s.provider.FetchIdentity(ctx, token)
	}
	if err != nil {
		log.Printf("ERROR [auth.CompleteGoogleLogin] %v", err)
		return fail(url.Values{"error": {"google_auth_failed"}, "message": {err.Error()}}), nil
	}

	user := &domain.User{
		GoogleID:  identity.Subject,
		Email:     identity.Email,
		Name:      optional(identity.Name),
		AvatarURL: optional(identity.Picture),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	user, err = s.userRepo.UpsertGoogleUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to store google user: %w", err)
	}

	fresh, err := s.sessions.Regenerate(ctx, session, user.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		RedirectURL: appendQuery(redirectBase, url.Values{"login": {"success"}}),
		Session:     fresh,
		User:        user,
	}, nil
}

// CurrentUser returns the user bound to session, or nil. A session that
// points at a deleted user is unbound.
func (s *AuthService) CurrentUser(ctx context.Context, session *domain.UserSession) (*domain.User, error) {
	if session == nil || session.UserID == nil {
		return nil, nil
	}

	user, err := s.userRepo.GetByID(ctx, *session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if clearErr := s.sessions.ClearUser(ctx, session); clearErr != nil {
				return nil, clearErr
			}
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Logout(ctx context.Context, session *domain.UserSession) error {
	return s.sessions.Destroy(ctx, session)
}

// SanitizeRedirect accepts absolute URLs on the frontend's origin and
// falls back to the frontend URL for anything else.
func (s *AuthService) SanitizeRedirect(redirect string) string {
	redirect = strings.TrimSpace(redirect)
	if redirect == "" {
		return s.defaultRedirect
	}

	origin := originOf(redirect)
	if origin == "" {
		return s.defaultRedirect
	}
	if s.defaultOrigin != "" && origin != s.defaultOrigin {
		return s.defaultRedirect
	}
	return redirect
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// appendQuery adds params before any fragment of base.
func appendQuery(base string, params url.Values) string {
	fragment := ""
	if i := strings.Index(base, "#"); i >= 0 {
		base, fragment = base[:i], base[i:]
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + params.Encode() + fragment
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
