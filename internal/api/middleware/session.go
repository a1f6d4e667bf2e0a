package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/Still-River/river/internal/domain"
	"github.com/Still-River/river/internal/service"
)

type contextKey string

const (
	SessionKey contextKey = "session"
)

// Session resolves the session cookie into the request context. Requests
// without a valid session continue anonymously; an invalid cookie is
// cleared.
func Session(sessions *service.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessions.CookieName())
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := sessions.Resolve(r.Context(), cookie.Value)
			if err != nil {
				if !errors.Is(err, service.ErrInvalidSession) && !errors.Is(err, service.ErrSessionExpired) {
					log.Printf("ERROR [middleware.Session] failed to resolve session: %v", err)
				}
				http.SetCookie(w, sessions.ExpiredCookie())
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), SessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetSession(ctx context.Context) (*domain.UserSession, bool) {
	session, ok := ctx.Value(SessionKey).(*domain.UserSession)
	return session, ok && session != nil
}

// AuthContext derives the caller identity from the request session.
func AuthContext(ctx context.Context) service.AuthContext {
	session, ok := GetSession(ctx)
	if !ok || session.UserID == nil {
		return service.Anonymous()
	}
	return service.AuthFor(*session.UserID)
}
