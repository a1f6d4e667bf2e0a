package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/Still-River/river/internal/api/middleware"
	"github.com/Still-River/river/internal/domain"
	"github.com/Still-River/river/internal/oauth"
	"github.com/Still-River/river/internal/service"
)

type AuthHandler struct {
	authService    *service.AuthService
	sessionService *service.SessionService
}

func NewAuthHandler(authService *service.AuthService, sessionService *service.SessionService) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		sessionService: sessionService,
	}
}

type AuthURLResponse struct {
	AuthURL string `json:"authUrl"`
}

type UserResponse struct {
	ID        uint    `json:"id"`
	Email     string  `json:"email"`
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
}

type MeResponse struct {
	User *UserResponse `json:"user"`
}

type LogoutResponse struct {
	LoggedOut bool `json:"loggedOut"`
}

func (h *AuthHandler) GoogleURL(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.GetSession(r.Context())

	start, err := h.authService.BeginGoogleLogin(r.Context(), session, r.URL.Query().Get("redirect"))
	if start != nil && start.Created {
		if !h.setSessionCookie(w, start.Session) {
			return
		}
	}
	if err != nil {
		if errors.Is(err, oauth.ErrConfiguration) {
			writeError(w, http.StatusInternalServerError, "configuration_error", err.Error())
			return
		}
		log.Printf("ERROR [auth.GoogleURL] failed to start login: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to start Google sign-in.")
		return
	}

	writeJSON(w, http.StatusOK, AuthURLResponse{AuthURL: start.AuthURL})
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.GetSession(r.Context())
	query := r.URL.Query()

	result, err := h.authService.CompleteGoogleLogin(r.Context(), session, service.CallbackParams{
		State: query.Get("state"),
		Code:  query.Get("code"),
		Error: query.Get("error"),
	})
	if err != nil {
		log.Printf("ERROR [auth.GoogleCallback] failed to complete login: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to complete Google sign-in.")
		return
	}

	if result.Session != nil {
		if !h.setSessionCookie(w, result.Session) {
			return
		}
	}
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.GetSession(r.Context())

	user, err := h.authService.CurrentUser(r.Context(), session)
	if err != nil {
		log.Printf("ERROR [auth.Me] failed to load user: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to load the current user.")
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{User: toUserResponse(user)})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.GetSession(r.Context())

	if err := h.authService.Logout(r.Context(), session); err != nil {
		log.Printf("ERROR [auth.Logout] failed to delete session: %v", err)
	}
	http.SetCookie(w, h.sessionService.ExpiredCookie())
	writeJSON(w, http.StatusOK, LogoutResponse{LoggedOut: true})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *domain.UserSession) bool {
	cookie, err := h.sessionService.Cookie(session)
	if err != nil {
		log.Printf("ERROR [auth.setSessionCookie] failed to sign session: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to create session.")
		return false
	}
	http.SetCookie(w, cookie)
	return true
}

func toUserResponse(user *domain.User) *UserResponse {
	if user == nil {
		return nil
	}
	return &UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}
}
