package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/Still-River/river/internal/api/middleware"
	"github.com/Still-River/river/internal/service"
	"github.com/Still-River/river/internal/websocket"
	"github.com/go-chi/chi/v5"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub            *websocket.Hub
	journalService *service.JournalService
	upgrader       ws.Upgrader
}

func NewWebSocketHandler(hub *websocket.Hub, journalService *service.JournalService, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &WebSocketHandler{
		hub:            hub,
		journalService: journalService,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}
}

// Events streams PROGRESS_SAVED notifications for the signed-in user. The
// stream carries saves of every journal; payloads name their journal.
func (h *WebSocketHandler) Events(w http.ResponseWriter, r *http.Request) {
	auth := middleware.AuthContext(r.Context())
	if !auth.Authenticated() {
		writeError(w, http.StatusUnauthorized, "unauthorised", "Sign in to receive journal updates.")
		return
	}

	identifier := chi.URLParam(r, "identifier")
	if _, err := h.journalService.GetJournalView(r.Context(), service.Anonymous(), identifier); err != nil {
		if errors.Is(err, service.ErrJournalNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Journal not found")
			return
		}
		log.Printf("ERROR [websocket.Events] journal=%s: %v", identifier, err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to load journal.")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, auth.UserID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
