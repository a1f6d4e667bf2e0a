package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/Still-River/river/internal/api/middleware"
	"github.com/Still-River/river/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxSaveBodyBytes = 1 << 20

type JournalHandler struct {
	journalService *service.JournalService
}

func NewJournalHandler(journalService *service.JournalService) *JournalHandler {
	return &JournalHandler{journalService: journalService}
}

type JournalListResponse struct {
	Journals []service.JournalSummary `json:"journals"`
}

func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	journals, err := h.journalService.ListJournals(r.Context())
	if err != nil {
		log.Printf("ERROR [journal.List] failed to list journals: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to load journals.")
		return
	}
	writeJSON(w, http.StatusOK, JournalListResponse{Journals: journals})
}

func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	auth := middleware.AuthContext(r.Context())

	view, err := h.journalService.GetJournalView(r.Context(), auth, identifier)
	if err != nil {
		h.writeServiceError(w, "journal.Get", identifier, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *JournalHandler) SaveResponses(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	auth := middleware.AuthContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSaveBodyBytes))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_payload", "Expected JSON body.")
		return
	}

	result, err := h.journalService.SaveProgress(r.Context(), auth, identifier, body)
	if err != nil {
		h.writeServiceError(w, "journal.SaveResponses", identifier, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *JournalHandler) writeServiceError(w http.ResponseWriter, op, identifier string, err error) {
	switch {
	case errors.Is(err, service.ErrJournalNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Journal not found")
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorised", "Sign in to save journal responses.")
	case errors.Is(err, service.ErrInvalidPayload):
		writeError(w, http.StatusUnprocessableEntity, "invalid_payload", err.Error())
	default:
		log.Printf("ERROR [%s] journal=%s: %v", op, identifier, err)
		writeError(w, http.StatusInternalServerError, "server_error", "Something went wrong while saving your journal.")
	}
}
