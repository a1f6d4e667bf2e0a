package handlers

import (
	"net/http"
	"time"
)

type HealthResponse struct {
	Service   string `json:"service"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Service:   "river-api",
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
