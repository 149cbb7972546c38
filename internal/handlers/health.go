package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks connectivity to the snapshot store
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles GET /health
type HealthHandler struct {
	store Pinger
	now   func() time.Time
}

// NewHealthHandler creates a new handler for the given store
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store, now: time.Now}
}

// HealthResponse is the JSON response for GET /health
type HealthResponse struct {
	Status    string    `json:"status"`   // "ok", "error"
	Database  string    `json:"database"` // "connected", "disconnected"
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// GetHealth handles GET /health
// Returns 503 when the store cannot be reached
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Database:  "disconnected",
			Timestamp: h.now().UTC(),
			Error:     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Database:  "connected",
		Timestamp: h.now().UTC(),
	})
}
