// Package api exposes the coach over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/xaenox/pace-bot/internal/coach"
	"github.com/xaenox/pace-bot/internal/models"
	"go.uber.org/zap"
)

const (
	maxBodyBytes        = 64 << 10
	defaultJournalLimit = 20
)

// Handler serves chat turns and session inspection.
type Handler struct {
	coach  *coach.Coach
	logger *zap.Logger
}

func NewHandler(c *coach.Coach, logger *zap.Logger) *Handler {
	return &Handler{coach: c, logger: logger}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers chat and session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.Chat)
	r.Get("/stats", h.Stats)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/context", h.GetContext)
		r.Get("/journal", h.GetJournal)
		r.Delete("/", h.DeleteSession)
	})
}

// Chat runs one turn. A request without session_id starts a new session whose
// id is returned in the response.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	JSON(w, http.StatusOK, h.coach.HandleTurn(r.Context(), req))
}

type contextResponse struct {
	SessionID      string        `json:"session_id"`
	DerivedContext string        `json:"derived_context"`
	Turns          []models.Turn `json:"turns"`
	LastAccessed   time.Time     `json:"last_accessed"`
}

func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := h.coach.Sessions().Get(id)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	JSON(w, http.StatusOK, contextResponse{
		SessionID:      id,
		DerivedContext: sess.DerivedContext(),
		Turns:          sess.Turns(),
		LastAccessed:   sess.LastAccessed(),
	})
}

// GetJournal lists the newest turn records of a session.
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	journal := h.coach.Journal()
	if journal == nil {
		Error(w, http.StatusNotFound, "journal disabled")
		return
	}

	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := journal.GetSessionTurns(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.logger.Error("Failed to read journal", zap.Error(err))
		Error(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	if records == nil {
		records = []*models.TurnRecord{}
	}
	JSON(w, http.StatusOK, records)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.coach.Sessions().Delete(id) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	h.logger.Info("Session reset", zap.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// Stats returns how many turns ended in each outcome.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	journal := h.coach.Journal()
	if journal == nil {
		Error(w, http.StatusNotFound, "journal disabled")
		return
	}

	counts, err := journal.OutcomeCounts(r.Context())
	if err != nil {
		h.logger.Error("Failed to count outcomes", zap.Error(err))
		Error(w, http.StatusInternalServerError, "failed to count outcomes")
		return
	}

	out := make(map[models.Outcome]int, len(models.Outcomes()))
	for _, o := range models.Outcomes() {
		out[o] = counts[o]
	}
	JSON(w, http.StatusOK, out)
}
