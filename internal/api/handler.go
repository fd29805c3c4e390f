package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/action"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/buffer"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/memory"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/store"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// classifier is the slice of the telemetry classifier the API needs.
type classifier interface {
	Ingest(sample telemetry.Sample) telemetry.Classification
	State(userID string) telemetry.CognitiveState
	Score(userID string) float64
}

// actionRouter routes decoded action requests.
type actionRouter interface {
	Route(ctx context.Context, req *action.Request) *action.Result
}

// memoryStore is the slice of the semantic memory store the API needs.
type memoryStore interface {
	UpsertBatch(ctx context.Context, entries []memory.Entry) ([]string, error)
	Search(ctx context.Context, query, userID string, threshold float64, topK int) ([]memory.SearchResult, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

// auditLog reads back persisted transitions. Writes happen on the
// transition path, not through the API.
type auditLog interface {
	RecentTransitions(ctx context.Context, userID string, limit int) ([]store.TransitionRecord, error)
	RecordAction(ctx context.Context, userID string, reqType action.RequestType, res *action.Result) error
}

// heldBuffer lists communications waiting for a user.
type heldBuffer interface {
	List(ctx context.Context, userID string) ([]buffer.HeldMessage, error)
}

// Handler holds dependencies for HTTP handlers. The optional backends are
// attached with setters; routes backed by an absent one answer 503.
type Handler struct {
	classifier classifier
	actions    actionRouter
	memories   memoryStore
	audit      auditLog
	held       heldBuffer
	logger     *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(c classifier, actions actionRouter, logger *zap.Logger) *Handler {
	return &Handler{
		classifier: c,
		actions:    actions,
		logger:     logger,
	}
}

// SetMemoryStore attaches the semantic memory backend.
func (h *Handler) SetMemoryStore(m memoryStore) { h.memories = m }

// SetAuditLog attaches the transition/action audit backend.
func (h *Handler) SetAuditLog(a auditLog) { h.audit = a }

// SetHeldBuffer attaches the held-message buffer.
func (h *Handler) SetHeldBuffer(b heldBuffer) { h.held = b }

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Telemetry routes
		r.Post("/telemetry", h.ingestTelemetry)
		r.Get("/users/{userID}/state", h.getUserState)
		r.Get("/users/{userID}/transitions", h.getUserTransitions)
		r.Get("/users/{userID}/held", h.getHeldMessages)

		// Action routes
		r.Post("/actions", h.routeAction)

		// Memory routes
		r.Post("/memories", h.createMemory)
		r.Post("/memories/search", h.searchMemories)
		r.Delete("/memories/{id}", h.deleteMemory)
		r.Delete("/users/{userID}/memories", h.deleteUserMemories)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type telemetryRequest struct {
	UserID     string             `json:"user_id"`
	CapturedAt time.Time          `json:"captured_at"`
	Signals    map[string]float64 `json:"signals"`
}

func (h *Handler) ingestTelemetry(w http.ResponseWriter, r *http.Request) {
	var req telemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	if req.CapturedAt.IsZero() {
		req.CapturedAt = time.Now()
	}

	c := h.classifier.Ingest(telemetry.Sample{
		UserID:     req.UserID,
		CapturedAt: req.CapturedAt,
		Signals:    req.Signals,
	})
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) getUserState(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"state":   string(h.classifier.State(userID)),
		"score":   h.classifier.Score(userID),
	})
}

func (h *Handler) getUserTransitions(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit store not configured"})
		return
	}
	userID := chi.URLParam(r, "userID")
	records, err := h.audit.RecentTransitions(r.Context(), userID, 50)
	if err != nil {
		h.logger.Error("transition query failed", zap.String("user", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if records == nil {
		records = []store.TransitionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) getHeldMessages(w http.ResponseWriter, r *http.Request) {
	if h.held == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "message buffer not configured"})
		return
	}
	userID := chi.URLParam(r, "userID")
	msgs, err := h.held.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("held message query failed", zap.String("user", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if msgs == nil {
		msgs = []buffer.HeldMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) routeAction(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	req, err := action.DecodeRequest(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	res := h.actions.Route(r.Context(), req)

	if h.audit != nil {
		if err := h.audit.RecordAction(r.Context(), req.UserID, req.Type, res); err != nil {
			h.logger.Warn("action audit write failed",
				zap.String("user", req.UserID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, res)
}

type memoryCreateRequest struct {
	UserID   string            `json:"user_id"`
	Content  string            `json:"content"`
	Summary  string            `json:"summary,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// createMemory accepts a single entry object or an array of them.
func (h *Handler) createMemory(w http.ResponseWriter, r *http.Request) {
	if h.memories == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "memory store not configured"})
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var reqs []memoryCreateRequest
	batch := true
	if err := json.Unmarshal(raw, &reqs); err != nil {
		batch = false
		var single memoryCreateRequest
		if err := json.Unmarshal(raw, &single); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		reqs = []memoryCreateRequest{single}
	}
	if len(reqs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty batch"})
		return
	}

	entries := make([]memory.Entry, 0, len(reqs))
	for _, req := range reqs {
		if req.UserID == "" || req.Content == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and content are required"})
			return
		}
		entries = append(entries, memory.Entry{
			UserID:   req.UserID,
			Content:  req.Content,
			Summary:  req.Summary,
			Metadata: req.Metadata,
		})
	}

	ids, err := h.memories.UpsertBatch(r.Context(), entries)
	if err != nil {
		h.logger.Error("memory upsert failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if batch {
		writeJSON(w, http.StatusCreated, map[string]interface{}{"ids": ids})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": ids[0]})
}

type memorySearchRequest struct {
	UserID    string  `json:"user_id"`
	Query     string  `json:"query"`
	Threshold float64 `json:"threshold,omitempty"`
	TopK      int     `json:"top_k,omitempty"`
}

func (h *Handler) searchMemories(w http.ResponseWriter, r *http.Request) {
	if h.memories == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "memory store not configured"})
		return
	}
	var req memorySearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	results, err := h.memories.Search(r.Context(), req.Query, req.UserID, req.Threshold, req.TopK)
	if err != nil {
		h.logger.Error("memory search failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if results == nil {
		results = []memory.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) deleteMemory(w http.ResponseWriter, r *http.Request) {
	if h.memories == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "memory store not configured"})
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.memories.Delete(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) deleteUserMemories(w http.ResponseWriter, r *http.Request) {
	if h.memories == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "memory store not configured"})
		return
	}
	userID := chi.URLParam(r, "userID")
	if err := h.memories.DeleteAllForUser(r.Context(), userID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
