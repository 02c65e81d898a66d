package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/match-lifecycle/internal/auth"
	"github.com/match-lifecycle/internal/domain"
	"github.com/match-lifecycle/internal/metrics"
	"github.com/match-lifecycle/internal/service"
	"github.com/match-lifecycle/internal/websocket"
)

// Services groups the application services exposed over HTTP
type Services struct {
	Queue       *service.QueueService
	Matchmaking *service.MatchmakingService
	Approval    *service.ApprovalService
	Completion  *service.CompletionService
	Ranking     *service.RankingService
}

// Handler provides HTTP handlers for the match lifecycle API
type Handler struct {
	services Services
	hub      *websocket.Hub
	auth     *auth.Authenticator
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(services Services, hub *websocket.Hub, authn *auth.Authenticator, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		services: services,
		hub:      hub,
		auth:     authn,
		metrics:  m,
		logger:   logger.With("component", "http"),
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", h.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware(h.writeAuthError))

		// WebSocket endpoint
		r.Get("/ws", h.HandleWebSocket)

		// API v1 routes
		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/queue", func(r chi.Router) {
				r.Post("/", h.JoinQueue)
				r.Delete("/", h.LeaveQueue)
				r.Get("/me", h.GetQueueEntry)
			})

			r.Post("/matchmaking/sweep", h.RunSweep)

			r.Route("/matches/{matchID}", func(r chi.Router) {
				r.Get("/", h.GetMatch)
				r.Post("/votes", h.CastVote)
				r.Post("/schedule", h.ConfirmSchedule)
				r.Post("/result", h.SubmitResult)
			})

			r.Get("/players/{playerID}/history", h.GetHistory)
			r.Get("/regions/{state}/{city}/top", h.GetTop)

			// WebSocket info endpoint
			r.Get("/ws/stats", h.GetWebSocketStats)
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, status int, data any) {
	h.writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError maps an error kind to its status code and writes the envelope.
// Errors of no known kind are reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	message := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		message = "internal error"
		fallthrough
	case status >= 500:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	default:
		h.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   message,
	})
}

func (h *Handler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeError(w, r, err)
}

// StatusFor returns the HTTP status of an error kind
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrConflict:
		return http.StatusConflict
	case domain.ErrInvalid:
		return http.StatusBadRequest
	case domain.ErrDependency:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeBody decodes a JSON request body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", domain.ErrInvalid, err)
	}
	return nil
}

// caller returns the authenticated player
func caller(r *http.Request) (string, error) {
	return auth.PlayerID(r.Context())
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	playerID, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	websocket.ServeWs(h.hub, playerID, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, http.StatusOK, map[string]any{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// JoinQueue puts the caller (and optionally a partner) in the waiting pool
func (h *Handler) JoinQueue(w http.ResponseWriter, r *http.Request) {
	playerID, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req domain.JoinRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.PlayerID = playerID

	entry, err := h.services.Queue.JoinQueue(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusCreated, entry)
}

// LeaveQueue cancels the caller's active queue entry
func (h *Handler) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	playerID, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.services.Queue.LeaveQueue(r.Context(), playerID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]string{"status": "left"})
}

// GetQueueEntry returns the caller's active queue entry
func (h *Handler) GetQueueEntry(w http.ResponseWriter, r *http.Request) {
	playerID, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entry, err := h.services.Queue.ActiveEntry(r.Context(), playerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, entry)
}

// RunSweep runs a matchmaking sweep immediately
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	matches, err := h.services.Matchmaking.RunSweep(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if matches == nil {
		matches = []domain.Match{}
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{
		"proposals": len(matches),
		"matches":   matches,
	})
}

// GetMatch returns a match to one of its participants
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	playerID, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	match, err := h.services.Approval.GetMatch(r.Context(), chi.URLParam(r, "matchID"), playerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, match)
}

// CastVote records the caller's approval or rejection of a proposed match
func (h *Handler) CastVote(w http.ResponseWriter, r *http.Request) {
	playerID, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		Approved *bool `json:"approved"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Approved == nil {
		h.writeError(w, r, fmt.Errorf("%w: approved is required", domain.ErrInvalid))
		return
	}

	result, err := h.services.Approval.CastVote(r.Context(), domain.VoteRequest{
		MatchID:  chi.URLParam(r, "matchID"),
		PlayerID: playerID,
		Approved: *req.Approved,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, result)
}

// ConfirmSchedule lets the captain fix the match time
func (h *Handler) ConfirmSchedule(w http.ResponseWriter, r *http.Request) {
	playerID, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req domain.ScheduleRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.At.IsZero() {
		h.writeError(w, r, fmt.Errorf("%w: at is required", domain.ErrInvalid))
		return
	}
	req.MatchID = chi.URLParam(r, "matchID")
	req.PlayerID = playerID

	match, err := h.services.Approval.ConfirmSchedule(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, match)
}

// SubmitResult reports the final score of a played match
func (h *Handler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	playerID, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req domain.ResultRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.MatchID = chi.URLParam(r, "matchID")
	req.PlayerID = playerID

	deltas, err := h.services.Completion.SubmitResult(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, deltas)
}

// GetHistory returns a player's rating history, newest first
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	records, err := h.services.Ranking.History(r.Context(), chi.URLParam(r, "playerID"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.RankingHistoryRecord{}
	}
	h.writeSuccess(w, http.StatusOK, records)
}

// GetTop returns a region's top graduated players
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	region := domain.Region{State: chi.URLParam(r, "state"), City: chi.URLParam(r, "city")}
	entries, err := h.services.Ranking.GetTopN(r.Context(), region, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.RankingEntry{}
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{
		"region":  region.Key(),
		"entries": entries,
	})
}

// queryInt parses an optional integer query parameter; absent means 0
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalid, name)
	}
	return v, nil
}

