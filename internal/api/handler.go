// Package api provides REST API handlers for items, votes and leaderboards.
package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/internal/notify"
	"github.com/aimd54/community-scoring-engine/internal/service/archive"
	"github.com/aimd54/community-scoring-engine/internal/service/items"
	"github.com/aimd54/community-scoring-engine/internal/service/leaderboard"
	"github.com/aimd54/community-scoring-engine/internal/service/voting"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

// ItemService interface for item operations.
type ItemService interface {
	CreateItem(ctx context.Context, kind models.Kind, in models.NewItem) (*models.Item, error)
	GetItem(ctx context.Context, id string) (*models.Item, error)
	ListPending(ctx context.Context, kind models.Kind, limit int) ([]models.RankedItem, error)
	GetFeatured(ctx context.Context, kind models.Kind, limit int) ([]models.RankedItem, error)
}

// VoteService interface for vote operations.
type VoteService interface {
	ApplyVote(ctx context.Context, itemID, userID string, direction models.Direction) (*voting.VoteResult, error)
}

// LeaderboardService interface for leaderboard operations.
type LeaderboardService interface {
	AddScore(ctx context.Context, window models.Window, userID, displayName string, score int64, powerupUsed bool) (bool, error)
	GetTopEntries(ctx context.Context, window models.Window, limit int, purity models.Purity) ([]models.Entry, error)
	GetUserStats(ctx context.Context, userID string) (*leaderboard.UserStats, error)
}

// ArchiveService interface for archived snapshots.
type ArchiveService interface {
	GetSnapshot(ctx context.Context, board models.BoardID, dateKey string) ([]models.Entry, error)
}

// RunLister interface for maintenance history.
type RunLister interface {
	ListRecent(ctx context.Context, job string, limit int) ([]models.MaintenanceRun, error)
	ListBatch(ctx context.Context, batchID string) ([]models.MaintenanceRun, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler handles API requests.
type Handler struct {
	items       ItemService
	votes       VoteService
	leaderboard LeaderboardService
	archive     ArchiveService
	runs        RunLister
	checks      map[string]HealthCheck
	log         *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	itemService *items.Service,
	voteService *voting.Service,
	leaderboardService *leaderboard.Service,
	archiveService *archive.Service,
	log *logger.Logger,
) *Handler {
	return NewHandlerWithInterfaces(itemService, voteService, leaderboardService, archiveService, log)
}

// NewHandlerWithInterfaces creates a new API handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	itemService ItemService,
	voteService VoteService,
	leaderboardService LeaderboardService,
	archiveService ArchiveService,
	log *logger.Logger,
) *Handler {
	return &Handler{
		items:       itemService,
		votes:       voteService,
		leaderboard: leaderboardService,
		archive:     archiveService,
		checks:      make(map[string]HealthCheck),
		log:         log,
	}
}

// WithRuns enables the maintenance history endpoints.
func (h *Handler) WithRuns(runs RunLister) *Handler {
	h.runs = runs
	return h
}

// AddHealthCheck registers a dependency probed by /health.
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")
	v1.POST("/items", h.CreateItem)
	v1.GET("/items/:id", h.GetItem)
	v1.POST("/items/:id/vote", h.Vote)
	v1.GET("/pending/:kind", h.ListPending)
	v1.GET("/featured/:kind", h.GetFeatured)

	v1.POST("/scores", h.SubmitScore)
	v1.GET("/leaderboard/:window", h.GetLeaderboard)
	v1.GET("/leaderboard/:window/users/:user", h.GetUserStats)
	v1.GET("/leaderboard/:window/archive/:date", h.GetArchive)

	v1.GET("/maintenance/runs", h.ListRuns)
	v1.GET("/maintenance/runs/:batch", h.GetBatch)
}

// RequestID tags every request with an X-Request-ID, keeping one supplied by the client.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

type createItemRequest struct {
	Kind         models.Kind `json:"kind" binding:"required"`
	Name         string      `json:"name"`
	Category     string      `json:"category"`
	AuthorID     string      `json:"author_id" binding:"required"`
	Payload      string      `json:"payload"`
	ThumbnailURL string      `json:"thumbnail_url"`
	OriginPostID string      `json:"origin_post_id"`
}

// CreateItem submits a new drink or component.
// POST /api/v1/items.
func (h *Handler) CreateItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	item, err := h.items.CreateItem(c.Request.Context(), req.Kind, models.NewItem{
		Name:         req.Name,
		Category:     req.Category,
		AuthorID:     req.AuthorID,
		Payload:      req.Payload,
		ThumbnailURL: req.ThumbnailURL,
		OriginPostID: req.OriginPostID,
	})
	if err != nil {
		h.fail(c, err, "Failed to create item")
		return
	}

	c.JSON(http.StatusCreated, item)
}

// GetItem returns one item.
// GET /api/v1/items/:id.
func (h *Handler) GetItem(c *gin.Context) {
	item, err := h.items.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to get item")
		return
	}
	c.JSON(http.StatusOK, item)
}

type voteRequest struct {
	UserID    string           `json:"user_id" binding:"required"`
	Direction models.Direction `json:"direction" binding:"required"`
}

// voteResponse adds a user-facing message when the vote moved the item to another state.
type voteResponse struct {
	*voting.VoteResult
	Message string `json:"message,omitempty"`
}

// transitionMessage describes the final state of a vote's transitions, or "" if there were none.
func transitionMessage(transitions []models.Transition) string {
	if len(transitions) == 0 {
		return ""
	}
	last := transitions[len(transitions)-1]
	label, _ := notify.StateLabel(last.To)
	return fmt.Sprintf("This %s is now %s.", last.Kind, label)
}

// Vote casts or changes a user's vote on an item.
// POST /api/v1/items/:id/vote.
func (h *Handler) Vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	itemID := c.Param("id")
	result, err := h.votes.ApplyVote(c.Request.Context(), itemID, req.UserID, req.Direction)
	if err != nil && result == nil {
		h.fail(c, err, "Failed to apply vote")
		return
	}
	if err != nil {
		// The vote counted but the lifecycle state was not settled.
		h.log.Warn().Err(err).Str("item_id", itemID).Msg("Vote applied with pending state change")
	}

	c.JSON(http.StatusOK, voteResponse{VoteResult: result, Message: transitionMessage(result.Transitions)})
}

// ListPending ranks a kind's pending items.
// GET /api/v1/pending/:kind?limit=50.
func (h *Handler) ListPending(c *gin.Context) {
	h.rankedItems(c, h.items.ListPending)
}

// GetFeatured ranks a kind's featured or approved items.
// GET /api/v1/featured/:kind?limit=50.
func (h *Handler) GetFeatured(c *gin.Context) {
	h.rankedItems(c, h.items.GetFeatured)
}

func (h *Handler) rankedItems(c *gin.Context, list func(context.Context, models.Kind, int) ([]models.RankedItem, error)) {
	kind := models.Kind(c.Param("kind"))
	limit, err := h.parseLimit(c, items.DefaultListLimit)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ranked, err := list(c.Request.Context(), kind, limit)
	if err != nil {
		h.fail(c, err, "Failed to list items")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":         kind,
		"items":        ranked,
		"total_items":  len(ranked),
		"generated_at": time.Now().UTC(),
	})
}

type scoreRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	DisplayName string `json:"display_name"`
	Score       int64  `json:"score"`
	PowerupUsed bool   `json:"powerup_used"`
}

// SubmitScore records a completed run on the daily and weekly boards.
// POST /api/v1/scores.
func (h *Handler) SubmitScore(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.UserID
	}

	ctx := c.Request.Context()
	for _, window := range models.Windows() {
		if _, err := h.leaderboard.AddScore(ctx, window, req.UserID, req.DisplayName, req.Score, req.PowerupUsed); err != nil {
			h.fail(c, err, "Failed to submit score")
			return
		}
	}

	h.log.Info().
		Str("user_id", req.UserID).
		Int64("score", req.Score).
		Bool("powerup_used", req.PowerupUsed).
		Msg("Score submitted")

	c.JSON(http.StatusAccepted, gin.H{"user_id": req.UserID, "score": req.Score})
}

// GetLeaderboard returns a live board.
// GET /api/v1/leaderboard/:window?purity=all&limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	window := models.Window(c.Param("window"))
	purity := models.Purity(c.DefaultQuery("purity", string(models.PurityAll)))
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboard.GetTopEntries(c.Request.Context(), window, limit, purity)
	if err != nil {
		h.fail(c, err, "Failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"window":        window,
		"purity":        purity,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetUserStats returns a user's standings on every live board.
// GET /api/v1/leaderboard/:window/users/:user.
func (h *Handler) GetUserStats(c *gin.Context) {
	window := models.Window(c.Param("window"))
	if !window.Valid() {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid window: %s (valid: daily, weekly)", window))
		return
	}

	stats, err := h.leaderboard.GetUserStats(c.Request.Context(), c.Param("user"))
	if err != nil {
		h.fail(c, err, "Failed to retrieve user statistics")
		return
	}

	standings := make([]leaderboard.Standing, 0, len(stats.Standings))
	stats.BestRank = 0
	for _, st := range stats.Standings {
		if st.Window != window {
			continue
		}
		standings = append(standings, st)
		if stats.BestRank == 0 || st.Rank < stats.BestRank {
			stats.BestRank = st.Rank
		}
	}
	stats.Standings = standings

	c.JSON(http.StatusOK, stats)
}

// GetArchive returns an archived board.
// GET /api/v1/leaderboard/:window/archive/:date?purity=all.
func (h *Handler) GetArchive(c *gin.Context) {
	board := models.BoardID{
		Window: models.Window(c.Param("window")),
		Purity: models.Purity(c.DefaultQuery("purity", string(models.PurityAll))),
	}
	if !board.Window.Valid() || !board.Purity.Valid() {
		h.errorResponse(c, http.StatusBadRequest, "invalid board "+board.String())
		return
	}

	dateKey := c.Param("date")
	entries, err := h.archive.GetSnapshot(c.Request.Context(), board, dateKey)
	if err != nil {
		h.fail(c, err, "Failed to retrieve archived leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"window":        board.Window,
		"purity":        board.Purity,
		"date":          dateKey,
		"total_entries": len(entries),
	})
}

// ListRuns returns recent maintenance task outcomes.
// GET /api/v1/maintenance/runs?job=daily&limit=50.
func (h *Handler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		h.errorResponse(c, http.StatusNotFound, "maintenance history is not recorded")
		return
	}
	limit, err := h.parseLimit(c, 50)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), c.Query("job"), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list maintenance runs")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to list maintenance runs")
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "total_runs": len(runs)})
}

// GetBatch returns every task of one maintenance batch.
// GET /api/v1/maintenance/runs/:batch.
func (h *Handler) GetBatch(c *gin.Context) {
	if h.runs == nil {
		h.errorResponse(c, http.StatusNotFound, "maintenance history is not recorded")
		return
	}

	batchID := c.Param("batch")
	runs, err := h.runs.ListBatch(c.Request.Context(), batchID)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to list maintenance batch")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to list maintenance batch")
		return
	}
	if len(runs) == 0 {
		h.errorResponse(c, http.StatusNotFound, "Batch not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"batch_id": batchID, "runs": runs})
}

// Health probes every registered dependency.
// GET /health.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

// Helper functions

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}

	if limit > 1000 {
		return 0, fmt.Errorf("limit cannot exceed 1000")
	}

	return limit, nil
}

// fail maps a service error to its status code.
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	var limited *models.RateLimitError
	switch {
	case errors.As(err, &limited):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limited.Remaining()))
		h.errorResponse(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, models.ErrRateLimited):
		h.errorResponse(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, models.ErrInvalidInput):
		h.errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		h.errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrStorage):
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		h.errorResponse(c, http.StatusServiceUnavailable, msg)
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		h.errorResponse(c, http.StatusInternalServerError, msg)
	}
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":      message,
		"request_id": c.GetString("request_id"),
		"timestamp":  time.Now().UTC(),
	})
}
