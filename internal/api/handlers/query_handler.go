package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/cache/redis"
	"github.com/papertrail/backend/internal/pipeline"
	"github.com/papertrail/backend/internal/storage/models"
	"github.com/papertrail/backend/internal/storage/sqlite"
	"github.com/papertrail/backend/pkg/logger"
	"github.com/papertrail/backend/pkg/utils"
)

const outcomeTTL = time.Hour

type QueryHandler struct {
	orchestrator *pipeline.Orchestrator
	store        *sqlite.Client
	cache        *redis.Client
}

func NewQueryHandler(orchestrator *pipeline.Orchestrator, store *sqlite.Client, cache *redis.Client) *QueryHandler {
	return &QueryHandler{
		orchestrator: orchestrator,
		store:        store,
		cache:        cache,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Question  string `json:"question"`
		SessionID string `json:"session_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}

	questionHash := utils.HashString(req.Question)
	if h.cache != nil {
		var cached pipeline.Outcome
		hit, err := h.cache.GetOutcome(c.Context(), questionHash, &cached)
		if err != nil {
			logger.Warn("Outcome cache lookup failed", zap.Error(err))
		} else if hit {
			return c.JSON(cached)
		}
	}

	outcome, err := h.orchestrator.Answer(c.Context(), pipeline.Question{
		Text:      req.Question,
		SessionID: req.SessionID,
	})
	if err != nil {
		logger.Error("Failed to process question", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process question",
		})
	}

	h.record(req.Question, req.SessionID, outcome)

	// Only settled answers are cacheable; escalations and suspensions
	// depend on reviewer state.
	if h.cache != nil && outcome.Kind == pipeline.OutcomeAnswered {
		if err := h.cache.SetOutcome(c.Context(), questionHash, outcome, outcomeTTL); err != nil {
			logger.Warn("Failed to cache outcome", zap.Error(err))
		}
	}

	return c.JSON(outcome)
}

func (h *QueryHandler) record(question, sessionID string, outcome *pipeline.Outcome) {
	record := &models.QueryRecord{
		ID:        outcome.RequestID,
		SessionID: sessionID,
		QueryText: question,
		Intent:    outcome.Intent.String(),
		Outcome:   string(outcome.Kind),
		LatencyMS: outcome.LatencyMS,
		Escalated: outcome.Escalation != nil,
		CreatedAt: time.Now().UTC(),
	}
	if outcome.Result != nil {
		record.Answer = outcome.Result.Answer
		record.Confidence = outcome.Result.Confidence
		record.ChunksUsed = len(outcome.Result.Citations)
	}
	record.ImagesUsed = len(outcome.Images)

	if err := h.store.InsertQueryRecord(record); err != nil {
		logger.Warn("Failed to record query", zap.Error(err))
	}
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	limit := c.QueryInt("limit", 20)

	records, err := h.store.GetQueryHistory(sessionID, limit)
	if err != nil {
		logger.Error("Failed to get query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get query history",
		})
	}

	history := make([]fiber.Map, 0, len(records))
	for _, r := range records {
		history = append(history, fiber.Map{
			"id":         r.ID,
			"question":   r.QueryText,
			"intent":     r.Intent,
			"outcome":    r.Outcome,
			"answer":     r.Answer,
			"confidence": r.Confidence,
			"latency_ms": r.LatencyMS,
			"created_at": r.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"history": history,
	})
}

func (h *QueryHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req struct {
		QueryID       string `json:"query_id"`
		Helpful       bool   `json:"helpful"`
		IssueCategory string `json:"issue_category"`
		Comment       string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.QueryID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query_id is required",
		})
	}

	err := h.store.StoreFeedback(&models.Feedback{
		QueryID:       req.QueryID,
		Helpful:       req.Helpful,
		IssueCategory: req.IssueCategory,
		Comment:       req.Comment,
	})
	if err != nil {
		logger.Error("Failed to store feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Feedback recorded",
	})
}
