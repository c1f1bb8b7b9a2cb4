package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/pipeline"
	"github.com/papertrail/backend/internal/storage/sqlite"
	"github.com/papertrail/backend/pkg/logger"
)

// ReviewHandler is the human side of the review loop: list what is waiting,
// then resolve one item with a decision. Resolution replays the persisted
// evidence through the orchestrator rather than re-running retrieval.
type ReviewHandler struct {
	orchestrator *pipeline.Orchestrator
	store        *sqlite.Client
}

func NewReviewHandler(orchestrator *pipeline.Orchestrator, store *sqlite.Client) *ReviewHandler {
	return &ReviewHandler{
		orchestrator: orchestrator,
		store:        store,
	}
}

func (h *ReviewHandler) ListPending(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	reviews, err := h.store.ListPendingReviews(limit)
	if err != nil {
		logger.Error("Failed to list pending reviews", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list pending reviews",
		})
	}

	items := make([]fiber.Map, 0, len(reviews))
	for _, r := range reviews {
		items = append(items, fiber.Map{
			"id":         r.ID,
			"session_id": r.SessionID,
			"question":   r.Question,
			"intent":     r.Intent,
			"from_stage": r.FromStage,
			"reason":     r.Reason,
			"created_at": r.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"reviews": items,
	})
}

func (h *ReviewHandler) GetReview(c *fiber.Ctx) error {
	id := c.Params("id")

	review, err := h.store.GetPendingReview(id)
	if err != nil {
		logger.Error("Failed to get review", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get review",
		})
	}
	if review == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Review not found or already resolved",
		})
	}

	return c.JSON(review)
}

func (h *ReviewHandler) ResolveReview(c *fiber.Ctx) error {
	id := c.Params("id")

	var req struct {
		Decision string `json:"decision"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	review, err := h.store.GetPendingReview(id)
	if err != nil {
		logger.Error("Failed to load review", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load review",
		})
	}
	if review == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Review not found or already resolved",
		})
	}

	outcome, err := h.orchestrator.Resolve(review, pipeline.ReviewDecision(req.Decision))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.store.MarkReviewResolved(id, req.Decision); err != nil {
		logger.Error("Failed to mark review resolved", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to mark review resolved",
		})
	}

	return c.JSON(outcome)
}
