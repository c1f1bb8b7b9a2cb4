package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/intent"
	"github.com/papertrail/backend/internal/retrieval"
	"github.com/papertrail/backend/pkg/logger"
)

// SearchHandler exposes raw hybrid retrieval without the downstream
// pipeline: no sufficiency gate, no synthesis. Useful for corpus
// exploration and for debugging what evidence a question would pull.
type SearchHandler struct {
	classifier *intent.Classifier
	retriever  *retrieval.Retriever
}

func NewSearchHandler(classifier *intent.Classifier, retriever *retrieval.Retriever) *SearchHandler {
	return &SearchHandler{
		classifier: classifier,
		retriever:  retriever,
	}
}

func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	ir := h.classifier.Classify(req.Query)

	chunks, images, err := h.retriever.Retrieve(c.Context(), req.Query, ir, req.TopK)
	if err != nil {
		logger.Error("Failed to search", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Search failed",
		})
	}

	return c.JSON(fiber.Map{
		"intent":   ir.Intent.String(),
		"sections": ir.AllowedSections,
		"chunks":   chunks,
		"images":   images,
	})
}

func (h *SearchHandler) HandleImageSearch(c *fiber.Ctx) error {
	var req struct {
		Query    string  `json:"query"`
		TopK     int     `json:"top_k"`
		MinScore float64 `json:"min_score"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	images, err := h.retriever.SearchImages(c.Context(), req.Query, req.TopK, req.MinScore)
	if err != nil {
		logger.Error("Failed to search images", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Image search failed",
		})
	}

	return c.JSON(fiber.Map{
		"images": images,
	})
}
