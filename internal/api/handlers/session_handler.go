package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/storage/models"
	"github.com/papertrail/backend/internal/storage/sqlite"
	"github.com/papertrail/backend/pkg/logger"
)

type SessionHandler struct {
	store *sqlite.Client
}

func NewSessionHandler(store *sqlite.Client) *SessionHandler {
	return &SessionHandler{store: store}
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req struct {
		Title string `json:"title"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Title == "" {
		req.Title = "New session"
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.New().String(),
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateSession(session); err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":         session.ID,
		"title":      session.Title,
		"created_at": session.CreatedAt,
	})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	sessions, err := h.store.ListSessions(limit)
	if err != nil {
		logger.Error("Failed to list sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sessions",
		})
	}

	items := make([]fiber.Map, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, fiber.Map{
			"id":         s.ID,
			"title":      s.Title,
			"created_at": s.CreatedAt,
			"updated_at": s.UpdatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"sessions": items,
	})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	id := c.Params("id")

	session, err := h.store.GetSession(id)
	if err != nil {
		logger.Error("Failed to get session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get session",
		})
	}
	if session == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	messages, err := h.store.GetMessages(id, 200)
	if err != nil {
		logger.Error("Failed to get session messages", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get session messages",
		})
	}

	msgs := make([]fiber.Map, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, fiber.Map{
			"id":         m.ID,
			"role":       m.Role,
			"content":    m.Content,
			"created_at": m.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"id":         session.ID,
		"title":      session.Title,
		"created_at": session.CreatedAt,
		"updated_at": session.UpdatedAt,
		"messages":   msgs,
	})
}

func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.store.DeleteSession(id); err != nil {
		logger.Error("Failed to delete session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete session",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Session deleted",
	})
}
