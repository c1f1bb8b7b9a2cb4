package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/pipeline"
	"github.com/papertrail/backend/internal/storage/models"
	"github.com/papertrail/backend/internal/storage/sqlite"
	"github.com/papertrail/backend/pkg/logger"
)

type WebSocketHandler struct {
	orchestrator *pipeline.Orchestrator
	store        *sqlite.Client
}

func NewWebSocketHandler(orchestrator *pipeline.Orchestrator, store *sqlite.Client) *WebSocketHandler {
	return &WebSocketHandler{
		orchestrator: orchestrator,
		store:        store,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			Content   string `json:"content"`
			SessionID string `json:"session_id"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "query" {
			continue
		}

		logger.Info("Processing WebSocket query", zap.String("question", msg.Content))

		err = h.streamOutcome(c, msg.Content, msg.SessionID)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process question")
		}
	}
}

func (h *WebSocketHandler) streamOutcome(c *websocket.Conn, question, sessionID string) error {
	ctx := context.Background()

	h.sendChunk(c, "status", "Retrieving evidence...")

	outcome, err := h.orchestrator.Answer(ctx, pipeline.Question{
		Text:      question,
		SessionID: sessionID,
	})
	if err != nil {
		return err
	}

	if outcome.Result != nil {
		words := splitIntoWords(outcome.Result.Answer)
		for i, word := range words {
			chunk := word
			if i < len(words)-1 {
				chunk += " "
			}

			if err := h.sendChunk(c, "chunk", chunk); err != nil {
				return err
			}
		}
	}

	h.persistExchange(question, sessionID, outcome)

	return h.sendComplete(c, outcome)
}

func (h *WebSocketHandler) persistExchange(question, sessionID string, outcome *pipeline.Outcome) {
	if sessionID == "" {
		return
	}

	now := time.Now().UTC()
	if err := h.store.AppendMessage(&models.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      "user",
		Content:   question,
		CreatedAt: now,
	}); err != nil {
		logger.Warn("Failed to persist user message", zap.Error(err))
		return
	}

	answer := ""
	if outcome.Result != nil {
		answer = outcome.Result.Answer
	} else if outcome.RefusalReason != "" {
		answer = outcome.RefusalReason
	}
	if answer == "" {
		return
	}

	if err := h.store.AppendMessage(&models.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      "assistant",
		Content:   answer,
		CreatedAt: now,
	}); err != nil {
		logger.Warn("Failed to persist assistant message", zap.Error(err))
	}

	if err := h.store.TouchSession(sessionID); err != nil {
		logger.Warn("Failed to touch session", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, outcome *pipeline.Outcome) error {
	msg := map[string]interface{}{
		"type":       "complete",
		"request_id": outcome.RequestID,
		"kind":       string(outcome.Kind),
		"intent":     outcome.Intent.String(),
		"latency_ms": outcome.LatencyMS,
	}
	if outcome.Result != nil {
		msg["citations"] = outcome.Result.Citations
		msg["confidence"] = outcome.Result.Confidence
	}
	if outcome.Escalation != nil {
		msg["escalation"] = outcome.Escalation
	}
	if outcome.RefusalReason != "" {
		msg["refusal_reason"] = outcome.RefusalReason
	}
	if outcome.ReviewID != "" {
		msg["review_id"] = outcome.ReviewID
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
