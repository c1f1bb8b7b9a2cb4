package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Use(Middleware(cfg))
	app.Post("/api/v1/query", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func postQuery(t *testing.T, app *fiber.App, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestQuestionsWithEnglishVerbsPass(t *testing.T) {
	app := newTestApp(Config{})

	questions := []string{
		"What datasets did the authors create?",
		"How do the authors select baselines?",
		"Did they update the model between experiments?",
		"Which layers can we drop without losing accuracy?",
		"Is the manuscript describing an ablation study?",
	}

	for _, q := range questions {
		status := postQuery(t, app, `{"question": "`+q+`"}`)
		assert.Equal(t, fiber.StatusOK, status, "question %q", q)
	}
}

func TestMarkupInjectionRejected(t *testing.T) {
	app := newTestApp(Config{})

	for _, q := range []string{
		"<script>alert(1)</script>",
		"see javascript:alert(1)",
		"<img onerror=steal()>",
	} {
		status := postQuery(t, app, `{"question": "`+q+`"}`)
		assert.Equal(t, fiber.StatusBadRequest, status, "question %q", q)
	}
}

func TestQuestionRequired(t *testing.T) {
	app := newTestApp(Config{})

	assert.Equal(t, fiber.StatusBadRequest, postQuery(t, app, `{}`))
	assert.Equal(t, fiber.StatusBadRequest, postQuery(t, app, `{"question": 42}`))
	assert.Equal(t, fiber.StatusBadRequest, postQuery(t, app, `not json`))
}

func TestQuestionLengthLimit(t *testing.T) {
	app := newTestApp(Config{MaxQuestionLength: 20})

	assert.Equal(t, fiber.StatusOK, postQuery(t, app, `{"question": "short enough"}`))
	assert.Equal(t, fiber.StatusBadRequest, postQuery(t, app, `{"question": "`+strings.Repeat("a", 30)+`"}`))
}

func TestContentTypeEnforced(t *testing.T) {
	app := newTestApp(Config{})

	req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(`{"question": "hello"}`))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)
}
