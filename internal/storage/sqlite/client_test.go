package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/pipeline"
	"github.com/papertrail/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(":memory:")
	require.NoError(t, err)
	require.NoError(t, client.InitSchema())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSessionLifecycle(t *testing.T) {
	client := newTestClient(t)

	now := time.Now()
	session := &models.Session{ID: "s-1", Title: "Transformer questions", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, client.CreateSession(session))

	got, err := client.GetSession("s-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Transformer questions", got.Title)

	sessions, err := client.ListSessions(10)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	require.NoError(t, client.DeleteSession("s-1"))
	got, err = client.GetSession("s-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetSessionMissingReturnsNil(t *testing.T) {
	client := newTestClient(t)

	got, err := client.GetSession("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMessagesOrderedBySession(t *testing.T) {
	client := newTestClient(t)

	now := time.Now()
	require.NoError(t, client.CreateSession(&models.Session{ID: "s-1", Title: "x", CreatedAt: now, UpdatedAt: now}))

	require.NoError(t, client.AppendMessage(&models.Message{
		ID: "m-1", SessionID: "s-1", Role: "user", Content: "What are the limitations?", CreatedAt: now,
	}))
	require.NoError(t, client.AppendMessage(&models.Message{
		ID: "m-2", SessionID: "s-1", Role: "assistant", Content: "The authors state...", CreatedAt: now.Add(time.Second),
	}))

	messages, err := client.GetMessages("s-1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "assistant", messages[1].Role)
}

func TestQueryHistoryRoundTrip(t *testing.T) {
	client := newTestClient(t)

	record := &models.QueryRecord{
		ID:         "q-1",
		SessionID:  "s-1",
		QueryText:  "What accuracy did the model achieve?",
		Intent:     "results",
		Outcome:    "answered",
		Answer:     "BLEU of 28.4.",
		Confidence: 0.85,
		ChunksUsed: 4,
		LatencyMS:  120,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, client.InsertQueryRecord(record))

	history, err := client.GetQueryHistory("s-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "results", history[0].Intent)
	assert.Equal(t, "answered", history[0].Outcome)
	assert.InDelta(t, 0.85, history[0].Confidence, 1e-9)
}

func TestFeedbackRequiresQuery(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.InsertQueryRecord(&models.QueryRecord{
		ID: "q-1", QueryText: "q", CreatedAt: time.Now(),
	}))

	require.NoError(t, client.StoreFeedback(&models.Feedback{
		QueryID: "q-1", Helpful: true, Comment: "good citations",
	}))

	// Foreign key enforcement rejects feedback for unknown queries.
	err := client.StoreFeedback(&models.Feedback{QueryID: "missing", Helpful: false})
	assert.Error(t, err)
}

func TestPendingReviewRoundTrip(t *testing.T) {
	client := newTestClient(t)

	review := &pipeline.PendingReview{
		ID:        "r-1",
		SessionID: "s-1",
		Question:  "What are the limitations?",
		Intent:    "limitations",
		FromStage: "retrieval",
		Reason:    "insufficient evidence: only 1 chunks retrieved (minimum: 2)",
		Chunks: []evidence.Chunk{
			{PaperTitle: "BERT", SectionTitle: "Discussion", PageStart: 9, PageEnd: 9, Text: "Pre-training is expensive.", Score: 0.6},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, client.SavePending(context.Background(), review))

	got, err := client.GetPendingReview("r-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, review.Question, got.Question)
	assert.Equal(t, review.Reason, got.Reason)
	require.Len(t, got.Chunks, 1)
	assert.Equal(t, "BERT", got.Chunks[0].PaperTitle)
	assert.InDelta(t, 0.6, got.Chunks[0].Score, 1e-9)

	pending, err := client.ListPendingReviews(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "retrieval", pending[0].FromStage)
}

func TestMarkReviewResolved(t *testing.T) {
	client := newTestClient(t)

	review := &pipeline.PendingReview{
		ID:        "r-1",
		Question:  "q",
		Intent:    "general",
		FromStage: "retrieval",
		Reason:    "thin evidence",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, client.SavePending(context.Background(), review))

	require.NoError(t, client.MarkReviewResolved("r-1", "approve_with_disclaimer"))

	// Resolved reviews drop out of the pending set.
	got, err := client.GetPendingReview("r-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	pending, err := client.ListPendingReviews(10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Second resolution of the same review is an error.
	err = client.MarkReviewResolved("r-1", "refine_question")
	assert.Error(t, err)
}
