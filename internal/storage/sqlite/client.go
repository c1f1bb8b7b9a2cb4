package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/pipeline"
	"github.com/papertrail/backend/internal/storage/models"
	"github.com/papertrail/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

var _ pipeline.ReviewStore = (*Client)(nil)

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		query_text TEXT NOT NULL,
		intent TEXT,
		outcome TEXT,
		answer TEXT,
		confidence REAL,
		chunks_used INTEGER,
		images_used INTEGER,
		escalated INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_session ON query_history(session_id);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		issue_category TEXT,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (query_id) REFERENCES query_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_query ON feedback(query_id);

	CREATE TABLE IF NOT EXISTS pending_reviews (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		question TEXT NOT NULL,
		intent TEXT NOT NULL,
		from_stage TEXT NOT NULL,
		reason TEXT NOT NULL,
		chunks_json TEXT NOT NULL,
		resolved INTEGER DEFAULT 0,
		decision TEXT,
		created_at INTEGER NOT NULL,
		resolved_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_reviews_resolved ON pending_reviews(resolved);
	CREATE INDEX IF NOT EXISTS idx_reviews_created ON pending_reviews(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) CreateSession(session *models.Session) error {
	query := `INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		session.ID,
		session.Title,
		session.CreatedAt.Unix(),
		session.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	logger.Debug("Session created", zap.String("session_id", session.ID))
	return nil
}

func (c *Client) GetSession(id string) (*models.Session, error) {
	query := `SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?`

	var s models.Session
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(&s.ID, &s.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.CreatedAt = time.Unix(createdAt, 0)
	s.UpdatedAt = time.Unix(updatedAt, 0)
	return &s, nil
}

func (c *Client) ListSessions(limit int) ([]models.Session, error) {
	query := `SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC LIMIT ?`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		var createdAt, updatedAt int64

		if err := rows.Scan(&s.ID, &s.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		s.CreatedAt = time.Unix(createdAt, 0)
		s.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, s)
	}

	return sessions, nil
}

func (c *Client) TouchSession(id string) error {
	_, err := c.db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (c *Client) DeleteSession(id string) error {
	_, err := c.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	logger.Info("Session deleted", zap.String("session_id", id))
	return nil
}

func (c *Client) AppendMessage(msg *models.Message) error {
	query := `INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		msg.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	return nil
}

func (c *Client) GetMessages(sessionID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := c.db.Query(query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var createdAt int64

		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		m.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, m)
	}

	return messages, nil
}

func (c *Client) InsertQueryRecord(record *models.QueryRecord) error {
	query := `
		INSERT INTO query_history (id, session_id, query_text, intent, outcome, answer,
			confidence, chunks_used, images_used, escalated, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	escalated := 0
	if record.Escalated {
		escalated = 1
	}

	_, err := c.db.Exec(
		query,
		record.ID,
		record.SessionID,
		record.QueryText,
		record.Intent,
		record.Outcome,
		record.Answer,
		record.Confidence,
		record.ChunksUsed,
		record.ImagesUsed,
		escalated,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Info("Query recorded",
		zap.String("query_id", record.ID),
		zap.String("intent", record.Intent),
		zap.String("outcome", record.Outcome),
		zap.Float64("confidence", record.Confidence),
	)

	return nil
}

func (c *Client) GetQueryHistory(sessionID string, limit int) ([]models.QueryRecord, error) {
	query := `
		SELECT id, query_text, intent, outcome, answer, confidence, latency_ms, created_at
		FROM query_history
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var createdAt int64

		err := rows.Scan(&r.ID, &r.QueryText, &r.Intent, &r.Outcome, &r.Answer, &r.Confidence, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, nil
}

func (c *Client) StoreFeedback(feedback *models.Feedback) error {
	query := `INSERT INTO feedback (query_id, helpful, issue_category, comment, created_at) VALUES (?, ?, ?, ?, ?)`

	helpful := 0
	if feedback.Helpful {
		helpful = 1
	}

	_, err := c.db.Exec(
		query,
		feedback.QueryID,
		helpful,
		feedback.IssueCategory,
		feedback.Comment,
		time.Now().Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("query_id", feedback.QueryID),
		zap.Bool("helpful", feedback.Helpful),
	)

	return nil
}

// SavePending persists a suspended review. The evidence chunks travel as a
// JSON blob; they are read back verbatim at resolution time and never
// re-retrieved.
func (c *Client) SavePending(ctx context.Context, review *pipeline.PendingReview) error {
	chunksJSON, err := json.Marshal(review.Chunks)
	if err != nil {
		return fmt.Errorf("failed to marshal review chunks: %w", err)
	}

	query := `
		INSERT INTO pending_reviews (id, session_id, question, intent, from_stage, reason, chunks_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.ExecContext(
		ctx,
		query,
		review.ID,
		review.SessionID,
		review.Question,
		review.Intent,
		review.FromStage,
		review.Reason,
		string(chunksJSON),
		review.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to save pending review: %w", err)
	}

	logger.Info("Pending review saved",
		zap.String("review_id", review.ID),
		zap.String("from_stage", review.FromStage),
	)

	return nil
}

func (c *Client) GetPendingReview(id string) (*pipeline.PendingReview, error) {
	query := `
		SELECT id, session_id, question, intent, from_stage, reason, chunks_json, created_at
		FROM pending_reviews
		WHERE id = ? AND resolved = 0
	`

	var review pipeline.PendingReview
	var chunksJSON string
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(
		&review.ID,
		&review.SessionID,
		&review.Question,
		&review.Intent,
		&review.FromStage,
		&review.Reason,
		&chunksJSON,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending review: %w", err)
	}

	var chunks []evidence.Chunk
	if err := json.Unmarshal([]byte(chunksJSON), &chunks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal review chunks: %w", err)
	}

	review.Chunks = chunks
	review.CreatedAt = time.Unix(createdAt, 0)
	return &review, nil
}

func (c *Client) ListPendingReviews(limit int) ([]models.PendingReviewRecord, error) {
	query := `
		SELECT id, session_id, question, intent, from_stage, reason, created_at
		FROM pending_reviews
		WHERE resolved = 0
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reviews: %w", err)
	}
	defer rows.Close()

	var records []models.PendingReviewRecord
	for rows.Next() {
		var r models.PendingReviewRecord
		var createdAt int64

		err := rows.Scan(&r.ID, &r.SessionID, &r.Question, &r.Intent, &r.FromStage, &r.Reason, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, nil
}

func (c *Client) MarkReviewResolved(id string, decision string) error {
	result, err := c.db.Exec(
		`UPDATE pending_reviews SET resolved = 1, decision = ?, resolved_at = ? WHERE id = ? AND resolved = 0`,
		decision,
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark review resolved: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("review %s not found or already resolved", id)
	}

	logger.Info("Review resolved",
		zap.String("review_id", id),
		zap.String("decision", decision),
	)

	return nil
}
