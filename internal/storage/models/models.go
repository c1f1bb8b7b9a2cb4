package models

import "time"

type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

type QueryRecord struct {
	ID         string
	SessionID  string
	QueryText  string
	Intent     string
	Outcome    string
	Answer     string
	Confidence float64
	ChunksUsed int
	ImagesUsed int
	Escalated  bool
	LatencyMS  int
	CreatedAt  time.Time
}

type Feedback struct {
	ID            int
	QueryID       string
	Helpful       bool
	IssueCategory string
	Comment       string
	CreatedAt     time.Time
}

type PendingReviewRecord struct {
	ID         string
	SessionID  string
	Question   string
	Intent     string
	FromStage  string
	Reason     string
	ChunksJSON string
	Resolved   bool
	Decision   string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}
