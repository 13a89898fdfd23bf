package session

import "time"

// Session is one persisted pipeline run for an episode root.
type Session struct {
	EpisodeID       string
	Root            string
	Source          string
	RequestedStages []int
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StageExecutionRecord is the persisted outcome of a single stage within a
// session. Timestamps are nil until the stage has started or finished.
type StageExecutionRecord struct {
	EpisodeID  string
	Stage      int
	Label      string
	Status     string
	StartedAt  *time.Time
	FinishedAt *time.Time
	Message    string
}

// ProgressEvent is one persisted status transition, in insertion order.
type ProgressEvent struct {
	ID          int64
	EpisodeID   string
	Stage       int
	Index       int
	TotalStages int
	Label       string
	Status      string
	Message     string
	CreatedAt   time.Time
}
