package journal

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one pipeline execution.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string // "running", "completed", "failed"
	DocCount   int
	Error      string
}

// Batch is one upload batch outcome within a run.
type Batch struct {
	RunID     string
	Seq       int
	BatchID   string
	Size      int
	Indexed   int
	Status    string // "succeeded", "failed"
	Error     string
	CreatedAt time.Time
}

// Query is one retrieval turn within a run.
type Query struct {
	RunID      string
	Question   string
	Answer     string
	References int
	CreatedAt  time.Time
}
