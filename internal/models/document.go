package models

import "time"

// Run statuses stored in the run ledger.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// RunRecord represents one batch invocation in Firestore.
// It tracks the overall status and per-run counters, never the extracted fields.
type RunRecord struct {
	RunID         string    `firestore:"runId,omitempty"`
	Container     string    `firestore:"container,omitempty"`
	Trigger       string    `firestore:"trigger,omitempty"`
	Status        string    `firestore:"status,omitempty"`
	ErrorDetails  string    `firestore:"errorDetails,omitempty"`
	DocumentCount int       `firestore:"documentCount"`
	FailedCount   int       `firestore:"failedCount"`
	SkippedCount  int       `firestore:"skippedCount"`
	ResultURI     string    `firestore:"resultUri,omitempty"`
	StartedAt     time.Time `firestore:"startedAt,omitempty"`
	FinishedAt    time.Time `firestore:"finishedAt,omitempty"`
}
