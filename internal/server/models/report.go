// Package models contains plain data structures shared by the server layers.
package models

import "time"

// BiasAggregate is one ranked row of a report summary: how often a named
// bias was detected in the window and how intense it was on average
// (0–100 scale).
type BiasAggregate struct {
	Name         string  `json:"name"`
	Count        int     `json:"count"`
	AvgIntensity float64 `json:"avg_intensity"`
}

// Report is one generated insight artifact for a (user, window) pair.
// The pair (UserID, WindowStart) is the idempotency key: at most one row
// exists per key. The rendered document itself lives in the blob store under
// ArtifactRef; the row holds only the reference.
//
// A stored report is immutable except for EmailSentAt, which transitions
// from nil exactly once on the first successful delivery.
type Report struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	WindowStart   time.Time       `json:"window_start"`
	WindowEnd     time.Time       `json:"window_end"`
	SessionCount  int             `json:"session_count"`
	CurrentStreak int             `json:"current_streak"`
	TopBiases     []BiasAggregate `json:"top_biases"`
	ArtifactRef   string          `json:"artifact_ref"`
	CreatedAt     time.Time       `json:"created_at"`
	EmailSentAt   *time.Time      `json:"email_sent_at,omitempty"`
}

// DeliveryStatus is the terminal email sub-state of a pipeline run for a
// report that reached the store.
type DeliveryStatus string

const (
	EmailSent    DeliveryStatus = "sent"
	EmailSkipped DeliveryStatus = "skipped"
	EmailFailed  DeliveryStatus = "failed"
)
