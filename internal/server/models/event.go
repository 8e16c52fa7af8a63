package models

import "time"

// BiasDetection is a single named pattern spotted in a conversation.
// Severity arrives in one of two legacy shapes: Confidence on a 0–1 scale
// or Intensity on a 0–100 scale. Either or both pointers may be nil.
type BiasDetection struct {
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence,omitempty"`
	Intensity  *float64 `json:"intensity,omitempty"`
}

// ConversationEvent is one session's worth of bias detections, read-only
// from the event source.
type ConversationEvent struct {
	UserID     string          `json:"user_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Detections []BiasDetection `json:"detections"`
}
