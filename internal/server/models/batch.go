package models

// BatchError records why one user's pipeline failed during a batch run.
type BatchError struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// BatchSummary is the aggregate outcome of one batch run. Delivery problems
// for stored reports are counted in DeliveryFailed, not Failed: the report
// exists and can be resent.
type BatchSummary struct {
	Succeeded      int          `json:"succeeded"`
	Failed         int          `json:"failed"`
	DeliveryFailed int          `json:"delivery_failed"`
	Errors         []BatchError `json:"errors,omitempty"`
}
