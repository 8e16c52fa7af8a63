// Package common defines shared sentinel errors used across the report
// pipeline layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Pipeline stage classification. The orchestrator wraps stage failures
	// with one of these so the batch summary can tell a data problem from a
	// rendering or delivery problem.
	ErrDataFetch = errors.New("data fetch failed")
	ErrRender    = errors.New("render failed")
	ErrDelivery  = errors.New("delivery failed")

	// ErrNoTransport marks the absence of a configured mail transport. Not a
	// failure: the pipeline resolves it to the skipped terminal state.
	ErrNoTransport = errors.New("no mail transport configured")
)
