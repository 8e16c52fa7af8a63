// Package blob abstracts artifact storage behind a Store/Fetch pair so the
// report row carries only an opaque reference to the rendered bytes.
package blob

import "context"

// Store persists opaque artifact payloads and returns them by reference.
type Store interface {
	// Store saves data and returns the reference under which it can be
	// fetched later.
	Store(ctx context.Context, data []byte) (string, error)

	// Fetch returns the payload previously stored under ref.
	Fetch(ctx context.Context, ref string) ([]byte, error)

	// Delete removes the payload stored under ref.
	Delete(ctx context.Context, ref string) error
}
