// Package matching implements the matching and dispatch engine: candidate
// scoring, offer dispatch, claim coordination, and the arrival monitor.
package matching

import "errors"

// Engine error taxonomy. Callers branch on these with errors.Is; everything
// else is an internal failure.
var (
	// ErrNotFound indicates a referenced job, assignment or provider does
	// not exist. Propagated, never retried.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a claim lost a race, arrived past the offer
	// deadline, or would double-book the provider. Surfaced to the caller
	// as "job no longer available"; the engine never retries it.
	ErrConflict = errors.New("job no longer available")

	// ErrNoCandidates indicates the scorer found zero eligible providers.
	// Distinct from ErrConflict so callers can fall back to manual review.
	ErrNoCandidates = errors.New("no eligible candidates")
)
