package domain

import "errors"

var (
	// ErrInvalidIntent rejects a malformed submission before it enters the store
	ErrInvalidIntent = errors.New("invalid intent")

	// ErrNotFound is returned for an unknown intent id or batch id
	ErrNotFound = errors.New("not found")

	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNettingFailure wraps any failure after the pending snapshot was taken; intents are reverted
	ErrNettingFailure = errors.New("batch processing failed")

	// ErrNoPendingIntents signals a no-op cycle, callers must not treat it as a failure
	ErrNoPendingIntents = errors.New("no pending intents")

	ErrBatchInProgress = errors.New("batch already in progress")

	// ErrPriceUnavailable is soft: logged, defaults applied, batch proceeds
	ErrPriceUnavailable = errors.New("price unavailable")
)
