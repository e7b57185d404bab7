package intents

import (
	"anchor/internal/domain"
	"context"
	"fmt"
	"time"
)

// Store owns SwapIntent lifetime; it is the audit log, nothing is ever deleted
type Store interface {
	// Submit validates, assigns id/timestamp, forces status=pending and appends
	Submit(ctx context.Context, intent *domain.SwapIntent) (string, error)
	// Pending returns a snapshot of pending intents in insertion order
	Pending(ctx context.Context) ([]domain.SwapIntent, error)
	// SetStatus transitions one intent atomically; unchanged status is a no-op
	SetStatus(ctx context.Context, id string, status domain.Status, batchID string) error
	// All returns every intent in insertion order
	All(ctx context.Context) ([]domain.SwapIntent, error)

	Get(ctx context.Context, id string) (domain.SwapIntent, error)
	ByBatch(ctx context.Context, batchID string) ([]domain.SwapIntent, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
}

// prepare is shared by every Store on Submit
func prepare(in *domain.SwapIntent, now time.Time) error {
	if in == nil {
		return fmt.Errorf("%w: nil intent", domain.ErrInvalidIntent)
	}

	in.Normalize()
	if err := in.Validate(); err != nil {
		return err
	}

	if in.ID == "" {
		in.ID = domain.NewIntentID()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = now.UTC()
	}
	in.Status = domain.StatusPending
	in.BatchID = ""
	in.SettledAt = nil

	return nil
}

// applyStatus mutates one record in place under the caller's lock/transaction
func applyStatus(rec *domain.SwapIntent, status domain.Status, batchID string, now time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, status)
	}

	if rec.Status == status && (batchID == "" || batchID == rec.BatchID) {
		return nil
	}

	if !domain.CanTransition(rec.Status, status) {
		return fmt.Errorf("%w: %s -> %s for %s", domain.ErrInvalidTransition, rec.Status, status, rec.ID)
	}

	switch status {
	case domain.StatusPending:
		// batch revert
		rec.BatchID = ""
	case domain.StatusMatched:
		if batchID == "" {
			return fmt.Errorf("%w: batch id required to match %s", domain.ErrInvalidTransition, rec.ID)
		}
		if rec.BatchID != "" && rec.BatchID != batchID {
			return fmt.Errorf("%w: %s already belongs to %s", domain.ErrInvalidTransition, rec.ID, rec.BatchID)
		}
		rec.BatchID = batchID
	case domain.StatusSettled:
		if batchID != "" && batchID != rec.BatchID {
			return fmt.Errorf("%w: %s belongs to %s, not %s", domain.ErrInvalidTransition, rec.ID, rec.BatchID, batchID)
		}
		ts := now.UTC()
		rec.SettledAt = &ts
	}

	rec.Status = status
	return nil
}
