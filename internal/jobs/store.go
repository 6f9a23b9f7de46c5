package jobs

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the job record does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrStatusMismatch indicates the stored status differs from the expected
	// pre-transition status. For a trigger this means another activation got
	// there first, so the write is skipped.
	ErrStatusMismatch = errors.New("job status does not match expected status")

	// ErrInvalidTransition indicates the transition is not in the kind's table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidRecord indicates the record could not be decoded. Claim still
	// writes the claimed status so the caller can record the failure from it.
	ErrInvalidRecord = errors.New("job record does not match its schema")
)

// Fields maps record field paths (dot separated, e.g. "results.diffTecnico")
// to the values written together with a status change.
type Fields map[string]any

// Store is the status updater: the only writer of a job's status, results and
// error. Every write is conditional on the stored status still being `from`.
type Store interface {
	// Claim verifies the record is in status `from`, decodes it into dst and
	// moves it to `to` (recording startedAt) when they differ. A decode failure
	// is reported as ErrInvalidRecord after the claim is written.
	Claim(ctx context.Context, id string, from, to Status, dst any) error

	// Advance moves the record from `from` to `to`, writing fields in the same
	// atomic update. Terminal statuses also record processedAt.
	Advance(ctx context.Context, id string, from, to Status, fields Fields) error
}
