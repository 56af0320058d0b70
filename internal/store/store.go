// Package store persists stem job records and per-user history lists.
package store

import (
	"context"
	"errors"

	"github.com/bazai/stems-api/internal/model"
)

// ErrJobNotFound is returned by GetJob when no record exists for a task id.
var ErrJobNotFound = errors.New("job not found")

// ResultStore is the document-store surface the reconciler depends on.
// Implementations must make RecordJobResult an idempotent upsert and
// AppendHistoryOnce an at-most-once insert per (owner, taskId).
type ResultStore interface {
	// GetJob reads the job record for a task id.
	GetJob(ctx context.Context, taskID string) (*model.StemJob, error)

	// PutJob upserts a full job record. Used at submission time for the
	// pending record.
	PutJob(ctx context.Context, job *model.StemJob) error

	// RecordJobResult marks a job successful with its normalized stems.
	// A job already in a terminal state is left untouched.
	RecordJobResult(ctx context.Context, taskID string, result *model.StemResult, kind model.JobKind) error

	// AppendHistoryOnce prepends an entry to the owner's history unless
	// an entry with the same taskId is already present. The list is
	// truncated to model.HistoryCap newest-first entries. Reports
	// whether the entry was inserted.
	AppendHistoryOnce(ctx context.Context, ownerID string, entry model.HistoryEntry) (bool, error)

	// GetHistory returns the owner's history, newest first.
	GetHistory(ctx context.Context, ownerID string) ([]model.HistoryEntry, error)

	// RegisterOwner records a known user and their email so that later
	// reconciliations can resolve the owner by either key.
	RegisterOwner(ctx context.Context, ownerID, email string) error

	// ResolveOwner maps an owner reference to a known user id, falling
	// back to the email captured at submission time. Returns "" when the
	// owner cannot be resolved; that is not an error.
	ResolveOwner(ctx context.Context, ownerRef, email string) (string, error)
}
