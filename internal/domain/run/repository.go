package run

import (
	"context"
)

// ============================================================================
// Repository Interfaces
// ============================================================================

// StatusRepository persists the latest status of each run
type StatusRepository interface {
	// Save stores the status, replacing any previous one
	Save(ctx context.Context, status *Status) error

	// Get retrieves the status of a run
	Get(ctx context.Context, runID string) (*Status, error)

	// List returns the ids of the known runs
	List(ctx context.Context) ([]string, error)
}

// CheckpointLedger keeps a queryable history of save points
type CheckpointLedger interface {
	// Record stores one save point
	Record(ctx context.Context, rec *CheckpointRecord) error

	// ListByRun returns the save points of a run, oldest first
	ListByRun(ctx context.Context, runID string) ([]*CheckpointRecord, error)

	// Best returns the written save point with the highest BLEU of a run
	Best(ctx context.Context, runID string) (*CheckpointRecord, error)
}

//Personal.AI order the ending
