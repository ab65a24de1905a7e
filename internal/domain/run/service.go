package run

import (
	"context"
	"sync"
	"time"
)

// ============================================================================
// Observer
// ============================================================================

// Observer receives the events of a run. Errors are reported back to the
// caller but never stop training.
type Observer interface {
	// Name identifies the observer in logs and metrics
	Name() string

	// Observe handles one event
	Observe(ctx context.Context, ev Event) error
}

// ============================================================================
// Board
// ============================================================================

// Board keeps the status of the current run in memory
type Board struct {
	mu     sync.RWMutex
	status Status
}

// NewBoard creates an empty board
func NewBoard() *Board {
	return &Board{}
}

// Name implements Observer
func (b *Board) Name() string { return "board" }

// Observe implements Observer
func (b *Board) Observe(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.Apply(ev)
	return nil
}

// Snapshot returns a copy of the current status
func (b *Board) Snapshot() *Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status.Clone()
}

// ============================================================================
// Persisting observers
// ============================================================================

// StatusRecorder folds events into a Status and stores it after each one.
// Progress events are written at most once per interval; every other event
// is written immediately.
type StatusRecorder struct {
	name     string
	repo     StatusRepository
	interval time.Duration

	mu        sync.Mutex
	status    Status
	lastWrite time.Time
	now       func() time.Time
}

// NewStatusRecorder creates a recorder writing to repo.
func NewStatusRecorder(name string, repo StatusRepository, interval time.Duration) *StatusRecorder {
	return &StatusRecorder{name: name, repo: repo, interval: interval, now: time.Now}
}

// Name implements Observer
func (r *StatusRecorder) Name() string { return r.name }

// Observe implements Observer
func (r *StatusRecorder) Observe(ctx context.Context, ev Event) error {
	r.mu.Lock()
	r.status.Apply(ev)
	now := r.now()
	if ev.Kind() == EventProgress && r.interval > 0 && now.Sub(r.lastWrite) < r.interval {
		r.mu.Unlock()
		return nil
	}
	r.lastWrite = now
	snap := r.status.Clone()
	r.mu.Unlock()

	return r.repo.Save(ctx, snap)
}

// LedgerRecorder forwards checkpoint events to a CheckpointLedger.
type LedgerRecorder struct {
	name   string
	ledger CheckpointLedger
}

// NewLedgerRecorder creates a recorder writing to ledger.
func NewLedgerRecorder(name string, ledger CheckpointLedger) *LedgerRecorder {
	return &LedgerRecorder{name: name, ledger: ledger}
}

// Name implements Observer
func (r *LedgerRecorder) Name() string { return r.name }

// Observe implements Observer
func (r *LedgerRecorder) Observe(ctx context.Context, ev Event) error {
	rec, ok := ev.(*CheckpointRecord)
	if !ok {
		return nil
	}
	return r.ledger.Record(ctx, rec)
}

//Personal.AI order the ending
