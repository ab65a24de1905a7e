// Package run provides the domain events a training run emits and the
// aggregated run status that observers persist or serve.
package run

import (
	"time"

	"github.com/openeeap/nmtrl/pkg/types"
)

// ============================================================================
// Events
// ============================================================================

// EventKind identifies the type of a run event
type EventKind string

const (
	// EventStarted is emitted once before the initial validation
	EventStarted EventKind = "run_started"

	// EventProgress is emitted at the log cadence
	EventProgress EventKind = "progress"

	// EventValidation is emitted after every validation pass
	EventValidation EventKind = "validation"

	// EventCheckpoint is emitted after every save point, written or skipped
	EventCheckpoint EventKind = "checkpoint"

	// EventFinished is emitted once when the run ends, successfully or not
	EventFinished EventKind = "run_finished"
)

// Event is implemented by every run event
type Event interface {
	// Kind returns the event type
	Kind() EventKind

	// Run returns the run the event belongs to
	Run() string
}

// Started announces a new or resumed run
type Started struct {
	RunID      string    `json:"run_id"`
	Pairs      []string  `json:"pairs"`
	Epochs     int       `json:"epochs"`
	StartEpoch int       `json:"start_epoch"`
	Resumed    bool      `json:"resumed"`
	Time       time.Time `json:"time"`
}

// Kind implements Event
func (e *Started) Kind() EventKind { return EventStarted }

// Run implements Event
func (e *Started) Run() string { return e.RunID }

// Progress summarizes the outer examples since the previous report
type Progress struct {
	RunID     string          `json:"run_id"`
	Epoch     float64         `json:"epoch"`
	Iteration int             `json:"iteration"`
	Total     int             `json:"total"`
	Pair      string          `json:"pair"`
	Mode      types.TrainMode `json:"mode"`

	// Current learning rate
	LearningRate float64 `json:"learning_rate"`

	// Perplexity of the cross-entropy windows, 0 when there were none
	Perplexity float64 `json:"perplexity"`

	// Average sampled reward and baseline of the REINFORCE windows
	Reward   float64 `json:"reward"`
	Baseline float64 `json:"baseline"`

	// Window counts by mode
	CrossEntropyWindows int `json:"cross_entropy_windows"`
	ReinforceWindows    int `json:"reinforce_windows"`

	// Throughput in tokens per second
	SrcTokensPerSec float64 `json:"src_tokens_per_sec"`
	TgtTokensPerSec float64 `json:"tgt_tokens_per_sec"`

	Elapsed time.Duration `json:"elapsed"`
	Time    time.Time     `json:"time"`
}

// Kind implements Event
func (e *Progress) Kind() EventKind { return EventProgress }

// Run implements Event
func (e *Progress) Run() string { return e.RunID }

// PairScore holds the validation scores of one language pair
type PairScore struct {
	Pair      string  `json:"pair"`
	BLEU      float64 `json:"bleu"`
	PPL       float64 `json:"ppl"`
	Sentences int     `json:"sentences"`
	Empty     bool    `json:"empty"`
	Failed    bool    `json:"failed"`
}

// Validation reports one validation pass
type Validation struct {
	RunID     string        `json:"run_id"`
	Epoch     float64       `json:"epoch"`
	Iteration int           `json:"iteration"`
	BLEU      float64       `json:"bleu"`
	PPL       float64       `json:"ppl"`
	Empty     bool          `json:"empty"`
	Pairs     []PairScore   `json:"pairs"`
	Duration  time.Duration `json:"duration"`
	Time      time.Time     `json:"time"`
}

// Kind implements Event
func (e *Validation) Kind() EventKind { return EventValidation }

// Run implements Event
func (e *Validation) Run() string { return e.RunID }

// CheckpointRecord describes one save point
type CheckpointRecord struct {
	ID        string                 `json:"id"`
	RunID     string                 `json:"run_id"`
	Name      string                 `json:"name"`
	Policy    types.CheckpointPolicy `json:"policy"`
	Epoch     float64                `json:"epoch"`
	Iteration int                    `json:"iteration"`
	BLEU      float64                `json:"bleu"`
	PPL       float64                `json:"ppl"`
	Size      int64                  `json:"size"`
	Written   bool                   `json:"written"`
	Best      bool                   `json:"best"`
	Duration  time.Duration          `json:"duration"`
	CreatedAt time.Time              `json:"created_at"`
}

// Kind implements Event
func (e *CheckpointRecord) Kind() EventKind { return EventCheckpoint }

// Run implements Event
func (e *CheckpointRecord) Run() string { return e.RunID }

// Finished closes a run
type Finished struct {
	RunID    string          `json:"run_id"`
	State    types.RunStatus `json:"state"`
	Error    string          `json:"error,omitempty"`
	BestBLEU float64         `json:"best_bleu"`
	Time     time.Time       `json:"time"`
}

// Kind implements Event
func (e *Finished) Kind() EventKind { return EventFinished }

// Run implements Event
func (e *Finished) Run() string { return e.RunID }

// ============================================================================
// Status
// ============================================================================

// Status is the latest known state of a run
type Status struct {
	RunID          string            `json:"run_id"`
	State          types.RunStatus   `json:"state"`
	Pairs          []string          `json:"pairs,omitempty"`
	Epochs         int               `json:"epochs"`
	StartedAt      time.Time         `json:"started_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Progress       *Progress         `json:"progress,omitempty"`
	LastValidation *Validation       `json:"last_validation,omitempty"`
	LastCheckpoint *CheckpointRecord `json:"last_checkpoint,omitempty"`
	BestBLEU       float64           `json:"best_bleu"`
	Error          string            `json:"error,omitempty"`
}

// Apply folds ev into the status.
func (s *Status) Apply(ev Event) {
	if s.RunID == "" {
		s.RunID = ev.Run()
	}
	switch e := ev.(type) {
	case *Started:
		s.State = types.RunStatusRunning
		s.Pairs = append([]string(nil), e.Pairs...)
		s.Epochs = e.Epochs
		s.StartedAt = e.Time
		s.UpdatedAt = e.Time
	case *Progress:
		p := *e
		s.Progress = &p
		s.UpdatedAt = e.Time
	case *Validation:
		v := *e
		v.Pairs = append([]PairScore(nil), e.Pairs...)
		s.LastValidation = &v
		if s.LastValidation.BLEU > s.BestBLEU {
			s.BestBLEU = s.LastValidation.BLEU
		}
		s.UpdatedAt = e.Time
	case *CheckpointRecord:
		c := *e
		s.LastCheckpoint = &c
		s.UpdatedAt = e.CreatedAt
	case *Finished:
		s.State = e.State
		s.Error = e.Error
		if e.BestBLEU > s.BestBLEU {
			s.BestBLEU = e.BestBLEU
		}
		s.UpdatedAt = e.Time
	}
}

// Clone returns a deep copy of the status.
func (s *Status) Clone() *Status {
	out := *s
	out.Pairs = append([]string(nil), s.Pairs...)
	if s.Progress != nil {
		p := *s.Progress
		out.Progress = &p
	}
	if s.LastValidation != nil {
		v := *s.LastValidation
		v.Pairs = append([]PairScore(nil), s.LastValidation.Pairs...)
		out.LastValidation = &v
	}
	if s.LastCheckpoint != nil {
		c := *s.LastCheckpoint
		out.LastCheckpoint = &c
	}
	return &out
}

//Personal.AI order the ending
