// Package types provides enumeration type definitions for nmtrl.
// All enums implement String(), Valid(), and FromString() methods
// for type-safe conversions and validation across the trainer.
package types

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// ============================================================================
// Training Mode Enumerations
// ============================================================================

// TrainMode is the objective used for one training window
type TrainMode string

const (
	// TrainModeCrossEntropy trains on the reference translation, feeding gold prefixes
	TrainModeCrossEntropy TrainMode = "cross_entropy"

	// TrainModeReinforce trains on sampled translations scored by a metric
	TrainModeReinforce TrainMode = "reinforce"
)

// String returns the string representation
func (m TrainMode) String() string {
	return string(m)
}

// Valid checks if the training mode is valid
func (m TrainMode) Valid() bool {
	switch m {
	case TrainModeCrossEntropy, TrainModeReinforce:
		return true
	default:
		return false
	}
}

// FromStringTrainMode converts string to TrainMode
func FromStringTrainMode(s string) (TrainMode, error) {
	m := TrainMode(strings.ToLower(s))
	if !m.Valid() {
		return "", fmt.Errorf("invalid training mode: %s", s)
	}
	return m, nil
}

// ============================================================================
// Metric Enumerations
// ============================================================================

// MetricKind selects the sentence-level reward metric
type MetricKind string

const (
	// MetricGLEU is the sentence GLEU score
	MetricGLEU MetricKind = "gleu"

	// MetricSBLEU is smoothed sentence BLEU
	MetricSBLEU MetricKind = "sbleu"

	// MetricHit is the lexical hit F-measure weighted by alpha
	MetricHit MetricKind = "hit"
)

// String returns the string representation
func (mk MetricKind) String() string {
	return string(mk)
}

// Valid checks if the metric kind is valid
func (mk MetricKind) Valid() bool {
	switch mk {
	case MetricGLEU, MetricSBLEU, MetricHit:
		return true
	default:
		return false
	}
}

// FromStringMetricKind converts string to MetricKind
func FromStringMetricKind(s string) (MetricKind, error) {
	mk := MetricKind(strings.ToLower(s))
	if !mk.Valid() {
		return "", fmt.Errorf("invalid reward metric: %s", s)
	}
	return mk, nil
}

// ============================================================================
// Checkpoint Policy Enumerations
// ============================================================================

// CheckpointPolicy controls which checkpoints are written
type CheckpointPolicy string

const (
	// CheckpointKeepAll writes a new file at every save point
	CheckpointKeepAll CheckpointPolicy = "keep_all"

	// CheckpointOverride keeps one best file, rewritten only on improvement
	CheckpointOverride CheckpointPolicy = "override"
)

// String returns the string representation
func (cp CheckpointPolicy) String() string {
	return string(cp)
}

// Valid checks if the checkpoint policy is valid
func (cp CheckpointPolicy) Valid() bool {
	switch cp {
	case CheckpointKeepAll, CheckpointOverride:
		return true
	default:
		return false
	}
}

// FromStringCheckpointPolicy converts string to CheckpointPolicy
func FromStringCheckpointPolicy(s string) (CheckpointPolicy, error) {
	cp := CheckpointPolicy(strings.ToLower(s))
	if !cp.Valid() {
		return "", fmt.Errorf("invalid checkpoint policy: %s", s)
	}
	return cp, nil
}

// Value implements driver.Valuer for database storage
func (cp CheckpointPolicy) Value() (driver.Value, error) {
	return string(cp), nil
}

// Scan implements sql.Scanner for database retrieval
func (cp *CheckpointPolicy) Scan(value interface{}) error {
	if value == nil {
		*cp = ""
		return nil
	}

	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("cannot scan type %T into CheckpointPolicy", value)
	}

	parsed, err := FromStringCheckpointPolicy(str)
	if err != nil {
		return err
	}

	*cp = parsed
	return nil
}

// ============================================================================
// Baseline Enumerations
// ============================================================================

// BaselineKind selects the variance-reduction baseline for REINFORCE
type BaselineKind string

const (
	// BaselineGreedy subtracts the reward of the greedy decode (self-critical)
	BaselineGreedy BaselineKind = "greedy"

	// BaselineNone uses the raw sampled reward
	BaselineNone BaselineKind = "none"
)

// String returns the string representation
func (bk BaselineKind) String() string {
	return string(bk)
}

// Valid checks if the baseline kind is valid
func (bk BaselineKind) Valid() bool {
	switch bk {
	case BaselineGreedy, BaselineNone:
		return true
	default:
		return false
	}
}

// FromStringBaselineKind converts string to BaselineKind
func FromStringBaselineKind(s string) (BaselineKind, error) {
	bk := BaselineKind(strings.ToLower(s))
	if !bk.Valid() {
		return "", fmt.Errorf("invalid baseline: %s", s)
	}
	return bk, nil
}

// ============================================================================
// Optimizer Enumerations
// ============================================================================

// OptimizerKind selects the parameter update rule
type OptimizerKind string

const (
	OptimizerSGD     OptimizerKind = "sgd"
	OptimizerAdagrad OptimizerKind = "adagrad"
	OptimizerAdam    OptimizerKind = "adam"
)

// String returns the string representation
func (k OptimizerKind) String() string {
	return string(k)
}

// Valid checks if the optimizer kind is valid
func (k OptimizerKind) Valid() bool {
	switch k {
	case OptimizerSGD, OptimizerAdagrad, OptimizerAdam:
		return true
	default:
		return false
	}
}

// ============================================================================
// Storage Provider Enumerations
// ============================================================================

// StorageProvider selects where checkpoints are written
type StorageProvider string

const (
	// StorageLocal writes checkpoints to the local filesystem
	StorageLocal StorageProvider = "local"

	// StorageMinIO writes checkpoints to an S3-compatible bucket
	StorageMinIO StorageProvider = "minio"
)

// String returns the string representation
func (sp StorageProvider) String() string {
	return string(sp)
}

// Valid checks if the storage provider is valid
func (sp StorageProvider) Valid() bool {
	switch sp {
	case StorageLocal, StorageMinIO:
		return true
	default:
		return false
	}
}

// ============================================================================
// Run Status Enumerations
// ============================================================================

// RunStatus represents the lifecycle state of a training run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// String returns the string representation
func (rs RunStatus) String() string {
	return string(rs)
}

// IsTerminal reports whether the run has finished
func (rs RunStatus) IsTerminal() bool {
	return rs == RunStatusCompleted || rs == RunStatusFailed || rs == RunStatusCancelled
}
