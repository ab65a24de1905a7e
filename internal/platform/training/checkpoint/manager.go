package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/openeeap/nmtrl/internal/domain/run"
	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// Extension is appended to every checkpoint object name.
const Extension = ".ckpt"

// Store persists checkpoint objects. Put must either store the whole object
// under name or leave any previous object with that name untouched.
type Store interface {
	// Put writes size bytes from r under name
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Get opens the object stored under name
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// List returns the objects whose name starts with prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo describes a stored checkpoint object.
type ObjectInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Record describes the outcome of one save request.
type Record = run.CheckpointRecord

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Policy types.CheckpointPolicy
	Prefix string
}

// Manager applies the checkpoint policy on top of a Store.
//
// keep_all writes every snapshot under a name stamped with its score and
// epoch. override writes a single <prefix>.best object, and only when the
// score is at least the best seen so far.
type Manager struct {
	store   Store
	opts    ManagerOptions
	best    float64
	hasBest bool
	logger  logging.Logger
}

// NewManager returns a Manager writing to store.
func NewManager(store Store, opts ManagerOptions, logger logging.Logger) (*Manager, error) {
	if !opts.Policy.Valid() {
		return nil, errors.ValidationErrorf("unknown checkpoint policy %q", opts.Policy)
	}
	if opts.Prefix == "" {
		opts.Prefix = "model"
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Manager{store: store, opts: opts, logger: logger}, nil
}

// SetBest seeds the best score, typically from the initial validation.
func (m *Manager) SetBest(score float64) {
	m.best, m.hasBest = score, true
}

// Best returns the best score seen so far.
func (m *Manager) Best() (float64, bool) {
	return m.best, m.hasBest
}

// Policy returns the configured policy.
func (m *Manager) Policy() types.CheckpointPolicy {
	return m.opts.Policy
}

// NameFor returns the object name c would be written under. Mid-epoch names
// carry the draw position so that keep_all never reuses a name.
func (m *Manager) NameFor(c *Checkpoint) string {
	if m.opts.Policy == types.CheckpointOverride {
		return m.opts.Prefix + ".best" + Extension
	}
	if c.Iteration == EpochEnd {
		return fmt.Sprintf("%s_bleu_%.2f_e%d%s", m.opts.Prefix, c.ValidBLEU, int(c.Epoch), Extension)
	}
	return fmt.Sprintf("%s_bleu_%.2f_e%.2f_i%d%s", m.opts.Prefix, c.ValidBLEU, c.Epoch, c.Iteration, Extension)
}

// Save applies the policy to c, whose ValidBLEU is the score. Any failure to
// encode or store the snapshot is returned and must abort training.
func (m *Manager) Save(ctx context.Context, c *Checkpoint) (*Record, error) {
	start := time.Now()
	score := c.ValidBLEU
	isBest := !m.hasBest || score >= m.best

	rec := &Record{
		ID:        uuid.NewString(),
		RunID:     c.RunID,
		Name:      m.NameFor(c),
		Policy:    m.opts.Policy,
		Epoch:     c.Epoch,
		Iteration: c.Iteration,
		BLEU:      score,
		PPL:       c.ValidPPL,
		Best:      isBest,
		CreatedAt: start,
	}

	if m.opts.Policy == types.CheckpointOverride && !isBest {
		m.logger.WithContext(ctx).Info("Checkpoint skipped, score below best",
			logging.Float64("bleu", score), logging.Float64("best", m.best))
		rec.Duration = time.Since(start)
		return rec, nil
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = start
	}
	data, err := Marshal(c)
	if err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, rec.Name, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrCkptWrite, rec.Name)
	}
	if isBest {
		m.best, m.hasBest = score, true
	}

	rec.Written = true
	rec.Size = int64(len(data))
	rec.Duration = time.Since(start)
	m.logger.WithContext(ctx).Info("Checkpoint written",
		logging.String("name", rec.Name),
		logging.Float64("bleu", score),
		logging.Float64("epoch", c.Epoch),
		logging.Int64("bytes", rec.Size))
	return rec, nil
}

// Load reads and decodes the checkpoint stored under name.
func (m *Manager) Load(ctx context.Context, name string) (*Checkpoint, error) {
	rc, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Decode(rc)
}

// LoadJSON returns the decompressed JSON document stored under name.
func (m *Manager) LoadJSON(ctx context.Context, name string) ([]byte, error) {
	rc, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return DecodeJSON(rc)
}

// List returns the checkpoints written with this manager's prefix.
func (m *Manager) List(ctx context.Context) ([]ObjectInfo, error) {
	return m.store.List(ctx, m.opts.Prefix)
}

//Personal.AI order the ending
