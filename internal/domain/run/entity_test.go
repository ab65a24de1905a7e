package run

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeeap/nmtrl/pkg/types"
)

func TestStatus_Apply(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var s Status

	s.Apply(&Started{RunID: "r1", Pairs: []string{"de-en"}, Epochs: 3, Time: t0})
	assert.Equal(t, "r1", s.RunID)
	assert.Equal(t, types.RunStatusRunning, s.State)
	assert.Equal(t, 3, s.Epochs)
	assert.Equal(t, t0, s.StartedAt)

	s.Apply(&Progress{RunID: "r1", Epoch: 0.5, Iteration: 9, Time: t0.Add(time.Minute)})
	require.NotNil(t, s.Progress)
	assert.Equal(t, 9, s.Progress.Iteration)
	assert.Equal(t, t0.Add(time.Minute), s.UpdatedAt)

	s.Apply(&Validation{RunID: "r1", BLEU: 12.5, Pairs: []PairScore{{Pair: "de-en", BLEU: 12.5}}, Time: t0.Add(2 * time.Minute)})
	s.Apply(&Validation{RunID: "r1", BLEU: 10, Time: t0.Add(3 * time.Minute)})
	assert.Equal(t, 12.5, s.BestBLEU)
	assert.Equal(t, 10.0, s.LastValidation.BLEU)

	s.Apply(&CheckpointRecord{RunID: "r1", Name: "model_bleu_10.00_e1.ckpt", Written: true, CreatedAt: t0.Add(4 * time.Minute)})
	require.NotNil(t, s.LastCheckpoint)
	assert.True(t, s.LastCheckpoint.Written)

	s.Apply(&Finished{RunID: "r1", State: types.RunStatusFailed, Error: "disk full", Time: t0.Add(5 * time.Minute)})
	assert.Equal(t, types.RunStatusFailed, s.State)
	assert.True(t, s.State.IsTerminal())
	assert.Equal(t, "disk full", s.Error)
	assert.Equal(t, t0.Add(5*time.Minute), s.UpdatedAt)
}

func TestStatus_ApplyCopiesEvents(t *testing.T) {
	var s Status
	p := &Progress{RunID: "r1", Iteration: 1}
	s.Apply(p)
	p.Iteration = 2
	assert.Equal(t, 1, s.Progress.Iteration)

	pairs := []PairScore{{Pair: "de-en"}}
	s.Apply(&Validation{RunID: "r1", Pairs: pairs})
	pairs[0].Pair = "changed"
	assert.Equal(t, "de-en", s.LastValidation.Pairs[0].Pair)
}

func TestEventKinds(t *testing.T) {
	events := map[EventKind]Event{
		EventStarted:    &Started{RunID: "a"},
		EventProgress:   &Progress{RunID: "a"},
		EventValidation: &Validation{RunID: "a"},
		EventCheckpoint: &CheckpointRecord{RunID: "a"},
		EventFinished:   &Finished{RunID: "a"},
	}
	for kind, ev := range events {
		assert.Equal(t, kind, ev.Kind())
		assert.Equal(t, "a", ev.Run())
	}
}

func TestBoard(t *testing.T) {
	b := NewBoard()
	assert.Equal(t, "board", b.Name())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = b.Observe(context.Background(), &Progress{RunID: "r", Iteration: i})
			_ = b.Snapshot()
		}(i)
	}
	wg.Wait()

	snap := b.Snapshot()
	require.NotNil(t, snap.Progress)
	assert.Equal(t, "r", snap.RunID)

	// snapshots are detached from the board
	snap.Progress.Iteration = -5
	assert.NotEqual(t, -5, b.Snapshot().Progress.Iteration)
}
