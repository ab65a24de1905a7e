package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeeap/nmtrl/pkg/config"
	"github.com/openeeap/nmtrl/pkg/errors"
)

const minimalYAML = `
training:
  epochs: 3
  reinforce_rate: 0.5
  n_samples: 3
  reward_metric: hit
  hit_alpha: 0.3
data:
  pairs:
    - src: de
      tgt: en
      train_src: train.de
      train_tgt: train.en
      valid_src: valid.de
      valid_tgt: valid.en
    - src: fr
      tgt: en
      train_src: train.fr
      train_tgt: train.en
checkpoint:
  policy: override
  prefix: run1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nmtrl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile_AppliesDefaults(t *testing.T) {
	cfg, err := config.LoadFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Training.Epochs)
	assert.Equal(t, 1, cfg.Training.StartEpoch)
	assert.InDelta(t, 0.5, cfg.Training.ReinforceRate, 1e-12)
	assert.Equal(t, 3, cfg.Training.NSamples)
	assert.Equal(t, "hit", cfg.Training.RewardMetric)
	assert.InDelta(t, 0.3, cfg.Training.HitAlpha, 1e-12)
	assert.Equal(t, "greedy", cfg.Training.Baseline)
	assert.Equal(t, 100, cfg.Training.LogInterval)
	assert.Equal(t, 2000, cfg.Training.SampleEvery)
	assert.Equal(t, "sgd", cfg.Optim.Method)
	assert.InDelta(t, 5.0, cfg.Optim.MaxGradNorm, 1e-12)
	assert.Equal(t, "override", cfg.Checkpoint.Policy)
	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Equal(t, "./checkpoints", cfg.Storage.Local.BasePath)
	assert.Len(t, cfg.Data.Pairs, 2)
	assert.Equal(t, "de-en", cfg.Data.Pairs[0].Pair().String())
	assert.Equal(t, "nmtrl", cfg.Observability.Metrics.Namespace)
}

func TestLoadFile_EnvironmentOverride(t *testing.T) {
	t.Setenv("NMTRL_TRAINING_EPOCHS", "7")
	t.Setenv("NMTRL_OPTIM_LEARNING_RATE", "0.25")

	cfg, err := config.LoadFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Training.Epochs)
	assert.InDelta(t, 0.25, cfg.Optim.LearningRate, 1e-12)
}

func TestLoadFile_RewardKeysFromEnvironment(t *testing.T) {
	t.Setenv("NMTRL_TRAINING_REWARD_METRIC", "sbleu")
	t.Setenv("NMTRL_TRAINING_N_SAMPLES", "5")

	cfg, err := config.LoadFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "sbleu", cfg.Training.RewardMetric)
	assert.Equal(t, 5, cfg.Training.NSamples)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		patch string
	}{
		{
			name:  "reinforce rate above one",
			patch: "training:\n  reinforce_rate: 1.5\n",
		},
		{
			name:  "unknown metric",
			patch: "training:\n  reward_metric: meteor\n",
		},
		{
			name:  "unknown checkpoint policy",
			patch: "checkpoint:\n  policy: rotate\n",
		},
		{
			name:  "zero samples",
			patch: "training:\n  n_samples: 0\n",
		},
		{
			name:  "redis enabled without address",
			patch: "redis:\n  enabled: true\n",
		},
		{
			name:  "adapt pair without corpus",
			patch: "training:\n  adapt:\n    enabled: true\n    src: es\n    tgt: en\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.patch + `
data:
  pairs:
    - src: de
      tgt: en
      train_src: train.de
      train_tgt: train.en
`
			_, err := config.LoadFile(writeConfig(t, body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfigInvalid.Code), "got %v", err)
			assert.Equal(t, 2, errors.ExitCode(err))
		})
	}
}

func TestLoadFile_DuplicatePair(t *testing.T) {
	body := `
data:
  pairs:
    - {src: de, tgt: en, train_src: a, train_tgt: b}
    - {src: de, tgt: en, train_src: c, train_tgt: d}
`
	_, err := config.LoadFile(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate corpus")
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigLoad.Code))
}

func TestRedacted(t *testing.T) {
	cfg, err := config.LoadFile(writeConfig(t, minimalYAML+"\nredis:\n  password: hunter2\n"))
	require.NoError(t, err)

	out := cfg.Redacted()
	assert.Equal(t, "******", out.Redis.Password)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}
