// Package config provides centralized configuration management for nmtrl.
// It defines configuration structures for the trainer and its side services
// and supports validation, default values, and environment-based loading.
package config

import (
	"fmt"
	"time"

	"github.com/openeeap/nmtrl/pkg/types"
	"github.com/openeeap/nmtrl/pkg/validator"
)

// ============================================================================
// Main Configuration Structure
// ============================================================================

// Config represents the complete run configuration. It is loaded once and
// treated as read-only afterwards.
type Config struct {
	// Training loop configuration
	Training TrainingConfig `mapstructure:"training" yaml:"training" json:"training"`

	// Optimizer configuration
	Optim OptimConfig `mapstructure:"optim" yaml:"optim" json:"optim"`

	// Model configuration
	Model ModelConfig `mapstructure:"model" yaml:"model" json:"model"`

	// Training and validation corpora
	Data DataConfig `mapstructure:"data" yaml:"data" json:"data"`

	// Checkpoint policy
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint" json:"checkpoint"`

	// Checkpoint storage backend
	Storage StorageConfig `mapstructure:"storage" yaml:"storage" json:"storage"`

	// Redis run status store
	Redis RedisConfig `mapstructure:"redis" yaml:"redis" json:"redis"`

	// Kafka training event stream
	Kafka KafkaConfig `mapstructure:"kafka" yaml:"kafka" json:"kafka"`

	// Postgres checkpoint ledger
	Database DatabaseConfig `mapstructure:"database" yaml:"database" json:"database"`

	// Status HTTP server
	Status StatusConfig `mapstructure:"status" yaml:"status" json:"status"`

	// Observability configuration
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability" json:"observability"`
}

// ============================================================================
// Training Configuration
// ============================================================================

// TrainingConfig defines the epoch loop and the REINFORCE objective
type TrainingConfig struct {
	// Number of training epochs
	Epochs int `mapstructure:"epochs" yaml:"epochs" json:"epochs" validate:"gte=1"`

	// Epoch from which to start (1-indexed)
	StartEpoch int `mapstructure:"start_epoch" yaml:"start_epoch" json:"start_epoch" validate:"gte=1"`

	// Maximum sentence pairs per batch
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size" validate:"gte=1"`

	// Probability of training a window with REINFORCE instead of cross-entropy
	ReinforceRate float64 `mapstructure:"reinforce_rate" yaml:"reinforce_rate" json:"reinforce_rate" validate:"probability"`

	// Monte-Carlo samples per REINFORCE window
	NSamples int `mapstructure:"n_samples" yaml:"n_samples" json:"n_samples" validate:"gte=1"`

	// Sentence-level reward metric (gleu, sbleu, hit)
	RewardMetric string `mapstructure:"reward_metric" yaml:"reward_metric" json:"reward_metric" validate:"reward_metric"`

	// Hypothesis weight for the hit metric
	HitAlpha float64 `mapstructure:"hit_alpha" yaml:"hit_alpha" json:"hit_alpha" validate:"probability"`

	// Reward baseline (greedy, none)
	Baseline string `mapstructure:"baseline" yaml:"baseline" json:"baseline" validate:"baseline"`

	// Standardize advantages within a batch
	NormalizeAdvantage bool `mapstructure:"normalize_advantage" yaml:"normalize_advantage" json:"normalize_advantage"`

	// Print stats every this many outer examples
	LogInterval int `mapstructure:"log_interval" yaml:"log_interval" json:"log_interval" validate:"gte=1"`

	// Validate and checkpoint every this many outer examples; 0 disables
	SaveEvery int `mapstructure:"save_every" yaml:"save_every" json:"save_every" validate:"gte=0"`

	// Log sample translations every this many outer examples; 0 disables
	SampleEvery int `mapstructure:"sample_every" yaml:"sample_every" json:"sample_every" validate:"gte=0"`

	// Use corpus order instead of a shuffled batch order up to this epoch
	Curriculum int `mapstructure:"curriculum" yaml:"curriculum" json:"curriculum" validate:"gte=0"`

	// Train on a single language pair only
	Adapt AdaptConfig `mapstructure:"adapt" yaml:"adapt" json:"adapt"`

	// Seed for the mode draw and the batch sampler
	Seed int64 `mapstructure:"seed" yaml:"seed" json:"seed"`

	// Checkpoint to resume from (weights, optimizer and position)
	Resume string `mapstructure:"resume" yaml:"resume" json:"resume"`

	// Strip "@@ " BPE markers before scoring
	RemoveBPE bool `mapstructure:"remove_bpe" yaml:"remove_bpe" json:"remove_bpe"`
}

// AdaptConfig pins training to one language pair
type AdaptConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Src     string `mapstructure:"src" yaml:"src" json:"src" validate:"omitempty,lang"`
	Tgt     string `mapstructure:"tgt" yaml:"tgt" json:"tgt" validate:"omitempty,lang"`
}

// Pair returns the pinned language pair
func (ac AdaptConfig) Pair() types.LanguagePair {
	return types.LanguagePair{Src: ac.Src, Tgt: ac.Tgt}
}

// ============================================================================
// Optimizer Configuration
// ============================================================================

// OptimConfig defines the parameter update rule and learning rate schedule
type OptimConfig struct {
	// Optimization method (sgd, adagrad, adam)
	Method string `mapstructure:"method" yaml:"method" json:"method" validate:"optimizer"`

	// Starting learning rate
	LearningRate float64 `mapstructure:"learning_rate" yaml:"learning_rate" json:"learning_rate" validate:"gt=0"`

	// Renormalize gradients whose global norm exceeds this; 0 disables
	MaxGradNorm float64 `mapstructure:"max_grad_norm" yaml:"max_grad_norm" json:"max_grad_norm" validate:"gte=0"`

	// Multiplicative learning rate decay
	LRDecay float64 `mapstructure:"lr_decay" yaml:"lr_decay" json:"lr_decay" validate:"gt=0,lte=1"`

	// Decay every epoch from this epoch on
	StartDecayAt int `mapstructure:"start_decay_at" yaml:"start_decay_at" json:"start_decay_at" validate:"gte=1"`

	// Adam first moment decay
	Beta1 float64 `mapstructure:"beta1" yaml:"beta1" json:"beta1" validate:"gte=0,lt=1"`

	// Adam second moment decay
	Beta2 float64 `mapstructure:"beta2" yaml:"beta2" json:"beta2" validate:"gte=0,lt=1"`

	// Numerical stabilizer for adaptive methods
	Epsilon float64 `mapstructure:"epsilon" yaml:"epsilon" json:"epsilon" validate:"gt=0"`
}

// ============================================================================
// Model Configuration
// ============================================================================

// ModelConfig defines the translation model
type ModelConfig struct {
	// Model family; only "positional" ships with nmtrl
	Type string `mapstructure:"type" yaml:"type" json:"type" validate:"oneof=positional"`

	// Maximum decoded length L, including the end-of-sentence token
	MaxDecodeLength int `mapstructure:"max_decode_length" yaml:"max_decode_length" json:"max_decode_length" validate:"gte=1"`

	// Uniform initialization range for parameters
	ParamInit float64 `mapstructure:"param_init" yaml:"param_init" json:"param_init" validate:"gte=0"`
}

// ============================================================================
// Data Configuration
// ============================================================================

// DataConfig defines the parallel corpora
type DataConfig struct {
	// One entry per language pair
	Pairs []CorpusConfig `mapstructure:"pairs" yaml:"pairs" json:"pairs" validate:"required,min=1,dive"`

	// Drop training pairs longer than this many tokens on either side
	MaxSentenceLength int `mapstructure:"max_sentence_length" yaml:"max_sentence_length" json:"max_sentence_length" validate:"gte=1"`

	// Shuffle the batch order at every epoch
	Shuffle bool `mapstructure:"shuffle" yaml:"shuffle" json:"shuffle"`

	// Keep at most this many words per language, reserved words included; 0 keeps all
	VocabSize int `mapstructure:"vocab_size" yaml:"vocab_size" json:"vocab_size" validate:"gte=0"`

	// Drop words seen fewer times than this in the training data
	MinFrequency int `mapstructure:"min_frequency" yaml:"min_frequency" json:"min_frequency" validate:"gte=1"`
}

// CorpusConfig defines one language pair's training and validation files
type CorpusConfig struct {
	Src      string `mapstructure:"src" yaml:"src" json:"src" validate:"required,lang"`
	Tgt      string `mapstructure:"tgt" yaml:"tgt" json:"tgt" validate:"required,lang"`
	TrainSrc string `mapstructure:"train_src" yaml:"train_src" json:"train_src" validate:"required"`
	TrainTgt string `mapstructure:"train_tgt" yaml:"train_tgt" json:"train_tgt" validate:"required"`
	ValidSrc string `mapstructure:"valid_src" yaml:"valid_src" json:"valid_src"`
	ValidTgt string `mapstructure:"valid_tgt" yaml:"valid_tgt" json:"valid_tgt" validate:"required_with=ValidSrc"`

	// Relative sampling weight; 0 means proportional to remaining batches
	Weight float64 `mapstructure:"weight" yaml:"weight" json:"weight" validate:"gte=0"`
}

// Pair returns the corpus language pair
func (cc CorpusConfig) Pair() types.LanguagePair {
	return types.LanguagePair{Src: cc.Src, Tgt: cc.Tgt}
}

// ============================================================================
// Checkpoint Configuration
// ============================================================================

// CheckpointConfig defines when and how checkpoints are written
type CheckpointConfig struct {
	// keep_all or override
	Policy string `mapstructure:"policy" yaml:"policy" json:"policy" validate:"ckpt_policy"`

	// Name prefix for checkpoint objects
	Prefix string `mapstructure:"prefix" yaml:"prefix" json:"prefix" validate:"required"`
}

// ============================================================================
// Storage Configuration
// ============================================================================

// StorageConfig selects the checkpoint storage backend
type StorageConfig struct {
	// Provider (local, minio)
	Provider string `mapstructure:"provider" yaml:"provider" json:"provider" validate:"oneof=local minio"`

	// Local filesystem storage
	Local LocalStorageConfig `mapstructure:"local" yaml:"local" json:"local"`

	// MinIO/S3 storage
	MinIO MinIOConfig `mapstructure:"minio" yaml:"minio" json:"minio"`
}

// LocalStorageConfig defines local filesystem storage
type LocalStorageConfig struct {
	// Directory that receives checkpoint files
	BasePath string `mapstructure:"base_path" yaml:"base_path" json:"base_path"`
}

// MinIOConfig defines MinIO connection settings
type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id" yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key" yaml:"secret_access_key" json:"secret_access_key"`
	Bucket          string        `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Region          string        `mapstructure:"region" yaml:"region" json:"region"`
	UseSSL          bool          `mapstructure:"use_ssl" yaml:"use_ssl" json:"use_ssl"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// ============================================================================
// Redis Configuration
// ============================================================================

// RedisConfig defines the run status store
type RedisConfig struct {
	// Publish run status to Redis
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Server address
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr" validate:"omitempty,hostport"`

	// Password
	Password string `mapstructure:"password" yaml:"password" json:"password"`

	// Database number
	DB int `mapstructure:"db" yaml:"db" json:"db" validate:"gte=0"`

	// Pool size
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size" json:"pool_size"`

	// Dial timeout
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" json:"dial_timeout"`

	// Read timeout
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`

	// Write timeout
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`

	// Key prefix for status entries
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix" json:"key_prefix"`

	// Expiry of status entries after the last update
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
}

// ============================================================================
// Kafka Configuration
// ============================================================================

// KafkaConfig defines the training event stream
type KafkaConfig struct {
	// Publish training events to Kafka
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Broker addresses
	Brokers []string `mapstructure:"brokers" yaml:"brokers" json:"brokers"`

	// Client ID
	ClientID string `mapstructure:"client_id" yaml:"client_id" json:"client_id"`

	// Topic receiving training events
	Topic string `mapstructure:"topic" yaml:"topic" json:"topic"`

	// Kafka protocol version
	Version string `mapstructure:"version" yaml:"version" json:"version"`

	// Required acks (0, 1, -1)
	RequiredAcks int `mapstructure:"required_acks" yaml:"required_acks" json:"required_acks" validate:"oneof=-1 0 1"`

	// Producer timeout
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	// Producer retries
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries" validate:"gte=0"`
}

// ============================================================================
// Database Configuration
// ============================================================================

// DatabaseConfig defines the checkpoint ledger database
type DatabaseConfig struct {
	// Record checkpoints in Postgres
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Host address
	Host string `mapstructure:"host" yaml:"host" json:"host"`

	// Port number
	Port int `mapstructure:"port" yaml:"port" json:"port"`

	// Database name
	Database string `mapstructure:"database" yaml:"database" json:"database"`

	// Username
	Username string `mapstructure:"username" yaml:"username" json:"username"`

	// Password
	Password string `mapstructure:"password" yaml:"password" json:"password"`

	// SSL mode (disable, require, verify-ca, verify-full)
	SSLMode string `mapstructure:"ssl_mode" yaml:"ssl_mode" json:"ssl_mode"`

	// Maximum open connections
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns" json:"max_open_conns"`

	// Maximum idle connections
	MaxIdleConns int `mapstructure:"max_idle_conns" yaml:"max_idle_conns" json:"max_idle_conns"`

	// Connection max lifetime
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime" json:"conn_max_lifetime"`

	// Log mode (silent, error, warn, info)
	LogMode string `mapstructure:"log_mode" yaml:"log_mode" json:"log_mode"`
}

// DSN builds the postgres connection string
func (dc *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dc.Host, dc.Port, dc.Username, dc.Password, dc.Database, dc.SSLMode,
	)
}

// ============================================================================
// Status Server Configuration
// ============================================================================

// StatusConfig defines the HTTP status server
type StatusConfig struct {
	// Serve run status, metrics and pprof over HTTP
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Listen address
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr" validate:"omitempty,hostport"`

	// Mount pprof handlers under /debug/pprof
	EnablePprof bool `mapstructure:"enable_pprof" yaml:"enable_pprof" json:"enable_pprof"`

	// Shutdown grace period
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Requests per second allowed per client on /api, 0 disables limiting
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit" validate:"gte=0"`

	// Origins allowed to call the API from a browser; empty disables CORS
	AllowOrigins []string `mapstructure:"allow_origins" yaml:"allow_origins" json:"allow_origins"`

	// HMAC secret for bearer tokens on /api; empty disables authentication
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret" json:"jwt_secret"`
}

// ============================================================================
// Observability Configuration
// ============================================================================

// ObservabilityConfig defines logging, metrics and tracing
type ObservabilityConfig struct {
	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// Tracing configuration
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level" yaml:"level" json:"level" validate:"oneof=debug info warn error"`

	// Output format (json, console)
	Format string `mapstructure:"format" yaml:"format" json:"format" validate:"oneof=json console"`

	// Output (stdout, stderr, file)
	Output string `mapstructure:"output" yaml:"output" json:"output" validate:"oneof=stdout stderr file"`

	// Log file path when output is file
	FilePath string `mapstructure:"file_path" yaml:"file_path" json:"file_path"`

	// Rotation: megabytes per file
	MaxSize int `mapstructure:"max_size" yaml:"max_size" json:"max_size"`

	// Rotation: number of old files kept
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`

	// Rotation: days to keep old files
	MaxAge int `mapstructure:"max_age" yaml:"max_age" json:"max_age"`

	// Rotation: gzip old files
	Compress bool `mapstructure:"compress" yaml:"compress" json:"compress"`
}

// MetricsConfig defines Prometheus metrics
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace" json:"namespace"`
	Subsystem string `mapstructure:"subsystem" yaml:"subsystem" json:"subsystem"`
}

// TracingConfig defines OpenTelemetry tracing
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Provider     string  `mapstructure:"provider" yaml:"provider" json:"provider" validate:"omitempty,oneof=jaeger zipkin otlp"`
	Endpoint     string  `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	ServiceName  string  `mapstructure:"service_name" yaml:"service_name" json:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate" json:"sampling_rate" validate:"probability"`
}

// ============================================================================
// Validation
// ============================================================================

// Validate validates the complete configuration
func (c *Config) Validate() error {
	if err := validator.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.Training.Validate(); err != nil {
		return fmt.Errorf("training config: %w", err)
	}
	if err := c.Data.Validate(); err != nil {
		return fmt.Errorf("data config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.validateSinks(); err != nil {
		return err
	}

	if c.Training.Adapt.Enabled {
		if _, ok := c.Data.Find(c.Training.Adapt.Pair()); !ok {
			return fmt.Errorf("training config: adapt pair %s has no corpus", c.Training.Adapt.Pair())
		}
	}

	return nil
}

// validateSinks checks that every enabled side service has an address
func (c *Config) validateSinks() error {
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis config: addr is required when enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka config: brokers are required when enabled")
	}
	if c.Database.Enabled && c.Database.Host == "" {
		return fmt.Errorf("database config: host is required when enabled")
	}
	if c.Status.Enabled && c.Status.Addr == "" {
		return fmt.Errorf("status config: addr is required when enabled")
	}
	if c.Observability.Tracing.Enabled && c.Observability.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing config: endpoint is required for provider %s", c.Observability.Tracing.Provider)
	}
	if c.Observability.Logging.Output == "file" && c.Observability.Logging.FilePath == "" {
		return fmt.Errorf("logging config: file_path is required when output is file")
	}
	return nil
}

// Validate checks training settings that tags cannot express
func (tc *TrainingConfig) Validate() error {
	if tc.StartEpoch > tc.Epochs {
		return fmt.Errorf("start_epoch %d is past the last epoch %d", tc.StartEpoch, tc.Epochs)
	}
	if tc.Adapt.Enabled && (tc.Adapt.Src == "" || tc.Adapt.Tgt == "") {
		return fmt.Errorf("adapt requires both src and tgt")
	}
	return nil
}

// Validate checks that every language pair appears once
func (dc *DataConfig) Validate() error {
	seen := make(map[types.LanguagePair]bool, len(dc.Pairs))
	for _, p := range dc.Pairs {
		if seen[p.Pair()] {
			return fmt.Errorf("duplicate corpus for %s", p.Pair())
		}
		seen[p.Pair()] = true
	}
	return nil
}

// Find returns the index of the corpus for a language pair
func (dc *DataConfig) Find(pair types.LanguagePair) (int, bool) {
	for i, p := range dc.Pairs {
		if p.Pair() == pair {
			return i, true
		}
	}
	return -1, false
}

// Validate checks that the selected provider is configured
func (sc *StorageConfig) Validate() error {
	switch types.StorageProvider(sc.Provider) {
	case types.StorageLocal:
		if sc.Local.BasePath == "" {
			return fmt.Errorf("local base_path is required")
		}
	case types.StorageMinIO:
		if sc.MinIO.Endpoint == "" {
			return fmt.Errorf("minio endpoint is required")
		}
		if sc.MinIO.Bucket == "" {
			return fmt.Errorf("minio bucket is required")
		}
	}
	return nil
}

// ============================================================================
// Presentation
// ============================================================================

const redacted = "******"

// Redacted returns a copy with secrets masked, for printing
func (c *Config) Redacted() *Config {
	out := *c
	out.Data.Pairs = append([]CorpusConfig(nil), c.Data.Pairs...)
	if out.Storage.MinIO.SecretAccessKey != "" {
		out.Storage.MinIO.SecretAccessKey = redacted
	}
	if out.Redis.Password != "" {
		out.Redis.Password = redacted
	}
	if out.Database.Password != "" {
		out.Database.Password = redacted
	}
	if out.Status.JWTSecret != "" {
		out.Status.JWTSecret = redacted
	}
	return &out
}

//Personal.AI order the ending
