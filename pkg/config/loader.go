// Package config provides configuration loading for nmtrl.
// It supports loading from YAML files and environment variables using Viper.
// A loaded configuration is immutable for the lifetime of a run.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openeeap/nmtrl/pkg/errors"
)

// ============================================================================
// Configuration Loader
// ============================================================================

// DefaultEnvPrefix is the prefix of environment overrides, e.g. NMTRL_TRAINING_EPOCHS
const DefaultEnvPrefix = "NMTRL"

// Loader reads configuration from a file and the environment
type Loader struct {
	// Viper instance
	viper *viper.Viper

	// Configuration file path
	configFile string
}

// LoaderOptions defines options for configuration loader
type LoaderOptions struct {
	// Configuration file path
	ConfigFile string

	// Configuration file type (yaml, json, toml)
	ConfigType string

	// Environment variable prefix
	EnvPrefix string

	// Additional config paths to search
	ConfigPaths []string
}

// ============================================================================
// Loader Creation and Initialization
// ============================================================================

// NewLoader creates a new configuration loader
func NewLoader(opts LoaderOptions) *Loader {
	v := viper.New()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("nmtrl")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/nmtrl")
		for _, path := range opts.ConfigPaths {
			v.AddConfigPath(path)
		}
	}
	if opts.ConfigType != "" {
		v.SetConfigType(opts.ConfigType)
	} else if opts.ConfigFile == "" {
		v.SetConfigType("yaml")
	}

	envPrefix := opts.EnvPrefix
	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	return &Loader{
		viper:      v,
		configFile: opts.ConfigFile,
	}
}

// Load reads, defaults and validates the configuration
func (l *Loader) Load() (*Config, error) {
	if err := l.viper.ReadInConfig(); err != nil {
		// A missing file is only acceptable when none was named explicitly
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || l.configFile != "" {
			return nil, errors.WrapFromCode(err, errors.ErrConfigLoad)
		}
	}

	config := &Config{}
	if err := l.viper.Unmarshal(config); err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrConfigLoad)
	}

	applyDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrConfigInvalid, "validation failed")
	}

	return config, nil
}

// ConfigFileUsed returns the file the configuration was read from, if any
func (l *Loader) ConfigFileUsed() string {
	return l.viper.ConfigFileUsed()
}

// Set overrides a single key before Load, used for command-line flags
func (l *Loader) Set(key string, value interface{}) {
	l.viper.Set(key, value)
}

// ============================================================================
// Configuration Defaults
// ============================================================================

// setDefaults registers defaults with viper so that zero is a legal explicit value
// and every key is visible to environment overrides
func setDefaults(v *viper.Viper) {
	// Training defaults
	v.SetDefault("training.epochs", 13)
	v.SetDefault("training.start_epoch", 1)
	v.SetDefault("training.batch_size", 64)
	v.SetDefault("training.reinforce_rate", 0.0)
	v.SetDefault("training.n_samples", 1)
	v.SetDefault("training.reward_metric", "gleu")
	v.SetDefault("training.hit_alpha", 0.5)
	v.SetDefault("training.baseline", "greedy")
	v.SetDefault("training.normalize_advantage", false)
	v.SetDefault("training.log_interval", 100)
	v.SetDefault("training.save_every", 0)
	v.SetDefault("training.sample_every", 2000)
	v.SetDefault("training.curriculum", 0)
	v.SetDefault("training.seed", 9999)
	v.SetDefault("training.remove_bpe", false)

	// Optimizer defaults
	v.SetDefault("optim.method", "sgd")
	v.SetDefault("optim.learning_rate", 1.0)
	v.SetDefault("optim.max_grad_norm", 5.0)
	v.SetDefault("optim.lr_decay", 1.0)
	v.SetDefault("optim.start_decay_at", 1000)
	v.SetDefault("optim.beta1", 0.9)
	v.SetDefault("optim.beta2", 0.999)
	v.SetDefault("optim.epsilon", 1e-8)

	// Model defaults
	v.SetDefault("model.type", "positional")
	v.SetDefault("model.max_decode_length", 50)
	v.SetDefault("model.param_init", 0.1)

	// Data defaults
	v.SetDefault("data.max_sentence_length", 50)
	v.SetDefault("data.shuffle", true)
	v.SetDefault("data.vocab_size", 50000)
	v.SetDefault("data.min_frequency", 1)

	// Checkpoint defaults
	v.SetDefault("checkpoint.policy", "keep_all")
	v.SetDefault("checkpoint.prefix", "model")

	// Storage defaults
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local.base_path", "./checkpoints")

	// Side service switches
	v.SetDefault("redis.enabled", false)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.required_acks", 1)
	v.SetDefault("database.enabled", false)
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.enable_pprof", false)
	v.SetDefault("status.rate_limit", 20.0)

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "console")
	v.SetDefault("observability.logging.output", "stdout")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.sampling_rate", 0.1)
}

// applyDefaults fills connection settings whose zero value is never meaningful
func applyDefaults(config *Config) {
	// MinIO defaults
	if config.Storage.MinIO.Timeout == 0 {
		config.Storage.MinIO.Timeout = 30 * time.Second
	}
	if config.Storage.MinIO.Region == "" {
		config.Storage.MinIO.Region = "us-east-1"
	}

	// Redis defaults
	if config.Redis.PoolSize == 0 {
		config.Redis.PoolSize = 10
	}
	if config.Redis.DialTimeout == 0 {
		config.Redis.DialTimeout = 5 * time.Second
	}
	if config.Redis.ReadTimeout == 0 {
		config.Redis.ReadTimeout = 3 * time.Second
	}
	if config.Redis.WriteTimeout == 0 {
		config.Redis.WriteTimeout = 3 * time.Second
	}
	if config.Redis.KeyPrefix == "" {
		config.Redis.KeyPrefix = "nmtrl"
	}
	if config.Redis.TTL == 0 {
		config.Redis.TTL = 7 * 24 * time.Hour
	}

	// Kafka defaults
	if config.Kafka.ClientID == "" {
		config.Kafka.ClientID = "nmtrl"
	}
	if config.Kafka.Topic == "" {
		config.Kafka.Topic = "nmtrl.training.events"
	}
	if config.Kafka.Version == "" {
		config.Kafka.Version = "2.8.0"
	}
	if config.Kafka.Timeout == 0 {
		config.Kafka.Timeout = 10 * time.Second
	}
	if config.Kafka.MaxRetries == 0 {
		config.Kafka.MaxRetries = 3
	}

	// Database defaults
	if config.Database.Port == 0 {
		config.Database.Port = 5432
	}
	if config.Database.SSLMode == "" {
		config.Database.SSLMode = "disable"
	}
	if config.Database.MaxOpenConns == 0 {
		config.Database.MaxOpenConns = 5
	}
	if config.Database.MaxIdleConns == 0 {
		config.Database.MaxIdleConns = 2
	}
	if config.Database.ConnMaxLifetime == 0 {
		config.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if config.Database.LogMode == "" {
		config.Database.LogMode = "error"
	}

	// Status server defaults
	if config.Status.Addr == "" && config.Status.Enabled {
		config.Status.Addr = "127.0.0.1:8089"
	}
	if config.Status.ShutdownTimeout == 0 {
		config.Status.ShutdownTimeout = 5 * time.Second
	}

	// Observability defaults
	if config.Observability.Logging.MaxSize == 0 {
		config.Observability.Logging.MaxSize = 100
	}
	if config.Observability.Logging.MaxBackups == 0 {
		config.Observability.Logging.MaxBackups = 5
	}
	if config.Observability.Logging.MaxAge == 0 {
		config.Observability.Logging.MaxAge = 30
	}
	if config.Observability.Metrics.Namespace == "" {
		config.Observability.Metrics.Namespace = "nmtrl"
	}
	if config.Observability.Metrics.Subsystem == "" {
		config.Observability.Metrics.Subsystem = "trainer"
	}
	if config.Observability.Tracing.ServiceName == "" {
		config.Observability.Tracing.ServiceName = "nmtrl"
	}
	if config.Observability.Tracing.Provider == "" {
		config.Observability.Tracing.Provider = "otlp"
	}
}

// ============================================================================
// Convenience Functions
// ============================================================================

// LoadFile loads configuration from a single file with environment overrides
func LoadFile(path string) (*Config, error) {
	return NewLoader(LoaderOptions{ConfigFile: path}).Load()
}

// MustLoad loads configuration or panics
func MustLoad(path string) *Config {
	config, err := LoadFile(path)
	if err != nil {
		panic(err)
	}
	return config
}

//Personal.AI order the ending
