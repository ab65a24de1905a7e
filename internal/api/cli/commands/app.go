// Package commands implements the nmtrl subcommands.
package commands

import (
	"context"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/openeeap/nmtrl/internal/infrastructure/storage/local"
	"github.com/openeeap/nmtrl/internal/infrastructure/storage/minio"
	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/internal/observability/metrics"
	"github.com/openeeap/nmtrl/internal/observability/trace"
	"github.com/openeeap/nmtrl/internal/platform/corpus"
	"github.com/openeeap/nmtrl/internal/platform/training/checkpoint"
	"github.com/openeeap/nmtrl/pkg/config"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// App 命令共享的运行环境，由根命令在执行前填充
type App struct {
	// ConfigFile 配置文件路径，空表示按默认路径查找
	ConfigFile string

	// Output 输出格式 (table|json|yaml)
	Output string

	// Verbose 强制 debug 日志
	Verbose bool

	// Version 构建版本
	Version string

	loader *config.Loader
	cfg    *config.Config
	logger logging.Logger
}

// NewApp 创建运行环境
func NewApp(version string) *App {
	return &App{Version: version, Output: "table"}
}

// Set 在加载配置前覆盖单个配置项，用于命令行标志
func (a *App) Set(key string, value interface{}) {
	a.ensureLoader().Set(key, value)
}

func (a *App) ensureLoader() *config.Loader {
	if a.loader == nil {
		a.loader = config.NewLoader(config.LoaderOptions{ConfigFile: a.ConfigFile})
	}
	return a.loader
}

// Config 加载并校验配置，只加载一次
func (a *App) Config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := a.ensureLoader().Load()
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// Logger 按配置创建日志对象；配置尚未加载时返回控制台日志
func (a *App) Logger() logging.Logger {
	if a.logger != nil {
		return a.logger
	}
	lc := logging.LogConfig{Level: "info", Format: "console", Output: "stderr"}
	if a.cfg != nil {
		l := a.cfg.Observability.Logging
		lc = logging.LogConfig{
			Level:      l.Level,
			Format:     l.Format,
			Output:     l.Output,
			FilePath:   l.FilePath,
			MaxSize:    l.MaxSize,
			MaxBackups: l.MaxBackups,
			MaxAge:     l.MaxAge,
			Compress:   l.Compress,
		}
	}
	if a.Verbose {
		lc.Level = "debug"
	}
	logger, err := logging.New(lc)
	if err != nil {
		logger = logging.NewNoopLogger()
	}
	a.logger = logger
	return logger
}

// Close 刷新日志
func (a *App) Close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// Metrics 创建指标收集器，未启用时返回 nil
func (a *App) Metrics(cfg *config.Config) *metrics.MetricsCollector {
	mc := cfg.Observability.Metrics
	if !mc.Enabled {
		return nil
	}
	collector := metrics.NewMetricsCollector(metrics.CollectorConfig{
		Namespace: mc.Namespace,
		Subsystem: mc.Subsystem,
	})
	return collector
}

// Tracer 创建追踪器，未启用时返回空实现
func (a *App) Tracer(cfg *config.Config) (trace.Tracer, error) {
	tc := cfg.Observability.Tracing
	if !tc.Enabled {
		return trace.NewNoopTracer(), nil
	}
	tracer, err := trace.NewTracer(trace.TracerConfig{
		ServiceName:    tc.ServiceName,
		ServiceVersion: a.Version,
		Provider:       tc.Provider,
		Endpoint:       tc.Endpoint,
		SamplingRate:   tc.SamplingRate,
	})
	if err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrSinkConnect, "tracing "+tc.Provider)
	}
	return tracer, nil
}

// CheckpointManager 按存储配置创建检查点管理器
func (a *App) CheckpointManager(ctx context.Context, cfg *config.Config) (*checkpoint.Manager, error) {
	var store checkpoint.Store
	switch cfg.Storage.Provider {
	case "minio":
		m := cfg.Storage.MinIO
		s, err := minio.NewStore(ctx, &minio.MinIOConfig{
			Endpoint:        m.Endpoint,
			AccessKeyID:     m.AccessKeyID,
			SecretAccessKey: m.SecretAccessKey,
			Bucket:          m.Bucket,
			UseSSL:          m.UseSSL,
			Region:          m.Region,
			Timeout:         m.Timeout,
		})
		if err != nil {
			return nil, err
		}
		store = s
	default:
		s, err := local.NewStore(cfg.Storage.Local.BasePath)
		if err != nil {
			return nil, err
		}
		store = s
	}
	return checkpoint.NewManager(store, checkpoint.ManagerOptions{
		Policy: types.CheckpointPolicy(cfg.Checkpoint.Policy),
		Prefix: cfg.Checkpoint.Prefix,
	}, a.Logger())
}

// dictionariesOf 恢复检查点中保存的词表
func dictionariesOf(c *checkpoint.Checkpoint) (map[string]*corpus.Dictionary, error) {
	out := make(map[string]*corpus.Dictionary, len(c.Dictionaries))
	for lang, words := range c.Dictionaries {
		d, err := corpus.DictionaryFromWords(lang, words)
		if err != nil {
			return nil, err
		}
		out[lang] = d
	}
	return out, nil
}

// printOutput 统一输出格式化
func printOutput(w io.Writer, format string, data interface{}, table func(io.Writer) error) error {
	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)

	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(data)

	case "table", "text", "":
		return table(w)

	default:
		return errors.ValidationErrorf("unsupported output format: %s", format)
	}
}

//Personal.AI order the ending
