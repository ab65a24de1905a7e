// Package metrics exposes trainer progress to Prometheus: examples per
// objective, rewards, losses, the learning rate and validation scores.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector owns a registry and the trainer metric vectors, keyed by
// short name. Exposed names are namespace_subsystem_name.
type MetricsCollector struct {
	registry  *prometheus.Registry
	namespace string
	subsystem string

	mu         sync.RWMutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// CollectorConfig configures NewMetricsCollector
type CollectorConfig struct {
	Namespace            string
	Subsystem            string
	EnableGoMetrics      bool
	EnableProcessMetrics bool
	Registry             *prometheus.Registry // nil creates a private registry
}

// NewMetricsCollector registers every trainer metric up front
func NewMetricsCollector(cfg CollectorConfig) *MetricsCollector {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.EnableGoMetrics {
		registry.MustRegister(collectors.NewGoCollector())
	}

	if cfg.EnableProcessMetrics {
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	c := &MetricsCollector{
		registry:   registry,
		namespace:  cfg.Namespace,
		subsystem:  cfg.Subsystem,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	c.registerTrainingMetrics()
	return c
}

// Metric names
const (
	MetricExamplesTotal     = "examples_total"
	MetricSamplesTotal      = "reinforce_samples_total"
	MetricTokensTotal       = "tokens_total"
	MetricReward            = "reward"
	MetricAdvantage         = "advantage_abs"
	MetricXELoss            = "xe_loss_per_word"
	MetricLearningRate      = "learning_rate"
	MetricEpoch             = "epoch"
	MetricValidBLEU         = "valid_bleu"
	MetricValidPPL          = "valid_perplexity"
	MetricCheckpointsTotal  = "checkpoints_total"
	MetricWindowDuration    = "window_duration_seconds"
	MetricCheckpointSeconds = "checkpoint_write_seconds"
	MetricSinkErrorsTotal   = "sink_errors_total"
)

func (c *MetricsCollector) registerTrainingMetrics() {
	// Loop progress
	c.RegisterCounter(MetricExamplesTotal, "Outer training examples processed", []string{"pair", "mode"})
	c.RegisterCounter(MetricSamplesTotal, "Monte-Carlo samples drawn in REINFORCE windows", []string{"pair"})
	c.RegisterCounter(MetricTokensTotal, "Tokens processed", []string{"side"})
	c.RegisterGauge(MetricEpoch, "Fractional training epoch", nil)
	c.RegisterHistogram(MetricWindowDuration, "Wall time of one training window", []string{"mode"}, prometheus.DefBuckets)

	// Objective
	c.RegisterGauge(MetricReward, "Mean batch reward of the latest REINFORCE sample", []string{"pair", "kind"})
	c.RegisterHistogram(MetricAdvantage, "Mean absolute advantage per REINFORCE sample", []string{"pair"},
		[]float64{0.001, 0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5})
	c.RegisterGauge(MetricXELoss, "Cross-entropy loss per target word of the latest window", []string{"pair"})
	c.RegisterGauge(MetricLearningRate, "Current learning rate", nil)

	// Validation
	c.RegisterGauge(MetricValidBLEU, "Corpus BLEU on the validation set", []string{"pair"})
	c.RegisterGauge(MetricValidPPL, "Perplexity on the validation set", []string{"pair"})

	// Persistence and side sinks
	c.RegisterCounter(MetricCheckpointsTotal, "Checkpoint save points", []string{"policy", "outcome"})
	c.RegisterHistogram(MetricCheckpointSeconds, "Checkpoint encode and write time", nil, prometheus.DefBuckets)
	c.RegisterCounter(MetricSinkErrorsTotal, "Failed deliveries to observers", []string{"sink"})
}

// ============================================================================
// Registration and updates
// ============================================================================

func (c *MetricsCollector) opts(name, help string) prometheus.Opts {
	return prometheus.Opts{Namespace: c.namespace, Subsystem: c.subsystem, Name: name, Help: help}
}

// RegisterCounter is a no-op when name is already registered
func (c *MetricsCollector) RegisterCounter(name, help string, labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.counters[name]; !ok {
		c.counters[name] = promauto.With(c.registry).NewCounterVec(prometheus.CounterOpts(c.opts(name, help)), labels)
	}
}

// RegisterGauge is a no-op when name is already registered
func (c *MetricsCollector) RegisterGauge(name, help string, labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.gauges[name]; !ok {
		c.gauges[name] = promauto.With(c.registry).NewGaugeVec(prometheus.GaugeOpts(c.opts(name, help)), labels)
	}
}

// RegisterHistogram is a no-op when name is already registered
func (c *MetricsCollector) RegisterHistogram(name, help string, labels []string, buckets []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.histograms[name]; ok {
		return
	}
	o := c.opts(name, help)
	c.histograms[name] = promauto.With(c.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
		Buckets:   buckets,
	}, labels)
}

// Updates to unregistered names are dropped.

func (c *MetricsCollector) IncrementCounter(name string, labels prometheus.Labels) {
	c.AddCounter(name, 1, labels)
}

func (c *MetricsCollector) AddCounter(name string, value float64, labels prometheus.Labels) {
	c.mu.RLock()
	vec := c.counters[name]
	c.mu.RUnlock()
	if vec != nil {
		vec.With(labels).Add(value)
	}
}

func (c *MetricsCollector) SetGauge(name string, value float64, labels prometheus.Labels) {
	c.mu.RLock()
	vec := c.gauges[name]
	c.mu.RUnlock()
	if vec != nil {
		vec.With(labels).Set(value)
	}
}

func (c *MetricsCollector) ObserveHistogram(name string, value float64, labels prometheus.Labels) {
	c.mu.RLock()
	vec := c.histograms[name]
	c.mu.RUnlock()
	if vec != nil {
		vec.With(labels).Observe(value)
	}
}

// ObserveDuration observes the seconds elapsed since start
func (c *MetricsCollector) ObserveDuration(name string, start time.Time, labels prometheus.Labels) {
	c.ObserveHistogram(name, time.Since(start).Seconds(), labels)
}

// ============================================================================
// HTTP Handler
// ============================================================================

// Handler serves the registry in the Prometheus text or OpenMetrics format
func (c *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry exposes the underlying registry, mainly for tests
func (c *MetricsCollector) Registry() *prometheus.Registry {
	return c.registry
}

// ============================================================================
// Training Helpers
// ============================================================================

// RecordExample counts one outer training example
func (c *MetricsCollector) RecordExample(pair, mode string, srcTokens, tgtTokens int) {
	c.IncrementCounter(MetricExamplesTotal, prometheus.Labels{"pair": pair, "mode": mode})
	c.AddCounter(MetricTokensTotal, float64(srcTokens), prometheus.Labels{"side": "src"})
	c.AddCounter(MetricTokensTotal, float64(tgtTokens), prometheus.Labels{"side": "tgt"})
}

// RecordReinforceSample records the rewards of one Monte-Carlo sample
func (c *MetricsCollector) RecordReinforceSample(pair string, sampled, baseline, meanAbsAdvantage float64) {
	c.IncrementCounter(MetricSamplesTotal, prometheus.Labels{"pair": pair})
	c.SetGauge(MetricReward, sampled, prometheus.Labels{"pair": pair, "kind": "sampled"})
	c.SetGauge(MetricReward, baseline, prometheus.Labels{"pair": pair, "kind": "baseline"})
	c.ObserveHistogram(MetricAdvantage, meanAbsAdvantage, prometheus.Labels{"pair": pair})
}

// RecordXELoss records the per-word cross-entropy of a window
func (c *MetricsCollector) RecordXELoss(pair string, lossPerWord float64) {
	c.SetGauge(MetricXELoss, lossPerWord, prometheus.Labels{"pair": pair})
}

// RecordProgress records the fractional epoch and the learning rate
func (c *MetricsCollector) RecordProgress(epoch, learningRate float64) {
	c.SetGauge(MetricEpoch, epoch, nil)
	c.SetGauge(MetricLearningRate, learningRate, nil)
}

// RecordValidation records the scores of one validation set
func (c *MetricsCollector) RecordValidation(pair string, bleu, perplexity float64) {
	labels := prometheus.Labels{"pair": pair}
	c.SetGauge(MetricValidBLEU, bleu, labels)
	c.SetGauge(MetricValidPPL, perplexity, labels)
}

// RecordCheckpoint records a save point; outcome is written, skipped or failed
func (c *MetricsCollector) RecordCheckpoint(policy, outcome string, elapsed time.Duration) {
	c.IncrementCounter(MetricCheckpointsTotal, prometheus.Labels{"policy": policy, "outcome": outcome})
	if outcome == "written" {
		c.ObserveHistogram(MetricCheckpointSeconds, elapsed.Seconds(), nil)
	}
}

// RecordWindow records the duration of a training window
func (c *MetricsCollector) RecordWindow(mode string, start time.Time) {
	c.ObserveDuration(MetricWindowDuration, start, prometheus.Labels{"mode": mode})
}

// RecordSinkError counts a failed observer delivery
func (c *MetricsCollector) RecordSinkError(sink string) {
	c.IncrementCounter(MetricSinkErrorsTotal, prometheus.Labels{"sink": sink})
}

//Personal.AI order the ending
