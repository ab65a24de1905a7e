package trainer

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/openeeap/nmtrl/internal/domain/run"
	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/internal/observability/metrics"
)

// Fanout delivers every event to a list of observers. Observer failures are
// counted and logged, at most one warning per second, and never returned.
type Fanout struct {
	observers []run.Observer
	logger    logging.Logger
	metrics   *metrics.MetricsCollector
	limiter   *rate.Limiter
}

// NewFanout creates a fan-out over observers; nil entries are skipped.
func NewFanout(logger logging.Logger, collector *metrics.MetricsCollector, observers ...run.Observer) *Fanout {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	f := &Fanout{
		logger:  logger,
		metrics: collector,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, o := range observers {
		if o != nil {
			f.observers = append(f.observers, o)
		}
	}
	return f
}

// Add registers another observer.
func (f *Fanout) Add(o run.Observer) {
	if o != nil {
		f.observers = append(f.observers, o)
	}
}

// Len returns the number of observers.
func (f *Fanout) Len() int {
	return len(f.observers)
}

// Publish delivers ev to every observer in registration order.
func (f *Fanout) Publish(ctx context.Context, ev run.Event) {
	for _, o := range f.observers {
		if err := o.Observe(ctx, ev); err != nil {
			if f.metrics != nil {
				f.metrics.RecordSinkError(o.Name())
			}
			if f.limiter.Allow() {
				f.logger.WithContext(ctx).Warn("Observer failed",
					logging.String("observer", o.Name()),
					logging.String("event", string(ev.Kind())),
					logging.Error(err))
			}
		}
	}
}

//Personal.AI order the ending
