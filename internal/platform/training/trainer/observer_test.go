package trainer

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/openeeap/nmtrl/internal/domain/run"
	"github.com/openeeap/nmtrl/internal/observability/metrics"
)

func TestFanout_Publish(t *testing.T) {
	collector := metrics.NewMetricsCollector(metrics.CollectorConfig{
		Namespace: "nmtrl",
		Subsystem: "test",
		Registry:  prometheus.NewRegistry(),
	})
	broken := &recorder{fail: true}
	healthy := &recorder{}
	board := run.NewBoard()

	f := NewFanout(nil, collector, broken, nil, healthy)
	f.Add(board)
	f.Add(nil)
	assert.Equal(t, 3, f.Len())

	for i := 0; i < 5; i++ {
		f.Publish(context.Background(), &run.Progress{RunID: "r", Iteration: i})
	}

	// a failing observer does not stop delivery to the others
	assert.Equal(t, 5, broken.count(run.EventProgress))
	assert.Equal(t, 5, healthy.count(run.EventProgress))
	assert.Equal(t, 4, board.Snapshot().Progress.Iteration)

	expected := `
# HELP nmtrl_test_sink_errors_total Failed deliveries to observers
# TYPE nmtrl_test_sink_errors_total counter
nmtrl_test_sink_errors_total{sink="recorder"} 5
`
	assert.NoError(t, testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected), "nmtrl_test_sink_errors_total"))
}
