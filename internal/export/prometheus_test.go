package export_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/framectl/internal/export"
	"codeberg.org/mutker/framectl/internal/monitor"
	"codeberg.org/mutker/framectl/internal/sampler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	fn func(time.Time)
}

func (f *fakeScheduler) Schedule(fn func(time.Time)) sampler.Handle {
	f.fn = fn
	return 1
}

func (f *fakeScheduler) Cancel(sampler.Handle) {
	f.fn = nil
}

func TestExporterTracksMonitor(t *testing.T) {
	sched := &fakeScheduler{}
	m, err := monitor.New(monitor.Options{Scheduler: sched, SampleWindow: 10})
	require.NoError(t, err)

	e := export.NewExporter()
	e.Attach(m)
	m.Start()

	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		sched.fn(now)
		now = now.Add(40 * time.Millisecond) // 25 FPS, settles in the low band
	}

	metrics := m.Metrics()
	assert.InDelta(t, metrics.AverageFPS, gaugeValue(t, e, "framectl_average_fps"), 0.001)
	assert.Equal(t, float64(metrics.Mode.Rank()), gaugeValue(t, e, "framectl_mode_rank"))
	assert.Equal(t, 1.0, gaugeValue(t, e, "framectl_performance_drops_total"))
}

func gaugeValue(t *testing.T, e *export.Exporter, name string) float64 {
	t.Helper()

	families, err := e.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		metric := family.GetMetric()[0]
		if metric.GetGauge() != nil {
			return metric.GetGauge().GetValue()
		}
		return metric.GetCounter().GetValue()
	}

	t.Fatalf("metric %s not found", name)
	return 0
}
