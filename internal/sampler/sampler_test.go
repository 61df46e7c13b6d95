package sampler_test

import (
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/framectl/internal/sampler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScheduler drives frame callbacks manually from tests.
type fakeScheduler struct {
	fn       func(time.Time)
	canceled bool
}

func (f *fakeScheduler) Schedule(fn func(time.Time)) sampler.Handle {
	f.fn = fn
	f.canceled = false
	return 1
}

func (f *fakeScheduler) Cancel(sampler.Handle) {
	f.canceled = true
	f.fn = nil
}

func (f *fakeScheduler) tick(now time.Time) {
	if f.fn != nil {
		f.fn(now)
	}
}

func frames(s *sampler.Sampler, start time.Time, interval time.Duration, count int) time.Time {
	now := start
	for i := 0; i < count; i++ {
		s.RecordFrame(now)
		now = now.Add(interval)
	}
	return now
}

func TestFewerThanTwoSamplesReportsTarget(t *testing.T) {
	s := sampler.New(nil, 120, 60)

	assert.InDelta(t, 60, s.CurrentFPS(), 0.001)
	assert.InDelta(t, 60, s.AverageFPS(), 0.001)

	s.RecordFrame(time.Now())
	assert.InDelta(t, 60, s.CurrentFPS(), 0.001, "single sample must not produce a rate")
	assert.InDelta(t, 60, s.AverageFPS(), 0.001)
}

func TestCurrentFPSFromLastTwoSamples(t *testing.T) {
	s := sampler.New(nil, 120, 60)
	start := time.Unix(0, 0)

	s.RecordFrame(start)
	s.RecordFrame(start.Add(20 * time.Millisecond))

	assert.InDelta(t, 50, s.CurrentFPS(), 0.001, "1000ms / 20ms = 50 FPS")
	assert.True(t, s.CurrentFPS() > 0 && !math.IsInf(s.CurrentFPS(), 0))
}

func TestAverageFPSOverWindow(t *testing.T) {
	s := sampler.New(nil, 120, 60)
	start := time.Unix(0, 0)

	// 61 frames at a steady 16ms apart: 60 intervals over 960ms
	frames(s, start, 16*time.Millisecond, 61)

	assert.InDelta(t, 62.5, s.AverageFPS(), 0.01)
	assert.Equal(t, 61, s.SampleCount())
}

func TestWindowEviction(t *testing.T) {
	s := sampler.New(nil, 10, 60)
	start := time.Unix(0, 0)

	// Slow frames first, then fast ones that fill the whole window
	now := frames(s, start, 100*time.Millisecond, 10)
	frames(s, now, 10*time.Millisecond, 10)

	assert.Equal(t, 10, s.SampleCount(), "window length is fixed")
	assert.InDelta(t, 100, s.AverageFPS(), 0.01, "slow samples must have aged out")
}

func TestStartStopIdempotent(t *testing.T) {
	sched := &fakeScheduler{}
	s := sampler.New(sched, 120, 60)

	s.Start()
	require.True(t, s.Running())
	s.Start() // no-op
	require.True(t, s.Running())

	s.Stop()
	assert.False(t, s.Running())
	assert.True(t, sched.canceled)
	s.Stop() // no-op
}

func TestStopCancelsCallbackChain(t *testing.T) {
	sched := &fakeScheduler{}
	s := sampler.New(sched, 120, 60)

	s.Start()
	start := time.Unix(0, 0)
	sched.tick(start)
	sched.tick(start.Add(16 * time.Millisecond))
	require.Equal(t, 2, s.SampleCount())

	s.Stop()
	sched.tick(start.Add(32 * time.Millisecond))
	assert.Equal(t, 2, s.SampleCount(), "no samples after Stop")
}

func TestNoSchedulerIsNoOp(t *testing.T) {
	s := sampler.New(nil, 120, 60)

	s.Start()
	assert.False(t, s.Running())
	assert.InDelta(t, 60, s.CurrentFPS(), 0.001)
}

func TestVisibilityGatesSampling(t *testing.T) {
	s := sampler.New(nil, 120, 60)
	start := time.Unix(0, 0)

	now := frames(s, start, 16*time.Millisecond, 5)
	require.Equal(t, 5, s.SampleCount())

	s.SetVisible(false)
	frames(s, now, 16*time.Millisecond, 5)
	assert.Equal(t, 5, s.SampleCount(), "hidden surface records no samples")

	// Resume resets the window so the hidden gap cannot skew the average
	s.SetVisible(true)
	assert.Equal(t, 0, s.SampleCount())
	frames(s, now.Add(time.Hour), 16*time.Millisecond, 2)
	assert.InDelta(t, 62.5, s.CurrentFPS(), 0.01)
}

func TestStatsOverSteadyWindow(t *testing.T) {
	s := sampler.New(nil, 120, 60)
	frames(s, time.Unix(0, 0), 20*time.Millisecond, 30)

	stats := s.Stats()
	assert.InDelta(t, 50, stats.MeanFPS, 0.01)
	assert.InDelta(t, 50, stats.P50FPS, 0.01)
	assert.InDelta(t, 0, stats.StdDevFPS, 0.01)
	assert.Equal(t, 30, stats.Samples)
}

func TestStatsWithNoRateInformation(t *testing.T) {
	s := sampler.New(nil, 120, 60)

	stats := s.Stats()
	assert.InDelta(t, 60, stats.MeanFPS, 0.001)
	assert.InDelta(t, 60, stats.P90FPS, 0.001)
}
