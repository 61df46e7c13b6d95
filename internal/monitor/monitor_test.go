package monitor_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/framectl/internal/device"
	"codeberg.org/mutker/framectl/internal/governor"
	"codeberg.org/mutker/framectl/internal/monitor"
	"codeberg.org/mutker/framectl/internal/sampler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

type fakeRenderer struct {
	applied []governor.Settings
}

func (r *fakeRenderer) ApplySettings(s governor.Settings) error {
	r.applied = append(r.applied, s)
	return nil
}

func newTestMonitor(t *testing.T, opts monitor.Options) *monitor.Monitor {
	t.Helper()
	if opts.SampleWindow == 0 {
		opts.SampleWindow = 10
	}
	m, err := monitor.New(opts)
	require.NoError(t, err)
	return m
}

// drive feeds count frames at the given interval and returns the next timestamp.
func drive(sched *fakeScheduler, start time.Time, interval time.Duration, count int) time.Time {
	now := start
	for i := 0; i < count; i++ {
		sched.tick(now)
		now = now.Add(interval)
	}
	return now
}

func TestModeTransitionEmitsOnce(t *testing.T) {
	sched := &fakeScheduler{}
	renderer := &fakeRenderer{}
	m := newTestMonitor(t, monitor.Options{
		Scheduler: sched,
		Renderer:  renderer,
		Profile:   device.Profile{Class: device.ClassDesktop, Tier: device.TierHigh},
	})

	var changes []string
	m.OnModeChange(func(oldMode, newMode governor.Mode) {
		changes = append(changes, oldMode.String()+"->"+newMode.String())
	})
	drops := 0
	m.OnPerformanceDrop(func(monitor.Metrics) { drops++ })

	m.Start()
	// 40ms frames read as 25 FPS: low band after the window warms up
	drive(sched, time.Unix(0, 0), 40*time.Millisecond, 10)

	require.Equal(t, []string{"high->low"}, changes, "exactly one transition")
	assert.Equal(t, 1, drops)
	assert.Equal(t, governor.ModeLow, m.Metrics().Mode)

	// Initial push plus one transition push; no re-push between transitions
	assert.Len(t, renderer.applied, 2)
}

func TestSteadyHighEmitsNoTransition(t *testing.T) {
	sched := &fakeScheduler{}
	m := newTestMonitor(t, monitor.Options{Scheduler: sched})

	changes := 0
	m.OnModeChange(func(_, _ governor.Mode) { changes++ })

	m.Start()
	drive(sched, time.Unix(0, 0), 16*time.Millisecond, 60)

	assert.Zero(t, changes)
	assert.Equal(t, governor.ModeHigh, m.Metrics().Mode)
}

func TestStopSilencesCallbacks(t *testing.T) {
	sched := &fakeScheduler{}
	m := newTestMonitor(t, monitor.Options{Scheduler: sched})

	updates := 0
	m.OnMetricsUpdate(func(monitor.Metrics) { updates++ })

	m.Start()
	now := drive(sched, time.Unix(0, 0), 16*time.Millisecond, 5)
	require.Equal(t, 5, updates)

	m.Stop()
	assert.True(t, sched.canceled)

	// Simulated stray ticks after cancellation must be ignored
	m.HandleFrame(now)
	m.HandleFrame(now.Add(16 * time.Millisecond))
	assert.Equal(t, 5, updates, "zero additional callbacks after Stop")
}

func TestStopFromWithinCallback(t *testing.T) {
	sched := &fakeScheduler{}
	m := newTestMonitor(t, monitor.Options{Scheduler: sched})

	updates := 0
	m.OnMetricsUpdate(func(monitor.Metrics) {
		updates++
		m.Stop()
	})

	m.Start()
	drive(sched, time.Unix(0, 0), 16*time.Millisecond, 3)

	assert.Equal(t, 1, updates, "Stop inside a callback halts subsequent ticks")
}

func TestObserverPanicIsolation(t *testing.T) {
	sched := &fakeScheduler{}
	m := newTestMonitor(t, monitor.Options{Scheduler: sched})

	m.OnMetricsUpdate(func(monitor.Metrics) {
		panic("observer failure")
	})
	second := 0
	m.OnMetricsUpdate(func(monitor.Metrics) { second++ })

	m.Start()
	drive(sched, time.Unix(0, 0), 16*time.Millisecond, 3)

	assert.Equal(t, 3, second, "a panicking observer never starves the next one")
}

func TestHighMemoryDebounce(t *testing.T) {
	sched := &fakeScheduler{}
	m := newTestMonitor(t, monitor.Options{
		Scheduler:            sched,
		SampleWindow:         120,
		MemoryThresholdBytes: 1, // any live heap breaches immediately
	})

	events := 0
	m.OnHighMemoryUsage(func(uint64) { events++ })

	m.Start()
	// Two polling periods within one sustained breach
	drive(sched, time.Unix(0, 0), 16*time.Millisecond, 121)

	assert.Equal(t, 1, events, "one event per sustained breach, not per tick")
}

func TestObserveOnlyNeverPushes(t *testing.T) {
	sched := &fakeScheduler{}
	renderer := &fakeRenderer{}
	m := newTestMonitor(t, monitor.Options{
		Scheduler:   sched,
		Renderer:    renderer,
		ObserveOnly: true,
	})

	m.Start()
	drive(sched, time.Unix(0, 0), 40*time.Millisecond, 10)

	assert.Empty(t, renderer.applied)
}

func TestNoSchedulerDefaultsToTarget(t *testing.T) {
	m := newTestMonitor(t, monitor.Options{})
	m.Start()

	metrics := m.Metrics()
	assert.InDelta(t, 60, metrics.CurrentFPS, 0.001)
	assert.InDelta(t, 60, metrics.AverageFPS, 0.001)
	assert.Equal(t, governor.ModeHigh, metrics.Mode)
}

func TestVisibilityBroadcasterSharedRegistration(t *testing.T) {
	b := monitor.NewVisibilityBroadcaster()

	var first, second []bool
	unsubscribe := b.Subscribe(func(v bool) { first = append(first, v) })
	b.Subscribe(func(v bool) { second = append(second, v) })

	b.Set(false)
	b.Set(false) // duplicate state, no delivery
	b.Set(true)

	assert.Equal(t, []bool{true, false, true}, first)
	assert.Equal(t, []bool{true, false, true}, second)

	unsubscribe()
	b.Set(false)
	assert.Len(t, first, 3, "unsubscribed observer receives nothing")
	assert.Len(t, second, 4)
}

func TestAggregatorCombines(t *testing.T) {
	sched1 := &fakeScheduler{}
	sched2 := &fakeScheduler{}
	m1 := newTestMonitor(t, monitor.Options{Scheduler: sched1})
	m2 := newTestMonitor(t, monitor.Options{Scheduler: sched2})
	m1.Start()
	m2.Start()

	// First instance healthy, second struggling
	drive(sched1, time.Unix(0, 0), 16*time.Millisecond, 20)
	drive(sched2, time.Unix(0, 0), 50*time.Millisecond, 20)

	a := monitor.NewAggregator()
	id1 := a.Add(m1)
	a.Add(m2)
	require.Equal(t, 2, a.Len())

	aggregated := a.Aggregate()
	assert.Len(t, aggregated.PerInstance, 2)
	assert.Equal(t, governor.ModeCritical, aggregated.Combined.Mode, "worst instance dominates")
	assert.Greater(t, aggregated.Combined.AverageFPS, 20.0)
	assert.Less(t, aggregated.Combined.AverageFPS, 62.5)

	a.Remove(id1)
	assert.Equal(t, 1, a.Len())
}
