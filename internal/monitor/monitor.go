package monitor

import (
	"runtime"
	"sync"
	"time"

	"codeberg.org/mutker/framectl/internal/device"
	"codeberg.org/mutker/framectl/internal/governor"
	"codeberg.org/mutker/framectl/internal/logger"
	"codeberg.org/mutker/framectl/internal/sampler"
)

// Frames between memory polls; reading MemStats every frame would cost more
// than the animation it protects.
const memoryCheckFrames = 60

// Metrics is the derived aggregate recomputed on every sampling tick.
type Metrics struct {
	CurrentFPS      float64
	AverageFPS      float64
	Mode            governor.Mode
	MemoryUsedBytes uint64
}

// Options configures a monitor instance.
type Options struct {
	Scheduler    sampler.FrameScheduler
	Renderer     governor.Renderer
	Profile      device.Profile
	Thresholds   governor.Thresholds
	DwellTicks   int
	SampleWindow int
	BaseSettings governor.Settings

	// ObserveOnly suppresses settings pushes; metrics and callbacks still flow.
	ObserveOnly bool

	// MemoryThresholdBytes above which a debounced high-memory warning
	// fires. Zero disables the check.
	MemoryThresholdBytes uint64

	// Visibility fans the shared host visibility signal into the sampler.
	// Optional.
	Visibility *VisibilityBroadcaster
}

// Monitor wires one sampler, evaluator and controller together and fans
// events out to registered observers. Construct explicitly with New; the
// package-level Default exists only as a convenience wrapper.
type Monitor struct {
	mu sync.Mutex

	sampler    *sampler.Sampler
	evaluator  *governor.Evaluator
	controller *governor.Controller
	profile    device.Profile
	callbacks  callbacks

	scheduler   sampler.FrameScheduler
	handle      sampler.Handle
	running     bool
	observeOnly bool

	initialPushed bool
	frameCount    uint64

	memoryThreshold    uint64
	memoryBreached     bool
	memoryUsed         uint64
	pendingMemoryEvent uint64

	unsubscribeVisibility func()
}

// New creates a monitor. Thresholds and dwell are validated here so a
// misconfigured instance can never start.
func New(opts Options) (*Monitor, error) {
	if opts.Thresholds == (governor.Thresholds{}) {
		opts.Thresholds = governor.DefaultThresholds()
	}
	if opts.DwellTicks == 0 {
		opts.DwellTicks = governor.DefaultDwellTicks
	}
	if opts.BaseSettings == (governor.Settings{}) {
		opts.BaseSettings = governor.DefaultBaseSettings()
	}

	evaluator, err := governor.NewEvaluator(opts.Thresholds, opts.DwellTicks)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		sampler:         sampler.New(nil, opts.SampleWindow, opts.Thresholds.Target),
		evaluator:       evaluator,
		controller:      governor.NewController(opts.BaseSettings, opts.Profile, opts.Renderer),
		profile:         opts.Profile,
		scheduler:       opts.Scheduler,
		observeOnly:     opts.ObserveOnly,
		memoryThreshold: opts.MemoryThresholdBytes,
	}

	if opts.Visibility != nil {
		m.unsubscribeVisibility = opts.Visibility.Subscribe(m.sampler.SetVisible)
	}

	return m, nil
}

// Observer registration. Additive; multiple concurrent observers are
// delivered to in registration order.

func (m *Monitor) OnMetricsUpdate(fn MetricsFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks.metricsUpdate = append(m.callbacks.metricsUpdate, fn)
}

func (m *Monitor) OnModeChange(fn ModeChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks.modeChange = append(m.callbacks.modeChange, fn)
}

func (m *Monitor) OnPerformanceDrop(fn MetricsFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks.performanceDrop = append(m.callbacks.performanceDrop, fn)
}

func (m *Monitor) OnHighMemoryUsage(fn MemoryFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks.highMemory = append(m.callbacks.highMemory, fn)
}

func (m *Monitor) OnWarning(fn WarningFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks.warning = append(m.callbacks.warning, fn)
}

// Start begins frame-driven monitoring. No-op when already running. When no
// scheduler is available the monitor stays inert until the host drives
// HandleFrame itself; metrics default to target values and the caller sees
// no error.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	if m.scheduler != nil {
		m.handle = m.scheduler.Schedule(m.HandleFrame)
	} else {
		logger.Debug().Msg("No frame scheduler available, expecting host-driven frames")
	}
	m.running = true
}

// Stop cancels the frame callback chain. Safe to call at any time,
// including from within a callback; after it returns no further frame
// callbacks or polls fire.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.scheduler != nil {
		m.scheduler.Cancel(m.handle)
	}
	m.running = false
}

// Close stops the monitor and releases its visibility subscription.
func (m *Monitor) Close() {
	m.Stop()

	m.mu.Lock()
	unsubscribe := m.unsubscribeVisibility
	m.unsubscribeVisibility = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// HandleFrame processes one frame tick: record the sample, reevaluate the
// mode, push settings on transitions, and fan out events. Exposed so hosts
// without a FrameScheduler implementation can drive the monitor directly.
func (m *Monitor) HandleFrame(now time.Time) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}

	m.sampler.RecordFrame(now)
	m.frameCount++

	oldMode := m.evaluator.Mode()
	mode, changed := m.evaluator.Evaluate(m.sampler.AverageFPS())

	var pushErr error
	if !m.observeOnly && (changed || !m.initialPushed) {
		_, pushErr = m.controller.Push(mode)
		m.initialPushed = true
	}

	if m.frameCount%memoryCheckFrames == 0 {
		m.pollMemoryLocked()
	}

	metrics := m.metricsLocked()
	memoryEvent := m.pendingMemoryEvent
	m.pendingMemoryEvent = 0
	cb := m.callbacks
	m.mu.Unlock()

	if pushErr != nil {
		logger.Warn().Err(pushErr).Msg("Renderer rejected settings, fell back to lowest preset")
		cb.emitWarning(pushErr)
	}

	cb.emitMetrics(metrics)

	if changed {
		cb.emitModeChange(oldMode, mode)
		if mode.Rank() < oldMode.Rank() {
			cb.emitPerformanceDrop(metrics)
		}
	}

	if memoryEvent > 0 {
		cb.emitHighMemory(memoryEvent)
	}
}

func (m *Monitor) pollMemoryLocked() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	m.memoryUsed = stats.HeapAlloc

	if m.memoryThreshold == 0 {
		return
	}

	if stats.HeapAlloc >= m.memoryThreshold {
		if !m.memoryBreached {
			// Fires once per sustained breach, re-armed below threshold
			m.memoryBreached = true
			m.pendingMemoryEvent = stats.HeapAlloc
		}
	} else {
		m.memoryBreached = false
	}
}

func (m *Monitor) metricsLocked() Metrics {
	return Metrics{
		CurrentFPS:      m.sampler.CurrentFPS(),
		AverageFPS:      m.sampler.AverageFPS(),
		Mode:            m.evaluator.Mode(),
		MemoryUsedBytes: m.memoryUsed,
	}
}

// Metrics returns the current derived aggregate.
func (m *Monitor) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.metricsLocked()
}

// Settings returns the last settings pushed to the renderer.
func (m *Monitor) Settings() governor.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.controller.Current()
}

// Profile returns the device profile this monitor was built with.
func (m *Monitor) Profile() device.Profile {
	return m.profile
}

// WindowStats exposes the sampler's window statistics for overlays and
// telemetry.
func (m *Monitor) WindowStats() sampler.WindowStats {
	return m.sampler.Stats()
}

var (
	defaultMu      sync.Mutex
	defaultMonitor *Monitor
)

// SetDefault installs a process-wide convenience instance. Explicit
// construction remains the primary path; the default exists so ad-hoc
// callers need not thread the monitor through every layer.
func SetDefault(m *Monitor) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultMonitor = m
}

// Default returns the process-wide instance, or nil when none is installed.
func Default() *Monitor {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	return defaultMonitor
}
