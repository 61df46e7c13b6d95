package sampler

import (
	"sync"
	"time"

	"codeberg.org/mutker/framectl/internal/logger"
)

const defaultWindowSize = 120

// Handle identifies a scheduled frame callback chain.
type Handle uint64

// FrameScheduler is the host's frame-callback primitive. Schedule registers
// a callback invoked once per frame until the returned handle is canceled.
type FrameScheduler interface {
	Schedule(fn func(now time.Time)) Handle
	Cancel(h Handle)
}

// Sampler records per-frame timestamps over a bounded window and derives
// instantaneous and rolling-average frame rates.
type Sampler struct {
	mu sync.Mutex

	scheduler FrameScheduler
	handle    Handle
	running   bool
	visible   bool

	windowSize int
	targetFPS  float64

	samples     []time.Time
	writeIndex  int
	sampleCount int

	currentFPS float64
	averageFPS float64
}

// New creates a sampler with the given window size and target frame rate.
// The scheduler may be nil, in which case sampling is a no-op and both
// FPS readings stay at the target.
func New(scheduler FrameScheduler, windowSize int, targetFPS float64) *Sampler {
	if windowSize < 2 {
		windowSize = defaultWindowSize
	}

	return &Sampler{
		scheduler:  scheduler,
		windowSize: windowSize,
		targetFPS:  targetFPS,
		visible:    true,
		samples:    make([]time.Time, windowSize),
		currentFPS: targetFPS,
		averageFPS: targetFPS,
	}
}

// Start begins frame sampling. It is a no-op if already running or if no
// scheduler is available.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	if s.scheduler == nil {
		logger.Debug().Msg("No frame scheduler available, sampling disabled")
		return
	}

	s.handle = s.scheduler.Schedule(s.RecordFrame)
	s.running = true
}

// Stop cancels the frame callback chain. Idempotent; after Stop returns no
// further samples are recorded through the canceled handle.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.scheduler.Cancel(s.handle)
	s.running = false
}

// SetVisible gates sampling on host surface visibility. Becoming visible
// again resets the window so hidden-period gaps do not skew the average.
func (s *Sampler) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if visible && !s.visible {
		s.resetLocked()
	}
	s.visible = visible
}

// RecordFrame appends a frame timestamp and recomputes both FPS readings.
func (s *Sampler) RecordFrame(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.visible {
		return
	}

	s.samples[s.writeIndex] = now
	s.writeIndex = (s.writeIndex + 1) % s.windowSize
	if s.sampleCount < s.windowSize {
		s.sampleCount++
	}

	if s.sampleCount < 2 {
		// A single sample carries no rate information; stay optimistic
		// rather than reporting a startup spike.
		s.currentFPS = s.targetFPS
		s.averageFPS = s.targetFPS
		return
	}

	previous := s.sampleAt(s.sampleCount - 2)
	delta := now.Sub(previous)
	if delta > 0 {
		s.currentFPS = float64(time.Second) / float64(delta)
	}

	oldest := s.sampleAt(0)
	windowDuration := now.Sub(oldest)
	if windowDuration > 0 {
		s.averageFPS = float64(s.sampleCount-1) * float64(time.Second) / float64(windowDuration)
	}
}

// CurrentFPS returns the instantaneous frame rate from the last two samples.
func (s *Sampler) CurrentFPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentFPS
}

// AverageFPS returns the rolling-average frame rate over the window.
func (s *Sampler) AverageFPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.averageFPS
}

// SampleCount returns the number of retained samples.
func (s *Sampler) SampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sampleCount
}

// Running reports whether a frame callback chain is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Reset discards all retained samples and restores the optimistic defaults.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
}

func (s *Sampler) resetLocked() {
	s.writeIndex = 0
	s.sampleCount = 0
	s.currentFPS = s.targetFPS
	s.averageFPS = s.targetFPS
}

// sampleAt returns the i-th oldest retained sample. Callers hold s.mu.
func (s *Sampler) sampleAt(i int) time.Time {
	if s.sampleCount < s.windowSize {
		return s.samples[i]
	}

	return s.samples[(s.writeIndex+i)%s.windowSize]
}
