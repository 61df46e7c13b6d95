package main

import (
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/framectl/internal/governor"
	"codeberg.org/mutker/framectl/internal/sampler"
)

const (
	// Period of the synthetic load wave. Long enough that dwell hysteresis
	// has to do real work at the band edges.
	loadWavePeriod = 90 * time.Second

	// Render cost in milliseconds per frame at full base settings under
	// peak load, on top of the ideal frame time.
	peakLoadMillis = 45.0
)

// renderHost simulates the animation surface framectl governs. It drives
// the scheduled frame callback at a rate that degrades under a synthetic
// load wave, and accepts settings pushes that lighten its per-frame cost.
// This is what lets the daemon exercise the full control loop without a
// real rendering stack behind it.
type renderHost struct {
	mu       sync.Mutex
	settings governor.Settings
	started  time.Time

	nextHandle sampler.Handle
	stops      map[sampler.Handle]chan struct{}
}

func newRenderHost(base governor.Settings) *renderHost {
	return &renderHost{
		settings: base,
		started:  time.Now(),
		stops:    make(map[sampler.Handle]chan struct{}),
	}
}

// ApplySettings implements governor.Renderer. Lighter settings shrink the
// simulated per-frame cost on the next frame.
func (h *renderHost) ApplySettings(s governor.Settings) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.settings = s

	return nil
}

// Schedule implements sampler.FrameScheduler. Each registration gets its
// own frame loop goroutine.
func (h *renderHost) Schedule(fn func(now time.Time)) sampler.Handle {
	h.mu.Lock()
	h.nextHandle++
	handle := h.nextHandle
	stop := make(chan struct{})
	h.stops[handle] = stop
	h.mu.Unlock()

	go h.frameLoop(fn, stop)

	return handle
}

// Cancel implements sampler.FrameScheduler.
func (h *renderHost) Cancel(handle sampler.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if stop, ok := h.stops[handle]; ok {
		close(stop)
		delete(h.stops, handle)
	}
}

func (h *renderHost) frameLoop(fn func(now time.Time), stop <-chan struct{}) {
	timer := time.NewTimer(h.frameInterval())
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-timer.C:
			fn(now)
			timer.Reset(h.frameInterval())
		}
	}
}

// frameInterval derives the next frame time from the ideal rate, the
// current render cost and the load wave. Cost scales with particle count
// and movement intensity relative to the full base configuration, so
// settings pushes visibly recover the frame rate.
func (h *renderHost) frameInterval() time.Duration {
	h.mu.Lock()
	settings := h.settings
	elapsed := time.Since(h.started)
	h.mu.Unlock()

	base := governor.DefaultBaseSettings()
	costScale := float64(settings.ParticleCount) / float64(base.ParticleCount)
	costScale *= settings.MovementIntensity / base.MovementIntensity

	phase := 2 * math.Pi * float64(elapsed) / float64(loadWavePeriod)
	load := 0.5 + 0.5*math.Sin(phase)

	ideal := float64(time.Second) / settings.TargetFPS
	cost := peakLoadMillis * float64(time.Millisecond) * load * costScale

	return time.Duration(ideal + cost)
}
