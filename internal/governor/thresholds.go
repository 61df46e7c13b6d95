package governor

import (
	"codeberg.org/mutker/framectl/internal/errors"
)

// highFraction of the target FPS still counts as full-quality territory, so
// a 60 FPS target does not demote on a steady 58.
const highFraction = 0.9

// Mode is the discrete performance classification driving render settings.
type Mode string

const (
	ModeCritical Mode = "critical"
	ModeLow      Mode = "low"
	ModeMedium   Mode = "medium"
	ModeHigh     Mode = "high"
)

// Rank orders modes from worst (0) to best. Higher average FPS never maps
// to a lower rank.
func (m Mode) Rank() int {
	switch m {
	case ModeCritical:
		return 0
	case ModeLow:
		return 1
	case ModeMedium:
		return 2
	case ModeHigh:
		return 3
	default:
		return 0
	}
}

func (m Mode) String() string {
	return string(m)
}

// Thresholds holds the FPS boundaries between performance modes.
// Immutable after construction; Validate enforces strict ordering.
type Thresholds struct {
	Target   float64
	Medium   float64
	Low      float64
	Critical float64
}

// DefaultThresholds returns the process-wide default threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Target:   60,
		Medium:   40,
		Low:      25,
		Critical: 15,
	}
}

// Validate checks that thresholds are strictly decreasing and positive.
func (t Thresholds) Validate() error {
	errFactory := errors.New()

	if !(t.Target > t.Medium && t.Medium > t.Low && t.Low > t.Critical && t.Critical > 0) {
		return errFactory.WithData(errors.ErrInvalidThresholds, []float64{t.Target, t.Medium, t.Low, t.Critical})
	}

	return nil
}

// Classify maps a smoothed average FPS to a mode, evaluated top-down.
// Instantaneous FPS is deliberately not an input: single-frame jitter must
// never flip the mode.
func (t Thresholds) Classify(averageFPS float64) Mode {
	switch {
	case averageFPS >= t.Target*highFraction:
		return ModeHigh
	case averageFPS >= t.Medium:
		return ModeMedium
	case averageFPS >= t.Low:
		return ModeLow
	default:
		return ModeCritical
	}
}
