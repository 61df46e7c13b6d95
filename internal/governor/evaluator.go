package governor

import (
	"codeberg.org/mutker/framectl/internal/errors"
)

// DefaultDwellTicks is the number of consecutive evaluations a differing
// mode must persist before a transition is emitted.
const DefaultDwellTicks = 3

// Evaluator classifies smoothed frame rates into modes with dwell-time
// hysteresis, so oscillation exactly at a threshold boundary cannot flap
// the render quality.
type Evaluator struct {
	thresholds Thresholds
	dwellTicks int

	seeded         bool
	current        Mode
	candidate      Mode
	candidateTicks int
}

// NewEvaluator validates the threshold set and dwell count.
func NewEvaluator(thresholds Thresholds, dwellTicks int) (*Evaluator, error) {
	errFactory := errors.New()

	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if dwellTicks < 1 {
		return nil, errFactory.WithData(errors.ErrInvalidDwell, dwellTicks)
	}

	return &Evaluator{
		thresholds: thresholds,
		dwellTicks: dwellTicks,
	}, nil
}

// Thresholds returns the evaluator's threshold set.
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Mode returns the currently emitted mode.
func (e *Evaluator) Mode() Mode {
	if !e.seeded {
		return ModeHigh
	}

	return e.current
}

// Evaluate processes one tick. It returns the emitted mode and whether this
// tick emitted a transition. The first evaluation seeds the mode without
// dwell; afterwards a differing candidate must persist for the configured
// number of consecutive ticks before it is emitted.
func (e *Evaluator) Evaluate(averageFPS float64) (Mode, bool) {
	mode := e.thresholds.Classify(averageFPS)

	if !e.seeded {
		e.seeded = true
		e.current = mode
		return e.current, false
	}

	if mode == e.current {
		e.candidateTicks = 0
		return e.current, false
	}

	if mode == e.candidate {
		e.candidateTicks++
	} else {
		e.candidate = mode
		e.candidateTicks = 1
	}

	if e.candidateTicks < e.dwellTicks {
		return e.current, false
	}

	e.current = mode
	e.candidateTicks = 0

	return e.current, true
}
