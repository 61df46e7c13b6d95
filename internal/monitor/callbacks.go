package monitor

import (
	"codeberg.org/mutker/framectl/internal/governor"
	"codeberg.org/mutker/framectl/internal/logger"
)

// Observer callback types. Registration is additive and delivery follows
// registration order.
type (
	MetricsFunc    func(Metrics)
	ModeChangeFunc func(oldMode, newMode governor.Mode)
	MemoryFunc     func(bytes uint64)
	WarningFunc    func(err error)
)

// callbacks holds the registered observers for one monitor.
type callbacks struct {
	metricsUpdate   []MetricsFunc
	modeChange      []ModeChangeFunc
	performanceDrop []MetricsFunc
	highMemory      []MemoryFunc
	warning         []WarningFunc
}

// deliver invokes fn with per-observer panic isolation: a throwing observer
// is logged and never aborts delivery to the observers after it.
func deliver(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("callback", name).
				Interface("panic", r).
				Msg("Observer panicked, continuing delivery")
		}
	}()

	fn()
}

func (c *callbacks) emitMetrics(m Metrics) {
	for _, fn := range c.metricsUpdate {
		fn := fn
		deliver("metrics_update", func() { fn(m) })
	}
}

func (c *callbacks) emitModeChange(oldMode, newMode governor.Mode) {
	for _, fn := range c.modeChange {
		fn := fn
		deliver("mode_change", func() { fn(oldMode, newMode) })
	}
}

func (c *callbacks) emitPerformanceDrop(m Metrics) {
	for _, fn := range c.performanceDrop {
		fn := fn
		deliver("performance_drop", func() { fn(m) })
	}
}

func (c *callbacks) emitHighMemory(bytes uint64) {
	for _, fn := range c.highMemory {
		fn := fn
		deliver("high_memory", func() { fn(bytes) })
	}
}

func (c *callbacks) emitWarning(err error) {
	for _, fn := range c.warning {
		fn := fn
		deliver("warning", func() { fn(err) })
	}
}
