package monitor

import (
	"sync"

	"codeberg.org/mutker/framectl/internal/governor"
	"github.com/google/uuid"
)

// AggregatedMetrics combines the metrics of several monitor instances, for
// pages running more than one animated surface.
type AggregatedMetrics struct {
	PerInstance map[string]Metrics
	Combined    Metrics
}

// Aggregator tracks independent monitor instances under stable IDs. There
// is no ordering guarantee between instances; each owns its own sample
// buffer exclusively.
type Aggregator struct {
	mu       sync.RWMutex
	monitors map[string]*Monitor
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		monitors: make(map[string]*Monitor),
	}
}

// Add registers a monitor and returns its instance ID.
func (a *Aggregator) Add(m *Monitor) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := uuid.NewString()
	a.monitors[id] = m

	return id
}

// Remove drops a monitor from aggregation. The monitor itself keeps
// running; stopping it is the owner's call.
func (a *Aggregator) Remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.monitors, id)
}

// Len returns the number of registered instances.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.monitors)
}

// Aggregate snapshots every instance and combines them: FPS values are
// averaged, the mode is the worst across instances (the page can only be
// as smooth as its slowest surface), and memory is the largest reading
// since every instance observes the same heap.
func (a *Aggregator) Aggregate() AggregatedMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := AggregatedMetrics{
		PerInstance: make(map[string]Metrics, len(a.monitors)),
	}

	if len(a.monitors) == 0 {
		return result
	}

	worst := governor.ModeHigh
	var currentSum, averageSum float64
	var memoryMax uint64

	for id, m := range a.monitors {
		metrics := m.Metrics()
		result.PerInstance[id] = metrics

		currentSum += metrics.CurrentFPS
		averageSum += metrics.AverageFPS
		if metrics.MemoryUsedBytes > memoryMax {
			memoryMax = metrics.MemoryUsedBytes
		}
		if metrics.Mode.Rank() < worst.Rank() {
			worst = metrics.Mode
		}
	}

	n := float64(len(a.monitors))
	result.Combined = Metrics{
		CurrentFPS:      currentSum / n,
		AverageFPS:      averageSum / n,
		Mode:            worst,
		MemoryUsedBytes: memoryMax,
	}

	return result
}
