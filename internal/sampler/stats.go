package sampler

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// WindowStats aggregates the instantaneous frame rates observed across the
// retained window. Used by overlays and telemetry, never for mode decisions.
type WindowStats struct {
	MeanFPS   float64
	StdDevFPS float64
	P10FPS    float64
	P50FPS    float64
	P90FPS    float64
	Samples   int
}

// Stats computes window statistics from consecutive frame deltas.
// With fewer than two samples every field reports the target frame rate.
func (s *Sampler) Stats() WindowStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sampleCount < 2 {
		return WindowStats{
			MeanFPS:   s.targetFPS,
			StdDevFPS: 0,
			P10FPS:    s.targetFPS,
			P50FPS:    s.targetFPS,
			P90FPS:    s.targetFPS,
			Samples:   s.sampleCount,
		}
	}

	rates := make([]float64, 0, s.sampleCount-1)
	for i := 1; i < s.sampleCount; i++ {
		delta := s.sampleAt(i).Sub(s.sampleAt(i - 1))
		if delta <= 0 {
			continue
		}
		rates = append(rates, float64(time.Second)/float64(delta))
	}

	if len(rates) == 0 {
		return WindowStats{
			MeanFPS: s.targetFPS,
			P10FPS:  s.targetFPS,
			P50FPS:  s.targetFPS,
			P90FPS:  s.targetFPS,
			Samples: s.sampleCount,
		}
	}

	sort.Float64s(rates)

	stats := WindowStats{
		MeanFPS: stat.Mean(rates, nil),
		P10FPS:  stat.Quantile(0.10, stat.Empirical, rates, nil),
		P50FPS:  stat.Quantile(0.50, stat.Empirical, rates, nil),
		P90FPS:  stat.Quantile(0.90, stat.Empirical, rates, nil),
		Samples: s.sampleCount,
	}
	if len(rates) > 1 {
		stats.StdDevFPS = stat.StdDev(rates, nil)
	}

	return stats
}
