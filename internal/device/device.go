package device

import (
	"context"
	"runtime"

	"codeberg.org/mutker/framectl/internal/logger"
)

// Device classification
type (
	Class           string
	Tier            string
	ConnectionClass string
)

const (
	ClassMobile  Class = "mobile"
	ClassTablet  Class = "tablet"
	ClassDesktop Class = "desktop"

	TierLow  Tier = "low-end"
	TierMid  Tier = "mid-range"
	TierHigh Tier = "high-end"

	ConnectionSlow     ConnectionClass = "slow"
	ConnectionModerate ConnectionClass = "moderate"
	ConnectionFast     ConnectionClass = "fast"
	ConnectionUnknown  ConnectionClass = "unknown"
)

// Viewport width boundaries for device class
const (
	mobileMaxWidth = 768
	tabletMaxWidth = 1024
)

const gib = 1 << 30

// Conservative defaults substituted for unavailable signals
const (
	defaultCores         = 2
	defaultMemoryBytes   = 2 * gib
	defaultPixelRatio    = 1.0
	defaultViewportWidth = 1280
	defaultViewportHeight  = 800
)

// Signals is an immutable snapshot of the host environment hints the
// classifier consumes. Zero values mean "unavailable".
type Signals struct {
	ViewportWidth  int
	ViewportHeight int
	PixelRatio     float64
	LogicalCores   int
	MemoryBytes    uint64
	Connection     ConnectionClass
	TouchSupport   bool
	GPUName        string
	GPUMemoryBytes uint64
}

// Profile is the capability classification handed to the adaptive controller.
type Profile struct {
	Class      Class
	Tier       Tier
	Connection ConnectionClass
	Signals    Signals
}

func tierRank(t Tier) int {
	switch t {
	case TierLow:
		return 0
	case TierMid:
		return 1
	default:
		return 2
	}
}

func minTier(a, b Tier) Tier {
	if tierRank(a) <= tierRank(b) {
		return a
	}

	return b
}

// normalize substitutes documented conservative defaults for missing signals.
func normalize(s Signals) Signals {
	if s.ViewportWidth <= 0 {
		s.ViewportWidth = defaultViewportWidth
	}
	if s.ViewportHeight <= 0 {
		s.ViewportHeight = defaultViewportHeight
	}
	if s.PixelRatio <= 0 {
		s.PixelRatio = defaultPixelRatio
	}
	if s.LogicalCores <= 0 {
		s.LogicalCores = defaultCores
	}
	if s.MemoryBytes == 0 {
		s.MemoryBytes = defaultMemoryBytes
	}
	if s.Connection == "" {
		s.Connection = ConnectionUnknown
	}

	return s
}

func coreTier(cores int) Tier {
	switch {
	case cores <= 2:
		return TierLow
	case cores <= 4:
		return TierMid
	default:
		return TierHigh
	}
}

func memoryTier(bytes uint64) Tier {
	switch {
	case bytes < 2*gib:
		return TierLow
	case bytes < 4*gib:
		return TierMid
	default:
		return TierHigh
	}
}

// High pixel ratios multiply the fill-rate cost of every effect, so they
// count against the device rather than for it.
func pixelRatioTier(ratio float64) Tier {
	switch {
	case ratio >= 3:
		return TierLow
	case ratio >= 2:
		return TierMid
	default:
		return TierHigh
	}
}

func gpuTier(bytes uint64) Tier {
	switch {
	case bytes < 2*gib:
		return TierLow
	case bytes < 4*gib:
		return TierMid
	default:
		return TierHigh
	}
}

// Classify maps host signals to a device profile through a deterministic
// decision table. The tier is the minimum of the per-signal contributions:
// the weakest signal dominates so a frail device is never overcommitted.
func Classify(signals Signals) Profile {
	s := normalize(signals)

	var class Class
	switch {
	case s.ViewportWidth <= mobileMaxWidth:
		class = ClassMobile
	case s.ViewportWidth <= tabletMaxWidth:
		class = ClassTablet
	default:
		class = ClassDesktop
	}

	tier := coreTier(s.LogicalCores)
	tier = minTier(tier, memoryTier(s.MemoryBytes))
	tier = minTier(tier, pixelRatioTier(s.PixelRatio))
	if s.GPUMemoryBytes > 0 {
		tier = minTier(tier, gpuTier(s.GPUMemoryBytes))
	}

	return Profile{
		Class:      class,
		Tier:       tier,
		Connection: s.Connection,
		Signals:    s,
	}
}

// Estimator produces device profiles from host signals, optionally refined
// by a bandwidth probe.
type Estimator struct {
	probe *BandwidthProbe
}

// NewEstimator creates an estimator. The probe may be nil.
func NewEstimator(probe *BandwidthProbe) *Estimator {
	return &Estimator{probe: probe}
}

// Estimate gathers host signals and classifies them. When a probe is
// configured its result refines the connection class; a failed or timed-out
// probe leaves the static estimate untouched.
func (e *Estimator) Estimate(ctx context.Context) Profile {
	signals := HostSignals()
	profile := Classify(signals)

	if e.probe != nil {
		if connection, err := e.probe.Run(ctx); err != nil {
			logger.Debug().Err(err).Msg("Bandwidth probe inconclusive, keeping static estimate")
		} else {
			profile.Connection = connection
			profile.Signals.Connection = connection
		}
	}

	logger.Debug().
		Str("class", string(profile.Class)).
		Str("tier", string(profile.Tier)).
		Str("connection", string(profile.Connection)).
		Int("cores", profile.Signals.LogicalCores).
		Uint64("memory_bytes", profile.Signals.MemoryBytes).
		Str("gpu", profile.Signals.GPUName).
		Msg("Device profile estimated")

	return profile
}

// HostSignals reads best-effort signals from the process environment.
// Viewport and pixel-ratio hints have no host equivalent here and fall
// back to their defaults during classification.
func HostSignals() Signals {
	signals := Signals{
		LogicalCores: runtime.NumCPU(),
	}

	if name, memory, ok := gpuSignals(); ok {
		signals.GPUName = name
		signals.GPUMemoryBytes = memory
	}

	return signals
}
