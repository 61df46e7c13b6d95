package telemetry

import (
	"context"
	"time"
)

// Collector defines the core domain interface
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Snapshot represents one monitoring tick worth of telemetry
type Snapshot struct {
	Timestamp  time.Time
	InstanceID string
	Frame      FrameMetrics
	Settings   SettingsMetrics
	Memory     MemoryMetrics
	State      StateMetrics
}

// Domain value objects
type FrameMetrics struct {
	CurrentFPS float64
	AverageFPS float64
	Mode       string
}

type SettingsMetrics struct {
	ParticleCount     int
	MovementIntensity float64
	SpacingMultiplier float64
	BlurRadius        float64
	TargetFPS         float64
}

type MemoryMetrics struct {
	UsedBytes uint64
}

type StateMetrics struct {
	ObserveOnly bool
	DeviceClass string
	DeviceTier  string
}
