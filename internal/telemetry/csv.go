package telemetry

import (
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/framectl/internal/errors"
	"github.com/gocarina/gocsv"
)

// SnapshotCSV is a flat record for CSV export of telemetry snapshots.
type SnapshotCSV struct {
	Timestamp         int64   `csv:"timestamp"`
	InstanceID        string  `csv:"instance_id"`
	CurrentFPS        float64 `csv:"current_fps"`
	AverageFPS        float64 `csv:"average_fps"`
	Mode              string  `csv:"mode"`
	ParticleCount     int     `csv:"particle_count"`
	MovementIntensity float64 `csv:"movement_intensity"`
	SpacingMultiplier float64 `csv:"spacing_multiplier"`
	BlurRadius        float64 `csv:"blur_radius"`
	RendererTargetFPS float64 `csv:"renderer_target_fps"`
	MemoryUsedBytes   uint64  `csv:"memory_used_bytes"`
	DeviceClass       string  `csv:"device_class"`
	DeviceTier        string  `csv:"device_tier"`
}

func (s *Snapshot) toCSV() SnapshotCSV {
	return SnapshotCSV{
		Timestamp:         s.Timestamp.Unix(),
		InstanceID:        s.InstanceID,
		CurrentFPS:        s.Frame.CurrentFPS,
		AverageFPS:        s.Frame.AverageFPS,
		Mode:              s.Frame.Mode,
		ParticleCount:     s.Settings.ParticleCount,
		MovementIntensity: s.Settings.MovementIntensity,
		SpacingMultiplier: s.Settings.SpacingMultiplier,
		BlurRadius:        s.Settings.BlurRadius,
		RendererTargetFPS: s.Settings.TargetFPS,
		MemoryUsedBytes:   s.Memory.UsedBytes,
		DeviceClass:       s.State.DeviceClass,
		DeviceTier:        s.State.DeviceTier,
	}
}

// CSVExporter appends telemetry snapshots to a session CSV file. The header
// is written once on the first record.
type CSVExporter struct {
	mu            sync.Mutex
	file          *os.File
	headerWritten bool
}

// NewCSVExporter creates telemetry.csv inside dir. An empty dir disables
// export and returns a nil exporter, which is safe to use.
func NewCSVExporter(dir string) (*CSVExporter, error) {
	if dir == "" {
		return nil, nil
	}

	errFactory := errors.New()

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrExportInit, err)
	}

	file, err := os.Create(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		return nil, errFactory.Wrap(ErrExportInit, err)
	}

	return &CSVExporter{file: file}, nil
}

// Write appends one snapshot record.
func (e *CSVExporter) Write(snapshot *Snapshot) error {
	if e == nil {
		return nil
	}

	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidSnapshot)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	records := []SnapshotCSV{snapshot.toCSV()}

	if !e.headerWritten {
		if err := gocsv.Marshal(records, e.file); err != nil {
			return errFactory.Wrap(ErrExportWrite, err)
		}
		e.headerWritten = true
		return nil
	}

	if err := gocsv.MarshalWithoutHeaders(records, e.file); err != nil {
		return errFactory.Wrap(ErrExportWrite, err)
	}

	return nil
}

// Close flushes and closes the session file.
func (e *CSVExporter) Close() error {
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.file.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}
