package telemetry

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/framectl/internal/errors"
	"codeberg.org/mutker/framectl/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

type Repository interface {
	Store(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

type sqliteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	logger.Debug().Msgf("Initializing telemetry repository at: %s", cfg.DBPath)

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	return &sqliteRepository{
		db: db,
	}, nil
}

func (r *sqliteRepository) Store(ctx context.Context, snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO telemetry (
            timestamp, instance_id,
            current_fps, average_fps, mode,
            particle_count, movement_intensity, spacing_multiplier,
            blur_radius, renderer_target_fps,
            memory_used, observe_only, device_class, device_tier
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(timestamp, instance_id) DO UPDATE SET
            current_fps = excluded.current_fps,
            average_fps = excluded.average_fps,
            mode = excluded.mode,
            particle_count = excluded.particle_count,
            movement_intensity = excluded.movement_intensity,
            spacing_multiplier = excluded.spacing_multiplier,
            blur_radius = excluded.blur_radius,
            renderer_target_fps = excluded.renderer_target_fps,
            memory_used = excluded.memory_used,
            observe_only = excluded.observe_only,
            device_class = excluded.device_class,
            device_tier = excluded.device_tier
    `,
		snapshot.Timestamp.Unix(),
		snapshot.InstanceID,
		snapshot.Frame.CurrentFPS,
		snapshot.Frame.AverageFPS,
		snapshot.Frame.Mode,
		snapshot.Settings.ParticleCount,
		snapshot.Settings.MovementIntensity,
		snapshot.Settings.SpacingMultiplier,
		snapshot.Settings.BlurRadius,
		snapshot.Settings.TargetFPS,
		int64(snapshot.Memory.UsedBytes),
		boolToInt(snapshot.State.ObserveOnly),
		snapshot.State.DeviceClass,
		snapshot.State.DeviceTier,
	)
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *sqliteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}
