package telemetry

import (
	"database/sql"

	"codeberg.org/mutker/framectl/internal/errors"
)

// initSchema initializes the database schema for telemetry data
func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS telemetry (
            timestamp INTEGER,
            instance_id TEXT,
            current_fps REAL,
            average_fps REAL,
            mode TEXT,
            particle_count INTEGER,
            movement_intensity REAL,
            spacing_multiplier REAL,
            blur_radius REAL,
            renderer_target_fps REAL,
            memory_used INTEGER,
            observe_only INTEGER,
            device_class TEXT,
            device_tier TEXT,
            PRIMARY KEY (timestamp, instance_id)
        )
    `)
	if err != nil {
		return errors.New().Wrap(ErrSchemaInitFailed, err)
	}

	return nil
}
