package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codeberg.org/mutker/framectl/internal/governor"
	"codeberg.org/mutker/framectl/internal/logger"
	"codeberg.org/mutker/framectl/internal/monitor"
	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix = "framectl:snapshot"
	eventListKey      = "framectl:mode_events"
	eventListCap      = 1000
)

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// snapshotRecord is the JSON shape published by PublishSnapshot from the
// daemon's interval loop.
type snapshotRecord struct {
	Timestamp  int64   `json:"timestamp"`
	InstanceID string  `json:"instance_id"`
	CurrentFPS float64 `json:"current_fps"`
	AverageFPS float64 `json:"average_fps"`
	Mode       string  `json:"mode"`
	MemoryUsed uint64  `json:"memory_used_bytes"`
}

// modeEvent is the JSON shape pushed per confirmed transition.
type modeEvent struct {
	Timestamp  int64  `json:"timestamp"`
	InstanceID string `json:"instance_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// Sink publishes monitor state to Redis so dashboards and other processes
// can observe running instances without scraping them.
type Sink struct {
	client     *redis.Client
	ttl        time.Duration
	instanceID string
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config, instanceID string) (*Sink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: 3,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Sink{
		client:     client,
		ttl:        cfg.TTL,
		instanceID: instanceID,
	}, nil
}

// Attach subscribes the sink to a monitor's mode transitions. Only the rare
// mode-change event rides the frame callback path; periodic snapshots are
// the caller's job via PublishSnapshot, so a slow Redis round trip can never
// stall the frame loop or show up in the monitor's own frame timings.
// Publish failures are logged and never propagate into the control loop.
func (s *Sink) Attach(ctx context.Context, m *monitor.Monitor) {
	m.OnModeChange(func(oldMode, newMode governor.Mode) {
		if err := s.publishModeEvent(ctx, oldMode, newMode); err != nil {
			logger.Debug().Err(err).Msg("Failed to publish mode event to Redis")
		}
	})
}

// PublishSnapshot writes the latest metrics under the instance's TTL'd key.
// Intended to be called from a periodic loop, not from frame callbacks.
func (s *Sink) PublishSnapshot(ctx context.Context, metrics monitor.Metrics) error {
	now := time.Now()
	record := snapshotRecord{
		Timestamp:  now.Unix(),
		InstanceID: s.instanceID,
		CurrentFPS: metrics.CurrentFPS,
		AverageFPS: metrics.AverageFPS,
		Mode:       metrics.Mode.String(),
		MemoryUsed: metrics.MemoryUsedBytes,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("%s:%s", snapshotKeyPrefix, s.instanceID)

	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *Sink) publishModeEvent(ctx context.Context, oldMode, newMode governor.Mode) error {
	event := modeEvent{
		Timestamp:  time.Now().Unix(),
		InstanceID: s.instanceID,
		From:       oldMode.String(),
		To:         newMode.String(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal mode event: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, eventListKey, data)
	pipe.LTrim(ctx, eventListKey, 0, eventListCap-1)
	pipe.Expire(ctx, eventListKey, s.ttl)

	_, err = pipe.Exec(ctx)

	return err
}

// Close releases the connection pool.
func (s *Sink) Close() error {
	return s.client.Close()
}
