package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/framectl/internal/config"
	"codeberg.org/mutker/framectl/internal/device"
	"codeberg.org/mutker/framectl/internal/export"
	"codeberg.org/mutker/framectl/internal/governor"
	"codeberg.org/mutker/framectl/internal/logger"
	"codeberg.org/mutker/framectl/internal/monitor"
	"codeberg.org/mutker/framectl/internal/pid"
	"codeberg.org/mutker/framectl/internal/sink"
	"codeberg.org/mutker/framectl/internal/telemetry"
	"github.com/google/uuid"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context) error {
	profile := estimateProfile(ctx)

	host := newRenderHost(governor.DefaultBaseSettings())
	m, err := monitor.New(monitor.Options{
		Scheduler: host,
		Renderer:  host,
		Profile:   profile,
		Thresholds: governor.Thresholds{
			Target:   cfg.TargetFPS,
			Medium:   cfg.MediumFPS,
			Low:      cfg.LowFPS,
			Critical: cfg.CriticalFPS,
		},
		DwellTicks:           cfg.DwellTicks,
		SampleWindow:         cfg.SampleWindow,
		ObserveOnly:          cfg.Monitor,
		MemoryThresholdBytes: uint64(cfg.MemoryThresholdMB) << 20,
	})
	if err != nil {
		return err
	}
	monitor.SetDefault(m)

	m.OnModeChange(func(oldMode, newMode governor.Mode) {
		logger.Info().
			Str("from", oldMode.String()).
			Str("to", newMode.String()).
			Msg("Performance mode changed")
	})
	m.OnHighMemoryUsage(func(bytes uint64) {
		logger.Warn().Uint64("heap_bytes", bytes).Msg("High memory usage")
	})

	instanceID := uuid.NewString()

	collector, err := telemetry.NewService(telemetry.Config{
		DBPath:  cfg.TelemetryDB,
		Enabled: cfg.Telemetry,
	})
	if err != nil {
		return err
	}
	defer collector.Close()

	csvExporter, err := telemetry.NewCSVExporter(cfg.TelemetryCSV)
	if err != nil {
		return err
	}
	defer csvExporter.Close()

	if cfg.MetricsListen != "" {
		exporter := export.NewExporter()
		exporter.Attach(m)
		go func() {
			if err := exporter.Serve(ctx, cfg.MetricsListen); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	var redisSink *sink.Sink
	if cfg.RedisAddr != "" {
		s, err := sink.New(ctx, sink.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
		}, instanceID)
		if err != nil {
			// The control loop works without the sink; don't refuse to start
			logger.Warn().Err(err).Msg("Redis sink unavailable, continuing without it")
		} else {
			redisSink = s
			redisSink.Attach(ctx, m)
			defer redisSink.Close()
		}
	}

	m.Start()
	defer m.Close()

	if cfg.Monitor {
		logger.Info().Msg("Monitor mode activated. Observing performance without adjusting settings...")
	}

	return loop(ctx, m, collector, csvExporter, redisSink, instanceID)
}

func loop(
	ctx context.Context,
	m *monitor.Monitor,
	collector telemetry.Collector,
	csvExporter *telemetry.CSVExporter,
	redisSink *sink.Sink,
	instanceID string,
) error {
	interval := time.Duration(cfg.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snapshot := buildSnapshot(m, instanceID)

			if err := collector.Record(ctx, snapshot); err != nil {
				logger.Debug().Err(err).Msg("Failed to record telemetry snapshot")
			}
			if err := csvExporter.Write(snapshot); err != nil {
				logger.Debug().Err(err).Msg("Failed to write CSV record")
			}
			if redisSink != nil {
				if err := redisSink.PublishSnapshot(ctx, m.Metrics()); err != nil {
					logger.Debug().Err(err).Msg("Failed to publish snapshot to Redis")
				}
			}

			logStatus(m)
		}
	}
}

func estimateProfile(ctx context.Context) device.Profile {
	var probe *device.BandwidthProbe
	if cfg.Probe && cfg.ProbeURL != "" {
		probe = device.NewBandwidthProbe(cfg.ProbeURL, cfg.ProbeTimeout)
	}

	return device.NewEstimator(probe).Estimate(ctx)
}

func buildSnapshot(m *monitor.Monitor, instanceID string) *telemetry.Snapshot {
	metrics := m.Metrics()
	settings := m.Settings()
	profile := m.Profile()

	return &telemetry.Snapshot{
		Timestamp:  time.Now(),
		InstanceID: instanceID,
		Frame: telemetry.FrameMetrics{
			CurrentFPS: metrics.CurrentFPS,
			AverageFPS: metrics.AverageFPS,
			Mode:       metrics.Mode.String(),
		},
		Settings: telemetry.SettingsMetrics{
			ParticleCount:     settings.ParticleCount,
			MovementIntensity: settings.MovementIntensity,
			SpacingMultiplier: settings.SpacingMultiplier,
			BlurRadius:        settings.BlurRadius,
			TargetFPS:         settings.TargetFPS,
		},
		Memory: telemetry.MemoryMetrics{UsedBytes: metrics.MemoryUsedBytes},
		State: telemetry.StateMetrics{
			ObserveOnly: cfg.Monitor,
			DeviceClass: string(profile.Class),
			DeviceTier:  string(profile.Tier),
		},
	}
}

func logStatus(m *monitor.Monitor) {
	metrics := m.Metrics()

	if cfg.Debug {
		settings := m.Settings()
		stats := m.WindowStats()

		logger.Debug().
			Float64("current_fps", metrics.CurrentFPS).
			Float64("average_fps", metrics.AverageFPS).
			Float64("p10_fps", stats.P10FPS).
			Float64("p50_fps", stats.P50FPS).
			Float64("p90_fps", stats.P90FPS).
			Float64("stddev_fps", stats.StdDevFPS).
			Int("samples", stats.Samples).
			Str("mode", metrics.Mode.String()).
			Int("particle_count", settings.ParticleCount).
			Float64("movement_intensity", settings.MovementIntensity).
			Float64("spacing_multiplier", settings.SpacingMultiplier).
			Float64("blur_radius", settings.BlurRadius).
			Float64("renderer_target_fps", settings.TargetFPS).
			Uint64("memory_used", metrics.MemoryUsedBytes).
			Bool("monitor", cfg.Monitor).
			Msg("")
	} else if cfg.Verbose || cfg.Monitor {
		logger.Info().
			Float64("current_fps", metrics.CurrentFPS).
			Float64("average_fps", metrics.AverageFPS).
			Str("mode", metrics.Mode.String()).
			Uint64("memory_used", metrics.MemoryUsedBytes).
			Msg("")
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
