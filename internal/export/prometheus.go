package export

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/mutker/framectl/internal/governor"
	"codeberg.org/mutker/framectl/internal/logger"
	"codeberg.org/mutker/framectl/internal/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const shutdownTimeout = 5 * time.Second

// Exporter publishes monitor metrics in Prometheus format. Each exporter
// owns its registry, so tests and multiple instances never collide.
type Exporter struct {
	registry *prometheus.Registry

	currentFPS        prometheus.Gauge
	averageFPS        prometheus.Gauge
	modeRank          prometheus.Gauge
	particleCount     prometheus.Gauge
	movementIntensity prometheus.Gauge
	memoryUsed        prometheus.Gauge

	modeTransitions  *prometheus.CounterVec
	performanceDrops prometheus.Counter
	memoryEvents     prometheus.Counter
	warnings         prometheus.Counter
}

// NewExporter creates an exporter with all collectors registered.
func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Exporter{
		registry: registry,
		currentFPS: factory.NewGauge(prometheus.GaugeOpts{
			Name: "framectl_current_fps",
			Help: "Instantaneous frame rate from the last frame delta",
		}),
		averageFPS: factory.NewGauge(prometheus.GaugeOpts{
			Name: "framectl_average_fps",
			Help: "Rolling average frame rate over the sample window",
		}),
		modeRank: factory.NewGauge(prometheus.GaugeOpts{
			Name: "framectl_mode_rank",
			Help: "Current performance mode (0=critical, 1=low, 2=medium, 3=high)",
		}),
		particleCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "framectl_particle_count",
			Help: "Particle count currently applied to the renderer",
		}),
		movementIntensity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "framectl_movement_intensity",
			Help: "Movement intensity currently applied to the renderer",
		}),
		memoryUsed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "framectl_memory_used_bytes",
			Help: "Live heap bytes observed at the last memory poll",
		}),
		modeTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "framectl_mode_transitions_total",
			Help: "Total number of confirmed mode transitions",
		}, []string{"from", "to"}),
		performanceDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "framectl_performance_drops_total",
			Help: "Total number of transitions into a lower mode",
		}),
		memoryEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "framectl_high_memory_events_total",
			Help: "Total number of high memory usage events",
		}),
		warnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "framectl_warnings_total",
			Help: "Total number of warnings emitted by the monitor",
		}),
	}
}

// Attach subscribes the exporter to a monitor's callbacks.
func (e *Exporter) Attach(m *monitor.Monitor) {
	m.OnMetricsUpdate(func(metrics monitor.Metrics) {
		e.currentFPS.Set(metrics.CurrentFPS)
		e.averageFPS.Set(metrics.AverageFPS)
		e.modeRank.Set(float64(metrics.Mode.Rank()))
		e.memoryUsed.Set(float64(metrics.MemoryUsedBytes))

		settings := m.Settings()
		e.particleCount.Set(float64(settings.ParticleCount))
		e.movementIntensity.Set(settings.MovementIntensity)
	})

	m.OnModeChange(func(oldMode, newMode governor.Mode) {
		e.modeTransitions.WithLabelValues(oldMode.String(), newMode.String()).Inc()
	})

	m.OnPerformanceDrop(func(monitor.Metrics) {
		e.performanceDrops.Inc()
	})

	m.OnHighMemoryUsage(func(uint64) {
		e.memoryEvents.Inc()
	})

	m.OnWarning(func(error) {
		e.warnings.Inc()
	})
}

// Gather exposes the registry's collected metric families.
func (e *Exporter) Gather() ([]*dto.MetricFamily, error) {
	return e.registry.Gather()
}

// Handler returns the scrape handler for this exporter's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is canceled.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Debug().Err(err).Msg("Metrics server shutdown")
		}
	}()

	logger.Info().Str("addr", addr).Msg("Serving Prometheus metrics")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}
