package config

import (
	"flag"
	"os"
	"time"

	"codeberg.org/mutker/framectl/internal/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is used when no level is configured
	DefaultLogLevel = "info"

	defaultInterval     = 2
	defaultSampleWindow = 120
	defaultTargetFPS    = 60
	defaultMediumFPS    = 40
	defaultLowFPS       = 25
	defaultCriticalFPS  = 15
	defaultDwellTicks   = 3
	defaultMemoryMB     = 512
	defaultProbeTimeout = 3 * time.Second
)

type Config struct {
	// Loop and sampling
	Interval     int `mapstructure:"interval"`
	SampleWindow int `mapstructure:"sample_window"`

	// Performance mode thresholds (FPS, strictly decreasing)
	TargetFPS   float64 `mapstructure:"target_fps"`
	MediumFPS   float64 `mapstructure:"medium_fps"`
	LowFPS      float64 `mapstructure:"low_fps"`
	CriticalFPS float64 `mapstructure:"critical_fps"`
	DwellTicks  int     `mapstructure:"dwell_ticks"`

	// High-memory warning threshold in megabytes
	MemoryThresholdMB int `mapstructure:"memory_threshold_mb"`

	// Modes
	Monitor bool `mapstructure:"monitor"`
	Debug   bool `mapstructure:"debug"`
	Verbose bool `mapstructure:"verbose"`

	LogLevel string `mapstructure:"log_level"`

	// Bandwidth probe (refines the connection class, off by default)
	Probe        bool          `mapstructure:"probe"`
	ProbeURL     string        `mapstructure:"probe_url"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`

	// Telemetry
	Telemetry    bool   `mapstructure:"telemetry"`
	TelemetryDB  string `mapstructure:"database"`
	TelemetryCSV string `mapstructure:"csv_dir"`

	// Prometheus exporter listen address, empty disables the endpoint
	MetricsListen string `mapstructure:"metrics_listen"`

	// Redis sink, empty address disables publishing
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisTTL      time.Duration `mapstructure:"redis_ttl"`
}

func defaults() *Config {
	return &Config{
		Interval:          defaultInterval,
		SampleWindow:      defaultSampleWindow,
		TargetFPS:         defaultTargetFPS,
		MediumFPS:         defaultMediumFPS,
		LowFPS:            defaultLowFPS,
		CriticalFPS:       defaultCriticalFPS,
		DwellTicks:        defaultDwellTicks,
		MemoryThresholdMB: defaultMemoryMB,
		LogLevel:          DefaultLogLevel,
		ProbeTimeout:      defaultProbeTimeout,
		RedisTTL:          time.Hour,
	}
}

// Load reads configuration from flags and an optional TOML file.
// Flags take precedence over file values, file values over defaults.
func Load() (*Config, error) {
	errFactory := errors.New()
	config := defaults()

	fs := flag.NewFlagSet("framectl", flag.ContinueOnError)
	fs.IntVar(&config.Interval, "interval", config.Interval, "Seconds between status updates")
	fs.IntVar(&config.SampleWindow, "window", config.SampleWindow, "Number of frame samples retained")
	fs.Float64Var(&config.TargetFPS, "target-fps", config.TargetFPS, "Target frame rate")
	fs.IntVar(&config.DwellTicks, "dwell", config.DwellTicks, "Evaluation ticks a mode must persist before switching")
	fs.BoolVar(&config.Monitor, "monitor", config.Monitor, "Only monitor performance, never adjust render settings")
	fs.BoolVar(&config.Probe, "probe", config.Probe, "Run the bandwidth probe at startup")
	fs.BoolVar(&config.Debug, "debug", config.Debug, "Enable debugging mode")
	fs.BoolVar(&config.Verbose, "verbose", config.Verbose, "Enable verbose logging")
	logLevelFlag := fs.String("log-level", "", "Log level (debug, info, warning, error)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetConfigName("framectl")
	v.SetConfigType("toml")
	v.AddConfigPath("/etc")
	v.AddConfigPath(".")
	if path := os.Getenv("FRAMECTL_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err.Error())
			}
		}
	}

	// Flags set explicitly on the command line override file values.
	// A few flag spellings differ from their file keys.
	flagKeys := map[string]string{
		"window":     "sample_window",
		"target-fps": "target_fps",
		"dwell":      "dwell_ticks",
	}
	fs.Visit(func(f *flag.Flag) {
		key := f.Name
		if mapped, ok := flagKeys[key]; ok {
			key = mapped
		}
		v.Set(key, f.Value.String())
	})
	if *logLevelFlag != "" {
		v.Set("log_level", *logLevelFlag)
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	applyLogLevel(config)

	return config, nil
}

// Validate checks invariants the rest of the system depends on.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.SampleWindow < 2 {
		return errFactory.WithData(errors.ErrInvalidConfig, c.SampleWindow)
	}
	if c.DwellTicks < 1 {
		return errFactory.WithData(errors.ErrInvalidDwell, c.DwellTicks)
	}
	if !(c.TargetFPS > c.MediumFPS && c.MediumFPS > c.LowFPS && c.LowFPS > c.CriticalFPS && c.CriticalFPS > 0) {
		return errFactory.WithData(errors.ErrInvalidThresholds, []float64{c.TargetFPS, c.MediumFPS, c.LowFPS, c.CriticalFPS})
	}

	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}

func applyLogLevel(c *Config) {
	if c.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	if c.Verbose {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}

	switch c.LogLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}
