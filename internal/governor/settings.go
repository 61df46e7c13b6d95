package governor

import (
	"math"

	"codeberg.org/mutker/framectl/internal/device"
	"codeberg.org/mutker/framectl/internal/errors"
	"codeberg.org/mutker/framectl/internal/logger"
)

// Mode multipliers applied to the base settings.
const (
	highMultiplier     = 1.0
	mediumMultiplier   = 0.8
	lowMultiplier      = 0.6
	criticalMultiplier = 0.4
)

// Tier multipliers stack on top of the mode multiplier.
const (
	tierHighMultiplier = 1.0
	tierMidMultiplier  = 0.9
	tierLowMultiplier  = 0.8
)

// Floors below which no setting is ever scaled; degenerate zero/negative
// render parameters are structurally impossible.
const (
	MinParticleCount     = 8
	MinMovementIntensity = 0.05
	MinSpacingMultiplier = 0.5
	MinBlurRadius        = 0.5
	MinTargetFPS         = 15.0
)

// Settings is the parameter set handed to the rendering layer.
type Settings struct {
	ParticleCount     int
	MovementIntensity float64
	SpacingMultiplier float64
	BlurRadius        float64
	TargetFPS         float64
}

// Renderer is the external animation driver. ApplySettings is assumed
// synchronous and side-effect-only.
type Renderer interface {
	ApplySettings(Settings) error
}

// DefaultBaseSettings is the full-quality configuration all scaling starts
// from.
func DefaultBaseSettings() Settings {
	return Settings{
		ParticleCount:     120,
		MovementIntensity: 1.0,
		SpacingMultiplier: 1.0,
		BlurRadius:        4.0,
		TargetFPS:         60,
	}
}

func modeMultiplier(mode Mode) float64 {
	switch mode {
	case ModeHigh:
		return highMultiplier
	case ModeMedium:
		return mediumMultiplier
	case ModeLow:
		return lowMultiplier
	default:
		return criticalMultiplier
	}
}

func tierMultiplier(tier device.Tier) float64 {
	switch tier {
	case device.TierHigh:
		return tierHighMultiplier
	case device.TierMid:
		return tierMidMultiplier
	default:
		return tierLowMultiplier
	}
}

// ComputeSettings scales the base configuration by the mode and device-tier
// multipliers and clamps every field to its floor. Low-end devices never
// exceed the medium visual budget even when FPS briefly reads high, which
// keeps thermally throttled hardware from oscillating.
func ComputeSettings(mode Mode, profile device.Profile, base Settings) Settings {
	scale := modeMultiplier(mode)
	if profile.Tier == device.TierLow && scale > mediumMultiplier {
		scale = mediumMultiplier
	}
	scale *= tierMultiplier(profile.Tier)

	return Settings{
		ParticleCount:     clampInt(int(math.Round(float64(base.ParticleCount)*scale)), MinParticleCount),
		MovementIntensity: clampFloat(base.MovementIntensity*scale, MinMovementIntensity),
		SpacingMultiplier: clampFloat(base.SpacingMultiplier*scale, MinSpacingMultiplier),
		BlurRadius:        clampFloat(base.BlurRadius*scale, MinBlurRadius),
		TargetFPS:         clampFloat(base.TargetFPS*scale, MinTargetFPS),
	}
}

// Controller translates mode transitions into renderer configuration.
// Settings are only pushed on an actual transition, so the renderer holds a
// stable configuration between mode changes.
type Controller struct {
	base     Settings
	profile  device.Profile
	renderer Renderer
	current  Settings
}

// NewController creates a controller for one renderer instance.
func NewController(base Settings, profile device.Profile, renderer Renderer) *Controller {
	return &Controller{
		base:     base,
		profile:  profile,
		renderer: renderer,
	}
}

// Current returns the last settings pushed to the renderer.
func (c *Controller) Current() Settings {
	return c.current
}

// Push computes settings for the mode and applies them to the renderer.
// A renderer rejection falls back to the lowest-intensity preset and is
// returned as a non-fatal warning; the sampling loop never sees it as a
// failure.
func (c *Controller) Push(mode Mode) (Settings, error) {
	errFactory := errors.New()

	settings := ComputeSettings(mode, c.profile, c.base)
	if err := c.apply(settings); err != nil {
		fallback := ComputeSettings(ModeCritical, c.profile, c.base)
		if fallbackErr := c.apply(fallback); fallbackErr != nil {
			logger.Debug().Err(fallbackErr).Msg("Renderer rejected the fallback preset as well")
		}

		return c.current, errFactory.Wrap(errors.ErrApplySettings, err)
	}

	return c.current, nil
}

func (c *Controller) apply(settings Settings) error {
	if c.renderer != nil {
		if err := c.renderer.ApplySettings(settings); err != nil {
			return err
		}
	}

	c.current = settings

	return nil
}

func clampInt(value, minValue int) int {
	if value < minValue {
		return minValue
	}

	return value
}

func clampFloat(value, minValue float64) float64 {
	if value < minValue {
		return minValue
	}

	return value
}
