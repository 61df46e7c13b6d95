package governor_test

import (
	"errors"
	"testing"

	"codeberg.org/mutker/framectl/internal/device"
	"codeberg.org/mutker/framectl/internal/governor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testThresholds() governor.Thresholds {
	return governor.Thresholds{Target: 60, Medium: 40, Low: 25, Critical: 15}
}

func profileWith(tier device.Tier) device.Profile {
	return device.Profile{Class: device.ClassDesktop, Tier: tier}
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, testThresholds().Validate())

	invalid := []governor.Thresholds{
		{Target: 40, Medium: 60, Low: 25, Critical: 15},
		{Target: 60, Medium: 40, Low: 40, Critical: 15},
		{Target: 60, Medium: 40, Low: 25, Critical: 0},
		{Target: 60, Medium: 40, Low: 25, Critical: -1},
	}
	for _, th := range invalid {
		assert.Error(t, th.Validate())
	}
}

func TestClassifyBands(t *testing.T) {
	th := testThresholds()

	assert.Equal(t, governor.ModeHigh, th.Classify(60))
	assert.Equal(t, governor.ModeHigh, th.Classify(54), "90% of target still counts as high")
	assert.Equal(t, governor.ModeMedium, th.Classify(53.9))
	assert.Equal(t, governor.ModeMedium, th.Classify(40))
	assert.Equal(t, governor.ModeLow, th.Classify(39.9))
	assert.Equal(t, governor.ModeLow, th.Classify(25))
	assert.Equal(t, governor.ModeCritical, th.Classify(24.9))
	assert.Equal(t, governor.ModeCritical, th.Classify(0))
}

func TestClassifyMonotonic(t *testing.T) {
	th := testThresholds()

	previousRank := -1
	for fps := 0.0; fps <= 120; fps += 0.5 {
		rank := th.Classify(fps).Rank()
		assert.GreaterOrEqual(t, rank, previousRank, "increasing FPS must never decrease the mode rank")
		previousRank = rank
	}
}

func TestEvaluatorSteadyHighEmitsNothing(t *testing.T) {
	e, err := governor.NewEvaluator(testThresholds(), 3)
	require.NoError(t, err)

	changes := 0
	for _, fps := range []float64{58, 59, 60} {
		mode, changed := e.Evaluate(fps)
		assert.Equal(t, governor.ModeHigh, mode)
		if changed {
			changes++
		}
	}
	assert.Zero(t, changes)
}

func TestEvaluatorDwellBeforeTransition(t *testing.T) {
	e, err := governor.NewEvaluator(testThresholds(), 3)
	require.NoError(t, err)

	mode, changed := e.Evaluate(58) // seeds high
	require.Equal(t, governor.ModeHigh, mode)
	require.False(t, changed)

	// Two medium ticks are not enough to satisfy the dwell period
	for _, fps := range []float64{35, 34} {
		mode, changed = e.Evaluate(fps)
		assert.Equal(t, governor.ModeHigh, mode)
		assert.False(t, changed)
	}

	// Third consecutive medium tick emits exactly one transition
	mode, changed = e.Evaluate(36)
	assert.Equal(t, governor.ModeMedium, mode)
	assert.True(t, changed)

	// A single-tick rebound to 41... still medium: no flapping back to high
	mode, changed = e.Evaluate(41)
	assert.Equal(t, governor.ModeMedium, mode)
	assert.False(t, changed)

	mode, changed = e.Evaluate(35)
	assert.Equal(t, governor.ModeMedium, mode)
	assert.False(t, changed)
}

func TestEvaluatorRebindCandidateResetsDwell(t *testing.T) {
	e, err := governor.NewEvaluator(testThresholds(), 3)
	require.NoError(t, err)

	e.Evaluate(58) // seed high

	// Alternating bands never accumulate enough dwell to transition
	for i := 0; i < 6; i++ {
		fps := 35.0
		if i%2 == 1 {
			fps = 20.0
		}
		mode, changed := e.Evaluate(fps)
		assert.Equal(t, governor.ModeHigh, mode)
		assert.False(t, changed)
	}
}

func TestEvaluatorOscillationWithinBand(t *testing.T) {
	e, err := governor.NewEvaluator(testThresholds(), 3)
	require.NoError(t, err)

	e.Evaluate(45) // seeds medium

	for _, fps := range []float64{41, 48, 43, 52, 40} {
		mode, changed := e.Evaluate(fps)
		assert.Equal(t, governor.ModeMedium, mode)
		assert.False(t, changed, "oscillation within a band must not emit transitions")
	}
}

func TestEvaluatorRejectsInvalidDwell(t *testing.T) {
	_, err := governor.NewEvaluator(testThresholds(), 0)
	assert.Error(t, err)
}

func TestComputeSettingsFloors(t *testing.T) {
	base := governor.DefaultBaseSettings()
	modes := []governor.Mode{governor.ModeHigh, governor.ModeMedium, governor.ModeLow, governor.ModeCritical}
	tiers := []device.Tier{device.TierLow, device.TierMid, device.TierHigh}

	for _, mode := range modes {
		for _, tier := range tiers {
			s := governor.ComputeSettings(mode, profileWith(tier), base)
			assert.GreaterOrEqual(t, s.ParticleCount, governor.MinParticleCount)
			assert.GreaterOrEqual(t, s.MovementIntensity, governor.MinMovementIntensity)
			assert.GreaterOrEqual(t, s.SpacingMultiplier, governor.MinSpacingMultiplier)
			assert.GreaterOrEqual(t, s.BlurRadius, governor.MinBlurRadius)
			assert.GreaterOrEqual(t, s.TargetFPS, governor.MinTargetFPS)
		}
	}
}

func TestComputeSettingsLowEndClampedAtMediumBudget(t *testing.T) {
	base := governor.DefaultBaseSettings()

	lowEndHigh := governor.ComputeSettings(governor.ModeHigh, profileWith(device.TierLow), base)
	lowEndMedium := governor.ComputeSettings(governor.ModeMedium, profileWith(device.TierLow), base)

	assert.Equal(t, lowEndMedium, lowEndHigh, "low-end devices never exceed the medium visual budget")

	highEndHigh := governor.ComputeSettings(governor.ModeHigh, profileWith(device.TierHigh), base)
	assert.Greater(t, highEndHigh.ParticleCount, lowEndHigh.ParticleCount)
}

func TestComputeSettingsModeOrdering(t *testing.T) {
	base := governor.DefaultBaseSettings()
	profile := profileWith(device.TierHigh)

	high := governor.ComputeSettings(governor.ModeHigh, profile, base)
	medium := governor.ComputeSettings(governor.ModeMedium, profile, base)
	low := governor.ComputeSettings(governor.ModeLow, profile, base)
	critical := governor.ComputeSettings(governor.ModeCritical, profile, base)

	assert.Greater(t, high.ParticleCount, medium.ParticleCount)
	assert.Greater(t, medium.ParticleCount, low.ParticleCount)
	assert.Greater(t, low.ParticleCount, critical.ParticleCount)
}

type fakeRenderer struct {
	applied []governor.Settings
	fail    bool
}

func (r *fakeRenderer) ApplySettings(s governor.Settings) error {
	if r.fail {
		r.fail = false
		return errors.New("renderer rejected configuration")
	}
	r.applied = append(r.applied, s)
	return nil
}

func TestControllerPush(t *testing.T) {
	renderer := &fakeRenderer{}
	c := governor.NewController(governor.DefaultBaseSettings(), profileWith(device.TierHigh), renderer)

	settings, err := c.Push(governor.ModeMedium)
	require.NoError(t, err)
	assert.Equal(t, settings, c.Current())
	assert.Len(t, renderer.applied, 1)
}

func TestControllerFallsBackOnRendererRejection(t *testing.T) {
	renderer := &fakeRenderer{fail: true}
	c := governor.NewController(governor.DefaultBaseSettings(), profileWith(device.TierHigh), renderer)

	settings, err := c.Push(governor.ModeHigh)
	require.Error(t, err, "rejection surfaces as a warning")

	critical := governor.ComputeSettings(governor.ModeCritical, profileWith(device.TierHigh), governor.DefaultBaseSettings())
	assert.Equal(t, critical, settings, "fallback is the lowest-intensity preset")
	assert.Len(t, renderer.applied, 1)
}
