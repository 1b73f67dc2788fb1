package scheduler

import (
	"math"
	"time"
)

const (
	DefaultNormalRateHz      = 20
	DefaultPowerSaveRateHz   = 10
	DefaultBaselineIntensity = 2
	DefaultMaxIntensity      = 5
	DefaultJankThreshold     = 16 * time.Millisecond
)

// Config holds the scheduler's tunables.
type Config struct {
	NormalRateHz      int
	PowerSaveRateHz   int
	BaselineIntensity int
	MaxIntensity      int
	JankThreshold     time.Duration
}

// DefaultConfig returns the 20Hz/10Hz, intensity 2, 16ms setup.
func DefaultConfig() Config {
	return Config{
		NormalRateHz:      DefaultNormalRateHz,
		PowerSaveRateHz:   DefaultPowerSaveRateHz,
		BaselineIntensity: DefaultBaselineIntensity,
		MaxIntensity:      DefaultMaxIntensity,
		JankThreshold:     DefaultJankThreshold,
	}
}

// Normalize clamps every field to a usable minimum instead of failing.
func (c Config) Normalize() Config {
	c.NormalRateHz = max(1, c.NormalRateHz)
	c.PowerSaveRateHz = max(1, c.PowerSaveRateHz)
	c.MaxIntensity = max(1, c.MaxIntensity)
	c.BaselineIntensity = clamp(c.BaselineIntensity, 1, c.MaxIntensity)
	if c.JankThreshold <= 0 {
		c.JankThreshold = DefaultJankThreshold
	}
	return c
}

// Params is the per-cycle configuration derived from the power state.
type Params struct {
	RateHz    int `json:"rate_hz"`
	Intensity int `json:"intensity"`
}

// Period returns the target cycle length.
func (p Params) Period() time.Duration {
	return time.Second / time.Duration(max(1, p.RateHz))
}

// Derive computes the next cycle's parameters. Under power-save the
// intensity ratchets down by one per cycle, never below 1; otherwise it
// resets to the baseline at once.
func Derive(powerSave bool, prevIntensity, baseline int, cfg Config) Params {
	if powerSave {
		return Params{
			RateHz:    max(1, cfg.PowerSaveRateHz),
			Intensity: max(1, prevIntensity-1),
		}
	}
	return Params{
		RateHz:    max(1, cfg.NormalRateHz),
		Intensity: max(1, baseline),
	}
}

// IsJank reports whether a cycle overran the frame budget. The boundary is
// exclusive: exactly threshold is not jank.
func IsJank(elapsed, threshold time.Duration) bool {
	return elapsed > threshold
}

// SleepFor returns how long to wait so cycles start at rateHz. It is zero
// when the cycle already used up its budget.
func SleepFor(rateHz int, elapsed time.Duration) time.Duration {
	period := Params{RateHz: rateHz}.Period()
	return max(0, period-elapsed)
}

// intensityFromFloat rounds v into [1, maxIntensity].
func intensityFromFloat(v float64, maxIntensity int) (int, bool) {
	if math.IsNaN(v) {
		return 0, false
	}
	if v >= float64(maxIntensity) {
		return maxIntensity, true
	}
	return clamp(int(math.Round(v)), 1, maxIntensity), true
}

func clamp(value, minValue, maxValue int) int {
	if value < minValue {
		return minValue
	}

	if value > maxValue {
		return maxValue
	}

	return value
}
