package window_test

import (
	"math/rand"
	"testing"
	"time"

	"codeberg.org/mutker/telemetrylab/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestEmptyWindowIsZero(t *testing.T) {
	w := window.New(window.DefaultDuration)

	assert.Equal(t, 0.0, w.Percentage())
	assert.Equal(t, 0, w.Len())
}

func TestNonPositiveDurationUsesDefault(t *testing.T) {
	assert.Equal(t, window.DefaultDuration, window.New(0).Duration())
	assert.Equal(t, window.DefaultDuration, window.New(-time.Second).Duration())
}

func TestWindowExcludesAgedOutSamples(t *testing.T) {
	w := window.New(30 * time.Second)

	// 40 samples at 1/s over t=0..39; the last 10 are jank and all of them
	// fall within the trailing 30s, which holds t=9..39 inclusive.
	for i := 0; i < 40; i++ {
		w.Record(epoch.Add(time.Duration(i)*time.Second), i >= 30)
	}

	assert.Equal(t, 31, w.Len())
	assert.Equal(t, 10, w.JankCount())
	assert.InDelta(t, 100.0*10/31, w.Percentage(), 1e-9)
	assert.NotEqual(t, 25.0, w.Percentage())
}

func TestThirtySecondScenario(t *testing.T) {
	w := window.New(30 * time.Second)

	// 40 samples spread across 35 simulated seconds; the first 10 land in
	// the opening 5s and age out, leaving 30 samples of which 10 are jank.
	var ts []time.Duration
	for i := 0; i < 10; i++ {
		ts = append(ts, time.Duration(i)*500*time.Millisecond)
	}
	for i := 0; i < 30; i++ {
		ts = append(ts, 5*time.Second+600*time.Millisecond+time.Duration(i)*time.Second)
	}
	for i, d := range ts {
		w.Record(epoch.Add(d), i >= 10 && i%3 == 1)
	}

	require.Equal(t, 30, w.Len())
	assert.Equal(t, 10, w.JankCount())
	assert.InDelta(t, 33.333, w.Percentage(), 0.01)
}

func TestRetainedSamplesStayInsideWindow(t *testing.T) {
	w := window.New(30 * time.Second)
	rng := rand.New(rand.NewSource(7))

	now := epoch
	for i := 0; i < 5000; i++ {
		now = now.Add(time.Duration(rng.Intn(2000)) * time.Millisecond)
		w.Record(now, rng.Intn(4) == 0)

		samples := w.Samples()
		require.NotEmpty(t, samples)
		jank := 0
		for _, s := range samples {
			require.LessOrEqual(t, now.Sub(s.Timestamp), 30*time.Second)
			if s.IsJank {
				jank++
			}
		}
		require.Equal(t, jank, w.JankCount())
	}
}

func TestBoundaryIsInclusive(t *testing.T) {
	w := window.New(30 * time.Second)

	w.Record(epoch, true)
	w.Record(epoch.Add(30*time.Second), false)
	assert.Equal(t, 2, w.Len(), "sample exactly at the window edge is retained")

	w.Record(epoch.Add(30*time.Second+time.Millisecond), false)
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, 0.0, w.Percentage())
}

func TestEvictionCanEmptyToSingleSample(t *testing.T) {
	w := window.New(time.Second)

	w.Record(epoch, true)
	w.Record(epoch.Add(time.Hour), false)

	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 0.0, w.Percentage())
}

func TestUnitInvariance(t *testing.T) {
	// Same sample stream recorded at millisecond and nanosecond resolution
	// and at different base instants yields the same percentage.
	coarse := window.New(30 * time.Second)
	fine := window.New(30 * time.Second)
	shifted := window.New(30 * time.Second)
	other := epoch.Add(1000 * time.Hour)

	for i := 0; i < 200; i++ {
		offset := time.Duration(i)*333*time.Millisecond + 123456*time.Nanosecond
		jank := i%7 == 0
		coarse.Record(epoch.Add(offset.Truncate(time.Millisecond)), jank)
		fine.Record(epoch.Add(offset), jank)
		shifted.Record(other.Add(offset), jank)
	}

	assert.Equal(t, fine.Len(), coarse.Len())
	assert.InDelta(t, fine.Percentage(), coarse.Percentage(), 1e-9)
	assert.InDelta(t, fine.Percentage(), shifted.Percentage(), 1e-9)
}

func TestBackwardsTimestampIsClamped(t *testing.T) {
	w := window.New(30 * time.Second)

	w.Record(epoch.Add(10*time.Second), false)
	w.Record(epoch, true)

	samples := w.Samples()
	require.Len(t, samples, 2)
	assert.Equal(t, samples[0].Timestamp, samples[1].Timestamp)
	assert.Equal(t, 50.0, w.Percentage())
}

func TestGrowAfterWrapPreservesOrder(t *testing.T) {
	w := window.New(50 * time.Second)

	// Steady state at 1/s wraps the ring without growing it.
	now := epoch
	for i := 0; i < 200; i++ {
		now = epoch.Add(time.Duration(i) * time.Second)
		w.Record(now, false)
	}
	// A burst at 10/s then forces growth while head is mid-buffer.
	for j := 0; j < 400; j++ {
		now = now.Add(100 * time.Millisecond)
		w.Record(now, j%2 == 0)
	}

	samples := w.Samples()
	require.Len(t, samples, 411)
	for i := 1; i < len(samples); i++ {
		assert.False(t, samples[i].Timestamp.Before(samples[i-1].Timestamp))
	}
	assert.Equal(t, 200, w.JankCount())
	assert.Equal(t, now, samples[len(samples)-1].Timestamp)
}

func TestReset(t *testing.T) {
	w := window.New(time.Minute)
	w.Record(epoch, true)
	w.Reset()

	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 0, w.JankCount())
	assert.Equal(t, 0.0, w.Percentage())
}
