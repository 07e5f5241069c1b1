package monitor

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInvalidConstruction(t *testing.T) {
	_, err := New(0, 0, NoInterpolation())
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = New(5, 5, NoInterpolation())
	assert.ErrorIs(t, err, ErrInvalidPortion)

	_, err = New(5, 6, NoInterpolation())
	assert.ErrorIs(t, err, ErrInvalidPortion)

	_, err = New(5, 2, Interpolation{Q: 1.5, Alpha: 0.5, Beta: 0.5})
	assert.ErrorIs(t, err, ErrInvalidInterpolation)
}

// TestMonitor_RollingMedian is the concrete scenario of spec.md §8 (E1): a
// window of 5 tracking rank 2 (the median of up to 5 live samples) over a
// fixed input sequence must reproduce an exact, previously-verified output
// sequence.
func TestMonitor_RollingMedian(t *testing.T) {
	m, err := New(5, 2, NoInterpolation())
	require.NoError(t, err)

	inputs := []float64{4.0, 2.0, 3.0, 2.5, 4.5, 3.5, 2.7, 3.9, 3.8, 3.1}
	want := []float64{4.0, 2.0, 3.0, 2.5, 3.0, 3.0, 3.0, 3.5, 3.5, 3.5}

	for i, x := range inputs {
		got := m.Update(x)
		assert.InDelta(t, want[i], got, 1e-9, "step %d", i)
		assert.True(t, m.Verify(), "step %d", i)
	}
}

// TestMonitor_NaNAdvancesWindowWithoutInsertion is spec.md §8 (E2): a NaN
// input advances the window (a live sample ages out on schedule) but
// contributes no new sample of its own, and the report for that step is
// whatever the surviving structure already holds.
func TestMonitor_NaNAdvancesWindowWithoutInsertion(t *testing.T) {
	m, err := New(3, 1, NoInterpolation())
	require.NoError(t, err)

	got := m.Update(1.0)
	assert.Equal(t, 1.0, got)
	got = m.Update(2.0)
	assert.False(t, math.IsNaN(got))
	got = m.Update(math.NaN())
	assert.False(t, math.IsNaN(got), "NaN input must not itself become the reported value")
	assert.True(t, m.Verify())
}

func TestMonitor_BootstrapWaitsForFirstNonNaNSample(t *testing.T) {
	m, err := New(3, 1, NoInterpolation())
	require.NoError(t, err)

	got := m.Update(math.NaN())
	assert.True(t, math.IsNaN(got))
	assert.Equal(t, uint(0), m.Count())

	got = m.Update(5.0)
	assert.Equal(t, 5.0, got)
}

func TestMonitor_WindowOfOneTracksCurrentSample(t *testing.T) {
	m, err := New(1, 0, NoInterpolation())
	require.NoError(t, err)

	for _, x := range []float64{1.0, 9.0, -4.0, 2.5} {
		assert.Equal(t, x, m.Update(x))
		assert.True(t, m.Verify())
	}
}

// TestMonitor_StressExactMedianAgainstSortedWindow is spec.md §8 (E4): for
// W in {3, 31, 3001} over 10^4 random uniform inputs, the monitor's output
// must equal the sorted sliding window's median at every step, and Verify
// must hold at every step.
func TestMonitor_StressExactMedianAgainstSortedWindow(t *testing.T) {
	for _, window := range []uint{3, 31, 3001} {
		window := window
		t.Run("", func(t *testing.T) {
			portion := window / 2
			m, err := New(window, portion, NoInterpolation())
			require.NoError(t, err)

			seed := uint64(1)
			next := func() float64 {
				seed = seed*6364136223846793005 + 1442695040888963407
				return float64(seed>>40) / float64(1<<24)
			}

			var history []float64
			for i := 0; i < 10000; i++ {
				x := next()
				got := m.Update(x)
				require.True(t, m.Verify(), "window %d step %d", window, i)

				history = append(history, x)
				if uint(len(history)) > window {
					history = history[len(history)-int(window):]
				}
				sorted := append([]float64(nil), history...)
				sort.Float64s(sorted)
				// The rank tracked scales with how much of the window has
				// filled so far, exactly like the monitor's own rebalance
				// target: floor(portion * live_count / window).
				target := portion * uint(len(history)) / window
				want := sorted[target]

				require.InDelta(t, want, got, 1e-9, "window %d step %d", window, i)
			}
		})
	}
}

// TestMonitor_InterpolationMatchesPivotAtExactRank is spec.md §8 (E5): when
// the caller's portion and interpolation target agree exactly (gamma == 0),
// interpolation must reproduce the same value plain pivot reporting would.
func TestMonitor_InterpolationMatchesPivotAtExactRank(t *testing.T) {
	const window, portion = 5, 2
	plain, err := New(window, portion, NoInterpolation())
	require.NoError(t, err)

	// q chosen so target = portion+1 exactly (gamma == 0): with alpha=beta=0,
	// target = q*(window+1).
	q := float64(portion+1) / float64(window+1)
	interpolated, err := New(window, portion, Interpolation{Q: q, Alpha: 0, Beta: 0})
	require.NoError(t, err)

	inputs := []float64{4.0, 2.0, 3.0, 2.5, 4.5, 3.5, 2.7}
	for _, x := range inputs {
		want := plain.Update(x)
		got := interpolated.Update(x)
		assert.InDelta(t, want, got, 1e-9)
	}
}

// TestMonitor_InterpolationMiscalibratedReturnsNaN is spec.md §8 (E6-style
// construction edge case applied at report time): a portion and
// interpolation that disagree produce NaN forever, never a panic.
func TestMonitor_InterpolationMiscalibratedReturnsNaN(t *testing.T) {
	m, err := New(10, 0, Interpolation{Q: 0.9, Alpha: 0, Beta: 0})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		got := m.Update(float64(i))
		assert.True(t, math.IsNaN(got))
	}
}

// TestInterpolation_PortionForBuildsACalibratedMonitor exercises PortionFor
// as intended: deriving the portion a caller should construct a monitor
// with so an interpolation's target falls in {k, k-1}, rather than picking
// one by hand and risking the NaN-forever miscalibration above.
func TestInterpolation_PortionForBuildsACalibratedMonitor(t *testing.T) {
	const window = 10
	interp := Interpolation{Q: 0.9, Alpha: 0, Beta: 0}

	portion := interp.PortionFor(window)
	m, err := New(window, portion, interp)
	require.NoError(t, err)

	var sawNonNaN bool
	for i := 0; i < 30; i++ {
		if !math.IsNaN(m.Update(float64(i))) {
			sawNonNaN = true
		}
	}
	assert.True(t, sawNonNaN, "a portion derived from PortionFor must actually calibrate with its interpolation")
}
