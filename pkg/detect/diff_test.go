package detect

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"skydiff/pkg/register"
	"skydiff/pkg/smath"
)

func bumpGrid(w, h int, cx, cy, amp, sigma float64) *smath.Grid {
	g := smath.NewGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx := float64(x) - cx
			fy := float64(y) - cy
			g.Set(x, y, amp*math.Exp(-(fx*fx+fy*fy)/(2*sigma*sigma)))
		}
	}
	return g
}

func TestDifferenceIdenticalFramesIsQuiet(t *testing.T) {
	a := bumpGrid(50, 50, 25, 25, 0.8, 2.0)

	for _, mode := range []ThresholdMode{ThresholdFixed, ThresholdSigma} {
		diff, mask, err := Difference(a, a, DiffOptions{
			BlurSigma: 1.0, Mode: mode, Threshold: 0.1, SigmaK: 3.0,
		})
		require.NoError(t, err)
		require.Equal(t, 0, mask.CountTrue(), "mode %s", mode)

		min, max := diff.MinMax()
		require.Equal(t, 0.0, min)
		require.Equal(t, 0.0, max)
	}
}

func TestDifferenceFindsInjectedBump(t *testing.T) {
	a := smath.NewGrid(50, 50)
	b := bumpGrid(50, 50, 25, 25, 0.8, 1.5)

	diff, mask, err := Difference(a, b, DiffOptions{BlurSigma: 1.0, Mode: ThresholdFixed, Threshold: 0.1})
	require.NoError(t, err)

	require.True(t, mask.Get(25, 25))
	require.False(t, mask.Get(5, 5))
	require.InDelta(t, 0.8, diff.Get(25, 25), 1e-9)
}

func TestDifferenceSigmaMode(t *testing.T) {
	a := smath.NewGrid(60, 60)
	b := bumpGrid(60, 60, 30, 30, 0.9, 1.5)

	// A lone bright bump towers over mean + 3*stddev of a mostly-empty
	// difference map.
	_, mask, err := Difference(a, b, DiffOptions{BlurSigma: 1.0, Mode: ThresholdSigma, SigmaK: 3.0})
	require.NoError(t, err)
	require.True(t, mask.Get(30, 30))
	require.Greater(t, mask.CountTrue(), 0)
	require.Less(t, mask.CountTrue(), 200)
}

func TestDifferencePercentileMode(t *testing.T) {
	a := smath.NewGrid(10, 10)
	b := smath.NewGrid(10, 10)
	for i := 0; i < 100; i++ {
		b.Set(i%10, i/10, float64(i)/100.0)
	}

	_, mask, err := Difference(a, b, DiffOptions{BlurSigma: 0, Mode: ThresholdPercentile, Percentile: 90})
	require.NoError(t, err)

	// The cutoff lands at the 90th quantile give or take histogram
	// resolution.
	require.GreaterOrEqual(t, mask.CountTrue(), 8)
	require.LessOrEqual(t, mask.CountTrue(), 12)
}

func TestDifferenceOverlapExcludesFillBorder(t *testing.T) {
	// Simulate a warped frame: the left strip never sampled the source
	// and holds the fill constant 0, against a reference of 0.5. Without
	// the overlap mask that strip is a huge "difference".
	a := uniformDiff(50, 50, 0.5)
	b := uniformDiff(50, 50, 0.5)
	overlap := smath.NewMask(50, 50)
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			if x < 6 {
				b.Set(x, y, 0)
			} else {
				overlap.Set(x, y, true)
			}
		}
	}

	diff, mask, err := Difference(a, b, DiffOptions{
		BlurSigma: 1.0, Mode: ThresholdFixed, Threshold: 0.1, Overlap: overlap,
	})
	require.NoError(t, err)
	require.Equal(t, 0, mask.CountTrue())

	// The border difference is zeroed, not just unmasked.
	min, max := diff.MinMax()
	require.Equal(t, 0.0, min)
	require.Equal(t, 0.0, max)
}

func TestDifferenceOverlapConfinesStatistics(t *testing.T) {
	// Sigma mode with a fill border: frames agree inside the overlap
	// and disagree wildly outside it. Mean and stddev must come from
	// overlap pixels only, so a genuine bump inside still stands out
	// and the border itself stays silent.
	a := uniformDiff(60, 60, 0.5)
	b := uniformDiff(60, 60, 0.5)
	overlap := smath.NewMask(60, 60)
	for y := 0; y < 60; y++ {
		for x := 0; x < 60; x++ {
			if x < 8 {
				b.Set(x, y, 0)
			} else {
				overlap.Set(x, y, true)
			}
		}
	}
	b.Set(30, 30, 0.9) // the one real change

	_, mask, err := Difference(a, b, DiffOptions{
		BlurSigma: 0, Mode: ThresholdSigma, SigmaK: 3.0, Overlap: overlap,
	})
	require.NoError(t, err)
	require.True(t, mask.Get(30, 30))
	require.Equal(t, 1, mask.CountTrue())
}

func TestDifferenceOverlapShapeMismatch(t *testing.T) {
	_, _, err := Difference(smath.NewGrid(10, 10), smath.NewGrid(10, 10), DiffOptions{
		Mode: ThresholdFixed, Overlap: smath.NewMask(12, 10),
	})
	require.ErrorIs(t, err, register.ErrInvalidInput)
}

func TestDifferenceShapeMismatch(t *testing.T) {
	_, _, err := Difference(smath.NewGrid(10, 10), smath.NewGrid(12, 10), DiffOptions{Mode: ThresholdFixed})
	require.ErrorIs(t, err, register.ErrInvalidInput)
}

func TestDifferenceUnknownMode(t *testing.T) {
	_, _, err := Difference(smath.NewGrid(4, 4), smath.NewGrid(4, 4), DiffOptions{Mode: "banana"})
	require.Error(t, err)
}
