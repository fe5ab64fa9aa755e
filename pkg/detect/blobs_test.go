package detect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"skydiff/pkg/smath"
)

func maskWithRect(w, h, x0, y0, rw, rh int) *smath.Mask {
	m := smath.NewMask(w, h)
	for y := y0; y < y0+rh; y++ {
		for x := x0; x < x0+rw; x++ {
			m.Set(x, y, true)
		}
	}
	return m
}

func uniformDiff(w, h int, v float64) *smath.Grid {
	g := smath.NewGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, v)
		}
	}
	return g
}

func TestExtractSingleBlob(t *testing.T) {
	diff := bumpGrid(40, 40, 20, 20, 0.8, 1.5)
	_, mask, err := Difference(smath.NewGrid(40, 40), diff, DiffOptions{BlurSigma: 1.0, Mode: ThresholdFixed, Threshold: 0.1})
	require.NoError(t, err)

	spots := ExtractBlobs(diff, mask, BlobOptions{MinArea: 5, MaxArea: 500})
	require.Len(t, spots, 1)

	s := spots[0]
	require.Equal(t, 1, s.ID)
	require.InDelta(t, 20.0, s.CentroidX, 0.5)
	require.InDelta(t, 20.0, s.CentroidY, 0.5)
	require.InDelta(t, 0.8, s.Peak, 1e-9)
	require.GreaterOrEqual(t, s.Area, 5)
	require.True(t, s.Bounds.Min.X <= 20 && s.Bounds.Max.X > 20)
}

func TestExtractEmptyMask(t *testing.T) {
	spots := ExtractBlobs(uniformDiff(20, 20, 0.5), smath.NewMask(20, 20), BlobOptions{MinArea: 1})
	require.Empty(t, spots)
}

func TestExtractIdempotent(t *testing.T) {
	diff := bumpGrid(40, 40, 12, 28, 0.7, 2.0)
	mask := maskWithRect(40, 40, 10, 26, 5, 5)

	first := ExtractBlobs(diff, mask, BlobOptions{MinArea: 1, MaxArea: 100})
	second := ExtractBlobs(diff, mask, BlobOptions{MinArea: 1, MaxArea: 100})
	require.Equal(t, first, second)
}

func TestExtractOrderedByAreaDesc(t *testing.T) {
	mask := maskWithRect(40, 40, 2, 2, 2, 2) // area 4
	for y := 20; y < 23; y++ {               // area 9
		for x := 20; x < 23; x++ {
			mask.Set(x, y, true)
		}
	}

	spots := ExtractBlobs(uniformDiff(40, 40, 1.0), mask, BlobOptions{MinArea: 1})
	require.Len(t, spots, 2)
	require.Equal(t, 9, spots[0].Area)
	require.Equal(t, 4, spots[1].Area)
	require.Equal(t, 1, spots[0].ID)
	require.Equal(t, 2, spots[1].ID)
}

func TestExtractAreaFilter(t *testing.T) {
	mask := maskWithRect(30, 30, 5, 5, 1, 1)     // area 1
	mask2 := maskWithRect(30, 30, 10, 10, 5, 5)  // area 25
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			if mask2.Get(x, y) {
				mask.Set(x, y, true)
			}
		}
	}

	spots := ExtractBlobs(uniformDiff(30, 30, 1.0), mask, BlobOptions{MinArea: 2, MaxArea: 20})
	require.Empty(t, spots) // 1 is below min, 25 above max
}

func TestExtractOverlapRejectsBorderSpot(t *testing.T) {
	// Two identical components; the overlap mask covers one centroid
	// and not the other, so only the covered one is reported.
	mask := maskWithRect(40, 40, 2, 10, 3, 3)
	for y := 20; y < 23; y++ {
		for x := 20; x < 23; x++ {
			mask.Set(x, y, true)
		}
	}
	overlap := maskWithRect(40, 40, 10, 0, 30, 40) // excludes x < 10

	spots := ExtractBlobs(uniformDiff(40, 40, 1.0), mask, BlobOptions{MinArea: 1, Overlap: overlap})
	require.Len(t, spots, 1)
	require.InDelta(t, 21.0, spots[0].CentroidX, 0.1)
}

func TestExtractConnectivity(t *testing.T) {
	// Two pixels touching only diagonally.
	m := smath.NewMask(10, 10)
	m.Set(4, 4, true)
	m.Set(5, 5, true)
	diff := uniformDiff(10, 10, 1.0)

	eight := ExtractBlobs(diff, m, BlobOptions{MinArea: 1})
	require.Len(t, eight, 1)
	require.Equal(t, 2, eight[0].Area)

	four := ExtractBlobs(diff, m, BlobOptions{MinArea: 1, FourConnected: true})
	require.Len(t, four, 2)
}
