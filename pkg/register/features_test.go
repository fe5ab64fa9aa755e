package register

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"skydiff/pkg/smath"
)

func addStar(g *smath.Grid, cx, cy, amp, sigma float64) {
	r := int(math.Ceil(4 * sigma))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			x, y := int(cx)+dx, int(cy)+dy
			if x < 0 || x >= g.Dx() || y < 0 || y >= g.Dy() {
				continue
			}
			fx := float64(x) - cx
			fy := float64(y) - cy
			g.Set(x, y, g.Get(x, y)+amp*math.Exp(-(fx*fx+fy*fy)/(2*sigma*sigma)))
		}
	}
}

func TestDetectFindsStar(t *testing.T) {
	g := smath.NewGrid(40, 40)
	addStar(g, 20, 20, 1.0, 1.5)

	kps := NewDetector(0.08, 31).Detect(g, 100)
	require.NotEmpty(t, kps)

	best := kps[0]
	require.InDelta(t, 20.0, best.X, 2.0)
	require.InDelta(t, 20.0, best.Y, 2.0)
}

func TestDetectUniformImageIsEmpty(t *testing.T) {
	g := smath.NewGrid(64, 64)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			g.Set(x, y, 0.5)
		}
	}
	require.Empty(t, NewDetector(0.08, 31).Detect(g, 100))
}

func TestDetectRampIsEmpty(t *testing.T) {
	// A smooth gradient has no segment-test contrast at the default
	// threshold: no structure, no keypoints, no error.
	g := smath.NewGrid(200, 200)
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			g.Set(x, y, float64(x+y)/400.0)
		}
	}
	require.Empty(t, NewDetector(0.08, 31).Detect(g, 100))
}

func TestDetectDeterministic(t *testing.T) {
	g := smath.NewGrid(80, 80)
	addStar(g, 20, 25, 0.9, 1.2)
	addStar(g, 55, 30, 0.7, 1.6)
	addStar(g, 40, 60, 1.0, 1.4)

	d := NewDetector(0.08, 31)
	require.Equal(t, d.Detect(g, 50), d.Detect(g, 50))
}

func TestDetectHonorsMaxKeypoints(t *testing.T) {
	g := smath.NewGrid(120, 120)
	for i := 0; i < 9; i++ {
		addStar(g, float64(20+30*(i%3)), float64(20+30*(i/3)), 0.5+0.05*float64(i), 1.3)
	}

	kps := NewDetector(0.08, 31).Detect(g, 4)
	require.Len(t, kps, 4)

	// Ranking is by response, descending.
	for i := 1; i < len(kps); i++ {
		require.GreaterOrEqual(t, kps[i-1].Response, kps[i].Response)
	}
}
