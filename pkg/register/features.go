package register

import (
	"math"
	"math/rand"
	"sort"

	"skydiff/pkg/smath"
)

// A Descriptor is a 256-bit binary summary of the intensity pattern
// around a keypoint. Compared by Hamming distance.
type Descriptor [4]uint64

// A Keypoint is a repeatably-detectable image location. Ordering among
// keypoints is by detector response descending, ties broken by raster
// scan order, so a given image always yields the same list.
type Keypoint struct {
	X, Y     float64
	Response float64
	Desc     Descriptor
}

// A Detector finds up to maxKeypoints interest points. An image with
// too little structure yields an empty (or short) list, never an
// error; callers treat that as a cannot-align signal.
type Detector interface {
	Detect(g *smath.Grid, maxKeypoints int) []Keypoint
}

// OrientedFast is a FAST-9 segment-test corner detector, ranked by
// Harris response, with an orientation-steered binary descriptor. It
// mirrors what the usual ORB settings do on star fields: the segment
// test fires on star cores as well as corners, and the descriptor
// tolerates the small frame rotations mount repeatability leaves.
type OrientedFast struct {
	// Threshold is the segment-test contrast, as a fraction of the
	// [0,1] working range.
	Threshold float64
	// PatchSize is the descriptor patch diameter.
	PatchSize int
}

func NewDetector(threshold float64, patchSize int) *OrientedFast {
	if patchSize <= 0 {
		patchSize = 31
	}
	return &OrientedFast{Threshold: threshold, PatchSize: patchSize}
}

// The 16 Bresenham circle offsets of radius 3, clockwise from 12
// o'clock.
var fastCircle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

func (d *OrientedFast) Detect(g *smath.Grid, maxKeypoints int) []Keypoint {
	w, h := g.Dx(), g.Dy()
	if w < 8 || h < 8 {
		return nil
	}

	resp := smath.NewGrid(w, h)
	for y := 3; y < h-3; y++ {
		for x := 3; x < w-3; x++ {
			if d.segmentTest(g, x, y) {
				resp.Set(x, y, harrisResponse(g, x, y))
			}
		}
	}

	kps := []Keypoint{}
	for y := 3; y < h-3; y++ {
		for x := 3; x < w-3; x++ {
			r := resp.Get(x, y)
			if r <= 0 || !isLocalMax(resp, x, y) {
				continue
			}
			kps = append(kps, Keypoint{X: float64(x), Y: float64(y), Response: r})
		}
	}

	sort.SliceStable(kps, func(i, j int) bool {
		if kps[i].Response != kps[j].Response {
			return kps[i].Response > kps[j].Response
		}
		if kps[i].Y != kps[j].Y {
			return kps[i].Y < kps[j].Y
		}
		return kps[i].X < kps[j].X
	})
	if maxKeypoints > 0 && len(kps) > maxKeypoints {
		kps = kps[:maxKeypoints]
	}

	for i := range kps {
		theta := patchOrientation(g, int(kps[i].X), int(kps[i].Y), d.PatchSize/2)
		kps[i].Desc = d.describe(g, kps[i].X, kps[i].Y, theta)
	}
	return kps
}

// segmentTest is FAST-9: at least 9 contiguous circle pixels all
// brighter than center+t, or all darker than center-t.
func (d *OrientedFast) segmentTest(g *smath.Grid, x, y int) bool {
	c := g.Get(x, y)
	hi := c + d.Threshold
	lo := c - d.Threshold

	var brighter, darker uint16
	for i, off := range fastCircle {
		v := g.Get(x+off[0], y+off[1])
		if v > hi {
			brighter |= 1 << i
		} else if v < lo {
			darker |= 1 << i
		}
	}
	return hasContiguousArc(brighter, 9) || hasContiguousArc(darker, 9)
}

func hasContiguousArc(bits uint16, n int) bool {
	if bits == 0 {
		return false
	}
	// Doubling the ring linearizes the wrap-around runs.
	ring := uint32(bits) | uint32(bits)<<16
	run := 0
	for i := 0; i < 32; i++ {
		if ring&(1<<i) != 0 {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// harrisResponse scores a corner candidate for ranking: det(M) -
// 0.04*trace(M)^2 over a 7x7 window of central-difference gradients.
func harrisResponse(g *smath.Grid, cx, cy int) float64 {
	w, h := g.Dx(), g.Dy()
	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if x > w-1 {
			x = w - 1
		}
		if y < 0 {
			y = 0
		}
		if y > h-1 {
			y = h - 1
		}
		return g.Get(x, y)
	}

	var sxx, syy, sxy float64
	for dy := -3; dy <= 3; dy++ {
		for dx := -3; dx <= 3; dx++ {
			x, y := cx+dx, cy+dy
			ix := (at(x+1, y) - at(x-1, y)) / 2
			iy := (at(x, y+1) - at(x, y-1)) / 2
			sxx += ix * ix
			syy += iy * iy
			sxy += ix * iy
		}
	}
	return sxx*syy - sxy*sxy - 0.04*(sxx+syy)*(sxx+syy)
}

func isLocalMax(resp *smath.Grid, x, y int) bool {
	r := resp.Get(x, y)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := resp.Get(x+dx, y+dy)
			// Strict on earlier raster neighbors, lax on later ones, so
			// exactly one of a plateau survives.
			if n > r || (n == r && (dy < 0 || (dy == 0 && dx < 0))) {
				return false
			}
		}
	}
	return true
}

// patchOrientation is the intensity-centroid angle over a disc of the
// given radius: atan2 of the first-order patch moments.
func patchOrientation(g *smath.Grid, cx, cy, radius int) float64 {
	w, h := g.Dx(), g.Dy()
	var m01, m10 float64
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			x, y := cx+dx, cy+dy
			if x < 0 || x >= w || y < 0 || y >= h {
				continue
			}
			v := g.Get(x, y)
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return math.Atan2(m01, m10)
}

// The descriptor's 256 sample-point pairs, drawn once from a Gaussian
// over the patch and fixed forever (every build must produce the same
// pattern or descriptors stop being comparable across processes).
var briefPattern = makeBriefPattern()

func makeBriefPattern() [256][4]float64 {
	rng := rand.New(rand.NewSource(0x5EED))
	var pat [256][4]float64
	const radius = 15.0
	draw := func() float64 {
		for {
			v := rng.NormFloat64() * radius / 2.5
			if v >= -radius && v <= radius {
				return v
			}
		}
	}
	for i := range pat {
		pat[i] = [4]float64{draw(), draw(), draw(), draw()}
	}
	return pat
}

func (d *OrientedFast) describe(g *smath.Grid, x, y, theta float64) Descriptor {
	w, h := g.Dx(), g.Dy()
	cos, sin := math.Cos(theta), math.Sin(theta)
	scale := float64(d.PatchSize) / 31.0

	sample := func(dx, dy float64) float64 {
		// Steer the pattern by the patch orientation.
		sx := x + scale*(cos*dx-sin*dy)
		sy := y + scale*(sin*dx+cos*dy)
		ix, iy := int(math.Round(sx)), int(math.Round(sy))
		if ix < 0 {
			ix = 0
		}
		if ix > w-1 {
			ix = w - 1
		}
		if iy < 0 {
			iy = 0
		}
		if iy > h-1 {
			iy = h - 1
		}
		return g.Get(ix, iy)
	}

	var desc Descriptor
	for i, p := range briefPattern {
		if sample(p[0], p[1]) < sample(p[2], p[3]) {
			desc[i/64] |= 1 << (i % 64)
		}
	}
	return desc
}
