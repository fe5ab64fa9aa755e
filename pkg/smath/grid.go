package smath

import (
	"fmt"
	"math"
	"sort"
)

// A Grid is a single-channel raster of float64 pixels, the working
// representation for every pipeline stage. Stages never mutate a Grid
// they were handed; they build a new one.
type Grid struct {
	stride int
	values []float64
}

func NewGrid(w, h int) *Grid {
	return &Grid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewGridFrom wraps a row-major slice of length w*h. The slice is
// copied, so the caller keeps ownership of its buffer.
func NewGridFrom(w, h int, values []float64) (*Grid, error) {
	if w <= 0 || h <= 0 || len(values) != w*h {
		return nil, fmt.Errorf("grid %dx%d needs %d values, got %d", w, h, w*h, len(values))
	}
	g := NewGrid(w, h)
	copy(g.values, values)
	return g, nil
}

func (g *Grid) NewFromThis() *Grid          { return NewGrid(g.Dx(), g.Dy()) }
func (g *Grid) Set(x, y int, v float64)     { g.values[g.stride*y+x] = v }
func (g *Grid) Get(x, y int) float64        { return g.values[g.stride*y+x] }
func (g *Grid) Dx() int                     { return g.stride }
func (g *Grid) Dy() int                     { return len(g.values) / g.stride }
func (g *Grid) Len() int                    { return len(g.values) }

func (g1 *Grid) Copy() *Grid {
	g2 := Grid{stride: g1.stride, values: make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

// SubGrid copies out the w x h window whose top-left corner is (x0,y0).
// The window must lie fully inside the grid.
func (g *Grid) SubGrid(x0, y0, w, h int) (*Grid, error) {
	if x0 < 0 || y0 < 0 || x0+w > g.Dx() || y0+h > g.Dy() || w <= 0 || h <= 0 {
		return nil, fmt.Errorf("subgrid %dx%d@(%d,%d) outside %dx%d", w, h, x0, y0, g.Dx(), g.Dy())
	}
	out := NewGrid(w, h)
	for y := 0; y < h; y++ {
		copy(out.values[y*w:(y+1)*w], g.values[(y0+y)*g.stride+x0:(y0+y)*g.stride+x0+w])
	}
	return out, nil
}

func (g *Grid) MinMax() (float64, float64) {
	min := math.MaxFloat64
	max := -1.0 * min
	for i := 0; i < len(g.values); i++ {
		if g.values[i] > max {
			max = g.values[i]
		}
		if g.values[i] < min {
			min = g.values[i]
		}
	}
	return min, max
}

func (g *Grid) Mean() float64 {
	tot := 0.0
	for i := 0; i < len(g.values); i++ {
		tot += g.values[i]
	}
	return tot / float64(len(g.values))
}

func (g *Grid) MeanStdDev() (float64, float64) {
	mean := g.Mean()
	v := 0.0
	for i := 0; i < len(g.values); i++ {
		d := g.values[i] - mean
		v += d * d
	}
	return mean, math.Sqrt(v / float64(len(g.values)))
}

// Percentile returns the value at percentile p (0..100), taken over
// every pixel, non-finite values excluded.
func (g *Grid) Percentile(p float64) float64 {
	vals := make([]float64, 0, len(g.values))
	for i := 0; i < len(g.values); i++ {
		if !math.IsNaN(g.values[i]) && !math.IsInf(g.values[i], 0) {
			vals = append(vals, g.values[i])
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)

	i := int(p / 100.0 * float64(len(vals)))
	if i < 0 {
		i = 0
	}
	if i >= len(vals) {
		i = len(vals) - 1
	}
	return vals[i]
}

// CountFinite says how many pixels hold a usable value.
func (g *Grid) CountFinite() int {
	n := 0
	for i := 0; i < len(g.values); i++ {
		if !math.IsNaN(g.values[i]) && !math.IsInf(g.values[i], 0) {
			n++
		}
	}
	return n
}

// BilinearAt samples the grid at a fractional location. The second
// return is false when (x,y) falls outside the grid.
func (g *Grid) BilinearAt(x, y float64) (float64, bool) {
	if x < 0 || y < 0 || x > float64(g.Dx()-1) || y > float64(g.Dy()-1) {
		return 0, false
	}
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1, y1 := x0+1, y0+1
	if x1 > g.Dx()-1 {
		x1 = x0
	}
	if y1 > g.Dy()-1 {
		y1 = y0
	}
	fx := x - float64(x0)
	fy := y - float64(y0)

	top := g.Get(x0, y0)*(1-fx) + g.Get(x1, y0)*fx
	bot := g.Get(x0, y1)*(1-fx) + g.Get(x1, y1)*fx
	return top*(1-fy) + bot*fy, true
}

// GaussianBlur convolves with a separable Gaussian kernel of the given
// sigma, kernel radius 3*sigma. Edges are handled by clamping sample
// coordinates. sigma <= 0 returns an unmodified copy.
func (g1 *Grid) GaussianBlur(sigma float64) *Grid {
	if sigma <= 0 {
		return g1.Copy()
	}
	kernel := gaussianKernel(sigma)
	r := len(kernel) / 2
	width, height := g1.Dx(), g1.Dy()

	clamp := func(v, hi int) int {
		if v < 0 {
			return 0
		}
		if v > hi {
			return hi
		}
		return v
	}

	//--- X pass, build up in T
	T := g1.NewFromThis()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			t := 0.0
			for k := -r; k <= r; k++ {
				t += kernel[k+r] * g1.Get(clamp(x+k, width-1), y)
			}
			T.Set(x, y, t)
		}
	}

	//--- Y pass, read from T and generate output
	g2 := g1.NewFromThis()
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			t := 0.0
			for k := -r; k <= r; k++ {
				t += kernel[k+r] * T.Get(x, clamp(y+k, height-1))
			}
			g2.Set(x, y, t)
		}
	}

	return g2
}

func gaussianKernel(sigma float64) []float64 {
	r := int(math.Ceil(3 * sigma))
	if r < 1 {
		r = 1
	}
	k := make([]float64, 2*r+1)
	sum := 0.0
	for i := -r; i <= r; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+r] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// AbsDiff returns |g1-g2| per pixel. Panics on shape mismatch; callers
// are expected to have checked (the aligner guarantees it).
func (g1 *Grid) AbsDiff(g2 *Grid) *Grid {
	if g1.Dx() != g2.Dx() || g1.Dy() != g2.Dy() {
		panic(fmt.Sprintf("absdiff shape mismatch %dx%d vs %dx%d", g1.Dx(), g1.Dy(), g2.Dx(), g2.Dy()))
	}
	out := g1.NewFromThis()
	for i := 0; i < len(g1.values); i++ {
		out.values[i] = math.Abs(g1.values[i] - g2.values[i])
	}
	return out
}

func (g *Grid) Stats() string {
	min, max := g.MinMax()
	return fmt.Sprintf("grid[%dx%d, vals{%f,%f}]", g.Dx(), g.Dy(), min, max)
}
