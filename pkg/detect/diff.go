// Package detect turns a pair of co-registered frames into a
// difference map, a significance mask, and a list of bright spots.
package detect

import (
	"fmt"
	"math"

	"github.com/codahale/hdrhistogram"

	"skydiff/pkg/register"
	"skydiff/pkg/smath"
)

// ThresholdMode selects how the significance cutoff is derived. The
// source tooling's presets disagree on the "right" adaptive rule, so
// all of them are configuration, none canonical.
type ThresholdMode string

const (
	// ThresholdFixed: the configured value, as a fraction of the [0,1]
	// working range.
	ThresholdFixed ThresholdMode = "fixed"
	// ThresholdSigma: mean + K*stddev of the smoothed difference map.
	ThresholdSigma ThresholdMode = "sigma"
	// ThresholdPercentile: a quantile of the smoothed difference map.
	ThresholdPercentile ThresholdMode = "percentile"
)

type DiffOptions struct {
	BlurSigma  float64 // smoothing applied to the difference before thresholding
	Mode       ThresholdMode
	Threshold  float64 // ThresholdFixed cutoff
	SigmaK     float64 // ThresholdSigma multiplier
	Percentile float64 // ThresholdPercentile quantile, 0..100

	// Overlap restricts the comparison to where both frames have real
	// pixels. The warper fills anything outside the source with a
	// constant, and |frame - constant| along that border would clear
	// any cutoff; the difference is zeroed and the threshold statistics
	// computed over overlap pixels only. Nil means the whole frame.
	Overlap *smath.Mask
}

// The histogram scale for quantile lookups: [0,1] differences mapped
// onto integer counts.
const histScale = 1_000_000

// Difference computes the per-pixel absolute difference of two
// co-registered normalized frames and derives the significance mask
// from a Gaussian-smoothed copy. The returned map holds the raw
// (unsmoothed) differences, which is what blob weighting wants. Both
// inputs are [0,1] stretched the same way, so a fixed cutoff keeps its
// "fraction of the dynamic range" meaning across exposures.
func Difference(a, b *smath.Grid, opt DiffOptions) (*smath.Grid, *smath.Mask, error) {
	if a == nil || b == nil || a.Dx() != b.Dx() || a.Dy() != b.Dy() {
		return nil, nil, fmt.Errorf("%w: difference needs same-shape frames", register.ErrInvalidInput)
	}
	if opt.Overlap != nil && (opt.Overlap.Dx() != a.Dx() || opt.Overlap.Dy() != a.Dy()) {
		return nil, nil, fmt.Errorf("%w: overlap mask shape differs from frames", register.ErrInvalidInput)
	}

	diff := a.AbsDiff(b)
	if opt.Overlap != nil {
		for y := 0; y < diff.Dy(); y++ {
			for x := 0; x < diff.Dx(); x++ {
				if !opt.Overlap.Get(x, y) {
					diff.Set(x, y, 0)
				}
			}
		}
	}
	smoothed := diff.GaussianBlur(opt.BlurSigma)

	cutoff, err := cutoffFor(smoothed, opt)
	if err != nil {
		return nil, nil, err
	}

	mask := smath.NewMask(diff.Dx(), diff.Dy())
	for y := 0; y < diff.Dy(); y++ {
		for x := 0; x < diff.Dx(); x++ {
			in := opt.Overlap == nil || opt.Overlap.Get(x, y)
			mask.Set(x, y, in && smoothed.Get(x, y) > cutoff)
		}
	}
	return diff, mask, nil
}

func cutoffFor(smoothed *smath.Grid, opt DiffOptions) (float64, error) {
	switch opt.Mode {
	case ThresholdFixed, "":
		return opt.Threshold, nil

	case ThresholdSigma:
		mean, std := overlapMeanStdDev(smoothed, opt.Overlap)
		return mean + opt.SigmaK*std, nil

	case ThresholdPercentile:
		h := hdrhistogram.New(0, histScale, 3)
		for y := 0; y < smoothed.Dy(); y++ {
			for x := 0; x < smoothed.Dx(); x++ {
				if opt.Overlap != nil && !opt.Overlap.Get(x, y) {
					continue
				}
				v := smath.Clamp01(smoothed.Get(x, y))
				if err := h.RecordValue(int64(v * histScale)); err != nil {
					return 0, fmt.Errorf("histogram record: %w", err)
				}
			}
		}
		return float64(h.ValueAtQuantile(opt.Percentile)) / histScale, nil
	}
	return 0, fmt.Errorf("no threshold mode named '%s'", opt.Mode)
}

// overlapMeanStdDev is MeanStdDev confined to the overlap region, so
// the zeroed border can't drag the statistics toward zero and inflate
// the effective cutoff margin.
func overlapMeanStdDev(g *smath.Grid, overlap *smath.Mask) (float64, float64) {
	if overlap == nil {
		return g.MeanStdDev()
	}

	var sum, sumSq float64
	n := 0
	for y := 0; y < g.Dy(); y++ {
		for x := 0; x < g.Dx(); x++ {
			if !overlap.Get(x, y) {
				continue
			}
			v := g.Get(x, y)
			sum += v
			sumSq += v * v
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}
