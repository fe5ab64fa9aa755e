package pipeline

import (
	"fmt"
	"log"
	"math"
	"time"

	"skydiff/pkg/detect"
	"skydiff/pkg/register"
	"skydiff/pkg/smath"
)

// A Result is everything one pair produces: the fitted transform
// summary, the difference map and mask, and the ordered bright-spot
// list, plus the diagnostics a human needs to judge the run.
type Result struct {
	Summary    register.Summary
	FeaturesA  int
	FeaturesB  int
	MatchStats register.MatchStats

	KeypointsA []register.Keypoint
	KeypointsB []register.Keypoint
	Matches    []register.Match

	RefImage *register.Image // preprocessed frame A
	CmpImage *register.Image // preprocessed frame B, pre-warp
	Aligned  *smath.Grid     // frame B resampled into A's grid
	Overlap  *smath.Mask     // where Aligned holds real source pixels
	Diff     *smath.Grid
	Mask     *smath.Mask
	Spots    []detect.BrightSpot

	Elapsed time.Duration
}

// Run takes two raw frames of the same sky field and reports what
// changed between them. Synchronous; a run either completes or fails.
// Failures are the expected conditions in the register error taxonomy,
// discriminated with errors.Is.
func Run(cfg Config, rawA, rawB *smath.Grid) (*Result, error) {
	started := time.Now()

	kind, err := register.ParseKind(cfg.Method)
	if err != nil {
		return nil, err
	}

	imgA, err := register.Preprocess(rawA, cfg.preprocessOptions())
	if err != nil {
		return nil, fmt.Errorf("preprocess frame A: %w", err)
	}
	imgB, err := register.Preprocess(rawB, cfg.preprocessOptions())
	if err != nil {
		return nil, fmt.Errorf("preprocess frame B: %w", err)
	}

	det := register.NewDetector(cfg.FastThreshold, cfg.PatchSize)
	kpA := det.Detect(imgA.Grid, cfg.MaxKeypoints)
	kpB := det.Detect(imgB.Grid, cfg.MaxKeypoints)
	if cfg.Verbosity > 0 {
		log.Printf("features: A=%d B=%d\n", len(kpA), len(kpB))
	}
	if len(kpA) < kind.MinMatches() || len(kpB) < kind.MinMatches() {
		return nil, fmt.Errorf("%w: A=%d B=%d, %s needs %d",
			register.ErrInsufficientFeatures, len(kpA), len(kpB), kind, kind.MinMatches())
	}

	matches := register.MatchDescriptors(kpA, kpB, cfg.RatioTest)
	stats := register.SummarizeMatches(matches)
	if cfg.Verbosity > 0 && stats.Count > 0 {
		log.Printf("matches: %d (dist mean=%.1f min=%.0f max=%.0f stddev=%.1f)\n",
			stats.Count, stats.MeanDist, stats.MinDist, stats.MaxDist, stats.StdDist)
	}
	if len(matches) < kind.MinMatches() {
		return nil, fmt.Errorf("%w: %d confident matches, %s needs %d",
			register.ErrInsufficientMatches, len(matches), kind, kind.MinMatches())
	}

	xform, summary, err := register.EstimateTransform(kpA, kpB, matches, cfg.estimatorOptions(kind))
	if err != nil {
		return nil, err
	}
	if cfg.Verbosity > 0 {
		log.Printf("fit: %s\n", summary)
		logTransformClass(summary)
	}

	aligned, overlap, err := register.Resample(imgA.Grid, imgB.Grid, xform, cfg.FillValue)
	if err != nil {
		return nil, err
	}
	if cfg.Verbosity > 0 {
		total := overlap.Dx() * overlap.Dy()
		log.Printf("overlap: %d of %d pixels (%.1f%%)\n",
			overlap.CountTrue(), total, 100*float64(overlap.CountTrue())/float64(total))
	}

	diffOpt := cfg.diffOptions()
	diffOpt.Overlap = overlap
	diff, mask, err := detect.Difference(imgA.Grid, aligned, diffOpt)
	if err != nil {
		return nil, err
	}

	blobOpt := cfg.blobOptions()
	blobOpt.Overlap = overlap
	spots := detect.ExtractBlobs(diff, mask, blobOpt)
	if cfg.Verbosity > 0 {
		log.Printf("detected %d bright spots\n", len(spots))
	}

	return &Result{
		Summary:    summary,
		FeaturesA:  len(kpA),
		FeaturesB:  len(kpB),
		MatchStats: stats,
		KeypointsA: kpA,
		KeypointsB: kpB,
		Matches:    matches,
		RefImage:   imgA,
		CmpImage:   imgB,
		Aligned:    aligned,
		Overlap:    overlap,
		Diff:       diff,
		Mask:       mask,
		Spots:      spots,
		Elapsed:    time.Since(started),
	}, nil
}

// logTransformClass notes what family the fitted parameters actually
// landed in, which is a quick sanity read on the result.
func logTransformClass(s register.Summary) {
	switch {
	case math.Abs(s.ScaleFactor-1.0) < 0.01:
		log.Printf("fit class: rigid (translation + rotation only)\n")
	case s.Kind == register.Homography:
		log.Printf("fit class: projective, approx scale %.4f\n", s.ScaleFactor)
	default:
		log.Printf("fit class: similarity, scale %.4f\n", s.ScaleFactor)
	}
}
