package register

import (
	"fmt"

	"skydiff/pkg/smath"
)

// An Image is a preprocessed working frame: the [0,1] normalized grid
// plus enough metadata to map a detection back into the raw frame when
// a central region was cropped out. Immutable once built.
type Image struct {
	Grid  *smath.Grid
	OrigW int
	OrigH int
	OffX  int
	OffY  int
}

type PreprocessOptions struct {
	// Percentile stretch bounds, 0..100. Clipping at the high end keeps
	// a hot pixel from eating the whole dynamic range.
	LowPercentile  float64
	HighPercentile float64

	// Post-stretch Gaussian denoise; 0 disables.
	BlurSigma float64

	// Central-region crop, for speed. Skipped when the frame is smaller
	// than MinImageSize on either axis (the original frame is used
	// instead, which is not an error).
	UseCentralRegion bool
	RegionSize       int
	MinImageSize     int
}

// Preprocess turns a raw frame into the bounded-range working
// representation every later stage consumes: optional centered crop,
// robust percentile stretch onto [0,1], optional Gaussian denoise.
// Pure function of its inputs.
func Preprocess(raw *smath.Grid, opt PreprocessOptions) (*Image, error) {
	if raw == nil || raw.Dx() <= 0 || raw.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty array", ErrInvalidInput)
	}
	if raw.CountFinite() == 0 {
		return nil, fmt.Errorf("%w: no finite pixel values", ErrInvalidInput)
	}

	img := &Image{Grid: raw, OrigW: raw.Dx(), OrigH: raw.Dy()}

	if opt.UseCentralRegion && opt.RegionSize > 0 &&
		raw.Dx() >= opt.MinImageSize && raw.Dy() >= opt.MinImageSize &&
		raw.Dx() >= opt.RegionSize && raw.Dy() >= opt.RegionSize {
		x0 := raw.Dx()/2 - opt.RegionSize/2
		y0 := raw.Dy()/2 - opt.RegionSize/2
		sub, err := raw.SubGrid(x0, y0, opt.RegionSize, opt.RegionSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		img.Grid = sub
		img.OffX, img.OffY = x0, y0
	}

	lo := img.Grid.Percentile(opt.LowPercentile)
	hi := img.Grid.Percentile(opt.HighPercentile)
	if hi-lo <= 0 {
		return nil, fmt.Errorf("%w: constant image, stretch range is zero", ErrInvalidInput)
	}

	out := img.Grid.NewFromThis()
	for y := 0; y < out.Dy(); y++ {
		for x := 0; x < out.Dx(); x++ {
			out.Set(x, y, smath.Clamp01((img.Grid.Get(x, y)-lo)/(hi-lo)))
		}
	}

	if opt.BlurSigma > 0 {
		out = out.GaussianBlur(opt.BlurSigma)
	}

	img.Grid = out
	return img, nil
}
