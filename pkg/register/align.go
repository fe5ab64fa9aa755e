package register

import (
	"skydiff/pkg/smath"
)

// Resample maps src (image B) into ref's pixel grid (image A's frame)
// by walking every output pixel through the inverse transform and
// bilinear-interpolating the source. Pixels that land outside the
// source get the fill value and are false in the returned validity
// mask; anything downstream that compares against ref must confine
// itself to the true region, or the fill border shows up as signal.
// Pure and deterministic; the only failure is a malformed transform,
// checked up front.
func Resample(ref, src *smath.Grid, t Transform, fill float64) (*smath.Grid, *smath.Mask, error) {
	if t.IsDegenerate() {
		return nil, nil, ErrDegenerateTransform
	}
	inv, err := t.Invert()
	if err != nil {
		return nil, nil, err
	}

	out := smath.NewGrid(ref.Dx(), ref.Dy())
	valid := smath.NewMask(ref.Dx(), ref.Dy())
	for y := 0; y < out.Dy(); y++ {
		for x := 0; x < out.Dx(); x++ {
			sx, sy := inv.Apply(float64(x), float64(y))
			if v, ok := src.BilinearAt(sx, sy); ok {
				out.Set(x, y, v)
				valid.Set(x, y, true)
			} else {
				out.Set(x, y, fill)
			}
		}
	}
	return out, valid, nil
}
