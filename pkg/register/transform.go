package register

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"skydiff/pkg/smath"
)

// Kind selects which geometric model the estimator fits. Exactly one
// is active per run.
type Kind string

const (
	Rigid      Kind = "rigid"      // rotation + translation
	Similarity Kind = "similarity" // adds uniform scale
	Homography Kind = "homography" // full 3x3 projective, 8 dof
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Rigid, Similarity, Homography:
		return Kind(s), nil
	}
	return "", fmt.Errorf("no transform kind named '%s'", s)
}

// MinMatches is the smallest number of correspondences that determines
// the model.
func (k Kind) MinMatches() int {
	if k == Homography {
		return 4
	}
	return 2
}

// A Transform maps a pixel location in image B to the location in
// image A that shows the same point in the sky. It is a tagged union:
// Aff holds the affine kinds, H the homography, selected by Kind.
type Transform struct {
	Kind Kind
	Aff  smath.Aff3
	H    [9]float64 // row-major 3x3, normalized so H[8] == 1
}

func identityTransform(k Kind) Transform {
	return Transform{Kind: k, Aff: smath.Identity(), H: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

func (t Transform) Apply(x, y float64) (float64, float64) {
	switch t.Kind {
	case Homography:
		w := t.H[6]*x + t.H[7]*y + t.H[8]
		return (t.H[0]*x + t.H[1]*y + t.H[2]) / w,
			(t.H[3]*x + t.H[4]*y + t.H[5]) / w
	default:
		return t.Aff.Apply(x, y)
	}
}

// Invert returns the A->B mapping, which is what the resampler walks.
func (t Transform) Invert() (Transform, error) {
	switch t.Kind {
	case Homography:
		m := mat.NewDense(3, 3, t.H[:])
		var inv mat.Dense
		if err := inv.Inverse(m); err != nil {
			return Transform{}, fmt.Errorf("%w: %v", ErrDegenerateTransform, err)
		}
		out := Transform{Kind: Homography}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				out.H[i*3+j] = inv.At(i, j)
			}
		}
		if math.Abs(out.H[8]) < 1e-12 {
			return Transform{}, ErrDegenerateTransform
		}
		for i := range out.H {
			out.H[i] /= out.H[8]
		}
		return out, nil
	default:
		inv, err := t.Aff.Invert()
		if err != nil {
			return Transform{}, fmt.Errorf("%w: %v", ErrDegenerateTransform, err)
		}
		return Transform{Kind: t.Kind, Aff: inv}, nil
	}
}

func (t Transform) IsDegenerate() bool {
	switch t.Kind {
	case Homography:
		for _, v := range t.H {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
		d := t.H[0]*(t.H[4]*t.H[8]-t.H[5]*t.H[7]) -
			t.H[1]*(t.H[3]*t.H[8]-t.H[5]*t.H[6]) +
			t.H[2]*(t.H[3]*t.H[7]-t.H[4]*t.H[6])
		return math.Abs(d) < 1e-12
	default:
		return !t.Aff.IsFinite() || math.Abs(t.Aff.Det()) < 1e-12
	}
}

// A Summary carries the interpretable parameters of a fitted
// transform, for diagnostics and the report. A homography is reduced
// to an approximate rigid/similarity reading for reporting only.
type Summary struct {
	Kind        Kind
	TranslateX  float64
	TranslateY  float64
	RotationDeg float64
	ScaleFactor float64
	InlierCount int
	InlierRatio float64
}

func (t Transform) Summarize(inliers, matches int) Summary {
	a, b, tx := t.Aff[0], t.Aff[1], t.Aff[2]
	c, d, ty := t.Aff[3], t.Aff[4], t.Aff[5]
	if t.Kind == Homography {
		// Normalized upper-left 2x2 plus the translation column; drops
		// the projective terms, which is fine for a human-readable readout.
		a, b, tx = t.H[0]/t.H[8], t.H[1]/t.H[8], t.H[2]/t.H[8]
		c, d, ty = t.H[3]/t.H[8], t.H[4]/t.H[8], t.H[5]/t.H[8]
	}

	s := Summary{
		Kind:        t.Kind,
		TranslateX:  tx,
		TranslateY:  ty,
		RotationDeg: math.Atan2(c, a) * 180.0 / math.Pi,
		ScaleFactor: math.Sqrt(math.Abs(a*d - b*c)),
		InlierCount: inliers,
	}
	if matches > 0 {
		s.InlierRatio = float64(inliers) / float64(matches)
	}
	return s
}

func (s Summary) String() string {
	str := fmt.Sprintf("Xform[%s (%6.2f,%6.2f)", s.Kind, s.TranslateX, s.TranslateY)
	if s.RotationDeg != 0.0 {
		str += fmt.Sprintf(", %5.2fdeg", s.RotationDeg)
	}
	if s.ScaleFactor != 1.0 {
		str += fmt.Sprintf(", x%.4f", s.ScaleFactor)
	}
	if s.InlierCount > 0 {
		str += fmt.Sprintf(", %d inliers (%.0f%%)", s.InlierCount, s.InlierRatio*100)
	}
	return str + "]"
}
