package register

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"skydiff/pkg/smath"
)

type EstimatorOptions struct {
	Kind       Kind
	Trials     int     // fixed trial budget
	InlierTol  float64 // reprojection tolerance, pixels
	MinInliers int     // fewer than this after the budget means failure
	Seed       int64   // fix it for reproducible runs
}

type point struct{ X, Y float64 }

// EstimateTransform robustly fits the configured transform variant
// from matched keypoints, mapping B coordinates onto A. Classic
// RANSAC: repeatedly fit a candidate in closed form from a random
// minimal subset, count correspondences it reprojects within tolerance,
// keep the best, then refine over all of its inliers by least squares.
// Degenerate minimal subsets (coincident points, collinear quads) are
// skipped without spending a trial. Candidates tying on inlier count
// keep the earlier one.
func EstimateTransform(a, b []Keypoint, matches []Match, opt EstimatorOptions) (Transform, Summary, error) {
	need := opt.Kind.MinMatches()
	if len(matches) < need {
		return Transform{}, Summary{}, fmt.Errorf("%w: have %d, %s needs %d",
			ErrInsufficientMatches, len(matches), opt.Kind, need)
	}

	pa := make([]point, len(matches))
	pb := make([]point, len(matches))
	for i, m := range matches {
		pa[i] = point{a[m.A].X, a[m.A].Y}
		pb[i] = point{b[m.B].X, b[m.B].Y}
	}

	rng := rand.New(rand.NewSource(opt.Seed))

	best := identityTransform(opt.Kind)
	bestInliers := -1
	trials := 0
	skips := 0
	maxSkips := opt.Trials * 10 // a pathological match set must still terminate

	for trials < opt.Trials {
		subset := sampleIndices(rng, len(matches), need)
		if subsetDegenerate(pb, subset) {
			skips++
			if skips > maxSkips {
				break
			}
			continue
		}
		trials++

		cand, ok := fitMinimal(opt.Kind, pa, pb, subset)
		if !ok || cand.IsDegenerate() {
			continue
		}
		if n := countInliers(cand, pa, pb, opt.InlierTol); n > bestInliers {
			best = cand
			bestInliers = n
		}
	}

	if bestInliers < opt.MinInliers {
		return Transform{}, Summary{}, fmt.Errorf("%w: best candidate had %d inliers after %d trials (need %d)",
			ErrAlignmentFailed, maxInt(bestInliers, 0), opt.Trials, opt.MinInliers)
	}

	inlierIdx := collectInliers(best, pa, pb, opt.InlierTol)
	refined, err := refit(opt.Kind, pa, pb, inlierIdx)
	if err != nil {
		return Transform{}, Summary{}, err
	}
	if refined.IsDegenerate() {
		return Transform{}, Summary{}, ErrDegenerateTransform
	}

	finalInliers := countInliers(refined, pa, pb, opt.InlierTol)
	if finalInliers < opt.MinInliers {
		// Refinement can only have been dragged off by a bad inlier set;
		// the pre-refinement candidate support was already marginal.
		return Transform{}, Summary{}, fmt.Errorf("%w: refit dropped support to %d inliers",
			ErrAlignmentFailed, finalInliers)
	}

	return refined, refined.Summarize(finalInliers, len(matches)), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func sampleIndices(rng *rand.Rand, n, k int) []int {
	idx := make([]int, 0, k)
	for len(idx) < k {
		c := rng.Intn(n)
		dup := false
		for _, i := range idx {
			if i == c {
				dup = true
				break
			}
		}
		if !dup {
			idx = append(idx, c)
		}
	}
	return idx
}

// subsetDegenerate: a 2-point subset is unusable when the points are
// (nearly) coincident; a 4-point subset when any three are collinear.
func subsetDegenerate(pts []point, idx []int) bool {
	const eps = 1e-9
	if len(idx) == 2 {
		dx := pts[idx[0]].X - pts[idx[1]].X
		dy := pts[idx[0]].Y - pts[idx[1]].Y
		return dx*dx+dy*dy < eps
	}
	for i := 0; i < len(idx); i++ {
		for j := i + 1; j < len(idx); j++ {
			for k := j + 1; k < len(idx); k++ {
				p, q, r := pts[idx[i]], pts[idx[j]], pts[idx[k]]
				cross := (q.X-p.X)*(r.Y-p.Y) - (q.Y-p.Y)*(r.X-p.X)
				if math.Abs(cross) < eps {
					return true
				}
			}
		}
	}
	return false
}

func fitMinimal(kind Kind, pa, pb []point, idx []int) (Transform, bool) {
	switch kind {
	case Rigid:
		return fitTwoPoint(pa, pb, idx, false)
	case Similarity:
		return fitTwoPoint(pa, pb, idx, true)
	default:
		sub := make([]int, len(idx))
		copy(sub, idx)
		t, err := fitHomographyDLT(pa, pb, sub)
		return t, err == nil
	}
}

// fitTwoPoint determines rotation (and optionally uniform scale) from
// the segment between the two correspondences, translation from their
// midpoints.
func fitTwoPoint(pa, pb []point, idx []int, withScale bool) (Transform, bool) {
	a1, a2 := pa[idx[0]], pa[idx[1]]
	b1, b2 := pb[idx[0]], pb[idx[1]]

	vax, vay := a2.X-a1.X, a2.Y-a1.Y
	vbx, vby := b2.X-b1.X, b2.Y-b1.Y
	lb := math.Hypot(vbx, vby)
	if lb < 1e-9 {
		return Transform{}, false
	}

	theta := math.Atan2(vay, vax) - math.Atan2(vby, vbx)
	s := 1.0
	if withScale {
		s = math.Hypot(vax, vay) / lb
	}

	cos, sin := s*math.Cos(theta), s*math.Sin(theta)
	mbx, mby := (b1.X+b2.X)/2, (b1.Y+b2.Y)/2
	max, may := (a1.X+a2.X)/2, (a1.Y+a2.Y)/2

	kind := Rigid
	if withScale {
		kind = Similarity
	}
	return Transform{
		Kind: kind,
		Aff: smath.Aff3{
			cos, -sin, max - (cos*mbx - sin*mby),
			sin, cos, may - (sin*mbx + cos*mby),
		},
	}, true
}

func reprojError(t Transform, pa, pb point) float64 {
	x, y := t.Apply(pb.X, pb.Y)
	return math.Hypot(x-pa.X, y-pa.Y)
}

func countInliers(t Transform, pa, pb []point, tol float64) int {
	n := 0
	for i := range pa {
		if reprojError(t, pa[i], pb[i]) < tol {
			n++
		}
	}
	return n
}

func collectInliers(t Transform, pa, pb []point, tol float64) []int {
	idx := []int{}
	for i := range pa {
		if reprojError(t, pa[i], pb[i]) < tol {
			idx = append(idx, i)
		}
	}
	return idx
}

// refit does the final least-squares pass over all inliers.
func refit(kind Kind, pa, pb []point, idx []int) (Transform, error) {
	switch kind {
	case Rigid:
		return fitRigidLS(pa, pb, idx)
	case Similarity:
		return fitSimilarityLS(pa, pb, idx)
	default:
		return fitHomographyDLT(pa, pb, idx)
	}
}

// fitRigidLS is the closed-form 2D Procrustes solution: rotation from
// the cross-covariance of the centered point sets, translation from
// the centroids.
func fitRigidLS(pa, pb []point, idx []int) (Transform, error) {
	cax, cay, cbx, cby := centroids(pa, pb, idx)

	var num, den float64
	for _, i := range idx {
		ax, ay := pa[i].X-cax, pa[i].Y-cay
		bx, by := pb[i].X-cbx, pb[i].Y-cby
		num += bx*ay - by*ax
		den += bx*ax + by*ay
	}
	theta := math.Atan2(num, den)
	cos, sin := math.Cos(theta), math.Sin(theta)

	return Transform{
		Kind: Rigid,
		Aff: smath.Aff3{
			cos, -sin, cax - (cos*cbx - sin*cby),
			sin, cos, cay - (sin*cbx + cos*cby),
		},
	}, nil
}

// fitSimilarityLS solves min ||Ax - y|| for the 4 parameters
// (a, b, tx, ty) of [a -b tx; b a ty] over the inliers.
func fitSimilarityLS(pa, pb []point, idx []int) (Transform, error) {
	A := mat.NewDense(2*len(idx), 4, nil)
	y := mat.NewVecDense(2*len(idx), nil)
	for r, i := range idx {
		A.SetRow(2*r, []float64{pb[i].X, -pb[i].Y, 1, 0})
		A.SetRow(2*r+1, []float64{pb[i].Y, pb[i].X, 0, 1})
		y.SetVec(2*r, pa[i].X)
		y.SetVec(2*r+1, pa[i].Y)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(A, y); err != nil {
		return Transform{}, fmt.Errorf("%w: similarity refit: %v", ErrDegenerateTransform, err)
	}

	a, b, tx, ty := sol.AtVec(0), sol.AtVec(1), sol.AtVec(2), sol.AtVec(3)
	return Transform{
		Kind: Similarity,
		Aff:  smath.Aff3{a, -b, tx, b, a, ty},
	}, nil
}

// fitHomographyDLT is the direct linear transform: the homography is
// the null vector of the 2n x 9 design matrix, taken from the SVD.
func fitHomographyDLT(pa, pb []point, idx []int) (Transform, error) {
	if len(idx) < 4 {
		return Transform{}, fmt.Errorf("%w: homography needs 4 points, got %d", ErrInsufficientMatches, len(idx))
	}

	A := mat.NewDense(2*len(idx), 9, nil)
	for r, i := range idx {
		x, y := pb[i].X, pb[i].Y
		u, v := pa[i].X, pa[i].Y
		A.SetRow(2*r, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		A.SetRow(2*r+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	// Full SVD: with the minimal 4-point system the design matrix is
	// 8x9 and the null vector only shows up in the full V.
	if !svd.Factorize(A, mat.SVDFull) {
		return Transform{}, fmt.Errorf("%w: homography SVD did not converge", ErrDegenerateTransform)
	}
	var v mat.Dense
	svd.VTo(&v)

	_, c := v.Dims()
	h := mat.Col(nil, c-1, &v)
	if math.Abs(h[8]) < 1e-12 {
		return Transform{}, ErrDegenerateTransform
	}

	t := Transform{Kind: Homography}
	for i := range t.H {
		t.H[i] = h[i] / h[8]
	}
	return t, nil
}

func centroids(pa, pb []point, idx []int) (cax, cay, cbx, cby float64) {
	n := float64(len(idx))
	for _, i := range idx {
		cax += pa[i].X
		cay += pa[i].Y
		cbx += pb[i].X
		cby += pb[i].Y
	}
	return cax / n, cay / n, cbx / n, cby / n
}
