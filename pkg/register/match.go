package register

import (
	"math"
	"math/bits"
)

// A Match pairs keypoint A (index into image A's list) with keypoint B.
// After MatchDescriptors each A index appears at most once and each B
// index is claimed by at most one A.
type Match struct {
	A        int
	B        int
	Distance float64
}

func hamming(a, b Descriptor) int {
	n := 0
	for i := 0; i < len(a); i++ {
		n += bits.OnesCount64(a[i] ^ b[i])
	}
	return n
}

// MatchDescriptors pairs keypoints by Hamming nearest neighbor with a
// Lowe ratio test: a match is kept only when the best distance is
// meaningfully below the second best, which kills the ambiguous pairs
// a repetitive star field produces. B-side duplicates are resolved by
// keeping the lower-distance claim.
//
// An empty result is valid output, not an error; the caller decides
// whether it has enough correspondences to go on.
func MatchDescriptors(a, b []Keypoint, ratio float64) []Match {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	bestForB := map[int]int{} // b index -> position in out
	out := []Match{}

	for i := range a {
		best, second := math.MaxInt32, math.MaxInt32
		bestJ := -1
		for j := range b {
			d := hamming(a[i].Desc, b[j].Desc)
			if d < best {
				second = best
				best, bestJ = d, j
			} else if d < second {
				second = d
			}
		}
		if bestJ < 0 {
			continue
		}
		if second < math.MaxInt32 && float64(best) >= ratio*float64(second) {
			continue // ambiguous
		}

		m := Match{A: i, B: bestJ, Distance: float64(best)}
		if pos, claimed := bestForB[bestJ]; claimed {
			// Earlier claim wins ties, so output is deterministic.
			if m.Distance < out[pos].Distance {
				out[pos] = Match{A: -1, B: -1, Distance: 0} // tombstone
				bestForB[bestJ] = len(out)
				out = append(out, m)
			}
			continue
		}
		bestForB[bestJ] = len(out)
		out = append(out, m)
	}

	// Compact out the tombstones, preserving A order.
	compacted := out[:0]
	for _, m := range out {
		if m.A >= 0 {
			compacted = append(compacted, m)
		}
	}
	return compacted
}

// MatchStats summarizes descriptor-distance quality for diagnostics.
type MatchStats struct {
	Count    int
	MeanDist float64
	MinDist  float64
	MaxDist  float64
	StdDist  float64
}

func SummarizeMatches(matches []Match) MatchStats {
	if len(matches) == 0 {
		return MatchStats{}
	}
	s := MatchStats{Count: len(matches), MinDist: math.MaxFloat64}
	tot := 0.0
	for _, m := range matches {
		tot += m.Distance
		if m.Distance < s.MinDist {
			s.MinDist = m.Distance
		}
		if m.Distance > s.MaxDist {
			s.MaxDist = m.Distance
		}
	}
	s.MeanDist = tot / float64(len(matches))
	v := 0.0
	for _, m := range matches {
		d := m.Distance - s.MeanDist
		v += d * d
	}
	s.StdDist = math.Sqrt(v / float64(len(matches)))
	return s
}
