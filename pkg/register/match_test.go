package register

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// descWithBits builds a descriptor with the low n bits set, offset
// into the word so distances between test descriptors are easy to
// read off.
func descWithBits(n int) Descriptor {
	var d Descriptor
	for i := 0; i < n; i++ {
		d[i/64] |= 1 << (i % 64)
	}
	return d
}

func kp(d Descriptor) Keypoint { return Keypoint{Desc: d} }

func TestMatchRatioTest(t *testing.T) {
	a := []Keypoint{kp(descWithBits(0))}

	// Nearest at distance 2, second at distance 40: unambiguous.
	b := []Keypoint{kp(descWithBits(40)), kp(descWithBits(2))}
	matches := MatchDescriptors(a, b, 0.75)
	require.Len(t, matches, 1)
	require.Equal(t, 1, matches[0].B)
	require.Equal(t, 2.0, matches[0].Distance)

	// Nearest at 30, second at 32: ambiguous, dropped.
	b = []Keypoint{kp(descWithBits(30)), kp(descWithBits(32))}
	require.Empty(t, MatchDescriptors(a, b, 0.75))
}

func TestMatchDeduplicatesB(t *testing.T) {
	target := descWithBits(8)
	near := target
	near[0] ^= 0x3 // distance 2 from target

	a := []Keypoint{kp(near), kp(target)}
	b := []Keypoint{kp(target), kp(descWithBits(200))}

	matches := MatchDescriptors(a, b, 0.75)

	// Both A keypoints prefer b[0]; only the exact (distance 0) claim
	// survives.
	require.Len(t, matches, 1)
	require.Equal(t, 1, matches[0].A)
	require.Equal(t, 0, matches[0].B)
	require.Equal(t, 0.0, matches[0].Distance)
}

func TestMatchEmptyInputs(t *testing.T) {
	require.Empty(t, MatchDescriptors(nil, []Keypoint{kp(descWithBits(3))}, 0.75))
	require.Empty(t, MatchDescriptors([]Keypoint{kp(descWithBits(3))}, nil, 0.75))
}

func TestSummarizeMatches(t *testing.T) {
	stats := SummarizeMatches([]Match{
		{A: 0, B: 0, Distance: 10},
		{A: 1, B: 1, Distance: 20},
		{A: 2, B: 2, Distance: 30},
	})
	require.Equal(t, 3, stats.Count)
	require.InDelta(t, 20.0, stats.MeanDist, 1e-12)
	require.Equal(t, 10.0, stats.MinDist)
	require.Equal(t, 30.0, stats.MaxDist)

	require.Equal(t, MatchStats{}, SummarizeMatches(nil))
}
