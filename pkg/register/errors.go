package register

import (
	"errors"
	"fmt"
)

// The failure conditions a registration run can end in. They are all
// expected, recoverable-by-the-caller conditions, not programmer
// errors; batch callers record them per pair and move on.
var (
	// ErrInvalidInput: malformed or degenerate array input (empty,
	// all-constant, smaller than the requested crop).
	ErrInvalidInput = errors.New("invalid input image")

	// ErrInsufficientFeatures: too few keypoints in one or both images
	// to attempt matching. Retrying with relaxed detector settings or a
	// full frame instead of the central region may help.
	ErrInsufficientFeatures = errors.New("insufficient features")

	// ErrInsufficientMatches: matching produced fewer correspondences
	// than the active transform variant requires.
	ErrInsufficientMatches = errors.New("insufficient matches")

	// ErrAlignmentFailed: the RANSAC trial budget ran out without any
	// candidate reaching the minimum inlier count.
	ErrAlignmentFailed = errors.New("alignment failed")
)

// ErrDegenerateTransform marks a fitted transform that came out
// singular or non-finite. It wraps ErrAlignmentFailed so callers that
// only discriminate the coarse taxonomy see an alignment failure.
var ErrDegenerateTransform = fmt.Errorf("degenerate transform: %w", ErrAlignmentFailed)
