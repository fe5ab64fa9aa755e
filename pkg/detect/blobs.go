package detect

import (
	"image"
	"sort"

	"skydiff/pkg/smath"
)

// A BrightSpot is one connected region of the significance mask: a
// localized change between the two registered frames. Created once per
// component per run, never mutated.
type BrightSpot struct {
	ID        int
	CentroidX float64 // intensity-weighted, aligned-image coordinates
	CentroidY float64
	Area      int // pixels
	Peak      float64
	Mean      float64
	Bounds    image.Rectangle
}

type BlobOptions struct {
	MinArea       int
	MaxArea       int
	FourConnected bool // default is 8-connected labeling

	// Overlap, when set, drops any spot whose centroid lands outside
	// the valid comparison region, so a component hugging the warp
	// border can't be reported as a detection.
	Overlap *smath.Mask
}

// ExtractBlobs labels connected components of the mask, filters them
// by pixel count, and characterizes each survivor. Centroids are
// weighted by the difference map's values, not the binary mask, so a
// spot's position tracks where the change is brightest. Output order:
// area descending, ties by lower row-major centroid position. Pure
// function; running it twice gives identical output.
func ExtractBlobs(diff *smath.Grid, mask *smath.Mask, opt BlobOptions) []BrightSpot {
	w, h := mask.Dx(), mask.Dy()
	visited := make([]bool, w*h)
	spots := []BrightSpot{}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask.Get(x, y) || visited[y*w+x] {
				continue
			}
			pixels := floodFill(mask, visited, x, y, opt.FourConnected)
			if len(pixels) < opt.MinArea || (opt.MaxArea > 0 && len(pixels) > opt.MaxArea) {
				continue
			}
			spot := characterize(diff, pixels)
			if opt.Overlap != nil && !centroidInOverlap(spot, opt.Overlap) {
				continue
			}
			spots = append(spots, spot)
		}
	}

	sort.SliceStable(spots, func(i, j int) bool {
		if spots[i].Area != spots[j].Area {
			return spots[i].Area > spots[j].Area
		}
		if spots[i].CentroidY != spots[j].CentroidY {
			return spots[i].CentroidY < spots[j].CentroidY
		}
		return spots[i].CentroidX < spots[j].CentroidX
	})
	for i := range spots {
		spots[i].ID = i + 1
	}
	return spots
}

func centroidInOverlap(spot BrightSpot, overlap *smath.Mask) bool {
	cx := int(spot.CentroidX + 0.5)
	cy := int(spot.CentroidY + 0.5)
	if cx < 0 || cx >= overlap.Dx() || cy < 0 || cy >= overlap.Dy() {
		return false
	}
	return overlap.Get(cx, cy)
}

func floodFill(mask *smath.Mask, visited []bool, startX, startY int, fourConnected bool) []image.Point {
	w, h := mask.Dx(), mask.Dy()
	var result []image.Point
	stack := []image.Point{{startX, startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= w || p.Y < 0 || p.Y >= h {
			continue
		}
		idx := p.Y*w + p.X
		if visited[idx] || !mask.Get(p.X, p.Y) {
			continue
		}
		visited[idx] = true
		result = append(result, p)

		stack = append(stack,
			image.Point{p.X + 1, p.Y},
			image.Point{p.X - 1, p.Y},
			image.Point{p.X, p.Y + 1},
			image.Point{p.X, p.Y - 1},
		)
		if !fourConnected {
			stack = append(stack,
				image.Point{p.X + 1, p.Y + 1},
				image.Point{p.X + 1, p.Y - 1},
				image.Point{p.X - 1, p.Y + 1},
				image.Point{p.X - 1, p.Y - 1},
			)
		}
	}
	return result
}

func characterize(diff *smath.Grid, pixels []image.Point) BrightSpot {
	spot := BrightSpot{
		Area:   len(pixels),
		Bounds: image.Rectangle{Min: pixels[0], Max: pixels[0].Add(image.Point{1, 1})},
	}

	var sumX, sumY, sumW, sum float64
	for _, p := range pixels {
		v := diff.Get(p.X, p.Y)
		sum += v
		if v > spot.Peak {
			spot.Peak = v
		}
		sumX += float64(p.X) * v
		sumY += float64(p.Y) * v
		sumW += v
		spot.Bounds = growRect(spot.Bounds, p)
	}

	spot.Mean = sum / float64(len(pixels))
	if sumW > 0 {
		spot.CentroidX = sumX / sumW
		spot.CentroidY = sumY / sumW
	} else {
		// A zero-weight component can only come from a hand-built mask;
		// fall back to the unweighted centroid.
		for _, p := range pixels {
			spot.CentroidX += float64(p.X)
			spot.CentroidY += float64(p.Y)
		}
		spot.CentroidX /= float64(len(pixels))
		spot.CentroidY /= float64(len(pixels))
	}
	return spot
}

func growRect(r image.Rectangle, p image.Point) image.Rectangle {
	if p.X < r.Min.X {
		r.Min.X = p.X
	}
	if p.X+1 > r.Max.X {
		r.Max.X = p.X + 1
	}
	if p.Y < r.Min.Y {
		r.Min.Y = p.Y
	}
	if p.Y+1 > r.Max.Y {
		r.Max.Y = p.Y + 1
	}
	return r
}
