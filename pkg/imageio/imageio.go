// Package imageio moves grids in and out of ordinary raster files for
// the CLI shell. The astronomical container format itself is handled
// upstream; by the time pixels get here they are plain arrays.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	_ "image/jpeg"

	_ "golang.org/x/image/tiff"

	"skydiff/pkg/smath"
)

// LoadGrid decodes a PNG/TIFF/JPEG file into a single-channel grid.
// Color inputs are collapsed to luminance; values land in [0,1].
func LoadGrid(filename string) (*smath.Grid, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}

	b := img.Bounds()
	g := smath.NewGrid(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, gr, bl, _ := img.At(x, y).RGBA()
			lum := (float64(r) + float64(gr) + float64(bl)) / 3.0 / 65535.0
			g.Set(x-b.Min.X, y-b.Min.Y, lum)
		}
	}
	return g, nil
}

// SaveGridPNG writes the grid as 16-bit grayscale, mapping [0,1] onto
// the full range and clamping anything outside it.
func SaveGridPNG(g *smath.Grid, filename string) error {
	img := image.NewGray16(image.Rect(0, 0, g.Dx(), g.Dy()))
	for y := 0; y < g.Dy(); y++ {
		for x := 0; x < g.Dx(); x++ {
			v := smath.Clamp01(g.Get(x, y))
			img.SetGray16(x, y, color.Gray16{Y: uint16(v * 65535.0)})
		}
	}

	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w %s: %w", filename, err)
	}
	defer writer.Close()
	return png.Encode(writer, img)
}
