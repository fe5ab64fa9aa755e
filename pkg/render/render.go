// Package render is the "render this array" collaborator: it turns
// grids, masks and bright-spot lists into PNGs for a human to look at.
// Nothing in here feeds back into the pipeline.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"

	"skydiff/pkg/detect"
	"skydiff/pkg/smath"
)

// GrayImage maps the grid's own value range onto 16-bit gray, gamma
// scaled so the faint end is visible to human eyes.
func GrayImage(g *smath.Grid) *image.RGBA64 {
	min, max := g.MinMax()
	span := max - min
	if span <= 0 {
		span = 1
	}

	img := image.NewRGBA64(image.Rect(0, 0, g.Dx(), g.Dy()))
	for x := 0; x < g.Dx(); x++ {
		for y := 0; y < g.Dy(); y++ {
			gray := smath.GammaExpand((g.Get(x, y) - min) / span)
			v := uint16(gray * 65535.0)
			img.Set(x, y, color.RGBA64{v, v, v, 0xFFFF})
		}
	}
	return img
}

// Heatmap renders the grid on a perceptual cold-to-hot ramp, for
// difference maps where "where is the energy" matters more than
// absolute levels.
func Heatmap(g *smath.Grid) *image.RGBA {
	min, max := g.MinMax()
	span := max - min
	if span <= 0 {
		span = 1
	}

	cold := colorful.Color{R: 0.05, G: 0.05, B: 0.35}
	hot := colorful.Color{R: 1.0, G: 0.85, B: 0.1}

	img := image.NewRGBA(image.Rect(0, 0, g.Dx(), g.Dy()))
	for x := 0; x < g.Dx(); x++ {
		for y := 0; y < g.Dy(); y++ {
			t := (g.Get(x, y) - min) / span
			r, gr, b := cold.BlendLuv(hot, t).Clamped().RGB255()
			img.Set(x, y, color.RGBA{r, gr, b, 0xFF})
		}
	}
	return img
}

func MaskImage(m *smath.Mask) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Dx(), m.Dy()))
	for x := 0; x < m.Dx(); x++ {
		for y := 0; y < m.Dy(); y++ {
			if m.Get(x, y) {
				img.SetGray(x, y, color.Gray{0xFF})
			}
		}
	}
	return img
}

// AnnotateSpots draws each bright spot over the base image: a circle
// around the extent, a dot on the centroid, and an id/area label.
func AnnotateSpots(base image.Image, spots []detect.BrightSpot) image.Image {
	dc := gg.NewContextForImage(base)

	for _, s := range spots {
		r := float64(s.Bounds.Dx())
		if float64(s.Bounds.Dy()) > r {
			r = float64(s.Bounds.Dy())
		}
		r = r/2 + 3

		dc.SetRGB(0, 1, 0)
		dc.SetLineWidth(1.5)
		dc.DrawCircle(s.CentroidX, s.CentroidY, r)
		dc.Stroke()

		dc.SetRGB(1, 0, 0)
		dc.DrawCircle(s.CentroidX, s.CentroidY, 1.5)
		dc.Fill()

		dc.SetRGB(1, 1, 0)
		dc.DrawString(fmt.Sprintf("#%d (%dpx)", s.ID, s.Area), s.CentroidX+r+2, s.CentroidY)
	}
	return dc.Image()
}

// TitledGray saves a grayscale render with a caption in the corner,
// handy for eyeballing intermediate grids.
func TitledGray(g *smath.Grid, title, filename string) error {
	dc := gg.NewContextForImage(GrayImage(g))
	dc.SetRGB(1, 1, 1)
	dc.DrawString(title, 10, 15)
	return dc.SavePNG(filename)
}

func WritePNG(img image.Image, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}
	defer writer.Close()
	return png.Encode(writer, img)
}
