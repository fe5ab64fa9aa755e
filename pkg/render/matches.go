package render

import (
	"image"
	"image/draw"

	"github.com/fogleman/gg"

	"skydiff/pkg/register"
	"skydiff/pkg/smath"
)

// Matches draws the two frames side by side with a line per accepted
// correspondence, capped at maxLines so a dense match set stays
// readable. maxLines <= 0 draws everything.
func Matches(a, b *smath.Grid, kpA, kpB []register.Keypoint, matches []register.Match, maxLines int) image.Image {
	ga := GrayImage(a)
	gb := GrayImage(b)

	w := a.Dx() + b.Dx()
	h := a.Dy()
	if b.Dy() > h {
		h = b.Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, ga.Bounds(), ga, image.Point{}, draw.Src)
	draw.Draw(canvas, gb.Bounds().Add(image.Point{X: a.Dx()}), gb, image.Point{}, draw.Src)

	dc := gg.NewContextForImage(canvas)
	offX := float64(a.Dx())

	if maxLines > 0 && len(matches) > maxLines {
		matches = matches[:maxLines]
	}
	for _, m := range matches {
		pa, pb := kpA[m.A], kpB[m.B]

		dc.SetRGB(0, 1, 0)
		dc.SetLineWidth(0.8)
		dc.DrawLine(pa.X, pa.Y, pb.X+offX, pb.Y)
		dc.Stroke()

		dc.SetRGB(1, 0.5, 0)
		dc.DrawCircle(pa.X, pa.Y, 2)
		dc.DrawCircle(pb.X+offX, pb.Y, 2)
		dc.Stroke()
	}
	return dc.Image()
}
