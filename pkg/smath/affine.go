package smath

// Basic affine transformations, used in image registration

import (
	"fmt"
	"math"

	"golang.org/x/image/math/f64"
)

// Use a local type so we can hang methods off it. Row-major 2x3:
// [a b tx; c d ty].
type Aff3 f64.Aff3

func (p Aff3) Mult(q Aff3) Aff3 {
	return Aff3{
		p[3*0+0]*q[3*0+0] + p[3*0+1]*q[3*1+0],
		p[3*0+0]*q[3*0+1] + p[3*0+1]*q[3*1+1],
		p[3*0+0]*q[3*0+2] + p[3*0+1]*q[3*1+2] + p[3*0+2],
		p[3*1+0]*q[3*0+0] + p[3*1+1]*q[3*1+0],
		p[3*1+0]*q[3*0+1] + p[3*1+1]*q[3*1+1],
		p[3*1+0]*q[3*0+2] + p[3*1+1]*q[3*1+2] + p[3*1+2],
	}
}

func Identity() Aff3 {
	return Aff3{1, 0, 0, 0, 1, 0}
}

func (m1 Aff3) Translate(tx, ty float64) Aff3 {
	return m1.Mult(Aff3{1, 0, tx, 0, 1, ty})
}

func (m1 Aff3) Rotate(thetaDeg float64) Aff3 {
	cosTheta := math.Cos(thetaDeg * math.Pi / 180.0)
	sinTheta := math.Sin(thetaDeg * math.Pi / 180.0)
	return m1.Mult(Aff3{cosTheta, -1 * sinTheta, 0, sinTheta, cosTheta, 0})
}

func (m1 Aff3) Scale(s float64) Aff3 {
	return m1.Mult(Aff3{s, 0, 0, 0, s, 0})
}

func RotateAbout(thetaDeg, x, y float64) Aff3 {
	// Remember they compose back to front - rightmost operations performed first
	return Identity().Translate(x, y).Rotate(thetaDeg).Translate(-1*x, -1*y)
}

func (m Aff3) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

func (m Aff3) Det() float64 {
	return m[0]*m[4] - m[1]*m[3]
}

// Invert fails when the linear part is (numerically) singular.
func (m Aff3) Invert() (Aff3, error) {
	det := m.Det()
	if math.Abs(det) < 1e-12 {
		return Identity(), fmt.Errorf("affine is singular (det=%g)", det)
	}
	a, b, tx := m[0], m[1], m[2]
	c, d, ty := m[3], m[4], m[5]
	return Aff3{
		d / det, -b / det, (b*ty - d*tx) / det,
		-c / det, a / det, (c*tx - a*ty) / det,
	}, nil
}

func (m Aff3) IsFinite() bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (m Aff3) String() string {
	str := fmt.Sprintf("[%10f, %10f, %10f]\n", m[0], m[1], m[2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3], m[4], m[5])
	return str
}
