package smath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRotateAbout(t *testing.T) {
	m := RotateAbout(90, 1, 1)
	x, y := m.Apply(2, 1)
	require.InDelta(t, 1.0, x, 1e-9)
	require.InDelta(t, 2.0, y, 1e-9)
}

func TestAffineInvertRoundtrip(t *testing.T) {
	m := Identity().Translate(12.5, -3.25).Rotate(17).Scale(1.3)
	inv, err := m.Invert()
	require.NoError(t, err)

	x, y := m.Apply(42, 77)
	bx, by := inv.Apply(x, y)
	require.InDelta(t, 42.0, bx, 1e-9)
	require.InDelta(t, 77.0, by, 1e-9)
}

func TestAffineSingular(t *testing.T) {
	m := Aff3{1, 0, 5, 2, 0, 9} // rank 1 linear part
	_, err := m.Invert()
	require.Error(t, err)
}
