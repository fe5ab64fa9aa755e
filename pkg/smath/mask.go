package smath

// A Mask is a 2D boolean array with the same stride layout as Grid.
// The warper uses one to mark which output pixels actually sampled the
// source frame, and the detector uses one for its significance map.
type Mask struct {
	stride int
	bits   []bool
}

func NewMask(w, h int) *Mask {
	return &Mask{stride: w, bits: make([]bool, w*h)}
}

func (m *Mask) Set(x, y int, v bool) { m.bits[m.stride*y+x] = v }
func (m *Mask) Get(x, y int) bool    { return m.bits[m.stride*y+x] }
func (m *Mask) Dx() int              { return m.stride }
func (m *Mask) Dy() int              { return len(m.bits) / m.stride }

func (m *Mask) CountTrue() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}
