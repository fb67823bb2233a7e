package segment

import "image"

// Mask is a row-major 8-bit alpha plane. 255 is foreground.
type Mask struct {
	Width  int
	Height int
	Alpha  []uint8
}

func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Alpha: make([]uint8, width*height)}
}

func (m *Mask) At(x, y int) uint8 { return m.Alpha[y*m.Width+x] }

func (m *Mask) Set(x, y int, v uint8) { m.Alpha[y*m.Width+x] = v }

// Valid reports whether the alpha plane matches the declared dimensions.
func (m *Mask) Valid() bool {
	return m != nil && m.Width > 0 && m.Height > 0 && len(m.Alpha) == m.Width*m.Height
}

// Foreground counts pixels with alpha >= 128.
func (m *Mask) Foreground() int {
	n := 0
	for _, a := range m.Alpha {
		if a >= 128 {
			n++
		}
	}
	return n
}

func (m *Mask) Coverage() float64 {
	if len(m.Alpha) == 0 {
		return 0
	}
	return float64(m.Foreground()) / float64(len(m.Alpha))
}

// Gray returns a copy of the mask as a grayscale image.
func (m *Mask) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		copy(g.Pix[y*g.Stride:y*g.Stride+m.Width], m.Alpha[y*m.Width:(y+1)*m.Width])
	}
	return g
}
