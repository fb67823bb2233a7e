package segment

import (
	"image"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// removeIslands clears 4-connected foreground regions smaller than minArea.
func removeIslands(m *Mask, minArea int) {
	if minArea <= 1 {
		return
	}
	w, h := m.Width, m.Height
	seen := make([]bool, w*h)
	stack := make([]int, 0, 64)
	region := make([]int, 0, 64)

	for start := range m.Alpha {
		if seen[start] || m.Alpha[start] == 0 {
			continue
		}
		region = region[:0]
		stack = append(stack[:0], start)
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			region = append(region, i)

			x, y := i%w, i/w
			for _, j := range [4]int{i - 1, i + 1, i - w, i + w} {
				switch {
				case j == i-1 && x == 0, j == i+1 && x == w-1, j == i-w && y == 0, j == i+w && y == h-1:
					continue
				}
				if !seen[j] && m.Alpha[j] != 0 {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		if len(region) < minArea {
			for _, i := range region {
				m.Alpha[i] = 0
			}
		}
	}
}

// dilate grows the foreground with a 3x3 structuring element, passes times.
func dilate(m *Mask, passes int) {
	w, h := m.Width, m.Height
	for p := 0; p < passes; p++ {
		src := append([]uint8(nil), m.Alpha...)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var v uint8
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := x+dx, y+dy
						if nx < 0 || nx >= w || ny < 0 || ny >= h {
							continue
						}
						if a := src[ny*w+nx]; a > v {
							v = a
						}
					}
				}
				m.Alpha[y*w+x] = v
			}
		}
	}
}

// resample scales a binary mask to w×h and re-thresholds it at 128.
func resample(m *Mask, w, h int) *Mask {
	if m.Width == w && m.Height == h {
		return m
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), m.Gray(), image.Rect(0, 0, m.Width, m.Height), xdraw.Src, nil)

	out := NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if dst.Pix[y*dst.Stride+x] >= 128 {
				out.Alpha[y*w+x] = 255
			}
		}
	}
	return out
}

func feather(m *Mask, sigma float64) {
	blurred := imaging.Blur(m.Gray(), sigma)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			m.Alpha[y*m.Width+x] = blurred.Pix[y*blurred.Stride+x*4]
		}
	}
}
