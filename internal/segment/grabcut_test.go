package segment

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func squareOnWhite(w, h int, r image.Rectangle, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if image.Pt(x, y).In(r) {
				img.SetNRGBA(x, y, c)
			} else {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
	return img
}

var red = color.NRGBA{R: 220, G: 20, B: 30, A: 255}

func TestGrabCut_RedSquareOnWhite(t *testing.T) {
	t.Parallel()

	img := squareOnWhite(200, 200, image.Rect(50, 50, 150, 150), red)

	mask, err := NewGrabCut(DefaultOptions(), nil).Segment(context.Background(), img)
	require.NoError(t, err)
	require.Equal(t, 200, mask.Width)
	require.Equal(t, 200, mask.Height)
	require.Equal(t, uint8(0), mask.At(10, 10))
	require.Equal(t, uint8(255), mask.At(100, 100))
	require.Equal(t, uint8(0), mask.At(199, 199))
}

func TestGrabCut_MaskMatchesImageDimensions(t *testing.T) {
	t.Parallel()

	sizes := []image.Point{{3, 3}, {17, 5}, {64, 128}, {1100, 300}}
	for _, sz := range sizes {
		img := squareOnWhite(sz.X, sz.Y, image.Rect(sz.X/4, sz.Y/4, sz.X*3/4, sz.Y*3/4), red)

		mask, err := NewGrabCut(DefaultOptions(), nil).Segment(context.Background(), img)
		if err != nil {
			require.ErrorIs(t, err, ErrWeakSegmentation, sz.String())
		}
		require.NotNil(t, mask, sz.String())
		require.Equal(t, sz.X, mask.Width, sz.String())
		require.Equal(t, sz.Y, mask.Height, sz.String())
		require.Len(t, mask.Alpha, sz.X*sz.Y, sz.String())
	}
}

func TestGrabCut_MaskMatchesRandomImageDimensions(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	sizes := []image.Point{{1, 1}, {1, 2}, {2, 1}, {2, 2}, {1, 9}, {9, 2}}
	for len(sizes) < 40 {
		sizes = append(sizes, image.Pt(1+rng.IntN(160), 1+rng.IntN(160)))
	}
	// One case above WorkSize exercises the downscaled working copy.
	sizes = append(sizes, image.Pt(512+rng.IntN(300), 1+rng.IntN(40)))

	seg := NewGrabCut(DefaultOptions(), nil)
	for _, sz := range sizes {
		img := image.NewNRGBA(image.Rect(0, 0, sz.X, sz.Y))
		for i := range img.Pix {
			img.Pix[i] = uint8(rng.UintN(256))
		}
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 255
		}

		mask, err := seg.Segment(context.Background(), img)
		if err != nil {
			require.ErrorIs(t, err, ErrWeakSegmentation, sz.String())
		}
		require.NotNil(t, mask, sz.String())
		require.Equal(t, sz.X, mask.Width, sz.String())
		require.Equal(t, sz.Y, mask.Height, sz.String())
		require.Len(t, mask.Alpha, sz.X*sz.Y, sz.String())
		if sz.X <= 2 || sz.Y <= 2 {
			// The border band covers every pixel, so nothing can be foreground.
			require.ErrorIs(t, err, ErrWeakSegmentation, sz.String())
			require.Zero(t, mask.Foreground(), sz.String())
		}
	}
}

func TestGrabCut_WorkingCopyKeepsCenter(t *testing.T) {
	t.Parallel()

	img := squareOnWhite(1024, 768, image.Rect(300, 200, 700, 560), color.NRGBA{R: 20, G: 40, B: 200, A: 255})

	mask, err := NewGrabCut(Options{WorkSize: 256}, nil).Segment(context.Background(), img)
	require.NoError(t, err)
	require.Equal(t, uint8(255), mask.At(500, 380))
	require.Equal(t, uint8(0), mask.At(20, 20))
	require.Equal(t, uint8(0), mask.At(1000, 740))
}

func TestGrabCut_Deterministic(t *testing.T) {
	t.Parallel()

	img := image.NewNRGBA(image.Rect(0, 0, 48, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 48; x++ {
			c := color.NRGBA{R: uint8(200 + (x*7+y*3)%40), G: uint8(200 + (x*5)%40), B: uint8(190 + (y*11)%50), A: 255}
			if x > 12 && x < 36 && y > 8 && y < 32 {
				c = color.NRGBA{R: uint8(30 + (x*13)%60), G: uint8(90 + (y*7)%50), B: 40, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}

	seg := NewGrabCut(DefaultOptions(), nil)
	first, err1 := seg.Segment(context.Background(), img)
	second, err2 := seg.Segment(context.Background(), img)
	require.Equal(t, err1, err2)
	require.Equal(t, first, second)
}

func TestGrabCut_UniformImageIsWeak(t *testing.T) {
	t.Parallel()

	img := image.NewNRGBA(image.Rect(0, 0, 32, 24))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 90, G: 90, B: 90, A: 255}), image.Point{}, draw.Src)

	mask, err := NewGrabCut(DefaultOptions(), nil).Segment(context.Background(), img)
	require.ErrorIs(t, err, ErrWeakSegmentation)
	require.NotNil(t, mask)
	require.Equal(t, 32, mask.Width)
	require.Zero(t, mask.Foreground())
}

func TestGrabCut_MinForeground(t *testing.T) {
	t.Parallel()

	img := squareOnWhite(80, 80, image.Rect(36, 36, 44, 44), red)

	_, err := NewGrabCut(Options{MinForeground: 0.5}, nil).Segment(context.Background(), img)
	require.ErrorIs(t, err, ErrWeakSegmentation)
}

func TestGrabCut_FeatherSoftensEdges(t *testing.T) {
	t.Parallel()

	img := squareOnWhite(120, 120, image.Rect(30, 30, 90, 90), red)

	mask, err := NewGrabCut(Options{Feather: 2}, nil).Segment(context.Background(), img)
	require.NoError(t, err)
	require.Equal(t, uint8(255), mask.At(60, 60))
	require.Equal(t, uint8(0), mask.At(5, 5))

	soft := 0
	for _, a := range mask.Alpha {
		if a > 0 && a < 255 {
			soft++
		}
	}
	require.Positive(t, soft)
}

func TestGrabCut_EmptyImage(t *testing.T) {
	t.Parallel()

	_, err := NewGrabCut(DefaultOptions(), nil).Segment(context.Background(), image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	require.ErrorIs(t, err, ErrInternal)
}

func TestGrabCut_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	img := squareOnWhite(40, 40, image.Rect(10, 10, 30, 30), red)
	_, err := NewGrabCut(DefaultOptions(), nil).Segment(ctx, img)
	require.ErrorIs(t, err, context.Canceled)
}
