// Package export composites a segmentation mask onto its source image,
// upscales the result and writes it in a lossless alpha-capable format.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"douyin-image-miner/internal/segment"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/tiff"
)

var ErrEncode = errors.New("encode failed")

type Format string

const (
	PNG  Format = "png"
	TIFF Format = "tiff"
)

// ParseFormat accepts png and tiff. Formats that cannot carry alpha, such as
// jpeg, are rejected with ErrEncode.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "png":
		return PNG, nil
	case "tif", "tiff":
		return TIFF, nil
	default:
		return "", fmt.Errorf("%w: format %q has no lossless alpha channel", ErrEncode, raw)
	}
}

func (f Format) Ext() string { return "." + string(f) }

// ExportedImage is a finished RGBA image; Path is set once it is on disk.
type ExportedImage struct {
	Width  int
	Height int
	Pixels *image.NRGBA
	Path   string
}

// Composite copies the colour of img and takes alpha from mask, pixel for pixel.
func Composite(img image.Image, mask *segment.Mask) (*image.NRGBA, error) {
	b := img.Bounds()
	if !mask.Valid() || mask.Width != b.Dx() || mask.Height != b.Dy() {
		return nil, fmt.Errorf("%w: mask does not match image %dx%d", segment.ErrInternal, b.Dx(), b.Dy())
	}

	src := imaging.Clone(img)
	out := image.NewNRGBA(image.Rect(0, 0, mask.Width, mask.Height))
	for y := 0; y < mask.Height; y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+mask.Width*4]
		drow := out.Pix[y*out.Stride : y*out.Stride+mask.Width*4]
		copy(drow, srow)
		for x := 0; x < mask.Width; x++ {
			drow[x*4+3] = mask.Alpha[y*mask.Width+x]
		}
	}
	return out, nil
}

type Scale struct {
	Factor      float64
	MaxLongEdge int
}

// Effective returns the factor actually applied to an image whose long edge
// is longEdge: Factor capped so the result stays within MaxLongEdge.
func (s Scale) Effective(longEdge int) float64 {
	f := s.Factor
	if s.MaxLongEdge > 0 && longEdge > 0 {
		f = math.Min(f, float64(s.MaxLongEdge)/float64(longEdge))
	}
	return f
}

// Upscale enlarges img by the effective factor, keeping the aspect ratio.
// Resampling is alpha weighted so transparent pixels do not bleed colour
// into the edges. Factors at or below 1 return img unchanged.
func Upscale(img *image.NRGBA, s Scale) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	f := s.Effective(max(w, h))
	if f <= 1 {
		return img
	}
	nw := max(1, int(math.Round(float64(w)*f)))
	nh := max(1, int(math.Round(float64(h)*f)))
	if nw == w && nh == h {
		return img
	}
	return imaging.Resize(img, nw, nh, imaging.Lanczos)
}

func Encode(w io.Writer, img image.Image, f Format) error {
	var err error
	switch f {
	case PNG:
		err = encodePNG(w, img)
	case TIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		return fmt.Errorf("%w: unsupported format %q", ErrEncode, f)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return nil
}

// FileName is <product_id>_<ordinal> plus the format extension.
func FileName(productID uint64, ordinal int, f Format) string {
	return fmt.Sprintf("%d_%d%s", productID, ordinal, f.Ext())
}

type Exporter struct {
	dir    string
	format Format
	scale  Scale
	logger *zap.SugaredLogger
}

func NewExporter(dir string, format Format, scale Scale, logger *zap.SugaredLogger) *Exporter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if format == "" {
		format = PNG
	}
	return &Exporter{dir: dir, format: format, scale: scale, logger: logger}
}

// Export composites, upscales and atomically writes one image. A failure
// never leaves a partial file at the final path.
func (e *Exporter) Export(ctx context.Context, img image.Image, mask *segment.Mask, productID uint64, ordinal int) (ExportedImage, error) {
	composite, err := Composite(img, mask)
	if err != nil {
		return ExportedImage{}, err
	}
	if err := ctx.Err(); err != nil {
		return ExportedImage{}, err
	}
	out := Upscale(composite, e.scale)

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return ExportedImage{}, fmt.Errorf("%w: ensure output dir: %w", ErrEncode, err)
	}
	path := filepath.Join(e.dir, FileName(productID, ordinal, e.format))
	if err := writeAtomic(path, func(w io.Writer) error { return Encode(w, out, e.format) }); err != nil {
		return ExportedImage{}, err
	}

	e.logger.Debugw("image_written",
		"path", path,
		"width", out.Bounds().Dx(),
		"height", out.Bounds().Dy(),
		"source_width", composite.Bounds().Dx(),
	)
	return ExportedImage{
		Width:  out.Bounds().Dx(),
		Height: out.Bounds().Dy(),
		Pixels: out,
		Path:   path,
	}, nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", ErrEncode, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrEncode, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: rename: %w", ErrEncode, err)
	}
	return nil
}
