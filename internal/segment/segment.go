// Package segment separates a product from its background. The default
// Segmenter is a GrabCut-style iterative classifier: Gaussian mixture colour
// models for foreground and background, refined with a contrast-sensitive
// smoothness term.
package segment

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrWeakSegmentation is returned together with the mask when no
	// confident foreground was found.
	ErrWeakSegmentation = errors.New("weak segmentation")
	ErrInternal         = errors.New("segmentation internal error")
)

// Segmenter produces an alpha mask with the same dimensions as img.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (*Mask, error)
}

type Options struct {
	// Iterations bounds the refinement loop; it stops early once no label changes.
	Iterations int
	// Margin is the fraction of each side treated as certain background.
	// Zero means a one pixel border.
	Margin float64
	// WorkSize caps the long edge of the image the classifier runs on.
	WorkSize int
	// Dilate is the number of 3x3 dilation passes applied to the foreground.
	Dilate int
	// Feather is the Gaussian sigma, in source pixels, used to soften edges.
	Feather float64
	// MinForeground is the coverage below which the result counts as weak.
	MinForeground float64
}

func DefaultOptions() Options {
	return Options{
		Iterations: 5,
		WorkSize:   512,
		Dilate:     1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Iterations <= 0 {
		o.Iterations = d.Iterations
	}
	if o.WorkSize <= 0 {
		o.WorkSize = d.WorkSize
	}
	if o.Margin < 0 || o.Margin >= 0.5 {
		o.Margin = 0
	}
	if o.Dilate < 0 {
		o.Dilate = 0
	}
	if o.Feather < 0 {
		o.Feather = 0
	}
	return o
}
