package segment

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
)

const (
	smoothness   = 50.0
	icmSweeps    = 2
	labelEpsilon = 1e-6
)

type class uint8

const (
	classBG class = iota
	classFG
	classPRBG
	classPRFG
)

func (c class) foreground() bool { return c == classFG || c == classPRFG }

func (c class) probable() bool { return c == classPRBG || c == classPRFG }

// GrabCut is the default Segmenter. It holds no mutable state and is safe
// for concurrent use.
type GrabCut struct {
	opts   Options
	logger *zap.SugaredLogger
}

func NewGrabCut(opts Options, logger *zap.SugaredLogger) *GrabCut {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &GrabCut{opts: opts.withDefaults(), logger: logger}
}

func (g *GrabCut) Segment(ctx context.Context, img image.Image) (*Mask, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInternal)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInternal)
	}

	work := workingCopy(img, g.opts.WorkSize)
	labels, iterations, err := g.classify(ctx, work)
	if err != nil {
		return nil, err
	}

	ww, wh := work.Bounds().Dx(), work.Bounds().Dy()
	wm := NewMask(ww, wh)
	for i, c := range labels {
		if c.foreground() {
			wm.Alpha[i] = 255
		}
	}
	removeIslands(wm, max(1, ww*wh/1000))
	dilate(wm, g.opts.Dilate)

	mask := resample(wm, w, h)
	if g.opts.Feather > 0 {
		feather(mask, g.opts.Feather)
	}
	if !mask.Valid() || mask.Width != w || mask.Height != h {
		return nil, fmt.Errorf("%w: mask %dx%d for image %dx%d", ErrInternal, mask.Width, mask.Height, w, h)
	}

	coverage := mask.Coverage()
	g.logger.Debugw("segment_done",
		"width", w,
		"height", h,
		"work_width", ww,
		"work_height", wh,
		"iterations", iterations,
		"coverage", coverage,
	)
	if mask.Foreground() == 0 || coverage < g.opts.MinForeground {
		return mask, fmt.Errorf("%w: foreground coverage %.4f", ErrWeakSegmentation, coverage)
	}
	return mask, nil
}

// classify runs the iterative labelling on img and returns one class per
// pixel in row-major order together with the number of iterations run.
func (g *GrabCut) classify(ctx context.Context, img *image.NRGBA) ([]class, int, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	n := w * h

	feats := labFeatures(img)
	labels := initialTrimap(img, g.opts.Margin)

	var fgSamples, bgSamples []clusters.Coordinates
	for i, c := range labels {
		if c.foreground() {
			fgSamples = append(fgSamples, feats[i])
		} else {
			bgSamples = append(bgSamples, feats[i])
		}
	}
	if len(fgSamples) == 0 || len(bgSamples) == 0 {
		return labels, 0, nil
	}

	fgModel, err := fitGMM(fgSamples)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: foreground model: %w", ErrInternal, err)
	}
	bgModel, err := fitGMM(bgSamples)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: background model: %w", ErrInternal, err)
	}

	graph := newContrastGraph(feats, w, h)
	dataFG := make([]float64, n)
	dataBG := make([]float64, n)

	iter := 0
	for iter < g.opts.Iterations {
		if err := ctx.Err(); err != nil {
			return nil, iter, err
		}
		iter++

		next := make([]class, n)
		for i, c := range labels {
			if !c.probable() {
				next[i] = c
				continue
			}
			dataFG[i] = -fgModel.logLikelihood(feats[i])
			dataBG[i] = -bgModel.logLikelihood(feats[i])
			if dataFG[i] < dataBG[i]-labelEpsilon {
				next[i] = classPRFG
			} else {
				next[i] = classPRBG
			}
		}
		for s := 0; s < icmSweeps; s++ {
			graph.sweep(next, dataFG, dataBG)
		}

		changed := 0
		for i := range next {
			if next[i] != labels[i] {
				changed++
			}
		}
		labels = next
		if changed == 0 {
			break
		}

		fgSamples, bgSamples = fgSamples[:0], bgSamples[:0]
		for i, c := range labels {
			if c.foreground() {
				fgSamples = append(fgSamples, feats[i])
			} else {
				bgSamples = append(bgSamples, feats[i])
			}
		}
		if len(fgSamples) == 0 {
			break
		}
		if fgModel, err = fgModel.refit(fgSamples); err != nil {
			return nil, iter, fmt.Errorf("%w: foreground model: %w", ErrInternal, err)
		}
		if bgModel, err = bgModel.refit(bgSamples); err != nil {
			return nil, iter, fmt.Errorf("%w: background model: %w", ErrInternal, err)
		}
	}
	return labels, iter, nil
}

// labFeatures converts every pixel to CIE Lab scaled to the usual 0..100 range.
func labFeatures(img *image.NRGBA) []clusters.Coordinates {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	backing := make([]float64, 3*w*h)
	feats := make([]clusters.Coordinates, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			c := colorful.Color{R: float64(px[0]) / 255, G: float64(px[1]) / 255, B: float64(px[2]) / 255}
			l, a, bb := c.Lab()

			i := y*w + x
			f := backing[3*i : 3*i+3 : 3*i+3]
			f[0], f[1], f[2] = l*100, a*100, bb*100
			feats[i] = f
		}
	}
	return feats
}

// initialTrimap marks the border band and fully transparent pixels as
// certain background and everything else as probable foreground.
func initialTrimap(img *image.NRGBA, margin float64) []class {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	mx := max(1, int(math.Round(margin*float64(w))))
	my := max(1, int(math.Round(margin*float64(h))))

	labels := make([]class, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			alpha := img.Pix[y*img.Stride+x*4+3]
			if x < mx || x >= w-mx || y < my || y >= h-my || alpha == 0 {
				labels[i] = classBG
				continue
			}
			labels[i] = classPRFG
		}
	}
	return labels
}

var neighbours = [8]struct {
	dx, dy int
	dist   float64
}{
	{-1, -1, math.Sqrt2}, {0, -1, 1}, {1, -1, math.Sqrt2},
	{-1, 0, 1}, {1, 0, 1},
	{-1, 1, math.Sqrt2}, {0, 1, 1}, {1, 1, math.Sqrt2},
}

// contrastGraph holds the 8-neighbour smoothness weights
// γ·exp(-β‖zᵢ-zⱼ‖²)/dist(i,j), with β = 1/(2·mean‖zᵢ-zⱼ‖²).
type contrastGraph struct {
	w, h    int
	weights []float64 // n*8, indexed by neighbours
}

func newContrastGraph(feats []clusters.Coordinates, w, h int) *contrastGraph {
	var sum float64
	var pairs int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			for _, nb := range neighbours[4:] {
				nx, ny := x+nb.dx, y+nb.dy
				if nx < 0 || nx >= w || ny >= h {
					continue
				}
				sum += sqDist(feats[i], feats[ny*w+nx])
				pairs++
			}
		}
	}
	beta := 0.0
	if pairs > 0 && sum > 0 {
		beta = 1 / (2 * sum / float64(pairs))
	}

	g := &contrastGraph{w: w, h: h, weights: make([]float64, w*h*len(neighbours))}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			for k, nb := range neighbours {
				nx, ny := x+nb.dx, y+nb.dy
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				d := sqDist(feats[i], feats[ny*w+nx])
				g.weights[i*len(neighbours)+k] = smoothness * math.Exp(-beta*d) / nb.dist
			}
		}
	}
	return g
}

// sweep is one in-place raster ICM pass over the probable pixels.
func (g *contrastGraph) sweep(labels []class, dataFG, dataBG []float64) {
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			i := y*g.w + x
			if !labels[i].probable() {
				continue
			}
			costFG, costBG := dataFG[i], dataBG[i]
			for k, nb := range neighbours {
				nx, ny := x+nb.dx, y+nb.dy
				if nx < 0 || nx >= g.w || ny < 0 || ny >= g.h {
					continue
				}
				wt := g.weights[i*len(neighbours)+k]
				if labels[ny*g.w+nx].foreground() {
					costBG += wt
				} else {
					costFG += wt
				}
			}
			if costFG < costBG-labelEpsilon {
				labels[i] = classPRFG
			} else {
				labels[i] = classPRBG
			}
		}
	}
}

func sqDist(a, b clusters.Coordinates) float64 {
	d0, d1, d2 := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return d0*d0 + d1*d1 + d2*d2
}

func workingCopy(img image.Image, limit int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	long := max(w, h)
	if long <= limit {
		return imaging.Clone(img)
	}

	scale := float64(limit) / float64(long)
	ww := max(1, int(math.Round(float64(w)*scale)))
	wh := max(1, int(math.Round(float64(h)*scale)))
	dst := image.NewNRGBA(image.Rect(0, 0, ww, wh))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
