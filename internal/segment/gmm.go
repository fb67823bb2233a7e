package segment

import (
	"errors"
	"math"

	"github.com/muesli/clusters"
	"gonum.org/v1/gonum/mat"
)

const (
	gmmComponents     = 5
	covRegularization = 0.01
	maxSeedSamples    = 20000
	lloydIterations   = 10
	log2Pi            = 1.8378770664093453
)

// component is one full-covariance Gaussian of a colour model.
type component struct {
	weight  float64
	mean    [3]float64
	inv     [3][3]float64
	logNorm float64 // log(weight) - 0.5*log|Σ| - 1.5*log(2π)
}

// gmm is a Gaussian mixture over Lab features.
type gmm struct {
	comps []component
}

// logLikelihood returns log Σ_k π_k N(x; μ_k, Σ_k).
func (g *gmm) logLikelihood(x clusters.Coordinates) float64 {
	best := math.Inf(-1)
	var terms [gmmComponents]float64
	for k := range g.comps {
		terms[k] = g.comps[k].logTerm(x)
		if terms[k] > best {
			best = terms[k]
		}
	}
	if math.IsInf(best, -1) {
		return best
	}
	var sum float64
	for _, t := range terms[:len(g.comps)] {
		sum += math.Exp(t - best)
	}
	return best + math.Log(sum)
}

// nearest returns the component with the largest weighted density at x.
func (g *gmm) nearest(x clusters.Coordinates) int {
	best, bestIdx := math.Inf(-1), 0
	for k := range g.comps {
		if t := g.comps[k].logTerm(x); t > best {
			best, bestIdx = t, k
		}
	}
	return bestIdx
}

func (c *component) logTerm(x clusters.Coordinates) float64 {
	d0, d1, d2 := x[0]-c.mean[0], x[1]-c.mean[1], x[2]-c.mean[2]
	q := d0*(c.inv[0][0]*d0+c.inv[0][1]*d1+c.inv[0][2]*d2) +
		d1*(c.inv[1][0]*d0+c.inv[1][1]*d1+c.inv[1][2]*d2) +
		d2*(c.inv[2][0]*d0+c.inv[2][1]*d1+c.inv[2][2]*d2)
	return c.logNorm - 0.5*q
}

var errNoSamples = errors.New("no samples")

// fitGMM clusters samples into at most gmmComponents groups and estimates
// one Gaussian per non-empty group. Seeding is farthest-point from the sample
// mean, so the result depends only on the input order.
func fitGMM(samples []clusters.Coordinates) (*gmm, error) {
	if len(samples) == 0 {
		return nil, errNoSamples
	}

	obs := subsample(samples, maxSeedSamples)
	cc := seedClusters(obs, gmmComponents)

	assign := make([]int, len(obs))
	for i := range assign {
		assign[i] = -1
	}
	for iter := 0; iter < lloydIterations; iter++ {
		cc.Reset()
		changed := 0
		for i, o := range obs {
			n := cc.Nearest(o)
			if n != assign[i] {
				assign[i] = n
				changed++
			}
			cc[n].Append(o)
		}
		cc.Recenter()
		if changed == 0 {
			break
		}
	}

	labels := make([]int, len(samples))
	for i, s := range samples {
		labels[i] = cc.Nearest(s)
	}
	return estimateGMM(samples, labels, len(cc))
}

// refit re-estimates g from samples, assigning each sample to its most
// likely current component first.
func (g *gmm) refit(samples []clusters.Coordinates) (*gmm, error) {
	if len(samples) == 0 {
		return nil, errNoSamples
	}
	labels := make([]int, len(samples))
	for i, s := range samples {
		labels[i] = g.nearest(s)
	}
	return estimateGMM(samples, labels, len(g.comps))
}

func subsample(samples []clusters.Coordinates, limit int) clusters.Observations {
	step := 1
	if len(samples) > limit {
		step = (len(samples) + limit - 1) / limit
	}
	obs := make(clusters.Observations, 0, len(samples)/step+1)
	for i := 0; i < len(samples); i += step {
		obs = append(obs, samples[i])
	}
	return obs
}

func seedClusters(obs clusters.Observations, k int) clusters.Clusters {
	center, _ := obs.Center()
	seeds := []clusters.Coordinates{center}

	minDist := make([]float64, len(obs))
	for i, o := range obs {
		minDist[i] = o.Distance(center)
	}
	for len(seeds) < k {
		far, farDist := -1, 1e-9
		for i, d := range minDist {
			if d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			break
		}
		seed := append(clusters.Coordinates(nil), obs[far].Coordinates()...)
		seeds = append(seeds, seed)
		for i, o := range obs {
			if d := o.Distance(seed); d < minDist[i] {
				minDist[i] = d
			}
		}
	}

	cc := make(clusters.Clusters, len(seeds))
	for i, s := range seeds {
		cc[i] = clusters.Cluster{Center: s}
	}
	return cc
}

func estimateGMM(samples []clusters.Coordinates, labels []int, k int) (*gmm, error) {
	counts := make([]int, k)
	sums := make([][3]float64, k)
	for i, s := range samples {
		l := labels[i]
		counts[l]++
		sums[l][0] += s[0]
		sums[l][1] += s[1]
		sums[l][2] += s[2]
	}

	means := make([][3]float64, k)
	covs := make([]*mat.SymDense, k)
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue
		}
		n := float64(counts[c])
		means[c] = [3]float64{sums[c][0] / n, sums[c][1] / n, sums[c][2] / n}
		covs[c] = mat.NewSymDense(3, nil)
	}
	for i, s := range samples {
		l := labels[i]
		d := [3]float64{s[0] - means[l][0], s[1] - means[l][1], s[2] - means[l][2]}
		for r := 0; r < 3; r++ {
			for c := r; c < 3; c++ {
				covs[l].SetSym(r, c, covs[l].At(r, c)+d[r]*d[c])
			}
		}
	}

	out := &gmm{}
	total := float64(len(samples))
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue
		}
		n := float64(counts[c])
		cov := covs[c]
		for r := 0; r < 3; r++ {
			for col := r; col < 3; col++ {
				v := cov.At(r, col) / n
				if r == col {
					v += covRegularization
				}
				cov.SetSym(r, col, v)
			}
		}

		comp, err := newComponent(n/total, means[c], cov)
		if err != nil {
			return nil, err
		}
		out.comps = append(out.comps, comp)
	}
	return out, nil
}

func newComponent(weight float64, mean [3]float64, cov *mat.SymDense) (component, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		for i := 0; i < 3; i++ {
			cov.SetSym(i, i, cov.At(i, i)+1)
		}
		if ok := chol.Factorize(cov); !ok {
			return component{}, errors.New("covariance is not positive definite")
		}
	}

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return component{}, err
	}

	c := component{
		weight:  weight,
		mean:    mean,
		logNorm: math.Log(weight) - 0.5*chol.LogDet() - 1.5*log2Pi,
	}
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			c.inv[r][col] = inv.At(r, col)
		}
	}
	return c, nil
}
