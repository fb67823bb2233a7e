package segment

import (
	"testing"

	"github.com/muesli/clusters"
	"github.com/stretchr/testify/require"
)

func TestFitGMM_SeparatesColours(t *testing.T) {
	t.Parallel()

	var samples []clusters.Coordinates
	for i := 0; i < 300; i++ {
		samples = append(samples, clusters.Coordinates{95 + float64(i%3), 0, float64(i % 2)})
	}
	for i := 0; i < 100; i++ {
		samples = append(samples, clusters.Coordinates{45, 70 + float64(i%4), 50})
	}

	g, err := fitGMM(samples)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(g.comps), 2)
	require.LessOrEqual(t, len(g.comps), gmmComponents)

	var total float64
	for _, c := range g.comps {
		total += c.weight
	}
	require.InDelta(t, 1.0, total, 1e-9)

	white := clusters.Coordinates{96, 0, 0}
	far := clusters.Coordinates{10, -60, -60}
	require.Greater(t, g.logLikelihood(white), g.logLikelihood(far))
}

func TestFitGMM_SingleColour(t *testing.T) {
	t.Parallel()

	samples := make([]clusters.Coordinates, 50)
	for i := range samples {
		samples[i] = clusters.Coordinates{50, 10, 10}
	}

	g, err := fitGMM(samples)
	require.NoError(t, err)
	require.Len(t, g.comps, 1)

	refit, err := g.refit(samples)
	require.NoError(t, err)
	require.Equal(t, g.logLikelihood(samples[0]), refit.logLikelihood(samples[0]))
}

func TestFitGMM_NoSamples(t *testing.T) {
	t.Parallel()

	_, err := fitGMM(nil)
	require.ErrorIs(t, err, errNoSamples)
}
