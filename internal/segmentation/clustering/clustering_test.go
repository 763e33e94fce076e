package clustering_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"segmentation/internal/segmentation/clustering"
	shared "segmentation/internal/shared/domain"
)

// blobs deux nuages gaussiens bien séparés en 2D
func blobs(n int, seed uint64) [][]float64 {
	src := rand.NewSource(seed)
	noise := distuv.Normal{Mu: 0, Sigma: 0.3, Src: src}
	x := make([][]float64, n)
	for i := range x {
		cx := 0.0
		if i%2 == 1 {
			cx = 10
		}
		x[i] = []float64{cx + noise.Rand(), cx + noise.Rand()}
	}
	return x
}

func TestKMeans_SeparatesBlobs(t *testing.T) {
	x := blobs(100, 7)
	res, err := clustering.KMeans(context.Background(), x, clustering.KMeansOptions{K: 2, NInit: 5, Seed: 42})
	require.NoError(t, err)

	require.Len(t, res.Labels, 100)
	for i := 2; i < len(x); i++ {
		assert.Equal(t, res.Labels[i%2], res.Labels[i], "row %d", i)
	}
	assert.NotEqual(t, res.Labels[0], res.Labels[1])
	assert.Len(t, res.Centroids, 2)
	assert.Greater(t, res.Inertia, 0.0)
}

func TestKMeans_Deterministic(t *testing.T) {
	x := blobs(60, 3)
	opts := clustering.KMeansOptions{K: 3, NInit: 4, Seed: 11}
	a, err := clustering.KMeans(context.Background(), x, opts)
	require.NoError(t, err)
	b, err := clustering.KMeans(context.Background(), x, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Centroids, b.Centroids)
}

func TestKMeans_PredictMatchesFit(t *testing.T) {
	x := blobs(80, 5)
	res, err := clustering.KMeans(context.Background(), x, clustering.KMeansOptions{K: 2, NInit: 3, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, res.Labels, clustering.PredictNearest(x, res.Centroids))
}

func TestKMeans_InvalidInput(t *testing.T) {
	ctx := context.Background()
	var invalid *shared.ErrInvalidParameter

	_, err := clustering.KMeans(ctx, nil, clustering.KMeansOptions{K: 2})
	assert.True(t, errors.As(err, &invalid))

	_, err = clustering.KMeans(ctx, [][]float64{{1}, {2}}, clustering.KMeansOptions{K: 3})
	assert.True(t, errors.As(err, &invalid))

	_, err = clustering.KMeans(ctx, [][]float64{{1, 2}, {3}}, clustering.KMeansOptions{K: 1})
	assert.True(t, errors.As(err, &invalid))
}

func TestKMeans_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := clustering.KMeans(ctx, blobs(20, 1), clustering.KMeansOptions{K: 2, NInit: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDBSCAN_MarksOutlierAsNoise(t *testing.T) {
	x := blobs(40, 9)
	x = append(x, []float64{50, 50})

	res, err := clustering.DBSCAN(x, clustering.DBSCANOptions{Eps: 1.5, MinSamples: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Clusters)
	assert.Equal(t, clustering.Noise, res.Labels[len(x)-1])
	assert.NotEqual(t, res.Labels[0], res.Labels[1])

	pred := clustering.PredictDensity([][]float64{{0, 0}, {10, 10}, {-40, 3}}, x, res.Core, res.Labels, 1.5)
	assert.Equal(t, res.Labels[0], pred[0])
	assert.Equal(t, res.Labels[1], pred[1])
	assert.Equal(t, clustering.Noise, pred[2])
}

func TestDBSCAN_InvalidParameters(t *testing.T) {
	var invalid *shared.ErrInvalidParameter
	_, err := clustering.DBSCAN([][]float64{{1}}, clustering.DBSCANOptions{Eps: 0, MinSamples: 2})
	assert.True(t, errors.As(err, &invalid))
	_, err = clustering.DBSCAN([][]float64{{1}}, clustering.DBSCANOptions{Eps: 1, MinSamples: 0})
	assert.True(t, errors.As(err, &invalid))
}

func TestQualityScores(t *testing.T) {
	x := blobs(60, 2)
	labels := make([]int, len(x))
	for i := range labels {
		labels[i] = i % 2
	}

	sil, err := clustering.Silhouette(x, labels)
	require.NoError(t, err)
	assert.Greater(t, sil, 0.8)
	assert.LessOrEqual(t, sil, 1.0)

	ch, err := clustering.CalinskiHarabasz(x, labels)
	require.NoError(t, err)
	assert.Greater(t, ch, 100.0)

	db, err := clustering.DaviesBouldin(x, labels)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, db, 0.0)
	assert.Less(t, db, 0.5)

	// Un mauvais partitionnement dégrade la silhouette
	bad := make([]int, len(x))
	for i := range bad {
		bad[i] = (i / 2) % 2
	}
	worse, err := clustering.Silhouette(x, bad)
	require.NoError(t, err)
	assert.Less(t, worse, sil)
	assert.GreaterOrEqual(t, worse, -1.0)
}

func TestQualityScores_IgnoreNoise(t *testing.T) {
	x := [][]float64{{0, 0}, {0, 1}, {10, 10}, {10, 11}, {100, 100}}
	labels := []int{0, 0, 1, 1, clustering.Noise}
	withNoise, err := clustering.Silhouette(x, labels)
	require.NoError(t, err)
	without, err := clustering.Silhouette(x[:4], labels[:4])
	require.NoError(t, err)
	assert.InDelta(t, without, withNoise, 1e-12)
}

func TestQualityScores_DegenerateClusterCount(t *testing.T) {
	var invalid *shared.ErrInvalidParameter
	x := [][]float64{{0}, {1}, {2}}

	_, err := clustering.Silhouette(x, []int{0, 0, 0})
	assert.True(t, errors.As(err, &invalid))

	_, err = clustering.CalinskiHarabasz(x, []int{0, 1, 2})
	assert.True(t, errors.As(err, &invalid))

	_, err = clustering.DaviesBouldin(x, []int{0, clustering.Noise, clustering.Noise})
	assert.True(t, errors.As(err, &invalid))
}

func TestCalinskiHarabasz_ZeroWithinDispersion(t *testing.T) {
	x := [][]float64{{0}, {0}, {5}, {5}}
	ch, err := clustering.CalinskiHarabasz(x, []int{0, 0, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, ch)
}

func TestSelectK_PrefersTrueClusterCount(t *testing.T) {
	scores, best, err := clustering.SelectK(context.Background(), blobs(60, 4), 2, 5, clustering.KMeansOptions{NInit: 3, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, 2, best)
	require.Len(t, scores, 4)
	for i, s := range scores {
		assert.Equal(t, 2+i, s.K)
		assert.Greater(t, s.Inertia, 0.0)
	}
	assert.Greater(t, scores[0].Silhouette, scores[3].Silhouette)
}

func TestSelectK_InvalidRange(t *testing.T) {
	var invalid *shared.ErrInvalidParameter
	_, _, err := clustering.SelectK(context.Background(), blobs(10, 1), 1, 3, clustering.KMeansOptions{})
	assert.True(t, errors.As(err, &invalid))
	_, _, err = clustering.SelectK(context.Background(), blobs(2, 1), 2, 3, clustering.KMeansOptions{})
	assert.True(t, errors.As(err, &invalid))
}
