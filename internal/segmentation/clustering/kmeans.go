package clustering

import (
	"context"
	"math"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	shared "segmentation/internal/shared/domain"
)

// KMeansOptions paramètres de K-means
type KMeansOptions struct {
	K       int
	NInit   int
	MaxIter int
	// Tol seuil de convergence relatif à la variance moyenne des features
	Tol  float64
	Seed int64
}

// KMeansResult meilleur des NInit essais (inertie minimale)
type KMeansResult struct {
	Centroids  [][]float64
	Labels     []int
	Inertia    float64
	Iterations int
}

// KMeans regroupe les lignes de x en K clusters.
// Initialisation k-means++, NInit essais en parallèle, graine de l'essai i = Seed + i.
func KMeans(ctx context.Context, x [][]float64, opts KMeansOptions) (*KMeansResult, error) {
	if err := CheckMatrix(x); err != nil {
		return nil, err
	}
	if opts.K < 1 {
		return nil, shared.NewInvalidParameter("n_clusters", "doit être >= 1, reçu %d", opts.K)
	}
	if opts.K > len(x) {
		return nil, shared.NewInvalidParameter("n_clusters", "%d clusters pour %d lignes", opts.K, len(x))
	}
	if opts.NInit < 1 {
		opts.NInit = 1
	}
	if opts.MaxIter < 1 {
		opts.MaxIter = 300
	}
	if opts.Tol <= 0 {
		opts.Tol = 1e-4
	}
	tol := opts.Tol * meanVariance(x)

	results := make([]*KMeansResult, opts.NInit)
	g, gctx := errgroup.WithContext(ctx)
	for run := 0; run < opts.NInit; run++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(uint64(opts.Seed) + uint64(run)))
			results[run] = lloyd(x, opts.K, opts.MaxIter, tol, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.Inertia < best.Inertia {
			best = r
		}
	}
	return best, nil
}

// PredictNearest affecte chaque ligne au centroïde le plus proche (égalité → plus petit indice)
func PredictNearest(x [][]float64, centroids [][]float64) []int {
	labels := make([]int, len(x))
	assign(x, centroids, labels)
	return labels
}

func lloyd(x [][]float64, k, maxIter int, tol float64, rng *rand.Rand) *KMeansResult {
	centroids := initPlusPlus(x, k, rng)
	labels := make([]int, len(x))

	iterations := 0
	for iterations < maxIter {
		iterations++
		assign(x, centroids, labels)
		next := updateCentroids(x, labels, centroids)

		shift := 0.0
		for c := range next {
			shift += sqDist(next[c], centroids[c])
		}
		centroids = next
		if shift <= tol {
			break
		}
	}

	// Affectation finale cohérente avec les centroïdes retournés
	inertia := assign(x, centroids, labels)
	return &KMeansResult{
		Centroids:  centroids,
		Labels:     labels,
		Inertia:    inertia,
		Iterations: iterations,
	}
}

// initPlusPlus tire les centroïdes initiaux proportionnellement à D²
func initPlusPlus(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(x)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(x[rng.Intn(n)]))

	d2 := make([]float64, n)
	for i := range x {
		d2[i] = sqDist(x[i], centroids[0])
	}

	for len(centroids) < k {
		total := floats.Sum(d2)
		next := rng.Intn(n)
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range d2 {
				acc += d
				if acc > target {
					next = i
					break
				}
			}
		}
		c := clone(x[next])
		centroids = append(centroids, c)
		for i := range x {
			if d := sqDist(x[i], c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centroids
}

// assign met à jour labels et retourne l'inertie (somme des distances² au centroïde)
func assign(x [][]float64, centroids [][]float64, labels []int) float64 {
	inertia := 0.0
	for i, row := range x {
		best, bestDist := 0, math.Inf(1)
		for c, centroid := range centroids {
			if d := sqDist(row, centroid); d < bestDist {
				best, bestDist = c, d
			}
		}
		labels[i] = best
		inertia += bestDist
	}
	return inertia
}

// updateCentroids recalcule les moyennes ; un cluster vide reprend le point le plus éloigné de son centroïde
func updateCentroids(x [][]float64, labels []int, prev [][]float64) [][]float64 {
	k, dim := len(prev), len(x[0])
	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	counts := make([]int, k)
	for i, row := range x {
		floats.Add(sums[labels[i]], row)
		counts[labels[i]]++
	}

	taken := make(map[int]bool)
	for c := range sums {
		if counts[c] > 0 {
			floats.Scale(1/float64(counts[c]), sums[c])
			continue
		}
		far, farDist := -1, -1.0
		for i, row := range x {
			if taken[i] {
				continue
			}
			if d := sqDist(row, prev[labels[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		taken[far] = true
		copy(sums[c], x[far])
	}
	return sums
}

func meanVariance(x [][]float64) float64 {
	dim := len(x[0])
	col := make([]float64, len(x))
	total := 0.0
	for j := 0; j < dim; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		if len(col) > 1 {
			total += stat.Variance(col, nil)
		}
	}
	return total / float64(dim)
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

// CheckMatrix refuse une matrice vide, irrégulière ou contenant NaN/Inf
func CheckMatrix(x [][]float64) error {
	if len(x) == 0 {
		return shared.NewInvalidParameter("matrix", "aucune ligne")
	}
	dim := len(x[0])
	if dim == 0 {
		return shared.NewInvalidParameter("matrix", "aucune feature")
	}
	for i, row := range x {
		if len(row) != dim {
			return shared.NewInvalidParameter("matrix", "ligne %d: %d colonnes, %d attendues", i, len(row), dim)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return shared.NewInvalidParameter("matrix", "valeur non finie en (%d, %d)", i, j)
			}
		}
	}
	return nil
}
