package clustering

import (
	"math"

	shared "segmentation/internal/shared/domain"
)

// Noise étiquette des points isolés par DBSCAN
const Noise = -1

// DBSCANOptions paramètres de DBSCAN
type DBSCANOptions struct {
	Eps float64
	// MinSamples voisins requis (point lui-même inclus) pour un point cœur
	MinSamples int
}

// DBSCANResult affectation par densité
type DBSCANResult struct {
	Labels   []int
	Core     []bool
	Clusters int
}

// DBSCAN regroupe par densité ; les clusters sont numérotés dans l'ordre de découverte des points cœurs
func DBSCAN(x [][]float64, opts DBSCANOptions) (*DBSCANResult, error) {
	if err := CheckMatrix(x); err != nil {
		return nil, err
	}
	if opts.Eps <= 0 {
		return nil, shared.NewInvalidParameter("eps", "doit être > 0, reçu %g", opts.Eps)
	}
	if opts.MinSamples < 1 {
		return nil, shared.NewInvalidParameter("min_samples", "doit être >= 1, reçu %d", opts.MinSamples)
	}

	n := len(x)
	eps2 := opts.Eps * opts.Eps
	neighbors := make([][]int, n)
	core := make([]bool, n)
	for i := range x {
		for j := range x {
			if sqDist(x[i], x[j]) <= eps2 {
				neighbors[i] = append(neighbors[i], j)
			}
		}
		core[i] = len(neighbors[i]) >= opts.MinSamples
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}

	cluster := 0
	for i := range x {
		if labels[i] != Noise || !core[i] {
			continue
		}
		labels[i] = cluster
		queue := []int{i}
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			if !core[p] {
				continue
			}
			for _, q := range neighbors[p] {
				if labels[q] == Noise {
					labels[q] = cluster
					queue = append(queue, q)
				}
			}
		}
		cluster++
	}

	return &DBSCANResult{Labels: labels, Core: core, Clusters: cluster}, nil
}

// PredictDensity affecte chaque ligne au cluster du point cœur le plus proche à distance <= eps, sinon Noise
func PredictDensity(x, train [][]float64, core []bool, labels []int, eps float64) []int {
	eps2 := eps * eps
	out := make([]int, len(x))
	for i, row := range x {
		out[i] = Noise
		best := math.Inf(1)
		for j, t := range train {
			if !core[j] {
				continue
			}
			if d := sqDist(row, t); d <= eps2 && d < best {
				best = d
				out[i] = labels[j]
			}
		}
	}
	return out
}
