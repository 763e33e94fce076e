package clustering

import (
	"math"
	"sort"

	shared "segmentation/internal/shared/domain"
)

// scored points hors bruit, étiquettes renumérotées 0..k-1
type scored struct {
	x      [][]float64
	labels []int
	k      int
}

// prepare écarte le bruit et vérifie 2 <= k <= n-1
func prepare(x [][]float64, labels []int) (*scored, error) {
	if len(x) != len(labels) {
		return nil, shared.NewInvalidParameter("labels", "%d étiquettes pour %d lignes", len(labels), len(x))
	}
	remap := make(map[int]int)
	var keys []int
	s := &scored{}
	for i, l := range labels {
		if l < 0 {
			continue
		}
		if _, ok := remap[l]; !ok {
			remap[l] = -1
			keys = append(keys, l)
		}
		s.x = append(s.x, x[i])
		s.labels = append(s.labels, l)
	}
	sort.Ints(keys)
	for i, k := range keys {
		remap[k] = i
	}
	for i, l := range s.labels {
		s.labels[i] = remap[l]
	}
	s.k = len(keys)

	if s.k < 2 {
		return nil, shared.NewInvalidParameter("n_clusters", "au moins 2 clusters requis pour l'évaluation, %d trouvé(s)", s.k)
	}
	if s.k > len(s.x)-1 {
		return nil, shared.NewInvalidParameter("n_clusters", "%d clusters pour %d points évalués", s.k, len(s.x))
	}
	return s, nil
}

func (s *scored) centroids() ([][]float64, []int) {
	dim := len(s.x[0])
	centroids := make([][]float64, s.k)
	for c := range centroids {
		centroids[c] = make([]float64, dim)
	}
	counts := make([]int, s.k)
	for i, row := range s.x {
		c := s.labels[i]
		counts[c]++
		for j, v := range row {
			centroids[c][j] += v
		}
	}
	for c := range centroids {
		for j := range centroids[c] {
			centroids[c][j] /= float64(counts[c])
		}
	}
	return centroids, counts
}

// Silhouette coefficient de silhouette moyen, dans [-1, 1] (bruit exclu)
func Silhouette(x [][]float64, labels []int) (float64, error) {
	s, err := prepare(x, labels)
	if err != nil {
		return 0, err
	}

	n := len(s.x)
	counts := make([]int, s.k)
	for _, l := range s.labels {
		counts[l]++
	}

	total := 0.0
	sums := make([]float64, s.k)
	for i := 0; i < n; i++ {
		for c := range sums {
			sums[c] = 0
		}
		for j := 0; j < n; j++ {
			if i != j {
				sums[s.labels[j]] += math.Sqrt(sqDist(s.x[i], s.x[j]))
			}
		}
		own := s.labels[i]
		if counts[own] <= 1 {
			// Cluster singleton: silhouette nulle par convention
			continue
		}
		a := sums[own] / float64(counts[own]-1)
		b := math.Inf(1)
		for c := 0; c < s.k; c++ {
			if c != own {
				b = math.Min(b, sums[c]/float64(counts[c]))
			}
		}
		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(n), nil
}

// CalinskiHarabasz ratio dispersion inter / intra pondéré ; plus grand = meilleur
func CalinskiHarabasz(x [][]float64, labels []int) (float64, error) {
	s, err := prepare(x, labels)
	if err != nil {
		return 0, err
	}
	n := len(s.x)
	dim := len(s.x[0])

	overall := make([]float64, dim)
	for _, row := range s.x {
		for j, v := range row {
			overall[j] += v
		}
	}
	for j := range overall {
		overall[j] /= float64(n)
	}

	centroids, counts := s.centroids()
	between, within := 0.0, 0.0
	for c, centroid := range centroids {
		between += float64(counts[c]) * sqDist(centroid, overall)
	}
	for i, row := range s.x {
		within += sqDist(row, centroids[s.labels[i]])
	}
	if within == 0 {
		return 1, nil
	}
	return between * float64(n-s.k) / (within * float64(s.k-1)), nil
}

// DaviesBouldin moyenne des pires ratios de similarité ; plus petit = meilleur (>= 0)
func DaviesBouldin(x [][]float64, labels []int) (float64, error) {
	s, err := prepare(x, labels)
	if err != nil {
		return 0, err
	}
	centroids, counts := s.centroids()

	spread := make([]float64, s.k)
	for i, row := range s.x {
		c := s.labels[i]
		spread[c] += math.Sqrt(sqDist(row, centroids[c]))
	}
	for c := range spread {
		spread[c] /= float64(counts[c])
	}

	total := 0.0
	for i := 0; i < s.k; i++ {
		worst := 0.0
		for j := 0; j < s.k; j++ {
			if i == j {
				continue
			}
			d := math.Sqrt(sqDist(centroids[i], centroids[j]))
			if d == 0 {
				continue
			}
			worst = math.Max(worst, (spread[i]+spread[j])/d)
		}
		total += worst
	}
	return total / float64(s.k), nil
}
