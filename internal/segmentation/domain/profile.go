package domain

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	datasetdomain "segmentation/internal/dataset/domain"
	shared "segmentation/internal/shared/domain"
)

// NoiseCluster identifiant des points non affectés (DBSCAN)
const NoiseCluster = -1

// FeatureStat statistiques d'une feature dans un cluster
type FeatureStat struct {
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// ClusterProfile portrait d'un cluster
type ClusterProfile struct {
	ClusterID  int
	Label      string
	Size       int
	Percentage float64
	// Features ordre des colonnes de Stats
	Features []string
	Stats    map[string]FeatureStat
	// KeyFeatures features les plus dispersées dans le cluster (importance), décroissant
	KeyFeatures []FeatureWeight
}

// Mean moyenne d'une feature (NaN si absente)
func (p ClusterProfile) Mean(feature string) float64 {
	s, ok := p.Stats[feature]
	if !ok {
		return math.NaN()
	}
	return s.Mean
}

// IsNoise indique le profil des points de bruit
func (p ClusterProfile) IsNoise() bool {
	return p.ClusterID == NoiseCluster
}

// FeatureWeight feature et son écart-type intra-cluster
type FeatureWeight struct {
	Feature string
	Std     float64
}

// FeatureImportance features d'un cluster triées par écart-type décroissant
type FeatureImportance struct {
	ClusterID int
	Features  []FeatureWeight
}

// Top retourne les n premières features
func (fi FeatureImportance) Top(n int) []FeatureWeight {
	if n > len(fi.Features) {
		n = len(fi.Features)
	}
	return append([]FeatureWeight(nil), fi.Features[:n]...)
}

// ClusterIDs identifiants présents dans l'affectation, bruit en dernier
func ClusterIDs(assignment []int) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, c := range assignment {
		if !seen[c] {
			seen[c] = true
			ids = append(ids, c)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if (ids[i] < 0) != (ids[j] < 0) {
			return ids[j] < 0
		}
		return ids[i] < ids[j]
	})
	return ids
}

// ComputeImportance écart-type (n-1) de chaque feature par cluster sur la matrice d'apprentissage.
// Égalité départagée par l'ordre des colonnes ; le bruit n'a pas d'importance.
func ComputeImportance(features []string, x [][]float64, assignment []int) []FeatureImportance {
	groups := make(map[int][]int)
	for i, c := range assignment {
		if c != NoiseCluster {
			groups[c] = append(groups[c], i)
		}
	}

	var out []FeatureImportance
	col := make([]float64, 0, len(x))
	for _, id := range ClusterIDs(assignment) {
		rows, ok := groups[id]
		if !ok {
			continue
		}
		weights := make([]FeatureWeight, len(features))
		for j, f := range features {
			col = col[:0]
			for _, r := range rows {
				col = append(col, x[r][j])
			}
			weights[j] = FeatureWeight{Feature: f, Std: sampleStd(col)}
		}
		sort.SliceStable(weights, func(a, b int) bool { return weights[a].Std > weights[b].Std })
		out = append(out, FeatureImportance{ClusterID: id, Features: weights})
	}
	return out
}

// BuildProfiles agrège les features numériques du tableau par cluster.
// Le tableau doit être aligné ligne à ligne sur l'affectation ; tailles sommées = lignes, pourcentages sommés = 100.
func BuildProfiles(
	frame *datasetdomain.Frame,
	assignment []int,
	features []string,
	labels map[int]string,
	importance []FeatureImportance,
	topN int,
) ([]ClusterProfile, error) {
	if frame.Rows() != len(assignment) {
		return nil, shared.NewInvalidParameter("frame", "%d lignes pour %d affectations", frame.Rows(), len(assignment))
	}
	if len(assignment) == 0 {
		return nil, shared.NewInvalidParameter("frame", "aucune ligne à profiler")
	}

	columns := make([][]float64, len(features))
	for j, f := range features {
		values, err := frame.Numeric(f)
		if err != nil {
			return nil, err
		}
		columns[j] = values
	}

	byID := make(map[int]FeatureImportance, len(importance))
	for _, fi := range importance {
		byID[fi.ClusterID] = fi
	}

	groups := make(map[int][]int)
	for i, c := range assignment {
		groups[c] = append(groups[c], i)
	}

	n := float64(len(assignment))
	var profiles []ClusterProfile
	for _, id := range ClusterIDs(assignment) {
		rows := groups[id]
		p := ClusterProfile{
			ClusterID:  id,
			Label:      labelFor(labels, id),
			Size:       len(rows),
			Percentage: float64(len(rows)) / n * 100,
			Features:   append([]string(nil), features...),
			Stats:      make(map[string]FeatureStat, len(features)),
		}
		for j, f := range features {
			values := make([]float64, 0, len(rows))
			for _, r := range rows {
				if v := columns[j][r]; !math.IsNaN(v) {
					values = append(values, v)
				}
			}
			p.Stats[f] = describe(values)
		}
		if fi, ok := byID[id]; ok {
			p.KeyFeatures = fi.Top(topN)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func labelFor(labels map[int]string, id int) string {
	if l, ok := labels[id]; ok {
		return l
	}
	return FallbackLabel(id)
}

func describe(values []float64) FeatureStat {
	if len(values) == 0 {
		nan := math.NaN()
		return FeatureStat{Mean: nan, Std: nan, Min: nan, Max: nan}
	}
	return FeatureStat{
		Mean: stat.Mean(values, nil),
		Std:  sampleStd(values),
		Min:  floats.Min(values),
		Max:  floats.Max(values),
	}
}

// sampleStd écart-type non biaisé ; 0 pour un singleton
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}
