package clustering

import (
	"context"

	shared "segmentation/internal/shared/domain"
)

// KScore résultat d'un essai K-means pour une valeur de K
type KScore struct {
	K          int
	Inertia    float64
	Silhouette float64
}

// SelectK parcourt [kMin, kMax] et retient le K de meilleure silhouette (méthode du coude en appui)
func SelectK(ctx context.Context, x [][]float64, kMin, kMax int, opts KMeansOptions) ([]KScore, int, error) {
	if kMin < 2 || kMax < kMin {
		return nil, 0, shared.NewInvalidParameter("k_range", "intervalle [%d, %d] invalide", kMin, kMax)
	}
	if kMax > len(x)-1 {
		kMax = len(x) - 1
	}
	if kMax < kMin {
		return nil, 0, shared.NewInvalidParameter("k_range", "pas assez de lignes (%d) pour K >= %d", len(x), kMin)
	}

	scores := make([]KScore, 0, kMax-kMin+1)
	best, bestScore := kMin, -2.0
	for k := kMin; k <= kMax; k++ {
		opts.K = k
		res, err := KMeans(ctx, x, opts)
		if err != nil {
			return nil, 0, err
		}
		sil, err := Silhouette(x, res.Labels)
		if err != nil {
			// K-means peut fusionner des points identiques en moins de K clusters distincts
			sil = 0
		}
		scores = append(scores, KScore{K: k, Inertia: res.Inertia, Silhouette: sil})
		if sil > bestScore {
			best, bestScore = k, sil
		}
	}
	return scores, best, nil
}
