package domain

import (
	"sort"
)

// BindLabels associe un libellé de segment à chaque cluster (bruit exclu).
//
// Avec LabelByRank les clusters sont classés par `rank` décroissant (égalité → plus petit id)
// puis reçoivent les libellés dans l'ordre configuré. Sans valeur de classement la politique
// retombe sur LabelPositional. Les clusters surnuméraires reçoivent FallbackLabel.
func BindLabels(clusterIDs []int, segments []string, policy LabelPolicy, rank map[int]float64) map[int]string {
	ids := make([]int, 0, len(clusterIDs))
	for _, id := range clusterIDs {
		if id != NoiseCluster {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	if policy == LabelByRank && len(rank) > 0 {
		sort.SliceStable(ids, func(i, j int) bool {
			return rank[ids[i]] > rank[ids[j]]
		})
	}

	labels := make(map[int]string, len(ids))
	for pos, id := range ids {
		if pos < len(segments) {
			labels[id] = segments[pos]
		} else {
			labels[id] = FallbackLabel(id)
		}
	}
	return labels
}
