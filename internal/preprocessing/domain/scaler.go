package domain

import (
	"math"

	"gonum.org/v1/gonum/stat"

	shared "segmentation/internal/shared/domain"
)

// StandardScaler centre-réduit chaque colonne: (x - moyenne) / écart-type.
// Écart-type de population (ddof = 0) ; une colonne constante garde une échelle de 1.
type StandardScaler struct {
	columns []string
	means   []float64
	scales  []float64
}

// FitStandardScaler apprend moyenne et écart-type par colonne.
// Les NaN sont ignorés dans le calcul.
func FitStandardScaler(columns []string, matrix [][]float64) (*StandardScaler, error) {
	if len(matrix) == 0 {
		return nil, shared.NewInvalidParameter("matrix", "aucune ligne pour apprendre la normalisation")
	}
	s := &StandardScaler{
		columns: append([]string(nil), columns...),
		means:   make([]float64, len(columns)),
		scales:  make([]float64, len(columns)),
	}

	col := make([]float64, 0, len(matrix))
	for j := range columns {
		col = col[:0]
		for _, row := range matrix {
			if !math.IsNaN(row[j]) {
				col = append(col, row[j])
			}
		}
		if len(col) == 0 {
			return nil, shared.NewInvalidParameter(columns[j], "colonne entièrement manquante")
		}
		mean, variance := stat.MeanVariance(col, nil)
		n := float64(len(col))
		if n > 1 {
			// stat.MeanVariance est non biaisée (n-1): ramener à la variance de population
			variance = variance * (n - 1) / n
		} else {
			variance = 0
		}
		s.means[j] = mean
		s.scales[j] = math.Sqrt(variance)
		if s.scales[j] == 0 || math.IsNaN(s.scales[j]) {
			s.scales[j] = 1
		}
	}
	return s, nil
}

// Columns retourne les colonnes apprises
func (s *StandardScaler) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Means retourne les moyennes apprises
func (s *StandardScaler) Means() []float64 {
	return append([]float64(nil), s.means...)
}

// Scales retourne les écarts-types appris
func (s *StandardScaler) Scales() []float64 {
	return append([]float64(nil), s.scales...)
}

// Transform applique la normalisation apprise (nouvelle matrice)
func (s *StandardScaler) Transform(matrix [][]float64) ([][]float64, error) {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		if len(row) != len(s.columns) {
			return nil, shared.NewInvalidParameter("matrix", "ligne %d: %d colonnes, %d attendues", i, len(row), len(s.columns))
		}
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.means[j]) / s.scales[j]
		}
		out[i] = r
	}
	return out, nil
}

// TransformColumn normalise une seule colonne par son indice
func (s *StandardScaler) TransformColumn(j int, values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - s.means[j]) / s.scales[j]
	}
	return out
}

// InverseTransform ramène une matrice normalisée aux unités d'origine
func (s *StandardScaler) InverseTransform(matrix [][]float64) [][]float64 {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = v*s.scales[j] + s.means[j]
		}
		out[i] = r
	}
	return out
}
