package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	datasetdomain "segmentation/internal/dataset/domain"
	shared "segmentation/internal/shared/domain"
)

// NumericStrategy stratégie d'imputation numérique
type NumericStrategy string

const (
	ImputeMean   NumericStrategy = "mean"
	ImputeMedian NumericStrategy = "median"
)

// ParseNumericStrategy valide une stratégie
func ParseNumericStrategy(s string) (NumericStrategy, error) {
	switch NumericStrategy(strings.ToLower(s)) {
	case ImputeMean:
		return ImputeMean, nil
	case ImputeMedian:
		return ImputeMedian, nil
	}
	return "", shared.NewInvalidParameter("numeric_imputation", "stratégie inconnue %q", s)
}

// Imputer valeurs de remplacement apprises par colonne
type Imputer struct {
	strategy    NumericStrategy
	numeric     map[string]float64
	categorical map[string]string
}

// FitImputer apprend les valeurs de remplacement sur les valeurs non manquantes.
// Catégoriel: modalité la plus fréquente, égalité départagée par ordre lexical.
func FitImputer(frame *datasetdomain.Frame, numeric, categorical []string, strategy NumericStrategy) (*Imputer, error) {
	imp := &Imputer{
		strategy:    strategy,
		numeric:     make(map[string]float64, len(numeric)),
		categorical: make(map[string]string, len(categorical)),
	}

	for _, col := range numeric {
		values, err := frame.Numeric(col)
		if err != nil {
			return nil, err
		}
		present := values[:0]
		for _, v := range values {
			if !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			return nil, shared.NewInvalidParameter(col, "aucune valeur pour l'imputation")
		}
		if strategy == ImputeMedian {
			imp.numeric[col] = median(present)
		} else {
			imp.numeric[col] = stat.Mean(present, nil)
		}
	}

	for _, col := range categorical {
		if !frame.Has(col) {
			continue
		}
		values, err := frame.Text(col)
		if err != nil {
			return nil, fmt.Errorf("colonne catégorielle %s: %w", col, err)
		}
		mode, ok := mostFrequent(values)
		if !ok {
			return nil, shared.NewInvalidParameter(col, "aucune valeur pour l'imputation")
		}
		imp.categorical[col] = mode
	}
	return imp, nil
}

// NumericFill valeur de remplacement d'une colonne numérique
func (imp *Imputer) NumericFill(col string) (float64, bool) {
	v, ok := imp.numeric[col]
	return v, ok
}

// CategoricalFill valeur de remplacement d'une colonne catégorielle
func (imp *Imputer) CategoricalFill(col string) (string, bool) {
	v, ok := imp.categorical[col]
	return v, ok
}

// Transform remplace les manquants d'une copie du tableau
func (imp *Imputer) Transform(frame *datasetdomain.Frame) (*datasetdomain.Frame, error) {
	out := frame.Clone()
	for col, fill := range imp.numeric {
		values, err := out.Numeric(col)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			if math.IsNaN(v) {
				values[i] = fill
			}
		}
		if err := out.SetNumeric(col, values); err != nil {
			return nil, err
		}
	}
	for col, fill := range imp.categorical {
		if !out.Has(col) {
			continue
		}
		values, err := out.Text(col)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			if v == "" {
				values[i] = fill
			}
		}
		if err := out.SetText(col, values); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mostFrequent(values []string) (string, bool) {
	counts := make(map[string]int)
	for _, v := range values {
		if v != "" {
			counts[v]++
		}
	}
	best, bestCount := "", 0
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best, bestCount > 0
}
