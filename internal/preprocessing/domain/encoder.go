package domain

import (
	"sort"
	"strings"

	datasetdomain "segmentation/internal/dataset/domain"
	shared "segmentation/internal/shared/domain"
)

// EncodingStrategy stratégie d'encodage catégoriel
type EncodingStrategy string

const (
	EncodeLabel  EncodingStrategy = "label"
	EncodeOneHot EncodingStrategy = "onehot"
)

// UnknownCode code attribué à une modalité jamais vue pendant l'apprentissage (encodage label)
const UnknownCode = -1

// ParseEncodingStrategy valide une stratégie
func ParseEncodingStrategy(s string) (EncodingStrategy, error) {
	switch EncodingStrategy(strings.ToLower(s)) {
	case EncodeLabel:
		return EncodeLabel, nil
	case EncodeOneHot:
		return EncodeOneHot, nil
	}
	return "", shared.NewInvalidParameter("categorical_encoding", "stratégie inconnue %q", s)
}

// CategoricalEncoder modalités triées apprises par colonne
type CategoricalEncoder struct {
	strategy EncodingStrategy
	columns  []string
	classes  map[string][]string
}

// FitEncoder apprend les modalités (triées) des colonnes catégorielles présentes
func FitEncoder(frame *datasetdomain.Frame, columns []string, strategy EncodingStrategy) (*CategoricalEncoder, error) {
	enc := &CategoricalEncoder{
		strategy: strategy,
		classes:  make(map[string][]string, len(columns)),
	}
	for _, col := range columns {
		if !frame.Has(col) {
			continue
		}
		values, err := frame.Text(col)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		for _, v := range values {
			if v != "" {
				seen[v] = true
			}
		}
		classes := make([]string, 0, len(seen))
		for v := range seen {
			classes = append(classes, v)
		}
		sort.Strings(classes)
		enc.columns = append(enc.columns, col)
		enc.classes[col] = classes
	}
	return enc, nil
}

// Classes retourne les modalités apprises d'une colonne
func (enc *CategoricalEncoder) Classes(col string) []string {
	return append([]string(nil), enc.classes[col]...)
}

// OutputColumns noms des colonnes produites pour une colonne source
func (enc *CategoricalEncoder) OutputColumns(col string) []string {
	if enc.strategy == EncodeLabel {
		return []string{col}
	}
	classes := enc.classes[col]
	if len(classes) <= 1 {
		return nil
	}
	out := make([]string, 0, len(classes)-1)
	for _, c := range classes[1:] {
		out = append(out, col+"_"+c)
	}
	return out
}

// Transform encode une copie du tableau.
// label: code = rang dans les modalités triées ; onehot: première modalité supprimée.
func (enc *CategoricalEncoder) Transform(frame *datasetdomain.Frame) (*datasetdomain.Frame, error) {
	out := frame.Clone()
	for _, col := range enc.columns {
		if !out.Has(col) {
			return nil, &shared.ErrMissingColumn{Column: col}
		}
		values, err := out.Text(col)
		if err != nil {
			return nil, err
		}
		classes := enc.classes[col]
		index := make(map[string]int, len(classes))
		for i, c := range classes {
			index[c] = i
		}

		if enc.strategy == EncodeLabel {
			codes := make([]float64, len(values))
			for i, v := range values {
				code, ok := index[v]
				if !ok {
					code = UnknownCode
				}
				codes[i] = float64(code)
			}
			if err := out.SetNumeric(col, codes); err != nil {
				return nil, err
			}
			continue
		}

		out = out.Drop(col)
		for k, name := range enc.OutputColumns(col) {
			class := classes[k+1]
			indicator := make([]float64, len(values))
			for i, v := range values {
				if v == class {
					indicator[i] = 1
				}
			}
			if err := out.SetNumeric(name, indicator); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
