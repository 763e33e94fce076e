package domain

import (
	"strings"

	shared "segmentation/internal/shared/domain"
)

// Method algorithme de clustering
type Method string

const (
	MethodKMeans Method = "kmeans"
	MethodDBSCAN Method = "dbscan"
)

// ParseMethod valide le nom d'algorithme (insensible à la casse)
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodKMeans:
		return MethodKMeans, nil
	case MethodDBSCAN:
		return MethodDBSCAN, nil
	}
	return "", shared.NewInvalidParameter("method", "méthode de clustering non supportée: %q", s)
}

// State cycle de vie d'une segmentation
type State int

const (
	StateUnfitted State = iota
	StateFitted
)

func (s State) String() string {
	if s == StateFitted {
		return "fitted"
	}
	return "unfitted"
}

// LabelPolicy règle d'attribution des libellés de segment aux clusters
type LabelPolicy string

const (
	// LabelByRank classe les clusters sur une feature (décroissant) puis suit l'ordre des segments configurés
	LabelByRank LabelPolicy = "rank"
	// LabelPositional cluster i → i-ème segment configuré
	LabelPositional LabelPolicy = "positional"
)

// ParseLabelPolicy valide la politique de libellés
func ParseLabelPolicy(s string) (LabelPolicy, error) {
	switch LabelPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case LabelByRank, "":
		return LabelByRank, nil
	case LabelPositional:
		return LabelPositional, nil
	}
	return "", shared.NewInvalidParameter("label_policy", "politique inconnue: %q", s)
}

// Scores indicateurs de qualité d'un partitionnement (bruit exclu)
type Scores struct {
	Silhouette       float64
	CalinskiHarabasz float64
	DaviesBouldin    float64
	Clusters         int
	Points           int
	Noise            int
}
