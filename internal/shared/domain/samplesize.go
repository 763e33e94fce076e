package domain

import (
	"fmt"
)

// SampleSize nombre d'enregistrements demandé à un composant (générateur, lot de prédiction)
// Value Object: toujours strictement positif une fois construit
type SampleSize struct {
	value int
}

// NewSampleSize crée une taille d'échantillon validée
func NewSampleSize(value int) (SampleSize, error) {
	if value <= 0 {
		return SampleSize{}, NewInvalidParameter("n", "doit être > 0, reçu %d", value)
	}
	return SampleSize{value: value}, nil
}

// MustNewSampleSize crée une taille ou panique
func MustNewSampleSize(value int) SampleSize {
	s, err := NewSampleSize(value)
	if err != nil {
		panic(fmt.Sprintf("invalid sample size: %v", err))
	}
	return s
}

// Value retourne la taille
func (s SampleSize) Value() int {
	return s.value
}

// Batches découpe la taille en lots [start, end) de taille batch au plus
func (s SampleSize) Batches(batch int) [][2]int {
	if batch <= 0 {
		batch = s.value
	}
	out := make([][2]int, 0, (s.value+batch-1)/batch)
	for start := 0; start < s.value; start += batch {
		end := start + batch
		if end > s.value {
			end = s.value
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
