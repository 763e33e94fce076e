package domain

import (
	"fmt"
)

// Discount représente une remise commerciale exprimée en fraction [0, 1]
// DESIGN PATTERN: Value Object (DDD)
//   - Fraction plutôt que pourcentage pour éviter les confusions 15 vs 0.15
//   - Validation dans le constructeur
type Discount struct {
	fraction float64
}

// NewDiscount crée une remise validée
func NewDiscount(fraction float64) (Discount, error) {
	if fraction < 0 || fraction > 1 {
		return Discount{}, NewInvalidParameter("discount", "%.4f hors de [0, 1]", fraction)
	}
	return Discount{fraction: fraction}, nil
}

// MustNewDiscount crée une remise ou panique (valeurs de configuration connues)
func MustNewDiscount(fraction float64) Discount {
	d, err := NewDiscount(fraction)
	if err != nil {
		panic(fmt.Sprintf("invalid discount: %v", err))
	}
	return d
}

// Fraction retourne la remise en fraction
func (d Discount) Fraction() float64 {
	return d.fraction
}

// Percent retourne la remise en pourcentage
func (d Discount) Percent() float64 {
	return d.fraction * 100
}

// Apply applique la remise à un montant
func (d Discount) Apply(amount float64) float64 {
	return amount * (1 - d.fraction)
}

// IsZero vérifie si la remise est nulle
func (d Discount) IsZero() bool {
	return d.fraction == 0
}

// String formate la remise pour les rapports ("15%")
func (d Discount) String() string {
	return fmt.Sprintf("%.0f%%", d.Percent())
}
