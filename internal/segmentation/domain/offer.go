package domain

import (
	"fmt"

	shared "segmentation/internal/shared/domain"
)

// CommercialOffer offre associée à un segment
type CommercialOffer struct {
	Segment         string
	Name            string
	Description     string
	Discount        shared.Discount
	Services        []string
	PrioritySupport bool
}

// OfferCatalog segments configurés, dans l'ordre de classement, et leurs offres
type OfferCatalog struct {
	order  []string
	offers map[string]CommercialOffer
}

// NewOfferCatalog construit le catalogue ; un segment dupliqué ou sans libellé est refusé
func NewOfferCatalog(offers []CommercialOffer) (*OfferCatalog, error) {
	c := &OfferCatalog{offers: make(map[string]CommercialOffer, len(offers))}
	for _, o := range offers {
		if o.Segment == "" {
			return nil, shared.NewInvalidParameter("segments", "libellé de segment vide")
		}
		if _, dup := c.offers[o.Segment]; dup {
			return nil, shared.NewInvalidParameter("segments", "segment dupliqué: %q", o.Segment)
		}
		o.Services = append([]string(nil), o.Services...)
		c.order = append(c.order, o.Segment)
		c.offers[o.Segment] = o
	}
	return c, nil
}

// Labels libellés dans l'ordre configuré
func (c *OfferCatalog) Labels() []string {
	return append([]string(nil), c.order...)
}

// Len nombre de segments configurés
func (c *OfferCatalog) Len() int {
	return len(c.order)
}

// Offer retourne l'offre d'un segment
func (c *OfferCatalog) Offer(label string) (CommercialOffer, bool) {
	o, ok := c.offers[label]
	return o, ok
}

// FallbackLabel libellé d'un cluster au-delà des segments configurés
func FallbackLabel(clusterID int) string {
	if clusterID < 0 {
		return "Bruit"
	}
	return fmt.Sprintf("Segment %d", clusterID+1)
}
