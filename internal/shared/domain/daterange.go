package domain

import (
	"errors"
	"time"
)

// DateRange représente une période temporelle avec validation
// DESIGN PATTERN: Value Object (DDD)
//   - Immutable: pas de setters, valeurs fixées à la création
//   - Validation dans le constructeur (NewDateRangeFromDays)
//
// Utilisé par le générateur pour tirer les dates d'abonnement
// dans une fenêtre glissante (ex: les 3 dernières années).
type DateRange struct {
	start time.Time // Minuscule = champ privé (encapsulation)
	end   time.Time
}

// NewDateRangeFromDays crée un DateRange couvrant les `days` derniers jours jusqu'à `now`
// SYNTAXE: Retourne (DateRange, error) par VALEUR, pas pointeur
//   - Value Object pattern: on copie la struct entière (48 bytes)
//
// `now` est injecté pour que la génération reste reproductible en test.
func NewDateRangeFromDays(now time.Time, days int) (DateRange, error) {
	if days < 0 {
		return DateRange{}, errors.New("days cannot be negative")
	}
	return DateRange{
		start: now.AddDate(0, 0, -days),
		end:   now,
	}, nil
}

// Start retourne la date de début
func (dr DateRange) Start() time.Time {
	return dr.start
}

// End retourne la date de fin
func (dr DateRange) End() time.Time {
	return dr.end
}

// Days retourne la longueur de la période en jours entiers
func (dr DateRange) Days() int {
	return int(dr.end.Sub(dr.start).Hours() / 24)
}

// Contains indique si t appartient à la période (bornes incluses)
func (dr DateRange) Contains(t time.Time) bool {
	return !t.Before(dr.start) && !t.After(dr.end)
}

// DaysBeforeEnd retourne la date située `offset` jours avant la fin
// PATTERN: l'appelant tire offset dans [0, Days()], le value object borne le résultat
func (dr DateRange) DaysBeforeEnd(offset int) time.Time {
	if offset < 0 {
		offset = 0
	}
	if limit := dr.Days(); offset > limit {
		offset = limit
	}
	return dr.end.AddDate(0, 0, -offset)
}
