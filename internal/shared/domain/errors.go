package domain

import "fmt"

// ErrNotFound est retournée quand un fichier d'entrée n'existe pas
type ErrNotFound struct {
	Resource string
	Path     string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s introuvable: %s", e.Resource, e.Path)
}

// ErrUnsupportedFormat est retournée pour une extension de fichier non gérée
type ErrUnsupportedFormat struct {
	Path      string
	Extension string
}

func (e *ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("format de fichier non supporté %q: %s", e.Extension, e.Path)
}

// ErrInvalidParameter signale un paramètre hors domaine (n <= 0, K < 2, méthode inconnue...)
type ErrInvalidParameter struct {
	Field   string
	Message string
}

func (e *ErrInvalidParameter) Error() string {
	return fmt.Sprintf("paramètre invalide %s: %s", e.Field, e.Message)
}

// ErrUnfitted est retournée quand une opération exige un modèle entraîné
type ErrUnfitted struct {
	Operation string
}

func (e *ErrUnfitted) Error() string {
	return fmt.Sprintf("%s: le modèle n'est pas entraîné, appeler Fit d'abord", e.Operation)
}

// ErrMissingColumn signale une colonne requise absente du tableau
type ErrMissingColumn struct {
	Column string
}

func (e *ErrMissingColumn) Error() string {
	return fmt.Sprintf("colonne requise absente: %s", e.Column)
}

// NewInvalidParameter raccourci pour construire une ErrInvalidParameter formatée
func NewInvalidParameter(field, format string, args ...interface{}) error {
	return &ErrInvalidParameter{Field: field, Message: fmt.Sprintf(format, args...)}
}
