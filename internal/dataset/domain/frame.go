package domain

import (
	"fmt"
	"math"
	"strconv"

	shared "segmentation/internal/shared/domain"
)

// ColumnKind type d'une colonne du tableau
type ColumnKind int

const (
	KindNumeric ColumnKind = iota
	KindText
)

func (k ColumnKind) String() string {
	if k == KindNumeric {
		return "numeric"
	}
	return "text"
}

// column stockage d'une colonne: NaN = valeur manquante (numérique), "" = manquante (texte)
type column struct {
	name string
	kind ColumnKind
	num  []float64
	text []string
}

// Frame tableau de clients: colonnes typées, ordonnées, nombre de lignes fixe.
// Les getters retournent des copies: un Frame n'est modifié que via Set*.
type Frame struct {
	cols  []*column
	index map[string]int
	rows  int
}

// NewFrame crée un tableau vide de `rows` lignes
func NewFrame(rows int) *Frame {
	return &Frame{
		index: make(map[string]int),
		rows:  rows,
	}
}

// Missing valeur numérique manquante
func Missing() float64 {
	return math.NaN()
}

// IsMissing indique si une valeur numérique est manquante
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Rows retourne le nombre de lignes
func (f *Frame) Rows() int {
	return f.rows
}

// Columns retourne les noms de colonnes dans l'ordre
func (f *Frame) Columns() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.name
	}
	return names
}

// Has indique si la colonne existe
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Kind retourne le type d'une colonne
func (f *Frame) Kind(name string) (ColumnKind, bool) {
	i, ok := f.index[name]
	if !ok {
		return 0, false
	}
	return f.cols[i].kind, true
}

// NumericColumns retourne les colonnes numériques dans l'ordre
func (f *Frame) NumericColumns() []string {
	var names []string
	for _, c := range f.cols {
		if c.kind == KindNumeric {
			names = append(names, c.name)
		}
	}
	return names
}

// TextColumns retourne les colonnes texte dans l'ordre
func (f *Frame) TextColumns() []string {
	var names []string
	for _, c := range f.cols {
		if c.kind == KindText {
			names = append(names, c.name)
		}
	}
	return names
}

// SetNumeric ajoute ou remplace une colonne numérique (position conservée si elle existe)
func (f *Frame) SetNumeric(name string, values []float64) error {
	if len(values) != f.rows {
		return fmt.Errorf("colonne %s: %d valeurs pour %d lignes", name, len(values), f.rows)
	}
	f.set(&column{name: name, kind: KindNumeric, num: append([]float64(nil), values...)})
	return nil
}

// SetText ajoute ou remplace une colonne texte
func (f *Frame) SetText(name string, values []string) error {
	if len(values) != f.rows {
		return fmt.Errorf("colonne %s: %d valeurs pour %d lignes", name, len(values), f.rows)
	}
	f.set(&column{name: name, kind: KindText, text: append([]string(nil), values...)})
	return nil
}

func (f *Frame) set(c *column) {
	if i, ok := f.index[c.name]; ok {
		f.cols[i] = c
		return
	}
	f.index[c.name] = len(f.cols)
	f.cols = append(f.cols, c)
}

// Numeric retourne une copie de la colonne numérique
func (f *Frame) Numeric(name string) ([]float64, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, &shared.ErrMissingColumn{Column: name}
	}
	c := f.cols[i]
	if c.kind != KindNumeric {
		return nil, shared.NewInvalidParameter(name, "colonne texte, valeurs numériques attendues")
	}
	return append([]float64(nil), c.num...), nil
}

// Text retourne une copie de la colonne texte
func (f *Frame) Text(name string) ([]string, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, &shared.ErrMissingColumn{Column: name}
	}
	c := f.cols[i]
	if c.kind != KindText {
		return nil, shared.NewInvalidParameter(name, "colonne numérique, valeurs texte attendues")
	}
	return append([]string(nil), c.text...), nil
}

// Cell représentation texte d'une cellule (CSV): manquant → ""
func (f *Frame) Cell(row int, name string) string {
	i, ok := f.index[name]
	if !ok || row < 0 || row >= f.rows {
		return ""
	}
	c := f.cols[i]
	if c.kind == KindText {
		return c.text[row]
	}
	v := c.num[row]
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Drop retourne un nouveau tableau sans les colonnes indiquées (absentes ignorées)
func (f *Frame) Drop(names ...string) *Frame {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := NewFrame(f.rows)
	for _, c := range f.cols {
		if !skip[c.name] {
			out.set(c.clone())
		}
	}
	return out
}

// Take retourne les lignes d'indices donnés (ordre conservé)
func (f *Frame) Take(indices []int) (*Frame, error) {
	out := NewFrame(len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= f.rows {
			return nil, fmt.Errorf("indice de ligne %d hors limites [0, %d)", idx, f.rows)
		}
	}
	for _, c := range f.cols {
		nc := &column{name: c.name, kind: c.kind}
		if c.kind == KindNumeric {
			nc.num = make([]float64, len(indices))
			for j, idx := range indices {
				nc.num[j] = c.num[idx]
			}
		} else {
			nc.text = make([]string, len(indices))
			for j, idx := range indices {
				nc.text[j] = c.text[idx]
			}
		}
		out.set(nc)
	}
	return out, nil
}

// Clone copie profonde du tableau
func (f *Frame) Clone() *Frame {
	return f.Drop()
}

// Matrix retourne la matrice lignes × colonnes des colonnes numériques demandées
func (f *Frame) Matrix(names []string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for j, n := range names {
		i, ok := f.index[n]
		if !ok {
			return nil, &shared.ErrMissingColumn{Column: n}
		}
		if f.cols[i].kind != KindNumeric {
			return nil, shared.NewInvalidParameter(n, "colonne non numérique")
		}
		cols[j] = f.cols[i].num
	}
	m := make([][]float64, f.rows)
	for r := range m {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][r]
		}
		m[r] = row
	}
	return m, nil
}

// MissingCount nombre de valeurs manquantes d'une colonne
func (f *Frame) MissingCount(name string) int {
	i, ok := f.index[name]
	if !ok {
		return 0
	}
	c := f.cols[i]
	n := 0
	if c.kind == KindNumeric {
		for _, v := range c.num {
			if math.IsNaN(v) {
				n++
			}
		}
		return n
	}
	for _, v := range c.text {
		if v == "" {
			n++
		}
	}
	return n
}

func (c *column) clone() *column {
	nc := &column{name: c.name, kind: c.kind}
	if c.num != nil {
		nc.num = append([]float64(nil), c.num...)
	}
	if c.text != nil {
		nc.text = append([]string(nil), c.text...)
	}
	return nc
}
