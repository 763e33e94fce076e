package infrastructure

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"segmentation/internal/dataset/domain"
	shared "segmentation/internal/shared/domain"
)

// Formats de fichiers tabulaires acceptés en entrée
const (
	ExtCSV  = ".csv"
	ExtXLSX = ".xlsx"
	ExtXLS  = ".xls"
)

// LoadFrame charge un tableau depuis un fichier CSV ou classeur Excel.
// Le type de chaque colonne est inféré: numérique si toutes les cellules non vides se parsent en float.
func LoadFrame(path string) (*domain.Frame, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ExtCSV && ext != ExtXLSX && ext != ExtXLS {
		return nil, &shared.ErrUnsupportedFormat{Path: path, Extension: ext}
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &shared.ErrNotFound{Resource: "fichier de données", Path: path}
		}
		return nil, fmt.Errorf("erreur accès %s: %w", path, err)
	}

	var (
		header []string
		rows   [][]string
		err    error
	)
	if ext == ExtCSV {
		header, rows, err = readCSV(path)
	} else {
		header, rows, err = readWorkbook(path)
	}
	if err != nil {
		return nil, err
	}
	return FrameFromRecords(header, rows)
}

// SaveFrame écrit un tableau en CSV ou XLSX selon l'extension
func SaveFrame(path string, frame *domain.Frame) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ExtCSV && ext != ExtXLSX {
		return &shared.ErrUnsupportedFormat{Path: path, Extension: ext}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("erreur création répertoire %s: %w", filepath.Dir(path), err)
	}

	if ext == ExtXLSX {
		return writeWorkbook(path, frame)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("erreur création fichier %s: %w", path, err)
	}
	defer file.Close()

	buffered := bufio.NewWriter(file)
	if err := WriteCSV(buffered, frame); err != nil {
		return err
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("erreur flush %s: %w", path, err)
	}
	return nil
}

// WriteCSV sérialise le tableau en CSV (en-tête + lignes, manquants vides)
func WriteCSV(w io.Writer, frame *domain.Frame) error {
	writer := csv.NewWriter(w)
	columns := frame.Columns()

	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("erreur écriture en-têtes: %w", err)
	}

	record := make([]string, len(columns))
	for r := 0; r < frame.Rows(); r++ {
		for j, name := range columns {
			record[j] = frame.Cell(r, name)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("erreur écriture ligne %d: %w", r, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// FrameFromRecords construit un tableau typé à partir de lignes texte
func FrameFromRecords(header []string, rows [][]string) (*domain.Frame, error) {
	if len(header) == 0 {
		return nil, errors.New("fichier vide: en-tête absent")
	}

	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if seen[h] {
			return nil, fmt.Errorf("colonne dupliquée: %s", h)
		}
		seen[h] = true
	}

	frame := domain.NewFrame(len(rows))
	for j, name := range header {
		cells := make([]string, len(rows))
		for r, row := range rows {
			if j < len(row) {
				cells[r] = strings.TrimSpace(row[j])
			}
		}

		if values, ok := parseNumeric(cells); ok {
			if err := frame.SetNumeric(name, values); err != nil {
				return nil, err
			}
			continue
		}
		if err := frame.SetText(name, cells); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// parseNumeric retourne la colonne en float si toutes les cellules non vides sont numériques
func parseNumeric(cells []string) ([]float64, bool) {
	values := make([]float64, len(cells))
	nonEmpty := 0
	for i, cell := range cells {
		if cell == "" || strings.EqualFold(cell, "nan") {
			values[i] = domain.Missing()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, false
		}
		values[i] = v
		nonEmpty++
	}
	return values, nonEmpty > 0
}

func readCSV(path string) ([]string, [][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("erreur ouverture %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(bufio.NewReader(file))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("erreur lecture CSV %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("fichier vide: %s", path)
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header, records[1:], nil
}

func readWorkbook(path string) ([]string, [][]string, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("erreur ouverture classeur %s: %w", path, err)
	}
	defer book.Close()

	rows, err := book.GetRows(book.GetSheetName(0))
	if err != nil {
		return nil, nil, fmt.Errorf("erreur lecture classeur %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("classeur vide: %s", path)
	}
	return rows[0], rows[1:], nil
}

func writeWorkbook(path string, frame *domain.Frame) error {
	book := excelize.NewFile()
	defer book.Close()

	sheet := book.GetSheetName(0)
	columns := frame.Columns()

	header := make([]interface{}, len(columns))
	for j, name := range columns {
		header[j] = name
	}
	if err := book.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("erreur écriture en-têtes: %w", err)
	}

	for r := 0; r < frame.Rows(); r++ {
		row := make([]interface{}, len(columns))
		for j, name := range columns {
			row[j] = frame.Cell(r, name)
			if kind, _ := frame.Kind(name); kind == domain.KindNumeric {
				if v, err := strconv.ParseFloat(frame.Cell(r, name), 64); err == nil {
					row[j] = v
				}
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("erreur écriture ligne %d: %w", r, err)
		}
	}

	if err := book.SaveAs(path); err != nil {
		return fmt.Errorf("erreur sauvegarde classeur %s: %w", path, err)
	}
	return nil
}
