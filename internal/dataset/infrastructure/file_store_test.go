package infrastructure

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"segmentation/internal/dataset/domain"
	shared "segmentation/internal/shared/domain"
)

const sampleCSV = `customer_id,age,sexe,volume_data
CUST_00001,25,M,3.5
CUST_00002,41,F,
CUST_00003,63,,12
`

func TestLoadFrame_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	frame, err := LoadFrame(path)
	require.NoError(t, err)

	assert.Equal(t, 3, frame.Rows())
	assert.Equal(t, []string{"age", "volume_data"}, frame.NumericColumns())
	assert.Equal(t, []string{"customer_id", "sexe"}, frame.TextColumns())
	assert.Equal(t, 1, frame.MissingCount("volume_data"))
	assert.Equal(t, 1, frame.MissingCount("sexe"))
}

func TestLoadFrame_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFrame(filepath.Join(dir, "absent.csv"))
	var notFound *shared.ErrNotFound
	assert.True(t, errors.As(err, &notFound), "got %v", err)

	jsonPath := filepath.Join(dir, "clients.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0o644))
	_, err = LoadFrame(jsonPath)
	var unsupported *shared.ErrUnsupportedFormat
	require.True(t, errors.As(err, &unsupported), "got %v", err)
	assert.Equal(t, ".json", unsupported.Extension)

	// Extension non supportée même si le fichier n'existe pas
	_, err = LoadFrame(filepath.Join(dir, "absent.parquet"))
	assert.True(t, errors.As(err, &unsupported))

	ragged := filepath.Join(dir, "ragged.csv")
	require.NoError(t, os.WriteFile(ragged, []byte("a,b\n1,2\n3\n"), 0o644))
	_, err = LoadFrame(ragged)
	assert.Error(t, err)
}

func TestSaveFrame_RoundTripCSVAndXLSX(t *testing.T) {
	src := domain.NewFrame(2)
	require.NoError(t, src.SetText("customer_id", []string{"CUST_00001", "CUST_00002"}))
	require.NoError(t, src.SetNumeric("montant_consommation", []float64{52.5, domain.Missing()}))

	for _, name := range []string{"out.csv", "out.xlsx"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, SaveFrame(path, src))

			loaded, err := LoadFrame(path)
			require.NoError(t, err)
			assert.Equal(t, src.Columns(), loaded.Columns())

			values, err := loaded.Numeric("montant_consommation")
			require.NoError(t, err)
			assert.InDelta(t, 52.5, values[0], 1e-9)
			assert.True(t, domain.IsMissing(values[1]))
		})
	}

	err := SaveFrame(filepath.Join(t.TempDir(), "out.xls"), src)
	var unsupported *shared.ErrUnsupportedFormat
	assert.True(t, errors.As(err, &unsupported))
}
