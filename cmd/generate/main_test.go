package main

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	datasetinfra "segmentation/internal/dataset/infrastructure"
	shared "segmentation/internal/shared/domain"
)

func TestRun_WritesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.csv")
	var stdout, stderr bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"-out", path, "-n", "120", "-seed", "7"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "120 clients écrits")

	frame, err := datasetinfra.LoadFrame(path)
	require.NoError(t, err)
	assert.Equal(t, 120, frame.Rows())
	assert.True(t, frame.Has("customer_id"))
}

func TestRun_SameSeedSameFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"-out", a, "-n", "50", "-seed", "3"}, &out, &out))
	require.NoError(t, run(context.Background(), []string{"-out", b, "-n", "50", "-seed", "3"}, &out, &out))

	fa, err := datasetinfra.LoadFrame(a)
	require.NoError(t, err)
	fb, err := datasetinfra.LoadFrame(b)
	require.NoError(t, err)
	for _, col := range []string{"age", "montant_consommation"} {
		va, _ := fa.Numeric(col)
		vb, _ := fb.Numeric(col)
		assert.Equal(t, len(va), len(vb))
		for i := range va {
			if !math.IsNaN(va[i]) {
				assert.Equal(t, va[i], vb[i])
			}
		}
	}
}

func TestRun_UnsupportedExtension(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-out", filepath.Join(t.TempDir(), "clients.json"), "-n", "10"}, &out, &out)
	var unsupported *shared.ErrUnsupportedFormat
	assert.True(t, errors.As(err, &unsupported))
}
