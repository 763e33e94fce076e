package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"segmentation/internal/config"
	"segmentation/internal/shared/domain"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Clustering.NClusters)
	assert.Equal(t, int64(42), cfg.Clustering.RandomState)
	assert.Len(t, cfg.Segments, 5)
	assert.Len(t, cfg.Visualization.Palette, 5)
	assert.Equal(t, "data/raw/telecom_customers.csv", cfg.Paths.RawPath())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SEG_N_CLUSTERS", "3")
	t.Setenv("SEG_METHOD", "dbscan")
	t.Setenv("SEG_CACHE_TTL", "30s")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/seg?sslmode=disable")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Clustering.NClusters)
	assert.Equal(t, "dbscan", cfg.Clustering.Method)
	assert.Equal(t, 30*time.Second, cfg.Runtime.CacheTTL)
	assert.NotEmpty(t, cfg.Database.URL)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "segmentation.yaml")
	content := `
clustering:
  n_clusters: 4
  dbscan_eps: 0.8
  auto_k: true
columns:
  excluded: [nombre_sms]
preprocessing:
  numeric_imputation: median
runtime:
  cache_ttl: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Clustering.NClusters)
	assert.InDelta(t, 0.8, cfg.Clustering.DBSCANEps, 1e-12)
	assert.Equal(t, "median", cfg.Preprocessing.NumericImputation)
	assert.Equal(t, 2*time.Minute, cfg.Runtime.CacheTTL)
	assert.True(t, cfg.Clustering.AutoK)
	assert.Equal(t, map[string]bool{"customer_id": true, "date_abonnement": true, "nombre_sms": true},
		cfg.Columns.NonFeatures())
	// Les valeurs non surchargées gardent leur défaut
	assert.Equal(t, 10, cfg.Clustering.NInit)
}

func TestColumns_NonFeatures(t *testing.T) {
	cols := config.Default().Columns
	assert.Equal(t, map[string]bool{"customer_id": true, "date_abonnement": true}, cols.NonFeatures())

	cols.ID, cols.Date = "msisdn", ""
	assert.Equal(t, map[string]bool{"msisdn": true}, cols.NonFeatures())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var notFound *domain.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		field  string
	}{
		{"zero clusters", func(c *config.Config) { c.Clustering.NClusters = 0 }, "clustering.n_clusters"},
		{"bad eps", func(c *config.Config) { c.Clustering.DBSCANEps = 0 }, "clustering.dbscan_eps"},
		{"bad test size", func(c *config.Config) { c.Preprocessing.TestSize = 1 }, "preprocessing.test_size"},
		{"bad imputation", func(c *config.Config) { c.Preprocessing.NumericImputation = "mode" }, "preprocessing.numeric_imputation"},
		{"bad encoding", func(c *config.Config) { c.Preprocessing.CategoricalEncoding = "target" }, "preprocessing.categorical_encoding"},
		{"bad label policy", func(c *config.Config) { c.Clustering.LabelPolicy = "random" }, "clustering.label_policy"},
		{"bad discount", func(c *config.Config) { c.Segments[0].Offer.Discount = 1.2 }, "discount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var invalid *domain.ErrInvalidParameter
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}
