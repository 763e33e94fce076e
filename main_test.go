package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"segmentation/internal/config"
	"segmentation/internal/generation/application"
	"segmentation/internal/segmentation/clustering"
	shared "segmentation/internal/shared/domain"
)

// writeConfig écrit une configuration YAML pointant vers un dossier temporaire
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	yaml := strings.Join([]string{
		"log_level: error",
		"paths:",
		"  raw_dir: " + filepath.Join(dir, "raw"),
		"  processed_dir: " + filepath.Join(dir, "processed"),
		"  figures_dir: " + filepath.Join(dir, "figures"),
		"  reports_dir: " + filepath.Join(dir, "reports"),
		"  export_dir: " + filepath.Join(dir, "exports"),
		"clustering:",
		"  n_init: 2",
		"",
	}, "\n")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path, dir
}

func TestRun_EndToEnd(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{
		"-config", cfgPath, "-samples", "200", "-k", "3", "-no-figures", "-parquet", "-progress=false",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "Clients: 200 (apprentissage: 160)")
	assert.Contains(t, out, "Méthode: kmeans, clusters: 3")
	assert.Contains(t, out, "Silhouette:")
	assert.FileExists(t, filepath.Join(dir, "raw", "telecom_customers.csv"))
	assert.FileExists(t, filepath.Join(dir, "processed", "processed_data.csv"))
	assert.FileExists(t, filepath.Join(dir, "exports", "clusters.parquet"))
	assert.NoDirExists(t, filepath.Join(dir, "figures"))

	reports, err := filepath.Glob(filepath.Join(dir, "reports", "*.md"))
	require.NoError(t, err)
	assert.Len(t, reports, 3)
}

func TestRun_InvalidArguments(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"-config", cfgPath, "-method", "spectral", "-no-figures"}, &stdout, &stderr)
	var invalid *shared.ErrInvalidParameter
	assert.True(t, errors.As(err, &invalid))

	err = run(context.Background(), []string{"-unknown-flag"}, &stdout, &stderr)
	assert.Error(t, err)

	err = run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "absent.yaml")}, &stdout, &stderr)
	var notFound *shared.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}

// Benchmark pour la génération de données
func benchmarkGenerate(b *testing.B, n int) {
	gen := application.NewGenerator(config.Default().Generator, zap.NewNop())
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := gen.Generate(ctx, n, 42); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGenerate_1000(b *testing.B)  { benchmarkGenerate(b, 1000) }
func BenchmarkGenerate_10000(b *testing.B) { benchmarkGenerate(b, 10000) }

// Benchmark K-means sur des blobs gaussiens (génération hors chronomètre)
func benchmarkKMeans(b *testing.B, n, nInit int) {
	x := make([][]float64, n)
	for i := range x {
		c := float64(i % 4)
		x[i] = []float64{c*5 + float64(i%7)*0.1, -c*3 + float64(i%5)*0.1, float64(i%3) * 0.2}
	}
	opts := clustering.KMeansOptions{K: 4, NInit: nInit, MaxIter: 300, Tol: 1e-4, Seed: 42}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := clustering.KMeans(ctx, x, opts); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkKMeans_1000_NInit1(b *testing.B)  { benchmarkKMeans(b, 1000, 1) }
func BenchmarkKMeans_1000_NInit10(b *testing.B) { benchmarkKMeans(b, 1000, 10) }
