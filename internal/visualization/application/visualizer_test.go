package application_test

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"segmentation/internal/config"
	datasetdomain "segmentation/internal/dataset/domain"
	"segmentation/internal/segmentation/clustering"
	segdomain "segmentation/internal/segmentation/domain"
	shared "segmentation/internal/shared/domain"
	"segmentation/internal/visualization/application"
)

func fixture(t *testing.T) application.Input {
	t.Helper()
	consumption := []float64{20, 25, 30, 35, 300, 310, 320, 330}
	calls := []float64{10, 12, 11, 14, 90, 95, 80, 85}
	assignment := []int{0, 0, 0, 0, 1, 1, 1, 1}

	frame := datasetdomain.NewFrame(len(assignment))
	require.NoError(t, frame.SetNumeric("montant_consommation", consumption))
	require.NoError(t, frame.SetNumeric("nombre_appels", calls))

	features := []string{"montant_consommation", "nombre_appels"}
	x, err := frame.Matrix(features)
	require.NoError(t, err)

	importance := segdomain.ComputeImportance(features, x, assignment)
	labels := map[int]string{0: "Clients Fidèles", 1: "Clients Premium"}
	profiles, err := segdomain.BuildProfiles(frame, assignment, features, labels, importance, 2)
	require.NoError(t, err)

	return application.Input{
		Profiles:   profiles,
		Importance: importance,
		Offers: map[int]segdomain.CommercialOffer{
			0: {Segment: "Clients Fidèles", Name: "Offre Fidélité", Discount: shared.MustNewDiscount(0.1), Services: []string{"Appels Illimités"}},
			1: {Segment: "Clients Premium", Name: "Offre Premium", Discount: shared.MustNewDiscount(0.15), Services: []string{"VoD", "Sport"}},
		},
		Labels:         labels,
		Centers:        [][]float64{{27.5, 11.75}, {315, 87.5}},
		CenterFeatures: features,
		Frame:          frame,
		Assignment:     assignment,
		Features:       features,
		Scaled:         x,
		KScores: []clustering.KScore{
			{K: 2, Inertia: 100, Silhouette: 0.8},
			{K: 3, Inertia: 60, Silhouette: 0.5},
		},
	}
}

func TestVisualizer_RenderAll(t *testing.T) {
	dir := t.TempDir()
	v, err := application.NewVisualizer(config.Default().Visualization, dir, zap.NewNop())
	require.NoError(t, err)

	paths, err := v.RenderAll(context.Background(), fixture(t))
	require.NoError(t, err)

	expected := []string{
		"cluster_centers.png",
		"cluster_distribution.png",
		"clustering_results.png",
		"commercial_offers.png",
		"correlation_matrix.png",
		"feature_importance.png",
		"optimal_clusters.png",
		"segment_profile_montant_consommation.png",
		"segment_profile_nombre_appels.png",
	}
	require.Len(t, paths, len(expected))
	for i, name := range expected {
		assert.Equal(t, filepath.Join(dir, name), paths[i])
		info, err := os.Stat(paths[i])
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0), name)
	}
}

func TestVisualizer_RenderAll_NoiseOnly(t *testing.T) {
	in := fixture(t)
	in.Assignment = []int{-1, -1, -1, -1, -1, -1, -1, -1}
	in.Labels = map[int]string{}
	in.Importance = segdomain.ComputeImportance(in.CenterFeatures, in.Scaled, in.Assignment)
	require.Empty(t, in.Importance)
	profiles, err := segdomain.BuildProfiles(in.Frame, in.Assignment, in.Features, in.Labels, nil, 2)
	require.NoError(t, err)
	in.Profiles = profiles
	in.Offers = nil
	in.Centers = nil
	in.KScores = nil

	dir := t.TempDir()
	v, err := application.NewVisualizer(config.Default().Visualization, dir, zap.NewNop())
	require.NoError(t, err)

	paths, err := v.RenderAll(context.Background(), in)
	require.NoError(t, err)

	expected := []string{
		"cluster_distribution.png",
		"clustering_results.png",
		"correlation_matrix.png",
		"segment_profile_montant_consommation.png",
		"segment_profile_nombre_appels.png",
	}
	require.Len(t, paths, len(expected))
	for i, name := range expected {
		assert.Equal(t, filepath.Join(dir, name), paths[i])
	}
}

func TestParsePalette(t *testing.T) {
	pal, err := application.ParsePalette([]string{"#FF9999", "66B2FF"})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0xFF, G: 0x99, B: 0x99, A: 0xFF}, pal[0])
	assert.Equal(t, color.RGBA{R: 0x66, G: 0xB2, B: 0xFF, A: 0xFF}, pal[1])

	short, err := application.ParsePalette([]string{" #F99 "})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0xFF, G: 0x99, B: 0x99, A: 0xFF}, short[0])

	_, err = application.ParsePalette([]string{"#GG0000"})
	assert.Error(t, err)
	_, err = application.ParsePalette(nil)
	assert.Error(t, err)
}

func TestProjectPCA(t *testing.T) {
	x := [][]float64{{1, 1, 0}, {2, 2, 0}, {3, 3, 0}, {4, 4, 0.1}}
	proj, err := application.ProjectPCA(x)
	require.NoError(t, err)
	require.Len(t, proj, 4)

	// Points alignés: la première composante porte l'essentiel de la dispersion
	spread := proj[3][0] - proj[0][0]
	if spread < 0 {
		spread = -spread
	}
	assert.Greater(t, spread, 4.0)
	assert.InDelta(t, 0, proj[1][0]+proj[2][0]+proj[0][0]+proj[3][0], 1e-9)
}
