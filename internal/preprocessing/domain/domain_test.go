package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	datasetdomain "segmentation/internal/dataset/domain"
	shared "segmentation/internal/shared/domain"
)

func TestStandardScaler(t *testing.T) {
	m := [][]float64{{1, 10}, {2, 10}, {3, 10}}
	s, err := FitStandardScaler([]string{"a", "const"}, m)
	require.NoError(t, err)

	assert.InDelta(t, 2, s.Means()[0], 1e-12)
	assert.InDelta(t, math.Sqrt(2.0/3.0), s.Scales()[0], 1e-12)
	assert.Equal(t, 1.0, s.Scales()[1], "constant column keeps unit scale")

	z, err := s.Transform(m)
	require.NoError(t, err)
	assert.InDelta(t, 0, z[1][0], 1e-12)
	assert.InDelta(t, 0, z[0][1], 1e-12)

	back := s.InverseTransform(z)
	assert.InDelta(t, 3, back[2][0], 1e-12)

	_, err = s.Transform([][]float64{{1}})
	assert.Error(t, err)
}

func TestImputer(t *testing.T) {
	f := datasetdomain.NewFrame(5)
	require.NoError(t, f.SetNumeric("x", []float64{1, 2, math.NaN(), 10, math.NaN()}))
	require.NoError(t, f.SetText("zone", []string{"Sfax", "Tunis", "", "Sfax", "Tunis"}))

	mean, err := FitImputer(f, []string{"x"}, []string{"zone"}, ImputeMean)
	require.NoError(t, err)
	v, _ := mean.NumericFill("x")
	assert.InDelta(t, 13.0/3.0, v, 1e-12)
	mode, _ := mean.CategoricalFill("zone")
	assert.Equal(t, "Sfax", mode, "ties resolve to the lexically smallest value")

	med, err := FitImputer(f, []string{"x"}, nil, ImputeMedian)
	require.NoError(t, err)
	v, _ = med.NumericFill("x")
	assert.InDelta(t, 2, v, 1e-12)

	out, err := mean.Transform(f)
	require.NoError(t, err)
	assert.Equal(t, 0, out.MissingCount("x"))
	assert.Equal(t, 0, out.MissingCount("zone"))
	assert.Equal(t, 2, f.MissingCount("x"), "input frame untouched")

	_, err = FitImputer(f, []string{"age"}, nil, ImputeMean)
	var missing *shared.ErrMissingColumn
	assert.True(t, errors.As(err, &missing))
}

func TestEncoder_Label(t *testing.T) {
	train := datasetdomain.NewFrame(3)
	require.NoError(t, train.SetText("type_abonnement", []string{"Postpayé", "Hybride", "Prépayé"}))

	enc, err := FitEncoder(train, []string{"type_abonnement", "absent"}, EncodeLabel)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hybride", "Postpayé", "Prépayé"}, enc.Classes("type_abonnement"))

	test := datasetdomain.NewFrame(2)
	require.NoError(t, test.SetText("type_abonnement", []string{"Prépayé", "Inconnu"}))
	out, err := enc.Transform(test)
	require.NoError(t, err)
	codes, err := out.Numeric("type_abonnement")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, UnknownCode}, codes)
}

func TestEncoder_OneHot(t *testing.T) {
	f := datasetdomain.NewFrame(3)
	require.NoError(t, f.SetText("sexe", []string{"M", "F", "M"}))
	require.NoError(t, f.SetNumeric("age", []float64{30, 40, 50}))

	enc, err := FitEncoder(f, []string{"sexe"}, EncodeOneHot)
	require.NoError(t, err)
	out, err := enc.Transform(f)
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "sexe_M"}, out.Columns())
	ind, _ := out.Numeric("sexe_M")
	assert.Equal(t, []float64{1, 0, 1}, ind)
}

func TestParseStrategies(t *testing.T) {
	_, err := ParseNumericStrategy("MEDIAN")
	assert.NoError(t, err)
	_, err = ParseNumericStrategy("mode")
	assert.Error(t, err)
	_, err = ParseEncodingStrategy("OneHot")
	assert.NoError(t, err)
	_, err = ParseEncodingStrategy("target")
	assert.Error(t, err)
}

func TestTrainTestSplit(t *testing.T) {
	train, test, err := TrainTestSplit(100, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 20)
	assert.Len(t, train, 80)

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[i], "index %d appears twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, 100)
	assert.IsIncreasing(t, train)

	again, _, _ := TrainTestSplit(100, 0.2, 42)
	assert.Equal(t, train, again)

	all, none, err := TrainTestSplit(10, 0, 1)
	require.NoError(t, err)
	assert.Len(t, all, 10)
	assert.Empty(t, none)

	_, _, err = TrainTestSplit(0, 0.2, 1)
	assert.Error(t, err)
}
