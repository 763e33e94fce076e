package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDateRangeFromDays(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	dr, err := NewDateRangeFromDays(now, 3*365)
	require.NoError(t, err)
	assert.Equal(t, now, dr.End())
	assert.Equal(t, 3*365, dr.Days())
	assert.True(t, dr.Contains(dr.DaysBeforeEnd(10)))
	assert.Equal(t, dr.Start(), dr.DaysBeforeEnd(10_000))

	_, err = NewDateRangeFromDays(now, -1)
	assert.Error(t, err)
}

func TestDiscount(t *testing.T) {
	d, err := NewDiscount(0.15)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, d.Percent(), 1e-9)
	assert.InDelta(t, 85.0, d.Apply(100), 1e-9)
	assert.Equal(t, "15%", d.String())

	_, err = NewDiscount(1.5)
	var invalid *ErrInvalidParameter
	assert.True(t, errors.As(err, &invalid))
}

func TestSampleSize(t *testing.T) {
	_, err := NewSampleSize(0)
	var invalid *ErrInvalidParameter
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "n", invalid.Field)

	s := MustNewSampleSize(10)
	assert.Equal(t, [][2]int{{0, 4}, {4, 8}, {8, 10}}, s.Batches(4))
	assert.Equal(t, [][2]int{{0, 10}}, s.Batches(0))
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, (&ErrMissingColumn{Column: "age"}).Error(), "age")
	assert.Contains(t, (&ErrUnsupportedFormat{Path: "x.json", Extension: ".json"}).Error(), ".json")
	assert.Contains(t, (&ErrNotFound{Resource: "fichier", Path: "/tmp/x.csv"}).Error(), "/tmp/x.csv")
	assert.Contains(t, (&ErrUnfitted{Operation: "Predict"}).Error(), "Predict")
}
