package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shared "segmentation/internal/shared/domain"
)

func sampleRow(i int) ClusterExportRow {
	return ClusterExportRow{
		CustomerID:   fmt.Sprintf("C%05d", i),
		Segment:      int32(i % 4),
		SegmentLabel: "Clients Premium",
		Age:          42,
		Gender:       "F",
		Zone:         "Tunis",
		ClientType:   "Particulier",
		Consumption:  123.5,
		Calls:        51,
		DataVolume:   6.25,
		SMS:          19,
		Subscription: "Postpayé",
		Duration:     38,
	}
}

func TestNewExportJob(t *testing.T) {
	job, err := NewExportJob(ExportFormatParquet, ExportTypeClusters, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "clusters.parquet", job.FileName())
	assert.Equal(t, "run-1", job.RunID())
	assert.False(t, job.CreatedAt().IsZero())

	job, err = NewExportJob(ExportFormatCSV, ExportTypeSegmentStats, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "segment_stats.csv", job.FileName())

	var invalid *shared.ErrInvalidParameter
	_, err = NewExportJob("XLSX", ExportTypeClusters, "run-1")
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "format", invalid.Field)

	_, err = NewExportJob(ExportFormatCSV, "sales", "run-1")
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "export_type", invalid.Field)

	_, err = NewExportJob(ExportFormatParquet, ExportTypeOffers, "run-1")
	assert.True(t, errors.As(err, &invalid))
}

func TestClusterExportRow_ToCSVRow(t *testing.T) {
	row := sampleRow(7)
	csvRow := row.ToCSVRow()
	require.Len(t, csvRow, len(CSVHeaders()))
	assert.Equal(t, []string{"C00007", "3", "Clients Premium", "42", "F", "Tunis", "Particulier",
		"123.5", "51", "6.25", "19", "Postpayé", "38"}, csvRow)
}

func TestOfferExportRow_ToCSVRow(t *testing.T) {
	row := OfferExportRow{
		ClusterID: 0, Segment: "Clients Premium", Offer: "Offre Premium",
		Discount: shared.MustNewDiscount(0.15), Services: []string{"VoD", "Sport"}, PrioritySupport: true,
	}
	assert.Equal(t, []string{"0", "Clients Premium", "Offre Premium", "", "0.15", "VoD;Sport", "true"}, row.ToCSVRow())
	assert.Len(t, OfferCSVHeaders(), len(row.ToCSVRow()))
}

func TestProfileAndStatRows(t *testing.T) {
	p := ProfileExportRow{ClusterID: 1, Label: "Clients Fidèles", Size: 350, Percentage: 35,
		Feature: "volume_data", Mean: 4.5, Std: 1.25, Min: 0, Max: 12, IsKey: true}
	assert.Len(t, p.ToCSVRow(), len(ProfileCSVHeaders()))
	assert.Equal(t, "35.00", p.ToCSVRow()[3])

	s := SegmentStat{Segment: -1, Label: "Bruit", Customers: 3, AvgConsumption: 10.333333}
	assert.Len(t, s.ToCSVRow(), len(SegmentStatCSVHeaders()))
	assert.Equal(t, "10.33", s.ToCSVRow()[3])
}

// ========================================
// Benchmarks: ToCSVRow
// ========================================

// BenchmarkClusterExportRow_ToCSVRow benchmark de la conversion d'une ligne
func BenchmarkClusterExportRow_ToCSVRow(b *testing.B) {
	row := sampleRow(1)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = row.ToCSVRow()
	}
}

// BenchmarkClusterExportRow_Sprintf variante fmt.Sprintf pour comparaison
func BenchmarkClusterExportRow_Sprintf(b *testing.B) {
	row := sampleRow(1)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = []string{
			row.CustomerID,
			fmt.Sprintf("%d", row.Segment),
			row.SegmentLabel,
			fmt.Sprintf("%g", row.Age),
			fmt.Sprintf("%g", row.Consumption),
			fmt.Sprintf("%g", row.DataVolume),
		}
	}
}

// BenchmarkCSVHeaders teste la génération des headers CSV
func BenchmarkCSVHeaders(b *testing.B) {
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = CSVHeaders()
	}
}

// ========================================
// Benchmarks: Batch Row Processing
// ========================================

func benchmarkBatch(b *testing.B, n int) {
	rows := make([]ClusterExportRow, n)
	for i := range rows {
		rows[i] = sampleRow(i)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		for j := range rows {
			_ = rows[j].ToCSVRow()
		}
	}
}

// BenchmarkBatchRowProcessing_100 teste le traitement de 100 lignes
func BenchmarkBatchRowProcessing_100(b *testing.B) { benchmarkBatch(b, 100) }

// BenchmarkBatchRowProcessing_1000 teste le traitement de 1000 lignes
func BenchmarkBatchRowProcessing_1000(b *testing.B) { benchmarkBatch(b, 1000) }

// BenchmarkOfferServices_Join compare Join et Builder pour la liste des services
func BenchmarkOfferServices_Join(b *testing.B) {
	services := []string{"Data Premium", "Appels Illimités", "VoD", "Sport"}

	b.Run("Join", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = strings.Join(services, ";")
		}
	})

	b.Run("Builder", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			var sb strings.Builder
			sb.Grow(64)
			for j, s := range services {
				if j > 0 {
					sb.WriteByte(';')
				}
				sb.WriteString(s)
			}
			_ = sb.String()
		}
	})
}
