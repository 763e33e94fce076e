package domain

import (
	"strconv"
	"strings"
	"time"

	"segmentation/internal/shared/domain"
)

// ExportFormat représente le format d'export
type ExportFormat string

const (
	ExportFormatCSV     ExportFormat = "CSV"
	ExportFormatParquet ExportFormat = "Parquet"
)

// Extension extension de fichier du format
func (f ExportFormat) Extension() string {
	if f == ExportFormatParquet {
		return ".parquet"
	}
	return ".csv"
}

// ExportType représente le type d'export
type ExportType string

const (
	ExportTypeClusters     ExportType = "clusters"
	ExportTypeProfiles     ExportType = "profiles"
	ExportTypeOffers       ExportType = "offers"
	ExportTypeSegmentStats ExportType = "segment_stats"
)

// ExportJob représente un job d'export
type ExportJob struct {
	format     ExportFormat
	exportType ExportType
	runID      string
	createdAt  time.Time
}

// NewExportJob crée un nouveau job d'export avec validation.
// Seuls les clients (clusters) peuvent être exportés en Parquet.
func NewExportJob(format ExportFormat, exportType ExportType, runID string) (*ExportJob, error) {
	if format != ExportFormatCSV && format != ExportFormatParquet {
		return nil, domain.NewInvalidParameter("format", "format d'export invalide: %q", format)
	}
	switch exportType {
	case ExportTypeClusters, ExportTypeProfiles, ExportTypeOffers, ExportTypeSegmentStats:
	default:
		return nil, domain.NewInvalidParameter("export_type", "type d'export invalide: %q", exportType)
	}
	if format == ExportFormatParquet && exportType != ExportTypeClusters {
		return nil, domain.NewInvalidParameter("format", "Parquet réservé à l'export des clients")
	}

	return &ExportJob{
		format:     format,
		exportType: exportType,
		runID:      runID,
		createdAt:  time.Now(),
	}, nil
}

// Format retourne le format d'export
func (ej *ExportJob) Format() ExportFormat {
	return ej.format
}

// ExportType retourne le type d'export
func (ej *ExportJob) ExportType() ExportType {
	return ej.exportType
}

// RunID identifiant de l'exécution à l'origine de l'export
func (ej *ExportJob) RunID() string {
	return ej.runID
}

// CreatedAt retourne la date de création
func (ej *ExportJob) CreatedAt() time.Time {
	return ej.createdAt
}

// FileName nom du fichier produit
func (ej *ExportJob) FileName() string {
	return string(ej.exportType) + ej.format.Extension()
}

// ClusterExportRow un client et son segment.
// Les tags parquet décrivent le schéma du fichier clusters.parquet.
type ClusterExportRow struct {
	CustomerID   string  `parquet:"name=customer_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Segment      int32   `parquet:"name=segment, type=INT32"`
	SegmentLabel string  `parquet:"name=segment_label, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Age          float64 `parquet:"name=age, type=DOUBLE"`
	Gender       string  `parquet:"name=sexe, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Zone         string  `parquet:"name=zone_geographique, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ClientType   string  `parquet:"name=type_client, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Consumption  float64 `parquet:"name=montant_consommation, type=DOUBLE"`
	Calls        float64 `parquet:"name=nombre_appels, type=DOUBLE"`
	DataVolume   float64 `parquet:"name=volume_data, type=DOUBLE"`
	SMS          float64 `parquet:"name=nombre_sms, type=DOUBLE"`
	Subscription string  `parquet:"name=type_abonnement, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Duration     float64 `parquet:"name=duree_abonnement, type=DOUBLE"`
}

// ToCSVRow convertit en tableau pour CSV
func (r *ClusterExportRow) ToCSVRow() []string {
	return []string{
		r.CustomerID,
		strconv.Itoa(int(r.Segment)),
		r.SegmentLabel,
		formatFloat(r.Age),
		r.Gender,
		r.Zone,
		r.ClientType,
		formatFloat(r.Consumption),
		formatFloat(r.Calls),
		formatFloat(r.DataVolume),
		formatFloat(r.SMS),
		r.Subscription,
		formatFloat(r.Duration),
	}
}

// CSVHeaders retourne les en-têtes CSV de l'export clients
func CSVHeaders() []string {
	return []string{
		"customer_id",
		"segment",
		"segment_label",
		"age",
		"sexe",
		"zone_geographique",
		"type_client",
		"montant_consommation",
		"nombre_appels",
		"volume_data",
		"nombre_sms",
		"type_abonnement",
		"duree_abonnement",
	}
}

// ProfileExportRow une feature d'un profil de cluster (format long)
type ProfileExportRow struct {
	ClusterID  int
	Label      string
	Size       int
	Percentage float64
	Feature    string
	Mean       float64
	Std        float64
	Min        float64
	Max        float64
	IsKey      bool
}

// ToCSVRow convertit en tableau pour CSV
func (r *ProfileExportRow) ToCSVRow() []string {
	return []string{
		strconv.Itoa(r.ClusterID),
		r.Label,
		strconv.Itoa(r.Size),
		strconv.FormatFloat(r.Percentage, 'f', 2, 64),
		r.Feature,
		formatFloat(r.Mean),
		formatFloat(r.Std),
		formatFloat(r.Min),
		formatFloat(r.Max),
		strconv.FormatBool(r.IsKey),
	}
}

// ProfileCSVHeaders en-têtes de l'export profils
func ProfileCSVHeaders() []string {
	return []string{"cluster", "segment_label", "size", "percentage", "feature", "mean", "std", "min", "max", "key_feature"}
}

// OfferExportRow offre d'un cluster
type OfferExportRow struct {
	ClusterID       int
	Segment         string
	Offer           string
	Description     string
	Discount        domain.Discount
	Services        []string
	PrioritySupport bool
}

// ToCSVRow convertit en tableau pour CSV (services séparés par « ; »)
func (r *OfferExportRow) ToCSVRow() []string {
	return []string{
		strconv.Itoa(r.ClusterID),
		r.Segment,
		r.Offer,
		r.Description,
		strconv.FormatFloat(r.Discount.Fraction(), 'f', 2, 64),
		strings.Join(r.Services, ";"),
		strconv.FormatBool(r.PrioritySupport),
	}
}

// OfferCSVHeaders en-têtes de l'export offres
func OfferCSVHeaders() []string {
	return []string{"cluster", "segment_label", "offer", "description", "discount", "services", "priority_support"}
}

// SegmentStat agrégats d'un segment sur l'ensemble des clients
type SegmentStat struct {
	Segment        int
	Label          string
	Customers      int
	AvgConsumption float64
	AvgData        float64
	AvgCalls       float64
	// TotalConsumption somme des montants de consommation du segment
	TotalConsumption float64
}

// ToCSVRow convertit en tableau pour CSV
func (s *SegmentStat) ToCSVRow() []string {
	return []string{
		strconv.Itoa(s.Segment),
		s.Label,
		strconv.Itoa(s.Customers),
		strconv.FormatFloat(s.AvgConsumption, 'f', 2, 64),
		strconv.FormatFloat(s.AvgData, 'f', 2, 64),
		strconv.FormatFloat(s.AvgCalls, 'f', 2, 64),
		strconv.FormatFloat(s.TotalConsumption, 'f', 2, 64),
	}
}

// SegmentStatCSVHeaders en-têtes de l'export statistiques par segment
func SegmentStatCSVHeaders() []string {
	return []string{"segment", "segment_label", "customers", "avg_consumption", "avg_data", "avg_calls", "total_consumption"}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
