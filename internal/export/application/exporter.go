package application

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"segmentation/internal/config"
	datasetdomain "segmentation/internal/dataset/domain"
	"segmentation/internal/export/domain"
	segdomain "segmentation/internal/segmentation/domain"
	shared "segmentation/internal/shared/domain"
	sharedinfra "segmentation/internal/shared/infrastructure"
	"segmentation/internal/shared/observability"
)

var tracer = otel.Tracer("export/application")

// parquetParallelism nombre de goroutines d'encodage du writer parquet
const parquetParallelism = 4

// Input résultats d'une exécution à exporter
type Input struct {
	RunID string
	// Frame tableau imputé non normalisé, aligné sur Assignment
	Frame      *datasetdomain.Frame
	Assignment []int
	Labels     map[int]string
	Profiles   []segdomain.ClusterProfile
	Offers     map[int]segdomain.CommercialOffer
	// Rows lignes clients déjà construites ; nil = construites depuis Frame
	Rows []domain.ClusterExportRow
	// Stats agrégats calculés par la base ; nil = calculés en mémoire
	Stats []domain.SegmentStat
	// Parquet exporte aussi les clients au format Parquet
	Parquet bool
}

// Exporter écrit les fichiers d'export (CSV, Parquet) d'une exécution
type Exporter struct {
	dir       string
	workers   int
	batchSize int
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewExporter crée un exporteur écrivant dans dir
func NewExporter(dir string, runtime config.Runtime, metrics *observability.Metrics, logger *zap.Logger) *Exporter {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	batch := runtime.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	return &Exporter{
		dir:       dir,
		workers:   runtime.Workers,
		batchSize: batch,
		metrics:   metrics,
		logger:    logger,
	}
}

// ExportAll écrit clients, profils, offres et statistiques par segment.
// Retourne les chemins écrits, triés.
func (e *Exporter) ExportAll(ctx context.Context, in Input) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Exporter.ExportAll")
	defer span.End()
	start := time.Now()

	rows := in.Rows
	if rows == nil {
		var err error
		rows, err = e.BuildClusterRows(ctx, in.Frame, in.Assignment, in.Labels)
		if err != nil {
			return nil, err
		}
	}

	var paths []string
	write := func(format domain.ExportFormat, kind domain.ExportType, fn func(*domain.ExportJob) (string, error)) error {
		job, err := domain.NewExportJob(format, kind, in.RunID)
		if err != nil {
			return err
		}
		p, err := fn(job)
		if err != nil {
			return err
		}
		paths = append(paths, p)
		return nil
	}

	clusters := func(job *domain.ExportJob) (string, error) { return e.ExportClusters(ctx, job, rows) }
	if err := write(domain.ExportFormatCSV, domain.ExportTypeClusters, clusters); err != nil {
		return nil, err
	}
	if in.Parquet {
		if err := write(domain.ExportFormatParquet, domain.ExportTypeClusters, clusters); err != nil {
			return nil, err
		}
	}
	if err := write(domain.ExportFormatCSV, domain.ExportTypeProfiles, func(job *domain.ExportJob) (string, error) {
		return e.ExportProfiles(ctx, job, in.Profiles)
	}); err != nil {
		return nil, err
	}
	if err := write(domain.ExportFormatCSV, domain.ExportTypeOffers, func(job *domain.ExportJob) (string, error) {
		return e.ExportOffers(ctx, job, in.Offers)
	}); err != nil {
		return nil, err
	}

	stats := in.Stats
	if stats == nil {
		stats = SegmentStats(rows)
	}
	if err := write(domain.ExportFormatCSV, domain.ExportTypeSegmentStats, func(job *domain.ExportJob) (string, error) {
		return e.ExportSegmentStats(ctx, job, stats)
	}); err != nil {
		return nil, err
	}

	sort.Strings(paths)
	e.metrics.ObserveStage("export", time.Since(start))
	span.SetAttributes(attribute.Int("export.files", len(paths)))
	e.logger.Info("exports écrits",
		zap.String("run_id", in.RunID),
		zap.Int("files", len(paths)),
		zap.Int("customers", len(rows)),
		zap.Duration("duration", time.Since(start)),
	)
	return paths, nil
}

// BuildClusterRows construit une ligne d'export par client, par lots traités en parallèle.
// Les colonnes absentes du tableau restent à leur valeur zéro.
func (e *Exporter) BuildClusterRows(ctx context.Context, frame *datasetdomain.Frame, assignment []int, labels map[int]string) ([]domain.ClusterExportRow, error) {
	ctx, span := tracer.Start(ctx, "Exporter.BuildClusterRows")
	defer span.End()

	if frame == nil {
		return nil, shared.NewInvalidParameter("frame", "tableau absent")
	}
	if len(assignment) != frame.Rows() {
		return nil, shared.NewInvalidParameter("assignment", "%d affectations pour %d lignes", len(assignment), frame.Rows())
	}
	if len(assignment) == 0 {
		return nil, nil
	}

	num := func(col string) []float64 {
		v, err := frame.Numeric(col)
		if err != nil {
			return nil
		}
		return v
	}
	ages := num(datasetdomain.ColAge)
	consumption := num(datasetdomain.ColConsumption)
	calls := num(datasetdomain.ColCalls)
	data := num(datasetdomain.ColDataVolume)
	sms := num(datasetdomain.ColSMS)
	duration := num(datasetdomain.ColDuration)

	rows := make([]domain.ClusterExportRow, len(assignment))
	size, err := shared.NewSampleSize(len(assignment))
	if err != nil {
		return nil, err
	}

	wp := sharedinfra.NewWorkerPool(ctx, e.workers)
	wp.Start()
	for _, b := range size.Batches(e.batchSize) {
		start, end := b[0], b[1]
		// Chaque lot écrit une plage disjointe de rows: pas de verrou
		task := func(ctx context.Context) error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				id := assignment[i]
				label, ok := labels[id]
				if !ok {
					label = segdomain.FallbackLabel(id)
				}
				customerID := frame.Cell(i, datasetdomain.ColCustomerID)
				if customerID == "" {
					customerID = fmt.Sprintf("CUST_%05d", i+1)
				}
				rows[i] = domain.ClusterExportRow{
					CustomerID:   customerID,
					Segment:      int32(id),
					SegmentLabel: label,
					Age:          at(ages, i),
					Gender:       frame.Cell(i, datasetdomain.ColGender),
					Zone:         frame.Cell(i, datasetdomain.ColZone),
					ClientType:   frame.Cell(i, datasetdomain.ColClientType),
					Consumption:  at(consumption, i),
					Calls:        at(calls, i),
					DataVolume:   at(data, i),
					SMS:          at(sms, i),
					Subscription: frame.Cell(i, datasetdomain.ColSubscription),
					Duration:     at(duration, i),
				}
			}
			return nil
		}
		if err := wp.Submit(task); err != nil {
			break
		}
	}
	if err := wp.Wait(); err != nil {
		return nil, fmt.Errorf("erreur construction des lignes d'export: %w", err)
	}
	e.metrics.AddRows("export", len(rows))
	return rows, nil
}

// ExportClusters écrit l'affectation des clients au format du job
func (e *Exporter) ExportClusters(ctx context.Context, job *domain.ExportJob, rows []domain.ClusterExportRow) (string, error) {
	_, span := tracer.Start(ctx, "Exporter.ExportClusters")
	defer span.End()
	span.SetAttributes(attribute.String("export.format", string(job.Format())))

	if job.ExportType() != domain.ExportTypeClusters {
		return "", shared.NewInvalidParameter("export_type", "export clients attendu, reçu %q", job.ExportType())
	}
	path, err := e.path(job)
	if err != nil {
		return "", err
	}
	if job.Format() == domain.ExportFormatParquet {
		return path, WriteParquet(path, rows)
	}

	buffer := bytes.NewBuffer(make([]byte, 0, 128*len(rows)+256))
	w := csv.NewWriter(buffer)
	if err := w.Write(domain.CSVHeaders()); err != nil {
		return "", err
	}
	for i := range rows {
		if err := w.Write(rows[i].ToCSVRow()); err != nil {
			return "", err
		}
		// Flush périodique: limite la taille du tampon interne du writer
		if (i+1)%e.batchSize == 0 {
			w.Flush()
		}
	}
	return path, flushTo(path, buffer, w)
}

// ExportProfiles écrit les profils en format long (une ligne par cluster et feature)
func (e *Exporter) ExportProfiles(ctx context.Context, job *domain.ExportJob, profiles []segdomain.ClusterProfile) (string, error) {
	_, span := tracer.Start(ctx, "Exporter.ExportProfiles")
	defer span.End()

	path, err := e.path(job)
	if err != nil {
		return "", err
	}
	buffer := bytes.NewBuffer(make([]byte, 0, 16*1024))
	w := csv.NewWriter(buffer)
	if err := w.Write(domain.ProfileCSVHeaders()); err != nil {
		return "", err
	}
	for _, p := range profiles {
		key := make(map[string]bool, len(p.KeyFeatures))
		for _, kf := range p.KeyFeatures {
			key[kf.Feature] = true
		}
		for _, f := range p.Features {
			s := p.Stats[f]
			row := domain.ProfileExportRow{
				ClusterID:  p.ClusterID,
				Label:      p.Label,
				Size:       p.Size,
				Percentage: p.Percentage,
				Feature:    f,
				Mean:       s.Mean,
				Std:        s.Std,
				Min:        s.Min,
				Max:        s.Max,
				IsKey:      key[f],
			}
			if err := w.Write(row.ToCSVRow()); err != nil {
				return "", err
			}
		}
	}
	return path, flushTo(path, buffer, w)
}

// ExportOffers écrit l'offre commerciale de chaque cluster (ordre croissant, bruit en dernier)
func (e *Exporter) ExportOffers(ctx context.Context, job *domain.ExportJob, offers map[int]segdomain.CommercialOffer) (string, error) {
	_, span := tracer.Start(ctx, "Exporter.ExportOffers")
	defer span.End()

	path, err := e.path(job)
	if err != nil {
		return "", err
	}
	ids := make([]int, 0, len(offers))
	for id := range offers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if (ids[i] < 0) != (ids[j] < 0) {
			return ids[j] < 0
		}
		return ids[i] < ids[j]
	})

	buffer := bytes.NewBuffer(make([]byte, 0, 8*1024))
	w := csv.NewWriter(buffer)
	if err := w.Write(domain.OfferCSVHeaders()); err != nil {
		return "", err
	}
	for _, id := range ids {
		o := offers[id]
		row := domain.OfferExportRow{
			ClusterID:       id,
			Segment:         o.Segment,
			Offer:           o.Name,
			Description:     o.Description,
			Discount:        o.Discount,
			Services:        o.Services,
			PrioritySupport: o.PrioritySupport,
		}
		if err := w.Write(row.ToCSVRow()); err != nil {
			return "", err
		}
	}
	return path, flushTo(path, buffer, w)
}

// ExportSegmentStats écrit les agrégats par segment
func (e *Exporter) ExportSegmentStats(ctx context.Context, job *domain.ExportJob, stats []domain.SegmentStat) (string, error) {
	_, span := tracer.Start(ctx, "Exporter.ExportSegmentStats")
	defer span.End()

	path, err := e.path(job)
	if err != nil {
		return "", err
	}
	buffer := bytes.NewBuffer(make([]byte, 0, 4*1024))
	w := csv.NewWriter(buffer)
	if err := w.Write(domain.SegmentStatCSVHeaders()); err != nil {
		return "", err
	}
	for i := range stats {
		if err := w.Write(stats[i].ToCSVRow()); err != nil {
			return "", err
		}
	}
	return path, flushTo(path, buffer, w)
}

// SegmentStats agrège les lignes d'export par segment (ordre croissant, bruit en dernier)
func SegmentStats(rows []domain.ClusterExportRow) []domain.SegmentStat {
	bySegment := make(map[int]*domain.SegmentStat)
	for i := range rows {
		r := &rows[i]
		id := int(r.Segment)
		s, ok := bySegment[id]
		if !ok {
			s = &domain.SegmentStat{Segment: id, Label: r.SegmentLabel}
			bySegment[id] = s
		}
		s.Customers++
		s.TotalConsumption += r.Consumption
		s.AvgData += r.DataVolume
		s.AvgCalls += r.Calls
	}

	out := make([]domain.SegmentStat, 0, len(bySegment))
	for _, s := range bySegment {
		n := float64(s.Customers)
		s.AvgConsumption = s.TotalConsumption / n
		s.AvgData /= n
		s.AvgCalls /= n
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Segment, out[j].Segment
		if (a < 0) != (b < 0) {
			return b < 0
		}
		return a < b
	})
	return out
}

// WriteParquet écrit les lignes clients dans un fichier Parquet (compression Snappy)
func WriteParquet(path string, rows []domain.ClusterExportRow) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("erreur création fichier parquet %s: %w", path, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(domain.ClusterExportRow), parquetParallelism)
	if err != nil {
		fw.Close()
		return fmt.Errorf("erreur initialisation writer parquet: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			fw.Close()
			return fmt.Errorf("erreur écriture ligne parquet %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("erreur finalisation parquet %s: %w", path, err)
	}
	return fw.Close()
}

// ReadParquet relit un export clients Parquet
func ReadParquet(path string) ([]domain.ClusterExportRow, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &shared.ErrNotFound{Resource: "export parquet", Path: path}
	}
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("erreur ouverture parquet %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(domain.ClusterExportRow), parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("erreur lecture schéma parquet %s: %w", path, err)
	}
	defer pr.ReadStop()

	rows := make([]domain.ClusterExportRow, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("erreur lecture parquet %s: %w", path, err)
	}
	return rows, nil
}

func (e *Exporter) path(job *domain.ExportJob) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("erreur création dossier export %s: %w", e.dir, err)
	}
	return filepath.Join(e.dir, job.FileName()), nil
}

func flushTo(path string, buffer *bytes.Buffer, w *csv.Writer) error {
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := os.WriteFile(path, buffer.Bytes(), 0o644); err != nil {
		return fmt.Errorf("erreur écriture %s: %w", path, err)
	}
	return nil
}

func at(values []float64, i int) float64 {
	if values == nil {
		return 0
	}
	return values[i]
}
