package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"segmentation/internal/config"
	datasetdomain "segmentation/internal/dataset/domain"
	datasetinfra "segmentation/internal/dataset/infrastructure"
	exportapp "segmentation/internal/export/application"
	exportdomain "segmentation/internal/export/domain"
	genapp "segmentation/internal/generation/application"
	prepapp "segmentation/internal/preprocessing/application"
	prepdomain "segmentation/internal/preprocessing/domain"
	reportapp "segmentation/internal/reporting/application"
	segapp "segmentation/internal/segmentation/application"
	"segmentation/internal/segmentation/clustering"
	segdomain "segmentation/internal/segmentation/domain"
	shared "segmentation/internal/shared/domain"
	sharedinfra "segmentation/internal/shared/infrastructure"
	"segmentation/internal/shared/observability"
	storeinfra "segmentation/internal/store/infrastructure"
	vizapp "segmentation/internal/visualization/application"
)

var tracer = otel.Tracer("pipeline")

// stages nombre d'étapes affichées par la barre de progression
const stages = 9

// Options réglages d'une exécution, en complément de la configuration
type Options struct {
	// Method surcharge clustering.method si non vide
	Method string
	// AutoK choisit K par balayage de silhouette (K-means uniquement) ; clustering.auto_k a le même effet
	AutoK bool
	// Regenerate régénère les données brutes même si le fichier existe
	Regenerate  bool
	Parquet     bool
	SkipFigures bool
	SkipReports bool
	// Progress reçoit la barre de progression ; nil = pas de barre
	Progress io.Writer
}

// Result artefacts et résultats d'une exécution
type Result struct {
	RunID         string
	RawPath       string
	ProcessedPath string
	Rows          int
	TrainRows     int
	Method        string
	K             int
	// Scores nil quand l'évaluation est impossible (moins de 2 clusters)
	Scores     *segdomain.Scores
	KScores    []clustering.KScore
	Profiles   []segdomain.ClusterProfile
	Offers     map[int]segdomain.CommercialOffer
	Assignment []int
	Exports    []string
	Figures    []string
	Reports    []string
}

// Runner enchaîne génération, prétraitement, segmentation et restitution
type Runner struct {
	cfg     *config.Config
	opts    Options
	runID   string
	logger  *zap.Logger
	metrics *observability.Metrics
	cache   *sharedinfra.ShardedCache
	bar     *progressbar.ProgressBar
}

// NewRunner crée une exécution identifiée par un UUID
func NewRunner(cfg *config.Config, opts Options, logger *zap.Logger) *Runner {
	runID := uuid.NewString()
	return &Runner{
		cfg:     cfg,
		opts:    opts,
		runID:   runID,
		logger:  logger.With(zap.String("run_id", runID)),
		metrics: observability.NewMetrics(),
		cache:   sharedinfra.NewShardedCache(16, time.Minute),
	}
}

// RunID identifiant de l'exécution
func (r *Runner) RunID() string {
	return r.runID
}

// Metrics registre de l'exécution
func (r *Runner) Metrics() *observability.Metrics {
	return r.metrics
}

// Run exécute le pipeline complet. Toute erreur interrompt l'exécution.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", r.runID))
	defer r.cache.Close()

	start := time.Now()
	progress := r.opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	r.bar = progressbar.NewOptions(stages,
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("segmentation"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	res, err := r.run(ctx)
	if err != nil {
		r.metrics.IncrRun("failure")
		r.writeMetrics()
		span.RecordError(err)
		return nil, err
	}
	r.metrics.IncrRun("success")
	r.writeMetrics()
	_ = r.bar.Finish()

	r.logger.Info("pipeline terminé",
		zap.Int("rows", res.Rows),
		zap.String("method", res.Method),
		zap.Int("k", res.K),
		zap.Int("exports", len(res.Exports)),
		zap.Int("figures", len(res.Figures)),
		zap.Int("reports", len(res.Reports)),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:         r.runID,
		RawPath:       r.cfg.Paths.RawPath(),
		ProcessedPath: r.cfg.Paths.ProcessedPath(),
	}

	// 1. Données brutes
	var raw *datasetdomain.Frame
	if err := r.stage(ctx, "load", func(ctx context.Context) error {
		var err error
		raw, err = r.loadOrGenerate(ctx, res.RawPath)
		return err
	}); err != nil {
		return nil, err
	}
	res.Rows = raw.Rows()

	// 2. Prétraitement: statistiques apprises sur la partition d'apprentissage
	var (
		train     []int
		processed *datasetdomain.Frame
		imputed   *datasetdomain.Frame
		prep      *prepapp.Preprocessor
	)
	if err := r.stage(ctx, "preprocess", func(ctx context.Context) error {
		var err error
		train, _, err = prepdomain.TrainTestSplit(raw.Rows(), r.cfg.Preprocessing.TestSize, r.cfg.Preprocessing.Seed)
		if err != nil {
			return err
		}
		prep, err = prepapp.NewPreprocessor(r.cfg.Columns, r.cfg.Preprocessing, r.logger)
		if err != nil {
			return err
		}
		trainFrame, err := raw.Take(train)
		if err != nil {
			return err
		}
		if err := prep.Fit(ctx, trainFrame); err != nil {
			return err
		}
		if processed, err = prep.Transform(ctx, raw); err != nil {
			return err
		}
		if imputed, err = prep.Impute(raw); err != nil {
			return err
		}
		r.metrics.AddRows("preprocess", raw.Rows())
		return datasetinfra.SaveFrame(res.ProcessedPath, processed)
	}); err != nil {
		return nil, err
	}
	res.TrainRows = len(train)

	// 3. Segmentation sur les lignes d'apprentissage
	method := r.cfg.Clustering.Method
	if r.opts.Method != "" {
		method = r.opts.Method
	}
	parsed, err := segdomain.ParseMethod(method)
	if err != nil {
		return nil, err
	}
	res.Method = string(parsed)

	var (
		seg        *segapp.CustomerSegmentation
		trainFrame *datasetdomain.Frame
	)
	if err := r.stage(ctx, "fit", func(ctx context.Context) error {
		var err error
		if trainFrame, err = processed.Take(train); err != nil {
			return err
		}
		cfg := *r.cfg
		if (r.opts.AutoK || r.cfg.Clustering.AutoK) && parsed == segdomain.MethodKMeans {
			selector, err := segapp.NewCustomerSegmentation(&cfg, r.cache, r.metrics, r.logger)
			if err != nil {
				return err
			}
			scores, best, err := selector.SelectK(ctx, trainFrame)
			if err != nil {
				return err
			}
			res.KScores = scores
			cfg.Clustering.NClusters = best
		}
		if seg, err = segapp.NewCustomerSegmentation(&cfg, r.cache, r.metrics, r.logger); err != nil {
			return err
		}
		return seg.Fit(ctx, trainFrame, string(parsed))
	}); err != nil {
		return nil, err
	}
	if res.K, err = seg.K(); err != nil {
		return nil, err
	}

	// 4. Évaluation: moins de 2 clusters n'est pas bloquant
	if err := r.stage(ctx, "evaluate", func(ctx context.Context) error {
		scores, err := seg.Evaluate(ctx, trainFrame)
		var invalid *shared.ErrInvalidParameter
		if errors.As(err, &invalid) {
			r.logger.Warn("évaluation impossible", zap.Error(err))
			return nil
		}
		if err != nil {
			return err
		}
		res.Scores = &scores
		return nil
	}); err != nil {
		return nil, err
	}

	// 5. Affectation de toute la base, profils et offres
	var (
		labels     map[int]string
		centers    [][]float64
		features   []string
		importance []segdomain.FeatureImportance
	)
	if err := r.stage(ctx, "predict", func(ctx context.Context) error {
		var err error
		if res.Assignment, err = seg.PredictBatches(ctx, processed, r.cfg.Runtime.BatchSize, r.cfg.Runtime.Workers); err != nil {
			return err
		}
		if res.Profiles, err = seg.ProfilesFor(imputed, res.Assignment); err != nil {
			return err
		}
		if res.Offers, err = seg.CommercialOffers(); err != nil {
			return err
		}
		if labels, err = seg.SegmentLabels(); err != nil {
			return err
		}
		if importance, err = seg.FeatureImportance(); err != nil {
			return err
		}
		if features, err = seg.Features(); err != nil {
			return err
		}
		if centers, err = seg.ClusterCenters(); err != nil {
			return err
		}
		centers = originalUnits(centers, features, prep)
		return nil
	}); err != nil {
		return nil, err
	}

	exporter := exportapp.NewExporter(r.cfg.Paths.ExportDir, r.cfg.Runtime, r.metrics, r.logger)
	var rows []exportdomain.ClusterExportRow
	if rows, err = exporter.BuildClusterRows(ctx, imputed, res.Assignment, labels); err != nil {
		return nil, err
	}

	// 6. Base de données (optionnelle): la base calcule les agrégats par segment
	var stats []exportdomain.SegmentStat
	if err := r.stage(ctx, "store", func(ctx context.Context) error {
		if r.cfg.Database.URL == "" {
			return nil
		}
		var err error
		stats, err = r.persist(ctx, rows, res.Offers)
		return err
	}); err != nil {
		return nil, err
	}

	// 7. Exports
	if err := r.stage(ctx, "export", func(ctx context.Context) error {
		var err error
		res.Exports, err = exporter.ExportAll(ctx, exportapp.Input{
			RunID:    r.runID,
			Rows:     rows,
			Profiles: res.Profiles,
			Offers:   res.Offers,
			Stats:    stats,
			Parquet:  r.opts.Parquet,
		})
		return err
	}); err != nil {
		return nil, err
	}

	// 8. Figures
	if err := r.stage(ctx, "figures", func(ctx context.Context) error {
		if r.opts.SkipFigures {
			return nil
		}
		viz, err := vizapp.NewVisualizer(r.cfg.Visualization, r.cfg.Paths.FiguresDir, r.logger)
		if err != nil {
			return err
		}
		scaled, err := processed.Matrix(features)
		if err != nil {
			return err
		}
		res.Figures, err = viz.RenderAll(ctx, vizapp.Input{
			Profiles:       res.Profiles,
			Importance:     importance,
			Offers:         res.Offers,
			Labels:         labels,
			Centers:        centers,
			CenterFeatures: features,
			Frame:          imputed,
			Assignment:     res.Assignment,
			Features:       presentNumeric(imputed, r.cfg.Columns.Numeric),
			Scaled:         scaled,
			KScores:        res.KScores,
		})
		return err
	}); err != nil {
		return nil, err
	}

	// 9. Rapports
	if err := r.stage(ctx, "reports", func(ctx context.Context) error {
		if r.opts.SkipReports {
			return nil
		}
		snapshot := r.metrics.Snapshot()
		var err error
		res.Reports, err = reportapp.NewReporter(r.cfg.Paths.ReportsDir, r.cfg.KPIThresholds, r.logger).
			RenderAll(ctx, reportapp.Input{
				Profiles: res.Profiles,
				Offers:   res.Offers,
				Scores:   res.Scores,
				Snapshot: &snapshot,
				RunID:    r.runID,
			})
		return err
	}); err != nil {
		return nil, err
	}

	return res, nil
}

// stage exécute une étape sous span, chronométrée, puis avance la barre
func (r *Runner) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "Pipeline."+name)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}
	r.bar.Describe(name)
	start := time.Now()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("étape %s: %w", name, err)
	}
	r.metrics.ObserveStage(name, time.Since(start))
	_ = r.bar.Add(1)
	r.logger.Debug("étape terminée", zap.String("stage", name), zap.Duration("duration", time.Since(start)))
	return nil
}

// loadOrGenerate charge le fichier brut, ou le génère s'il est absent (ou sur demande)
func (r *Runner) loadOrGenerate(ctx context.Context, path string) (*datasetdomain.Frame, error) {
	if !r.opts.Regenerate {
		frame, err := datasetinfra.LoadFrame(path)
		var notFound *shared.ErrNotFound
		if err == nil {
			r.logger.Info("données chargées", zap.String("path", path), zap.Int("rows", frame.Rows()))
			r.logMissing(frame)
			return frame, nil
		}
		if !errors.As(err, &notFound) {
			return nil, err
		}
		r.logger.Info("fichier brut absent, génération", zap.String("path", path))
	}

	gen := genapp.NewGenerator(r.cfg.Generator, r.logger)
	frame, err := gen.GenerateAndSave(ctx, path, r.cfg.Generator.Samples, r.cfg.Generator.Seed)
	if err != nil {
		return nil, err
	}
	r.logMissing(frame)
	return frame, nil
}

func (r *Runner) logMissing(frame *datasetdomain.Frame) {
	for _, m := range prepapp.MissingReport(frame) {
		r.logger.Info("valeurs manquantes",
			zap.String("column", m.Column),
			zap.Int("count", m.Count),
			zap.Float64("percent", m.Percent),
		)
	}
}

// persist enregistre clients et offres puis relit les agrégats par segment
func (r *Runner) persist(ctx context.Context, rows []exportdomain.ClusterExportRow, offers map[int]segdomain.CommercialOffer) ([]exportdomain.SegmentStat, error) {
	store, err := storeinfra.Open(ctx, r.cfg.Database.URL, r.logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if err := store.ReplaceCustomers(ctx, r.runID, rows); err != nil {
		return nil, err
	}
	if err := store.ReplaceOffers(ctx, r.runID, offers); err != nil {
		return nil, err
	}
	return store.SegmentStats(ctx, r.runID)
}

func (r *Runner) writeMetrics() {
	path := r.cfg.Observability.MetricsFile
	if path == "" {
		return
	}
	if err := r.metrics.WriteTextfile(path); err != nil {
		r.logger.Warn("métriques non écrites", zap.Error(err))
	}
}

// originalUnits ramène les colonnes normalisées par le préprocesseur à leurs unités d'origine.
// Les colonnes encodées restent inchangées.
func originalUnits(centers [][]float64, features []string, prep *prepapp.Preprocessor) [][]float64 {
	scaler := prep.Scaler()
	if scaler == nil {
		return centers
	}
	index := make(map[string]int, len(scaler.Columns()))
	for j, c := range scaler.Columns() {
		index[c] = j
	}
	means, scales := scaler.Means(), scaler.Scales()

	out := make([][]float64, len(centers))
	for i, row := range centers {
		r := append([]float64(nil), row...)
		for j, f := range features {
			if k, ok := index[f]; ok && j < len(r) {
				r[j] = r[j]*scales[k] + means[k]
			}
		}
		out[i] = r
	}
	return out
}

func presentNumeric(frame *datasetdomain.Frame, columns []string) []string {
	var out []string
	for _, c := range columns {
		if kind, ok := frame.Kind(c); ok && kind == datasetdomain.KindNumeric {
			out = append(out, c)
		}
	}
	return out
}
