package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"segmentation/internal/config"
	"segmentation/internal/pipeline"
	"segmentation/internal/shared/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "erreur:", err)
		os.Exit(1)
	}
}

// run analyse les arguments, charge la configuration et exécute le pipeline
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("segmentation", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", os.Getenv("SEG_CONFIG"), "fichier de configuration YAML (optionnel)")
	method := fs.String("method", "", "méthode de clustering: kmeans ou dbscan (défaut: configuration)")
	k := fs.Int("k", 0, "nombre de clusters K-means (défaut: configuration)")
	autoK := fs.Bool("auto-k", false, "choisir K par balayage de silhouette")
	samples := fs.Int("samples", 0, "nombre de clients à générer si le fichier brut est absent")
	seed := fs.Int64("seed", -1, "graine du générateur (défaut: generator.seed)")
	regenerate := fs.Bool("regenerate", false, "régénérer les données brutes")
	parquet := fs.Bool("parquet", false, "exporter aussi les clients au format Parquet")
	noFigures := fs.Bool("no-figures", false, "ne pas générer les graphiques")
	noReports := fs.Bool("no-reports", false, "ne pas générer les rapports")
	progress := fs.Bool("progress", true, "afficher la progression sur stderr")
	logLevel := fs.String("log-level", "", "niveau de log (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *k > 0 {
		cfg.Clustering.NClusters = *k
	}
	if *samples > 0 {
		cfg.Generator.Samples = *samples
	}
	if *seed >= 0 {
		cfg.Generator.Seed = *seed
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	opts := pipeline.Options{
		Method:      *method,
		AutoK:       *autoK || cfg.Clustering.AutoK,
		Regenerate:  *regenerate,
		Parquet:     *parquet,
		SkipFigures: *noFigures,
		SkipReports: *noReports,
	}
	if *progress {
		opts.Progress = stderr
	}
	runner := pipeline.NewRunner(cfg, opts, logger)

	shutdown, err := observability.InitTracing(ctx, cfg.Observability.OTLPEndpoint, cfg.Observability.ServiceName, runner.RunID())
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("arrêt du traçage", zap.Error(err))
		}
	}()

	res, err := runner.Run(ctx)
	if err != nil {
		logger.Error("pipeline en échec", zap.String("run_id", runner.RunID()), zap.Error(err))
		return err
	}

	fmt.Fprintf(stdout, "Exécution %s terminée\n", res.RunID)
	fmt.Fprintf(stdout, "Clients: %d (apprentissage: %d)\n", res.Rows, res.TrainRows)
	fmt.Fprintf(stdout, "Méthode: %s, clusters: %d\n", res.Method, res.K)
	if res.Scores != nil {
		fmt.Fprintf(stdout, "Silhouette: %.3f, Calinski-Harabasz: %.1f, Davies-Bouldin: %.3f\n",
			res.Scores.Silhouette, res.Scores.CalinskiHarabasz, res.Scores.DaviesBouldin)
	}
	for _, p := range res.Profiles {
		fmt.Fprintf(stdout, "  %-20s %5d clients (%.1f%%)\n", p.Label, p.Size, p.Percentage)
	}
	for _, group := range [][]string{res.Exports, res.Figures, res.Reports} {
		for _, path := range group {
			fmt.Fprintln(stdout, "  →", path)
		}
	}
	return nil
}
