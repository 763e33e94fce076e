package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"segmentation/internal/config"
	"segmentation/internal/generation/application"
	preprocessing "segmentation/internal/preprocessing/application"
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

// run génère un jeu de clients synthétiques et l'écrit en CSV ou XLSX
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", os.Getenv("SEG_CONFIG"), "fichier de configuration YAML (optionnel)")
	out := fs.String("out", "", "fichier de sortie .csv ou .xlsx (défaut: paths.raw_dir/raw_file)")
	samples := fs.Int("n", 0, "nombre de clients (défaut: generator.samples)")
	seed := fs.Int64("seed", -1, "graine aléatoire (défaut: generator.seed)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *samples > 0 {
		cfg.Generator.Samples = *samples
	}
	if *seed >= 0 {
		cfg.Generator.Seed = *seed
	}
	path := *out
	if path == "" {
		path = cfg.Paths.RawPath()
	}

	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	frame, err := application.NewGenerator(cfg.Generator, logger).
		GenerateAndSave(ctx, path, cfg.Generator.Samples, cfg.Generator.Seed)
	if err != nil {
		logger.Error("génération en échec", zap.String("path", path), zap.Error(err))
		return err
	}

	fmt.Fprintf(stdout, "%d clients écrits dans %s\n", frame.Rows(), path)
	for _, m := range preprocessing.MissingReport(frame) {
		fmt.Fprintf(stdout, "  %-20s %4d manquants (%.1f%%)\n", m.Column, m.Count, m.Percent)
	}
	return nil
}
