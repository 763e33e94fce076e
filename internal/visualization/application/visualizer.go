package application

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"segmentation/internal/config"
	datasetdomain "segmentation/internal/dataset/domain"
	"segmentation/internal/segmentation/clustering"
	segdomain "segmentation/internal/segmentation/domain"
	shared "segmentation/internal/shared/domain"
)

var tracer = otel.Tracer("visualization/application")

// Input données nécessaires à l'ensemble des graphiques d'une exécution
type Input struct {
	Profiles   []segdomain.ClusterProfile
	Importance []segdomain.FeatureImportance
	Offers     map[int]segdomain.CommercialOffer
	Labels     map[int]string
	// Centers centres des clusters en unités d'origine, colonnes = CenterFeatures
	Centers        [][]float64
	CenterFeatures []string
	// Frame tableau imputé non normalisé, aligné sur Assignment
	Frame      *datasetdomain.Frame
	Assignment []int
	// Features colonnes numériques tracées (boxplots, corrélations)
	Features []string
	// Scaled matrice normalisée alignée sur Assignment (projection ACP)
	Scaled [][]float64
	// KScores balayage de K ; vide = pas de graphique
	KScores []clustering.KScore
}

// Visualizer produit les figures PNG de la segmentation
type Visualizer struct {
	dir     string
	palette []color.Color
	width   vg.Length
	height  vg.Length
	logger  *zap.Logger
}

// NewVisualizer crée un visualiseur écrivant dans dir
func NewVisualizer(cfg config.Visualization, dir string, logger *zap.Logger) (*Visualizer, error) {
	pal, err := ParsePalette(cfg.Palette)
	if err != nil {
		return nil, err
	}
	width, height := cfg.WidthCm, cfg.HeightCm
	if width <= 0 {
		width = 24
	}
	if height <= 0 {
		height = 15
	}
	return &Visualizer{
		dir:     dir,
		palette: pal,
		width:   vg.Length(width) * vg.Centimeter,
		height:  vg.Length(height) * vg.Centimeter,
		logger:  logger,
	}, nil
}

// ParsePalette convertit des couleurs "#RRGGBB" (ou "#RGB")
func ParsePalette(hex []string) ([]color.Color, error) {
	if len(hex) == 0 {
		return nil, shared.NewInvalidParameter("visualization.palette", "palette vide")
	}
	out := make([]color.Color, len(hex))
	for i, h := range hex {
		s := strings.TrimSpace(h)
		if !strings.HasPrefix(s, "#") {
			s = "#" + s
		}
		c, err := colorful.Hex(s)
		if err != nil {
			return nil, shared.NewInvalidParameter("visualization.palette", "couleur invalide %q", h)
		}
		r, g, b := c.RGB255()
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out, nil
}

// RenderAll génère toutes les figures en parallèle et retourne les chemins écrits (triés)
func (v *Visualizer) RenderAll(ctx context.Context, in Input) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Visualizer.RenderAll")
	defer span.End()
	start := time.Now()

	if err := os.MkdirAll(v.dir, 0o755); err != nil {
		return nil, fmt.Errorf("erreur création dossier figures %s: %w", v.dir, err)
	}

	var (
		mu    sync.Mutex
		paths []string
	)
	add := func(p ...string) {
		mu.Lock()
		paths = append(paths, p...)
		mu.Unlock()
	}
	one := func(fn func() (string, error)) func() error {
		return func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := fn()
			if err != nil {
				return err
			}
			add(p)
			return nil
		}
	}

	// Une figure sans données est ignorée (ex: DBSCAN ne trouvant que du bruit)
	skip := func(figure, reason string) {
		v.logger.Info("figure ignorée", zap.String("figure", figure), zap.String("reason", reason))
	}
	hasFrame := in.Frame != nil && len(in.Features) > 0 && len(in.Assignment) > 0

	g, ctx := errgroup.WithContext(ctx)
	if len(in.Profiles) > 0 {
		g.Go(one(func() (string, error) { return v.PlotClusterDistribution(in.Profiles) }))
	} else {
		skip("cluster_distribution", "aucun profil")
	}
	if len(in.Importance) > 0 {
		g.Go(one(func() (string, error) { return v.PlotFeatureImportance(in.Importance, in.Labels) }))
	} else {
		skip("feature_importance", "aucun cluster hors bruit")
	}
	if in.Frame != nil && len(in.Features) >= 2 {
		g.Go(one(func() (string, error) { return v.PlotCorrelationMatrix(in.Frame, in.Features) }))
	} else {
		skip("correlation_matrix", "moins de deux features")
	}
	if len(in.Scaled) >= 2 && len(in.Scaled) == len(in.Assignment) {
		g.Go(one(func() (string, error) { return v.PlotClusteringResults(in.Scaled, in.Assignment, in.Labels) }))
	} else {
		skip("clustering_results", "matrice normalisée absente")
	}
	if len(in.Offers) > 0 {
		g.Go(one(func() (string, error) { return v.PlotCommercialOffers(in.Offers, in.Labels) }))
	} else {
		skip("commercial_offers", "aucune offre")
	}
	if len(in.Centers) > 0 {
		g.Go(one(func() (string, error) { return v.PlotClusterCenters(in.Centers, in.CenterFeatures, in.Labels) }))
	} else {
		skip("cluster_centers", "aucun centre")
	}
	if len(in.KScores) > 0 {
		g.Go(one(func() (string, error) { return v.PlotOptimalClusters(in.KScores) }))
	}
	if hasFrame {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := v.PlotSegmentProfiles(in.Frame, in.Assignment, in.Labels, in.Features)
			if err != nil {
				return err
			}
			add(p...)
			return nil
		})
	} else {
		skip("segment_profile", "tableau absent")
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(paths)
	v.logger.Info("figures générées",
		zap.Int("count", len(paths)),
		zap.String("dir", v.dir),
		zap.Duration("duration", time.Since(start)),
	)
	return paths, nil
}

func (v *Visualizer) color(i int) color.Color {
	if i < 0 {
		return color.Gray{Y: 128}
	}
	return v.palette[i%len(v.palette)]
}

func (v *Visualizer) save(p *plot.Plot, name string) (string, error) {
	path := filepath.Join(v.dir, name)
	if err := p.Save(v.width, v.height, path); err != nil {
		return "", fmt.Errorf("erreur écriture figure %s: %w", path, err)
	}
	v.logger.Debug("figure écrite", zap.String("path", path))
	return path, nil
}

func segmentLabel(labels map[int]string, id int) string {
	if l, ok := labels[id]; ok {
		return l
	}
	return segdomain.FallbackLabel(id)
}

// sortedClusters identifiants triés par ordre croissant
func sortedClusters(labels map[int]string) []int {
	ids := make([]int, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
