package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"segmentation/internal/config"
	segdomain "segmentation/internal/segmentation/domain"
	"segmentation/internal/shared/observability"
)

var tracer = otel.Tracer("reporting/application")

// Input contenu commun aux trois rapports
type Input struct {
	Profiles []segdomain.ClusterProfile
	// Offers offre par identifiant de cluster
	Offers map[int]segdomain.CommercialOffer
	// Scores nil = section qualité omise
	Scores *segdomain.Scores
	// Snapshot nil = section exécution omise
	Snapshot *observability.RunSnapshot
	RunID    string
}

// Reporter rédige les rapports markdown de la segmentation
type Reporter struct {
	dir        string
	thresholds []config.KPIThreshold
	logger     *zap.Logger
	now        func() time.Time
	printer    *message.Printer
}

// NewReporter crée un rédacteur écrivant dans dir (nombres au format français)
func NewReporter(dir string, thresholds []config.KPIThreshold, logger *zap.Logger) *Reporter {
	return &Reporter{
		dir:        dir,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
		printer:    message.NewPrinter(language.French),
	}
}

// WithClock fixe l'horloge (tests)
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// RenderAll écrit les trois rapports horodatés et retourne leurs chemins
func (r *Reporter) RenderAll(ctx context.Context, in Input) ([]string, error) {
	_, span := tracer.Start(ctx, "Reporter.RenderAll")
	defer span.End()

	now := r.now()
	reports := []struct {
		prefix  string
		content string
	}{
		{"rapport_segmentation_", r.SegmentReport(in, now)},
		{"resume_executif_", r.ExecutiveSummary(in, now)},
		{"strategie_marketing_", r.MarketingStrategy(in, now)},
	}

	paths := make([]string, 0, len(reports))
	for _, rep := range reports {
		path, err := r.write(rep.prefix, now, rep.content)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// GenerateSegmentReport écrit uniquement le rapport détaillé
func (r *Reporter) GenerateSegmentReport(in Input) (string, error) {
	now := r.now()
	return r.write("rapport_segmentation_", now, r.SegmentReport(in, now))
}

// GenerateExecutiveSummary écrit uniquement le résumé exécutif
func (r *Reporter) GenerateExecutiveSummary(in Input) (string, error) {
	now := r.now()
	return r.write("resume_executif_", now, r.ExecutiveSummary(in, now))
}

// GenerateMarketingStrategy écrit uniquement la stratégie marketing
func (r *Reporter) GenerateMarketingStrategy(in Input) (string, error) {
	now := r.now()
	return r.write("strategie_marketing_", now, r.MarketingStrategy(in, now))
}

func (r *Reporter) write(prefix string, now time.Time, content string) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("erreur création dossier rapports %s: %w", r.dir, err)
	}
	path := filepath.Join(r.dir, prefix+now.Format("20060102_150405")+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("erreur écriture rapport %s: %w", path, err)
	}
	r.logger.Info("rapport sauvegardé", zap.String("path", path))
	return path, nil
}

// SegmentReport rapport détaillé: segments, KPIs, recommandations
func (r *Reporter) SegmentReport(in Input, now time.Time) string {
	var b strings.Builder
	line := func(format string, args ...any) { b.WriteString(r.printer.Sprintf(format, args...) + "\n") }

	line("# Rapport de Segmentation des Clients Tunisie Telecom\n")
	line("Date de génération : %s\n", now.Format("02/01/2006 15:04"))

	line("## Résumé Général\n")
	line("Nombre total de clients analysés : %d\n", totalClients(in.Profiles))
	if in.Scores != nil {
		line("Qualité du partitionnement (%d clusters) :", in.Scores.Clusters)
		line("- Silhouette : %.3f", in.Scores.Silhouette)
		line("- Calinski-Harabasz : %.1f", in.Scores.CalinskiHarabasz)
		line("- Davies-Bouldin : %.3f\n", in.Scores.DaviesBouldin)
	}

	line("## Détails par Segment\n")
	for _, p := range in.Profiles {
		line("### %s\n", p.Label)
		line("- Taille : %d clients (%.1f%%)", p.Size, p.Percentage)

		line("\nCaractéristiques principales :")
		for _, f := range p.Features {
			line("- %s: %.2f", f, p.Mean(f))
		}

		if len(p.KeyFeatures) > 0 {
			line("\nFeatures clés :")
			for _, kf := range p.KeyFeatures {
				line("- %s: %.2f", kf.Feature, kf.Std)
			}
		}

		if offer, ok := in.Offers[p.ClusterID]; ok {
			line("\nOffre commerciale : %s", offer.Name)
			line("- Réduction : %s", offer.Discount)
			if len(offer.Services) > 0 {
				line("- Services additionnels : %s", strings.Join(offer.Services, ", "))
			}
			line("- Support prioritaire : %s", yesNo(offer.PrioritySupport))
		}
		line("\n---\n")
	}

	line("## Analyse des KPIs\n")
	line("### Seuils de Performance\n")
	for _, t := range r.thresholds {
		line("\n%s :", t.Feature)
		line("- faible: %g", t.Low)
		line("- moyen: %g", t.Medium)
		line("- élevé: %g", t.High)
	}

	if tiers := r.kpiTiers(in.Profiles); len(tiers) > 0 {
		line("\n### Niveau par Segment\n")
		line("| Segment | %s |", strings.Join(r.kpiNames(), " | "))
		line("|---%s|", strings.Repeat("|---", len(r.thresholds)))
		for _, row := range tiers {
			line("| %s |", strings.Join(row, " | "))
		}
	}

	line("\n## Recommandations\n")
	line("### Actions Prioritaires\n")
	for _, p := range in.Profiles {
		if p.IsNoise() {
			continue
		}
		if p.Percentage < 10 {
			line("- Développer des actions ciblées pour le segment %s", p.Label)
		}
		if p.Percentage > 30 {
			line("- Optimiser les ressources pour le segment %s", p.Label)
		}
	}

	line("\n### Stratégies Marketing\n")
	line("- Personnaliser les communications par segment")
	line("- Adapter les offres promotionnelles selon les profils")
	line("- Mettre en place un suivi des performances par segment")

	line("\n## Conclusion\n")
	line("Cette segmentation permet d'identifier clairement les différents profils de clients")
	line("et d'adapter les stratégies marketing en conséquence.")
	return b.String()
}

// ExecutiveSummary résumé pour la direction
func (r *Reporter) ExecutiveSummary(in Input, now time.Time) string {
	var b strings.Builder
	line := func(format string, args ...any) { b.WriteString(r.printer.Sprintf(format, args...) + "\n") }

	line("# Résumé Exécutif - Segmentation Clients Tunisie Telecom\n")
	line("Date : %s\n", now.Format("02/01/2006"))

	line("## Vue d'Ensemble\n")
	line("Nombre total de clients : %d\n", totalClients(in.Profiles))

	line("## Distribution des Segments\n")
	for _, p := range in.Profiles {
		line("- %s: %.1f%%", p.Label, p.Percentage)
	}

	line("\n## Points Clés\n")
	if dominant, ok := largest(in.Profiles); ok {
		line("- Segment dominant : %s (%.1f%%)", dominant.Label, dominant.Percentage)
	}
	if in.Scores != nil {
		line("- Score de silhouette : %.3f", in.Scores.Silhouette)
		if in.Scores.Noise > 0 {
			line("- Clients non segmentés (bruit) : %d", in.Scores.Noise)
		}
	}

	line("\n## Opportunités\n")
	for _, p := range in.Profiles {
		if offer, ok := in.Offers[p.ClusterID]; ok && offer.Discount.Fraction() > 0.1 {
			line("- Potentiel de fidélisation important pour le segment %s", p.Label)
		}
	}

	line("\n## Actions Recommandées\n")
	line("1. Développer des offres personnalisées par segment")
	line("2. Mettre en place un suivi des performances")
	line("3. Adapter les stratégies de communication")

	if in.Snapshot != nil {
		line("\n## Exécution\n")
		if in.RunID != "" {
			line("- Identifiant : %s", in.RunID)
		}
		stages := make([]string, 0, len(in.Snapshot.RowsProcessed))
		for stage := range in.Snapshot.RowsProcessed {
			stages = append(stages, stage)
		}
		sort.Strings(stages)
		for _, stage := range stages {
			line("- Lignes traitées (%s) : %.0f", stage, in.Snapshot.RowsProcessed[stage])
		}
		line("- Taux de succès du cache : %.0f%%", in.Snapshot.CacheHitRate*100)
	}
	return b.String()
}

// MarketingStrategy stratégie par segment et plan d'action
func (r *Reporter) MarketingStrategy(in Input, now time.Time) string {
	var b strings.Builder
	line := func(format string, args ...any) { b.WriteString(r.printer.Sprintf(format, args...) + "\n") }

	line("# Stratégie Marketing - Segmentation Clients Tunisie Telecom\n")
	line("Date : %s\n", now.Format("02/01/2006"))

	line("## Objectifs\n")
	line("- Augmenter la fidélisation des clients")
	line("- Optimiser les campagnes marketing")
	line("- Améliorer la satisfaction client")

	line("\n## Stratégies par Segment\n")
	for _, p := range in.Profiles {
		offer, ok := in.Offers[p.ClusterID]
		if !ok {
			continue
		}
		line("### %s\n", p.Label)
		line("Taille : %.1f%% des clients\n", p.Percentage)

		line("Caractéristiques clés :")
		for _, f := range p.Features {
			line("- %s: %.2f", f, p.Mean(f))
		}

		line("\nStratégie :")
		if offer.Discount.Fraction() > 0.1 {
			line("- Focus sur la fidélisation via des offres exclusives")
		}
		if len(offer.Services) > 0 {
			line("- Promouvoir les services additionnels")
		}
		if offer.PrioritySupport {
			line("- Mettre en avant le support prioritaire")
		}
		line("\n---\n")
	}

	line("\n## Plan d'Action\n")
	line("### Court terme (1-3 mois)\n")
	line("1. Mettre en place les offres personnalisées")
	line("2. Adapter les communications par segment")
	line("3. Former l'équipe commerciale")

	line("\n### Moyen terme (3-6 mois)\n")
	line("1. Évaluer l'impact des actions")
	line("2. Ajuster les stratégies selon les résultats")
	line("3. Développer de nouveaux services")

	line("\n### Long terme (6-12 mois)\n")
	line("1. Optimiser la segmentation")
	line("2. Développer des partenariats stratégiques")
	line("3. Mettre en place un système de suivi automatisé")
	return b.String()
}

// Tier plus haut palier atteint par la valeur ; sous le palier faible: "très faible"
func Tier(t config.KPIThreshold, v float64) string {
	switch {
	case v >= t.High:
		return "élevé"
	case v >= t.Medium:
		return "moyen"
	case v >= t.Low:
		return "faible"
	default:
		return "très faible"
	}
}

func (r *Reporter) kpiNames() []string {
	names := make([]string, len(r.thresholds))
	for i, t := range r.thresholds {
		names[i] = t.Feature
	}
	return names
}

// kpiTiers une ligne par segment: libellé puis niveau de chaque KPI (moyenne du segment)
func (r *Reporter) kpiTiers(profiles []segdomain.ClusterProfile) [][]string {
	if len(r.thresholds) == 0 {
		return nil
	}
	var rows [][]string
	for _, p := range profiles {
		if p.IsNoise() {
			continue
		}
		row := []string{p.Label}
		for _, t := range r.thresholds {
			if _, ok := p.Stats[t.Feature]; !ok {
				row = append(row, "n/d")
				continue
			}
			row = append(row, Tier(t, p.Mean(t.Feature)))
		}
		rows = append(rows, row)
	}
	return rows
}

func totalClients(profiles []segdomain.ClusterProfile) int {
	n := 0
	for _, p := range profiles {
		n += p.Size
	}
	return n
}

func largest(profiles []segdomain.ClusterProfile) (segdomain.ClusterProfile, bool) {
	var best segdomain.ClusterProfile
	found := false
	for _, p := range profiles {
		if p.IsNoise() {
			continue
		}
		if !found || p.Size > best.Size {
			best, found = p, true
		}
	}
	return best, found
}

func yesNo(b bool) string {
	if b {
		return "Oui"
	}
	return "Non"
}
