package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics regroupe les métriques Prometheus d'une exécution du pipeline.
// Pas de serveur HTTP: le registre est écrit en fichier texte en fin de run
// (format textfile du node-exporter).
type Metrics struct {
	// Registry registre privé, évite les collisions quand NewMetrics est appelé plusieurs fois (tests)
	Registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	rowsProcessed *prometheus.CounterVec
	clustersFound prometheus.Gauge
	scores        *prometheus.GaugeVec
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
}

// NewMetrics crée un registre dédié et y enregistre toutes les métriques
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "segmentation_stage_duration_seconds",
				Help:    "Duration of pipeline stages.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		rowsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segmentation_rows_processed_total",
				Help: "Rows processed by stage.",
			},
			[]string{"stage"},
		),
		clustersFound: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "segmentation_clusters",
				Help: "Number of clusters found by the last fit.",
			},
		),
		scores: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "segmentation_quality_score",
				Help: "Internal clustering quality scores of the last evaluation.",
			},
			[]string{"metric"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segmentation_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segmentation_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segmentation_runs_total",
				Help: "Pipeline runs by final status.",
			},
			[]string{"status"},
		),
	}
}

// ObserveStage enregistre la durée d'une étape
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// AddRows incrémente le compteur de lignes traitées
func (m *Metrics) AddRows(stage string, n int) {
	m.rowsProcessed.WithLabelValues(stage).Add(float64(n))
}

// SetClusters enregistre le nombre de clusters
func (m *Metrics) SetClusters(k int) {
	m.clustersFound.Set(float64(k))
}

// SetScore enregistre un score de qualité (silhouette, calinski_harabasz, davies_bouldin)
func (m *Metrics) SetScore(metric string, value float64) {
	m.scores.WithLabelValues(metric).Set(value)
}

// IncrCacheHit incrémente le compteur de hits
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss incrémente le compteur de misses
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrRun incrémente le compteur d'exécutions
func (m *Metrics) IncrRun(status string) {
	m.runsTotal.WithLabelValues(status).Inc()
}

// WriteTextfile écrit le registre au format texte Prometheus
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("erreur écriture métriques %s: %w", path, err)
	}
	return nil
}

// RunSnapshot résumé lisible des métriques, repris dans le résumé exécutif
type RunSnapshot struct {
	Clusters      int
	RowsProcessed map[string]float64
	Scores        map[string]float64
	CacheHitRate  float64
}

// Snapshot lit les valeurs courantes du registre
func (m *Metrics) Snapshot() RunSnapshot {
	snap := RunSnapshot{
		Clusters:      int(gaugeValue(m.clustersFound)),
		RowsProcessed: make(map[string]float64),
		Scores:        make(map[string]float64),
	}

	families, err := m.Registry.Gather()
	if err != nil {
		return snap
	}

	var hits, misses float64
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			label := firstLabel(metric)
			switch mf.GetName() {
			case "segmentation_rows_processed_total":
				snap.RowsProcessed[label] = metric.GetCounter().GetValue()
			case "segmentation_quality_score":
				snap.Scores[label] = metric.GetGauge().GetValue()
			case "segmentation_cache_hits_total":
				hits += metric.GetCounter().GetValue()
			case "segmentation_cache_misses_total":
				misses += metric.GetCounter().GetValue()
			}
		}
	}
	if hits+misses > 0 {
		snap.CacheHitRate = hits / (hits + misses)
	}
	return snap
}

// gaugeValue extrait la valeur courante d'une gauge
func gaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil && m.Gauge.Value != nil {
		return *m.Gauge.Value
	}
	return 0
}

func firstLabel(m *dto.Metric) string {
	if labels := m.GetLabel(); len(labels) > 0 {
		return labels[0].GetValue()
	}
	return ""
}
