package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"segmentation/internal/shared/domain"
)

// Config regroupe toute la configuration du pipeline.
// Construite une fois dans main puis passée aux constructeurs (pas de variables globales).
type Config struct {
	LogLevel string `yaml:"log_level"`

	Paths         Paths          `yaml:"paths"`
	Columns       Columns        `yaml:"columns"`
	Generator     Generator      `yaml:"generator"`
	Preprocessing Preprocessing  `yaml:"preprocessing"`
	Clustering    Clustering     `yaml:"clustering"`
	Segments      []Segment      `yaml:"segments"`
	KPIThresholds []KPIThreshold `yaml:"kpi_thresholds"`
	Visualization Visualization  `yaml:"visualization"`
	Runtime       Runtime        `yaml:"runtime"`
	Database      Database       `yaml:"database"`
	Observability Observability  `yaml:"observability"`
}

// Paths emplacements des fichiers d'entrée et des artefacts
type Paths struct {
	RawDir        string `yaml:"raw_dir"`
	ProcessedDir  string `yaml:"processed_dir"`
	FiguresDir    string `yaml:"figures_dir"`
	ReportsDir    string `yaml:"reports_dir"`
	ExportDir     string `yaml:"export_dir"`
	RawFile       string `yaml:"raw_file"`
	ProcessedFile string `yaml:"processed_file"`
}

// RawPath chemin complet du fichier brut
func (p Paths) RawPath() string {
	return filepath.Join(p.RawDir, p.RawFile)
}

// ProcessedPath chemin complet du fichier prétraité
func (p Paths) ProcessedPath() string {
	return filepath.Join(p.ProcessedDir, p.ProcessedFile)
}

// Columns schéma des attributs clients
type Columns struct {
	ID          string   `yaml:"id"`
	Date        string   `yaml:"date"`
	Numeric     []string `yaml:"numeric"`
	Categorical []string `yaml:"categorical"`
	// Excluded colonnes exclues des features en plus de ID et Date
	Excluded []string `yaml:"excluded"`
}

// NonFeatures colonnes jamais utilisées comme features de clustering: identifiant, date, exclusions
func (c Columns) NonFeatures() map[string]bool {
	out := make(map[string]bool, len(c.Excluded)+2)
	for _, name := range append([]string{c.ID, c.Date}, c.Excluded...) {
		if name != "" {
			out[name] = true
		}
	}
	return out
}

// Choice valeur catégorielle pondérée
type Choice struct {
	Value  string  `yaml:"value"`
	Weight float64 `yaml:"weight"`
}

// Bound intervalle de clipping [Min, Max]
type Bound struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Generator paramètres des distributions du générateur synthétique
type Generator struct {
	Samples     int   `yaml:"samples"`
	Seed        int64 `yaml:"seed"`
	HistoryDays int   `yaml:"history_days"`

	AgeMean          float64 `yaml:"age_mean"`
	AgeStd           float64 `yaml:"age_std"`
	ConsumptionShape float64 `yaml:"consumption_shape"`
	ConsumptionScale float64 `yaml:"consumption_scale"`
	CallsLambda      float64 `yaml:"calls_lambda"`
	DataShape        float64 `yaml:"data_shape"`
	DataScale        float64 `yaml:"data_scale"`
	SMSLambda        float64 `yaml:"sms_lambda"`
	DurationShape    float64 `yaml:"duration_shape"`
	DurationScale    float64 `yaml:"duration_scale"`

	Genders       []Choice `yaml:"genders"`
	Zones         []Choice `yaml:"zones"`
	ClientTypes   []Choice `yaml:"client_types"`
	Subscriptions []Choice `yaml:"subscriptions"`

	PostpaidFactor     float64 `yaml:"postpaid_factor"`
	PrepaidFactor      float64 `yaml:"prepaid_factor"`
	BusinessDataFactor float64 `yaml:"business_data_factor"`
	CallsDurationRatio float64 `yaml:"calls_duration_ratio"`

	Bounds       map[string]Bound   `yaml:"bounds"`
	MissingRates map[string]float64 `yaml:"missing_rates"`
}

// Preprocessing stratégies d'imputation et d'encodage
type Preprocessing struct {
	NumericImputation   string  `yaml:"numeric_imputation"`
	CategoricalEncoding string  `yaml:"categorical_encoding"`
	TestSize            float64 `yaml:"test_size"`
	Seed                int64   `yaml:"seed"`
}

// Clustering paramètres K-means / DBSCAN
type Clustering struct {
	Method           string  `yaml:"method"`
	NClusters        int     `yaml:"n_clusters"`
	RandomState      int64   `yaml:"random_state"`
	NInit            int     `yaml:"n_init"`
	MaxIter          int     `yaml:"max_iter"`
	Tol              float64 `yaml:"tol"`
	DBSCANEps        float64 `yaml:"dbscan_eps"`
	DBSCANMinSamples int     `yaml:"dbscan_min_samples"`
	KMin             int     `yaml:"k_min"`
	KMax             int     `yaml:"k_max"`
	AutoK            bool    `yaml:"auto_k"`
	// LabelPolicy "rank" (classement sur RankFeature) ou "positional"
	LabelPolicy string `yaml:"label_policy"`
	RankFeature string `yaml:"rank_feature"`
	TopFeatures int    `yaml:"top_features"`
}

// Offer offre commerciale associée à un segment
type Offer struct {
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	Discount        float64  `yaml:"discount"`
	Services        []string `yaml:"services"`
	PrioritySupport bool     `yaml:"priority_support"`
}

// Segment libellé de segment et son offre
type Segment struct {
	Label string `yaml:"label"`
	Offer Offer  `yaml:"offer"`
}

// KPIThreshold paliers faible/moyen/élevé d'un indicateur
type KPIThreshold struct {
	Feature string  `yaml:"feature"`
	Low     float64 `yaml:"low"`
	Medium  float64 `yaml:"medium"`
	High    float64 `yaml:"high"`
}

// Visualization paramètres des graphiques
type Visualization struct {
	Palette  []string `yaml:"palette"`
	WidthCm  float64  `yaml:"width_cm"`
	HeightCm float64  `yaml:"height_cm"`
}

// Runtime parallélisme et cache
type Runtime struct {
	Workers   int           `yaml:"workers"`
	BatchSize int           `yaml:"batch_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// Database stockage relationnel optionnel
type Database struct {
	// URL postgres://... ou mysql://... ; vide = stockage désactivé
	URL string `yaml:"url"`
}

// Observability métriques et traces
type Observability struct {
	MetricsFile  string `yaml:"metrics_file"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default retourne la configuration de référence
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Paths: Paths{
			RawDir:        "data/raw",
			ProcessedDir:  "data/processed",
			FiguresDir:    "figures",
			ReportsDir:    "reports",
			ExportDir:     "exports",
			RawFile:       "telecom_customers.csv",
			ProcessedFile: "processed_data.csv",
		},
		Columns: Columns{
			ID:   "customer_id",
			Date: "date_abonnement",
			Numeric: []string{
				"age",
				"montant_consommation",
				"nombre_appels",
				"volume_data",
				"nombre_sms",
				"duree_abonnement",
			},
			Categorical: []string{
				"sexe",
				"zone_geographique",
				"type_client",
				"type_abonnement",
			},
		},
		Generator: Generator{
			Samples:          1000,
			Seed:             42,
			HistoryDays:      3 * 365,
			AgeMean:          35,
			AgeStd:           12,
			ConsumptionShape: 5,
			ConsumptionScale: 10,
			CallsLambda:      50,
			DataShape:        3,
			DataScale:        2,
			SMSLambda:        20,
			DurationShape:    20,
			DurationScale:    2,
			Genders: []Choice{
				{Value: "M", Weight: 0.55},
				{Value: "F", Weight: 0.45},
			},
			Zones: []Choice{
				{Value: "Tunis", Weight: 0.30},
				{Value: "Sfax", Weight: 0.20},
				{Value: "Sousse", Weight: 0.15},
				{Value: "Bizerte", Weight: 0.15},
				{Value: "Autre", Weight: 0.20},
			},
			ClientTypes: []Choice{
				{Value: "Particulier", Weight: 0.8},
				{Value: "Entreprise", Weight: 0.2},
			},
			Subscriptions: []Choice{
				{Value: "Prépayé", Weight: 0.4},
				{Value: "Postpayé", Weight: 0.5},
				{Value: "Hybride", Weight: 0.1},
			},
			PostpaidFactor:     1.5,
			PrepaidFactor:      0.7,
			BusinessDataFactor: 2,
			CallsDurationRatio: 100,
			Bounds: map[string]Bound{
				"age":                  {Min: 18, Max: 90},
				"montant_consommation": {Min: 0, Max: 500},
				"volume_data":          {Min: 0, Max: 100},
				"duree_abonnement":     {Min: 1, Max: 60},
				"nombre_appels":        {Min: 0, Max: 500},
				"nombre_sms":           {Min: 0, Max: 200},
			},
			MissingRates: map[string]float64{
				"volume_data":       0.05,
				"nombre_sms":        0.03,
				"zone_geographique": 0.02,
			},
		},
		Preprocessing: Preprocessing{
			NumericImputation:   "mean",
			CategoricalEncoding: "label",
			TestSize:            0.2,
			Seed:                42,
		},
		Clustering: Clustering{
			Method:           "kmeans",
			NClusters:        5,
			RandomState:      42,
			NInit:            10,
			MaxIter:          300,
			Tol:              1e-4,
			DBSCANEps:        0.5,
			DBSCANMinSamples: 5,
			KMin:             2,
			KMax:             10,
			LabelPolicy:      "rank",
			RankFeature:      "montant_consommation",
			TopFeatures:      3,
		},
		Segments: []Segment{
			{Label: "Clients Premium", Offer: Offer{
				Name:            "Offre Premium",
				Description:     "Data illimitée et contenus exclusifs pour les plus gros consommateurs",
				Discount:        0.15,
				Services:        []string{"Data Premium", "VoD", "Sport"},
				PrioritySupport: true,
			}},
			{Label: "Clients Business", Offer: Offer{
				Name:            "Offre Business",
				Description:     "Pack professionnel avec support dédié",
				Discount:        0.20,
				Services:        []string{"Pack Business", "Support 24/7"},
				PrioritySupport: true,
			}},
			{Label: "Clients Fidèles", Offer: Offer{
				Name:            "Offre Fidélité",
				Description:     "Appels illimités pour récompenser l'ancienneté",
				Discount:        0.10,
				Services:        []string{"Appels Illimités"},
				PrioritySupport: false,
			}},
			{Label: "Clients Connectés", Offer: Offer{
				Name:            "Offre Social",
				Description:     "Forfait orienté réseaux sociaux",
				Discount:        0.05,
				Services:        []string{"Social Media Pack"},
				PrioritySupport: false,
			}},
			{Label: "Clients à Risque", Offer: Offer{
				Name:            "Offre Reconquête",
				Description:     "Remise forte et options internationales pour limiter l'attrition",
				Discount:        0.25,
				Services:        []string{"International Pack", "Roaming"},
				PrioritySupport: true,
			}},
		},
		KPIThresholds: []KPIThreshold{
			{Feature: "montant_consommation", Low: 50, Medium: 200, High: 500},
			{Feature: "volume_data", Low: 5, Medium: 20, High: 50},
			{Feature: "nombre_appels", Low: 20, Medium: 100, High: 300},
		},
		Visualization: Visualization{
			Palette:  []string{"#FF9999", "#66B2FF", "#99FF99", "#FFCC99", "#FF99CC"},
			WidthCm:  24,
			HeightCm: 15,
		},
		Runtime: Runtime{
			Workers:   4,
			BatchSize: 256,
			CacheTTL:  10 * time.Minute,
		},
		Observability: Observability{
			ServiceName: "telecom-segmentation",
		},
	}
}

// Load construit la configuration: défauts → fichier YAML optionnel → .env → variables d'environnement
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &domain.ErrNotFound{Resource: "fichier de configuration", Path: path}
			}
			return nil, fmt.Errorf("erreur lecture configuration %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("erreur parsing configuration %s: %w", path, err)
		}
	}

	// Un .env absent n'est pas une erreur
	_ = godotenv.Load()

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv surcharge les champs exposés en variables d'environnement
func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Paths.RawDir = getEnv("SEG_RAW_DIR", c.Paths.RawDir)
	c.Paths.ProcessedDir = getEnv("SEG_PROCESSED_DIR", c.Paths.ProcessedDir)
	c.Paths.FiguresDir = getEnv("SEG_FIGURES_DIR", c.Paths.FiguresDir)
	c.Paths.ReportsDir = getEnv("SEG_REPORTS_DIR", c.Paths.ReportsDir)
	c.Paths.ExportDir = getEnv("SEG_EXPORT_DIR", c.Paths.ExportDir)

	c.Generator.Samples = getEnvInt("SEG_SAMPLES", c.Generator.Samples)
	c.Generator.Seed = int64(getEnvInt("SEG_SEED", int(c.Generator.Seed)))

	c.Preprocessing.NumericImputation = getEnv("SEG_NUMERIC_IMPUTATION", c.Preprocessing.NumericImputation)
	c.Preprocessing.CategoricalEncoding = getEnv("SEG_CATEGORICAL_ENCODING", c.Preprocessing.CategoricalEncoding)
	c.Preprocessing.TestSize = getEnvFloat("SEG_TEST_SIZE", c.Preprocessing.TestSize)

	c.Clustering.Method = getEnv("SEG_METHOD", c.Clustering.Method)
	c.Clustering.NClusters = getEnvInt("SEG_N_CLUSTERS", c.Clustering.NClusters)
	c.Clustering.RandomState = int64(getEnvInt("SEG_RANDOM_STATE", int(c.Clustering.RandomState)))
	c.Clustering.DBSCANEps = getEnvFloat("SEG_DBSCAN_EPS", c.Clustering.DBSCANEps)
	c.Clustering.DBSCANMinSamples = getEnvInt("SEG_DBSCAN_MIN_SAMPLES", c.Clustering.DBSCANMinSamples)

	c.Runtime.Workers = getEnvInt("SEG_WORKERS", c.Runtime.Workers)
	c.Runtime.BatchSize = getEnvInt("SEG_BATCH_SIZE", c.Runtime.BatchSize)
	c.Runtime.CacheTTL = getEnvDuration("SEG_CACHE_TTL", c.Runtime.CacheTTL)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Observability.MetricsFile = getEnv("SEG_METRICS_FILE", c.Observability.MetricsFile)
	c.Observability.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Observability.OTLPEndpoint)
}

// Validate vérifie la cohérence de la configuration
func (c *Config) Validate() error {
	switch {
	case len(c.Columns.Numeric) == 0:
		return domain.NewInvalidParameter("columns.numeric", "au moins une colonne numérique est requise")
	case c.Clustering.NClusters < 1:
		return domain.NewInvalidParameter("clustering.n_clusters", "doit être >= 1, reçu %d", c.Clustering.NClusters)
	case c.Clustering.NInit < 1:
		return domain.NewInvalidParameter("clustering.n_init", "doit être >= 1, reçu %d", c.Clustering.NInit)
	case c.Clustering.DBSCANEps <= 0:
		return domain.NewInvalidParameter("clustering.dbscan_eps", "doit être > 0, reçu %g", c.Clustering.DBSCANEps)
	case c.Clustering.DBSCANMinSamples < 1:
		return domain.NewInvalidParameter("clustering.dbscan_min_samples", "doit être >= 1, reçu %d", c.Clustering.DBSCANMinSamples)
	case c.Clustering.KMin < 2 || c.Clustering.KMax < c.Clustering.KMin:
		return domain.NewInvalidParameter("clustering.k_range", "intervalle [%d, %d] invalide", c.Clustering.KMin, c.Clustering.KMax)
	case c.Preprocessing.TestSize < 0 || c.Preprocessing.TestSize >= 1:
		return domain.NewInvalidParameter("preprocessing.test_size", "doit être dans [0, 1), reçu %g", c.Preprocessing.TestSize)
	case c.Generator.Samples <= 0:
		return domain.NewInvalidParameter("generator.samples", "doit être > 0, reçu %d", c.Generator.Samples)
	}

	switch strings.ToLower(c.Preprocessing.NumericImputation) {
	case "mean", "median":
	default:
		return domain.NewInvalidParameter("preprocessing.numeric_imputation", "stratégie inconnue %q", c.Preprocessing.NumericImputation)
	}
	switch strings.ToLower(c.Preprocessing.CategoricalEncoding) {
	case "label", "onehot":
	default:
		return domain.NewInvalidParameter("preprocessing.categorical_encoding", "stratégie inconnue %q", c.Preprocessing.CategoricalEncoding)
	}
	switch c.Clustering.LabelPolicy {
	case "rank", "positional":
	default:
		return domain.NewInvalidParameter("clustering.label_policy", "politique inconnue %q", c.Clustering.LabelPolicy)
	}

	for _, s := range c.Segments {
		if _, err := domain.NewDiscount(s.Offer.Discount); err != nil {
			return fmt.Errorf("segment %q: %w", s.Label, err)
		}
	}
	return nil
}

// SegmentLabels retourne les libellés de segment dans l'ordre configuré
func (c *Config) SegmentLabels() []string {
	labels := make([]string, len(c.Segments))
	for i, s := range c.Segments {
		labels[i] = s.Label
	}
	return labels
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
