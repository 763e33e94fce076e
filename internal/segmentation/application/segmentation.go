package application

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"segmentation/internal/config"
	datasetdomain "segmentation/internal/dataset/domain"
	prepdomain "segmentation/internal/preprocessing/domain"
	"segmentation/internal/segmentation/clustering"
	"segmentation/internal/segmentation/domain"
	shared "segmentation/internal/shared/domain"
	"segmentation/internal/shared/infrastructure"
	"segmentation/internal/shared/observability"
)

var tracer = otel.Tracer("segmentation/application")

const cachePrefix = "segmentation:"

// CustomerSegmentation regroupe les clients en segments et décrit chaque segment.
//
// Cycle de vie: Unfitted → Fit → Fitted. Toute méthode autre que Fit retourne
// *ErrUnfitted avant un premier Fit. Un nouveau Fit remplace l'état précédent
// (les libellés de segment ne valent que pour l'ajustement qui les a produits).
type CustomerSegmentation struct {
	cfg      config.Clustering
	excluded map[string]bool
	policy   domain.LabelPolicy
	catalog  *domain.OfferCatalog
	cache    infrastructure.Cache
	cacheTTL time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu         sync.RWMutex
	state      domain.State
	method     domain.Method
	generation int
	features   []string
	scaler     *prepdomain.StandardScaler
	x          [][]float64
	assignment []int
	centroids  [][]float64
	core       []bool
	k          int
	labels     map[int]string
	importance []domain.FeatureImportance
}

// NewCustomerSegmentation crée une segmentation non ajustée.
// cache et metrics peuvent être nil (pas de mémoïsation, métriques privées).
func NewCustomerSegmentation(
	cfg *config.Config,
	cache infrastructure.Cache,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*CustomerSegmentation, error) {
	policy, err := domain.ParseLabelPolicy(cfg.Clustering.LabelPolicy)
	if err != nil {
		return nil, err
	}
	catalog, err := NewOfferCatalog(cfg.Segments)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	return &CustomerSegmentation{
		cfg:      cfg.Clustering,
		excluded: cfg.Columns.NonFeatures(),
		policy:   policy,
		catalog:  catalog,
		cache:    cache,
		cacheTTL: cfg.Runtime.CacheTTL,
		metrics:  metrics,
		logger:   logger,
		state:    domain.StateUnfitted,
	}, nil
}

// NewOfferCatalog convertit les segments configurés en catalogue d'offres
func NewOfferCatalog(segments []config.Segment) (*domain.OfferCatalog, error) {
	offers := make([]domain.CommercialOffer, 0, len(segments))
	for _, s := range segments {
		discount, err := shared.NewDiscount(s.Offer.Discount)
		if err != nil {
			return nil, fmt.Errorf("segment %q: %w", s.Label, err)
		}
		offers = append(offers, domain.CommercialOffer{
			Segment:         s.Label,
			Name:            s.Offer.Name,
			Description:     s.Offer.Description,
			Discount:        discount,
			Services:        s.Offer.Services,
			PrioritySupport: s.Offer.PrioritySupport,
		})
	}
	return domain.NewOfferCatalog(offers)
}

// Fit ajuste le modèle sur le tableau prétraité.
// Les colonnes exclues sont ignorées ; toutes les autres doivent être numériques et complètes.
func (s *CustomerSegmentation) Fit(ctx context.Context, frame *datasetdomain.Frame, method string) error {
	ctx, span := tracer.Start(ctx, "CustomerSegmentation.Fit")
	defer span.End()
	start := time.Now()

	m, err := domain.ParseMethod(method)
	if err != nil {
		return err
	}
	features, err := s.featureColumns(frame)
	if err != nil {
		return err
	}
	raw, err := frame.Matrix(features)
	if err != nil {
		return err
	}
	if err := clustering.CheckMatrix(raw); err != nil {
		return err
	}
	scaler, err := prepdomain.FitStandardScaler(features, raw)
	if err != nil {
		return err
	}
	x, err := scaler.Transform(raw)
	if err != nil {
		return err
	}

	var (
		assignment []int
		centroids  [][]float64
		core       []bool
		k          int
	)
	switch m {
	case domain.MethodKMeans:
		res, err := clustering.KMeans(ctx, x, clustering.KMeansOptions{
			K:       s.cfg.NClusters,
			NInit:   s.cfg.NInit,
			MaxIter: s.cfg.MaxIter,
			Tol:     s.cfg.Tol,
			Seed:    s.cfg.RandomState,
		})
		if err != nil {
			return fmt.Errorf("erreur K-means: %w", err)
		}
		assignment, centroids, k = res.Labels, res.Centroids, len(res.Centroids)
		s.logger.Debug("K-means terminé",
			zap.Int("iterations", res.Iterations),
			zap.Float64("inertia", res.Inertia),
		)
	case domain.MethodDBSCAN:
		res, err := clustering.DBSCAN(x, clustering.DBSCANOptions{
			Eps:        s.cfg.DBSCANEps,
			MinSamples: s.cfg.DBSCANMinSamples,
		})
		if err != nil {
			return fmt.Errorf("erreur DBSCAN: %w", err)
		}
		assignment, core, k = res.Labels, res.Core, res.Clusters
		centroids = clusterMeans(x, assignment, k)
	}

	rank := rankValues(frame, s.cfg.RankFeature, assignment)
	labels := domain.BindLabels(domain.ClusterIDs(assignment), s.catalog.Labels(), s.policy, rank)
	importance := domain.ComputeImportance(features, raw, assignment)

	s.mu.Lock()
	s.state = domain.StateFitted
	s.method = m
	s.generation++
	s.features = features
	s.scaler = scaler
	s.x = x
	s.assignment = assignment
	s.centroids = centroids
	s.core = core
	s.k = k
	s.labels = labels
	s.importance = importance
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.DeletePrefix(cachePrefix)
	}

	s.metrics.SetClusters(k)
	s.metrics.AddRows("fit", len(x))
	s.metrics.ObserveStage("fit", time.Since(start))
	span.SetAttributes(
		attribute.String("method", string(m)),
		attribute.Int("clusters", k),
		attribute.Int("rows", len(x)),
	)
	s.logger.Info("segmentation ajustée",
		zap.String("method", string(m)),
		zap.Int("clusters", k),
		zap.Int("rows", len(x)),
		zap.Int("features", len(features)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// State retourne l'état courant
func (s *CustomerSegmentation) State() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Method retourne l'algorithme du dernier ajustement
func (s *CustomerSegmentation) Method() (domain.Method, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("Method"); err != nil {
		return "", err
	}
	return s.method, nil
}

// K nombre de clusters trouvés (bruit exclu)
func (s *CustomerSegmentation) K() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("K"); err != nil {
		return 0, err
	}
	return s.k, nil
}

// Features colonnes utilisées pour l'ajustement
func (s *CustomerSegmentation) Features() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("Features"); err != nil {
		return nil, err
	}
	return append([]string(nil), s.features...), nil
}

// Labels affectation des lignes d'apprentissage (-1 = bruit)
func (s *CustomerSegmentation) Labels() ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("Labels"); err != nil {
		return nil, err
	}
	return append([]int(nil), s.assignment...), nil
}

// SegmentLabels correspondance cluster → libellé de l'ajustement courant
func (s *CustomerSegmentation) SegmentLabels() (map[int]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("SegmentLabels"); err != nil {
		return nil, err
	}
	out := make(map[int]string, len(s.labels))
	for k, v := range s.labels {
		out[k] = v
	}
	return out, nil
}

// Evaluate calcule silhouette, Calinski-Harabasz et Davies-Bouldin de l'affectation ajustée.
// Le tableau doit contenir les lignes d'apprentissage dans le même ordre.
func (s *CustomerSegmentation) Evaluate(ctx context.Context, frame *datasetdomain.Frame) (domain.Scores, error) {
	_, span := tracer.Start(ctx, "CustomerSegmentation.Evaluate")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("Evaluate"); err != nil {
		return domain.Scores{}, err
	}

	raw, err := frame.Matrix(s.features)
	if err != nil {
		return domain.Scores{}, err
	}
	if len(raw) != len(s.assignment) {
		return domain.Scores{}, shared.NewInvalidParameter("frame", "%d lignes, %d lignes ajustées", len(raw), len(s.assignment))
	}

	key := infrastructure.NewCacheKeyBuilder().
		Add(cachePrefix + "scores").
		AddInt(s.generation).
		AddFingerprint(s.features, raw).
		Build()
	if cached, ok := s.cacheGet("scores", key); ok {
		return cached.(domain.Scores), nil
	}

	x, err := s.scaler.Transform(raw)
	if err != nil {
		return domain.Scores{}, err
	}
	if err := clustering.CheckMatrix(x); err != nil {
		return domain.Scores{}, err
	}

	scores := domain.Scores{Clusters: s.k}
	for _, c := range s.assignment {
		if c == domain.NoiseCluster {
			scores.Noise++
		}
	}
	scores.Points = len(s.assignment) - scores.Noise

	if scores.Silhouette, err = clustering.Silhouette(x, s.assignment); err != nil {
		return domain.Scores{}, err
	}
	if scores.CalinskiHarabasz, err = clustering.CalinskiHarabasz(x, s.assignment); err != nil {
		return domain.Scores{}, err
	}
	if scores.DaviesBouldin, err = clustering.DaviesBouldin(x, s.assignment); err != nil {
		return domain.Scores{}, err
	}

	s.metrics.SetScore("silhouette", scores.Silhouette)
	s.metrics.SetScore("calinski_harabasz", scores.CalinskiHarabasz)
	s.metrics.SetScore("davies_bouldin", scores.DaviesBouldin)
	s.cacheSet(key, scores)

	s.logger.Info("qualité de la segmentation",
		zap.Float64("silhouette", scores.Silhouette),
		zap.Float64("calinski_harabasz", scores.CalinskiHarabasz),
		zap.Float64("davies_bouldin", scores.DaviesBouldin),
	)
	return scores, nil
}

// ClusterProfiles profils des clusters sur les lignes d'apprentissage (tableau aligné, non normalisé)
func (s *CustomerSegmentation) ClusterProfiles(frame *datasetdomain.Frame) ([]domain.ClusterProfile, error) {
	s.mu.RLock()
	if err := s.guard("ClusterProfiles"); err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	assignment := s.assignment
	s.mu.RUnlock()
	return s.ProfilesFor(frame, assignment)
}

// ProfilesFor profils pour une affectation quelconque (ex: prédiction sur toute la base)
func (s *CustomerSegmentation) ProfilesFor(frame *datasetdomain.Frame, assignment []int) ([]domain.ClusterProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("ClusterProfiles"); err != nil {
		return nil, err
	}

	var features []string
	for _, c := range frame.NumericColumns() {
		if !s.excluded[c] {
			features = append(features, c)
		}
	}
	if len(features) == 0 {
		return nil, shared.NewInvalidParameter("frame", "aucune colonne numérique à profiler")
	}

	matrix, err := frame.Matrix(features)
	if err != nil {
		return nil, err
	}
	withCluster := make([][]float64, len(matrix))
	for i, row := range matrix {
		c := math.NaN()
		if i < len(assignment) {
			c = float64(assignment[i])
		}
		withCluster[i] = append(row, c)
	}
	key := infrastructure.NewCacheKeyBuilder().
		Add(cachePrefix + "profiles").
		AddInt(s.generation).
		AddInt(len(assignment)).
		AddFingerprint(append(features, "cluster"), withCluster).
		Build()
	if cached, ok := s.cacheGet("profiles", key); ok {
		return cached.([]domain.ClusterProfile), nil
	}

	profiles, err := domain.BuildProfiles(frame, assignment, features, s.labels, s.importance, s.cfg.TopFeatures)
	if err != nil {
		return nil, err
	}
	s.cacheSet(key, profiles)
	return profiles, nil
}

// CommercialOffers offre de chaque cluster, via le libellé lié à l'ajustement
func (s *CustomerSegmentation) CommercialOffers() (map[int]domain.CommercialOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("CommercialOffers"); err != nil {
		return nil, err
	}
	offers := make(map[int]domain.CommercialOffer, len(s.labels))
	for id, label := range s.labels {
		if offer, ok := s.catalog.Offer(label); ok {
			offers[id] = offer
		}
	}
	return offers, nil
}

// Predict affecte chaque ligne à un cluster sans modifier le modèle
func (s *CustomerSegmentation) Predict(ctx context.Context, frame *datasetdomain.Frame) ([]int, error) {
	_, span := tracer.Start(ctx, "CustomerSegmentation.Predict")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("Predict"); err != nil {
		return nil, err
	}
	x, err := s.prepare(frame)
	if err != nil {
		return nil, err
	}
	out := s.predict(x)
	s.metrics.AddRows("predict", len(out))
	return out, nil
}

// PredictBatches équivalent à Predict, lots de batchSize lignes scorés en parallèle
func (s *CustomerSegmentation) PredictBatches(ctx context.Context, frame *datasetdomain.Frame, batchSize, workers int) ([]int, error) {
	ctx, span := tracer.Start(ctx, "CustomerSegmentation.PredictBatches")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("PredictBatches"); err != nil {
		return nil, err
	}
	x, err := s.prepare(frame)
	if err != nil {
		return nil, err
	}
	size, err := shared.NewSampleSize(len(x))
	if err != nil {
		return nil, err
	}

	out := make([]int, len(x))
	pool := infrastructure.NewWorkerPool(ctx, workers)
	pool.Start()
	batches := size.Batches(batchSize)
	for _, b := range batches {
		lo, hi := b[0], b[1]
		if err := pool.Submit(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			copy(out[lo:hi], s.predict(x[lo:hi]))
			return nil
		}); err != nil {
			break
		}
	}
	if err := pool.Wait(); err != nil {
		return nil, fmt.Errorf("erreur prédiction par lots: %w", err)
	}

	s.metrics.AddRows("predict", len(out))
	span.SetAttributes(attribute.Int("batches", len(batches)))
	return out, nil
}

// ClusterCenters centres des clusters en unités d'origine (une ligne par cluster, colonnes = Features)
func (s *CustomerSegmentation) ClusterCenters() ([][]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("ClusterCenters"); err != nil {
		return nil, err
	}
	return s.scaler.InverseTransform(s.centroids), nil
}

// FeatureImportance écart-type des features par cluster, décroissant
func (s *CustomerSegmentation) FeatureImportance() ([]domain.FeatureImportance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("FeatureImportance"); err != nil {
		return nil, err
	}
	out := make([]domain.FeatureImportance, len(s.importance))
	for i, fi := range s.importance {
		out[i] = domain.FeatureImportance{
			ClusterID: fi.ClusterID,
			Features:  append([]domain.FeatureWeight(nil), fi.Features...),
		}
	}
	return out, nil
}

// SelectK parcourt [KMin, KMax] avec les paramètres K-means configurés
func (s *CustomerSegmentation) SelectK(ctx context.Context, frame *datasetdomain.Frame) ([]clustering.KScore, int, error) {
	ctx, span := tracer.Start(ctx, "CustomerSegmentation.SelectK")
	defer span.End()

	features, err := s.featureColumns(frame)
	if err != nil {
		return nil, 0, err
	}
	raw, err := frame.Matrix(features)
	if err != nil {
		return nil, 0, err
	}
	if err := clustering.CheckMatrix(raw); err != nil {
		return nil, 0, err
	}
	scaler, err := prepdomain.FitStandardScaler(features, raw)
	if err != nil {
		return nil, 0, err
	}
	x, err := scaler.Transform(raw)
	if err != nil {
		return nil, 0, err
	}

	scores, best, err := clustering.SelectK(ctx, x, s.cfg.KMin, s.cfg.KMax, clustering.KMeansOptions{
		NInit:   s.cfg.NInit,
		MaxIter: s.cfg.MaxIter,
		Tol:     s.cfg.Tol,
		Seed:    s.cfg.RandomState,
	})
	if err != nil {
		return nil, 0, err
	}
	s.logger.Info("nombre de clusters sélectionné", zap.Int("k", best), zap.Int("candidates", len(scores)))
	return scores, best, nil
}

// featureColumns colonnes non exclues ; chacune numérique et sans valeur manquante
func (s *CustomerSegmentation) featureColumns(frame *datasetdomain.Frame) ([]string, error) {
	var features []string
	for _, c := range frame.Columns() {
		if s.excluded[c] {
			continue
		}
		kind, _ := frame.Kind(c)
		if kind != datasetdomain.KindNumeric {
			return nil, shared.NewInvalidParameter(c, "colonne non numérique: encoder les catégories avant la segmentation")
		}
		if n := frame.MissingCount(c); n > 0 {
			return nil, shared.NewInvalidParameter(c, "%d valeurs manquantes: imputer avant la segmentation", n)
		}
		features = append(features, c)
	}
	if len(features) == 0 {
		return nil, shared.NewInvalidParameter("frame", "aucune feature utilisable")
	}
	return features, nil
}

// prepare matrice normalisée des features ajustées ; à appeler sous verrou
func (s *CustomerSegmentation) prepare(frame *datasetdomain.Frame) ([][]float64, error) {
	raw, err := frame.Matrix(s.features)
	if err != nil {
		return nil, err
	}
	x, err := s.scaler.Transform(raw)
	if err != nil {
		return nil, err
	}
	if err := clustering.CheckMatrix(x); err != nil {
		return nil, err
	}
	return x, nil
}

func (s *CustomerSegmentation) predict(x [][]float64) []int {
	if s.method == domain.MethodDBSCAN {
		return clustering.PredictDensity(x, s.x, s.core, s.assignment, s.cfg.DBSCANEps)
	}
	return clustering.PredictNearest(x, s.centroids)
}

func (s *CustomerSegmentation) guard(op string) error {
	if s.state != domain.StateFitted {
		return &shared.ErrUnfitted{Operation: "CustomerSegmentation." + op}
	}
	return nil
}

func (s *CustomerSegmentation) cacheGet(name, key string) (interface{}, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, ok := s.cache.Get(key)
	if ok {
		s.metrics.IncrCacheHit(name)
	} else {
		s.metrics.IncrCacheMiss(name)
	}
	return v, ok
}

func (s *CustomerSegmentation) cacheSet(key string, value interface{}) {
	if s.cache != nil {
		s.cache.Set(key, value, s.cacheTTL)
	}
}

// rankValues moyenne de la feature de classement par cluster (valeurs non normalisées)
func rankValues(frame *datasetdomain.Frame, feature string, assignment []int) map[int]float64 {
	if feature == "" {
		return nil
	}
	values, err := frame.Numeric(feature)
	if err != nil {
		return nil
	}
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for i, c := range assignment {
		if c == domain.NoiseCluster || math.IsNaN(values[i]) {
			continue
		}
		sums[c] += values[i]
		counts[c]++
	}
	rank := make(map[int]float64, len(sums))
	for c, sum := range sums {
		rank[c] = sum / float64(counts[c])
	}
	return rank
}

// clusterMeans centroïdes (espace normalisé) des clusters DBSCAN
func clusterMeans(x [][]float64, assignment []int, k int) [][]float64 {
	dim := len(x[0])
	means := make([][]float64, k)
	counts := make([]int, k)
	for c := range means {
		means[c] = make([]float64, dim)
	}
	for i, c := range assignment {
		if c < 0 {
			continue
		}
		counts[c]++
		for j, v := range x[i] {
			means[c][j] += v
		}
	}
	for c := range means {
		if counts[c] == 0 {
			continue
		}
		for j := range means[c] {
			means[c][j] /= float64(counts[c])
		}
	}
	return means
}
