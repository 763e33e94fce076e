package application

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"segmentation/internal/config"
	"segmentation/internal/dataset/domain"
	datasetinfra "segmentation/internal/dataset/infrastructure"
	shared "segmentation/internal/shared/domain"
)

var tracer = otel.Tracer("generation/application")

// Generator produit des clients synthétiques réalistes
// (distributions, corrélations, clipping, valeurs manquantes).
type Generator struct {
	cfg    config.Generator
	logger *zap.Logger
	now    func() time.Time
}

// NewGenerator crée un générateur
func NewGenerator(cfg config.Generator, logger *zap.Logger) *Generator {
	return &Generator{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock fixe l'horloge utilisée pour les dates d'abonnement
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// sampler regroupe les distributions d'un tirage, toutes branchées sur la même source
type sampler struct {
	rng         *rand.Rand
	age         distuv.Normal
	consumption distuv.Gamma
	calls       distuv.Poisson
	data        distuv.Gamma
	sms         distuv.Poisson
	duration    distuv.Gamma
	gender      distuv.Categorical
	zone        distuv.Categorical
	clientType  distuv.Categorical
	sub         distuv.Categorical
}

func (g *Generator) newSampler(seed int64) *sampler {
	src := rand.NewSource(uint64(seed))
	// distuv.Gamma prend un paramètre de taux: taux = 1 / échelle
	return &sampler{
		rng:         rand.New(src),
		age:         distuv.Normal{Mu: g.cfg.AgeMean, Sigma: g.cfg.AgeStd, Src: src},
		consumption: distuv.Gamma{Alpha: g.cfg.ConsumptionShape, Beta: 1 / g.cfg.ConsumptionScale, Src: src},
		calls:       distuv.Poisson{Lambda: g.cfg.CallsLambda, Src: src},
		data:        distuv.Gamma{Alpha: g.cfg.DataShape, Beta: 1 / g.cfg.DataScale, Src: src},
		sms:         distuv.Poisson{Lambda: g.cfg.SMSLambda, Src: src},
		duration:    distuv.Gamma{Alpha: g.cfg.DurationShape, Beta: 1 / g.cfg.DurationScale, Src: src},
		gender:      distuv.NewCategorical(weights(g.cfg.Genders), src),
		zone:        distuv.NewCategorical(weights(g.cfg.Zones), src),
		clientType:  distuv.NewCategorical(weights(g.cfg.ClientTypes), src),
		sub:         distuv.NewCategorical(weights(g.cfg.Subscriptions), src),
	}
}

// Generate produit n clients. Même graine → même résultat (à horloge fixée).
func (g *Generator) Generate(ctx context.Context, n int, seed int64) ([]domain.CustomerRecord, error) {
	_, span := tracer.Start(ctx, "Generator.Generate")
	defer span.End()
	span.SetAttributes(attribute.Int("n", n), attribute.Int64("seed", seed))

	size, err := shared.NewSampleSize(n)
	if err != nil {
		return nil, err
	}
	if err := g.validate(); err != nil {
		return nil, err
	}

	window, err := shared.NewDateRangeFromDays(g.now(), g.cfg.HistoryDays)
	if err != nil {
		return nil, shared.NewInvalidParameter("history_days", "%v", err)
	}

	s := g.newSampler(seed)
	records := make([]domain.CustomerRecord, size.Value())
	for i := range records {
		records[i] = g.draw(s, i, window)
	}
	for i := range records {
		g.correlate(&records[i])
		g.clip(&records[i])
	}
	missing := g.injectMissing(s, records)

	g.logger.Info("clients générés",
		zap.Int("n", n),
		zap.Int64("seed", seed),
		zap.Int("missing_cells", missing),
	)
	return records, nil
}

// GenerateAndSave génère puis écrit le tableau (CSV ou XLSX selon l'extension)
func (g *Generator) GenerateAndSave(ctx context.Context, path string, n int, seed int64) (*domain.Frame, error) {
	records, err := g.Generate(ctx, n, seed)
	if err != nil {
		return nil, err
	}
	frame := domain.RecordsToFrame(records)
	if err := datasetinfra.SaveFrame(path, frame); err != nil {
		return nil, fmt.Errorf("erreur sauvegarde données générées: %w", err)
	}
	g.logger.Info("données sauvegardées", zap.String("path", path), zap.Int("rows", frame.Rows()))
	return frame, nil
}

func (g *Generator) draw(s *sampler, i int, window shared.DateRange) domain.CustomerRecord {
	return domain.CustomerRecord{
		CustomerID:   fmt.Sprintf("CUST_%05d", i+1),
		Age:          s.age.Rand(),
		Gender:       g.cfg.Genders[int(s.gender.Rand())].Value,
		Zone:         g.cfg.Zones[int(s.zone.Rand())].Value,
		ClientType:   g.cfg.ClientTypes[int(s.clientType.Rand())].Value,
		Consumption:  s.consumption.Rand(),
		Calls:        s.calls.Rand(),
		DataVolume:   s.data.Rand(),
		SMS:          s.sms.Rand(),
		Subscription: g.cfg.Subscriptions[int(s.sub.Rand())].Value,
		Duration:     s.duration.Rand(),
		SubscribedAt: window.DaysBeforeEnd(s.rng.Intn(window.Days())),
	}
}

// correlate applique les dépendances entre attributs
func (g *Generator) correlate(r *domain.CustomerRecord) {
	switch r.Subscription {
	case "Postpayé":
		r.Consumption *= g.cfg.PostpaidFactor
	case "Prépayé":
		r.Consumption *= g.cfg.PrepaidFactor
	}
	if r.ClientType == "Entreprise" {
		r.DataVolume *= g.cfg.BusinessDataFactor
	}
	if g.cfg.CallsDurationRatio > 0 {
		r.Calls *= 1 + r.Duration/g.cfg.CallsDurationRatio
	}
}

// clip borne les attributs numériques aux intervalles configurés
func (g *Generator) clip(r *domain.CustomerRecord) {
	fields := map[string]*float64{
		domain.ColAge:         &r.Age,
		domain.ColConsumption: &r.Consumption,
		domain.ColDataVolume:  &r.DataVolume,
		domain.ColDuration:    &r.Duration,
		domain.ColCalls:       &r.Calls,
		domain.ColSMS:         &r.SMS,
	}
	for name, ptr := range fields {
		if b, ok := g.cfg.Bounds[name]; ok {
			*ptr = math.Min(math.Max(*ptr, b.Min), b.Max)
		}
	}
}

// injectMissing vide des cellules au hasard, indépendamment par colonne
func (g *Generator) injectMissing(s *sampler, records []domain.CustomerRecord) int {
	order := []string{domain.ColDataVolume, domain.ColSMS, domain.ColZone}
	count := 0
	for _, col := range order {
		rate, ok := g.cfg.MissingRates[col]
		if !ok || rate <= 0 {
			continue
		}
		for i := range records {
			if s.rng.Float64() >= rate {
				continue
			}
			switch col {
			case domain.ColDataVolume:
				records[i].DataVolume = domain.Missing()
			case domain.ColSMS:
				records[i].SMS = domain.Missing()
			case domain.ColZone:
				records[i].Zone = ""
			}
			count++
		}
	}
	return count
}

func (g *Generator) validate() error {
	for name, choices := range map[string][]config.Choice{
		"genders":       g.cfg.Genders,
		"zones":         g.cfg.Zones,
		"client_types":  g.cfg.ClientTypes,
		"subscriptions": g.cfg.Subscriptions,
	} {
		if len(choices) == 0 {
			return shared.NewInvalidParameter(name, "aucune modalité configurée")
		}
	}
	if g.cfg.HistoryDays <= 0 {
		return shared.NewInvalidParameter("history_days", "doit être > 0, reçu %d", g.cfg.HistoryDays)
	}
	for name, scale := range map[string]float64{
		"consumption_scale": g.cfg.ConsumptionScale,
		"data_scale":        g.cfg.DataScale,
		"duration_scale":    g.cfg.DurationScale,
	} {
		if scale <= 0 {
			return shared.NewInvalidParameter(name, "doit être > 0, reçu %g", scale)
		}
	}
	return nil
}

func weights(choices []config.Choice) []float64 {
	w := make([]float64, len(choices))
	for i, c := range choices {
		w[i] = c.Weight
	}
	return w
}
