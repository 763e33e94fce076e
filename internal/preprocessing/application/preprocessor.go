package application

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"segmentation/internal/config"
	datasetdomain "segmentation/internal/dataset/domain"
	"segmentation/internal/preprocessing/domain"
	shared "segmentation/internal/shared/domain"
)

var tracer = otel.Tracer("preprocessing/application")

// Preprocessor imputation → encodage → normalisation.
// Fit apprend toutes les statistiques ; Transform les réapplique telles quelles.
type Preprocessor struct {
	numeric     []string
	categorical []string
	numStrategy domain.NumericStrategy
	encStrategy domain.EncodingStrategy
	logger      *zap.Logger

	imputer *domain.Imputer
	encoder *domain.CategoricalEncoder
	scaler  *domain.StandardScaler
}

// MissingInfo valeurs manquantes d'une colonne
type MissingInfo struct {
	Column  string
	Count   int
	Percent float64
}

// NewPreprocessor crée un préprocesseur à partir du schéma et des stratégies configurées
func NewPreprocessor(columns config.Columns, cfg config.Preprocessing, logger *zap.Logger) (*Preprocessor, error) {
	numStrategy, err := domain.ParseNumericStrategy(cfg.NumericImputation)
	if err != nil {
		return nil, err
	}
	encStrategy, err := domain.ParseEncodingStrategy(cfg.CategoricalEncoding)
	if err != nil {
		return nil, err
	}
	return &Preprocessor{
		numeric:     append([]string(nil), columns.Numeric...),
		categorical: append([]string(nil), columns.Categorical...),
		numStrategy: numStrategy,
		encStrategy: encStrategy,
		logger:      logger,
	}, nil
}

// Fitted indique si les statistiques ont été apprises
func (p *Preprocessor) Fitted() bool {
	return p.scaler != nil
}

// Fit apprend imputation, modalités et normalisation sur le tableau (partition d'apprentissage)
func (p *Preprocessor) Fit(ctx context.Context, frame *datasetdomain.Frame) error {
	_, span := tracer.Start(ctx, "Preprocessor.Fit")
	defer span.End()

	if err := p.checkRequired(frame); err != nil {
		return err
	}

	imputer, err := domain.FitImputer(frame, p.numeric, p.categorical, p.numStrategy)
	if err != nil {
		return fmt.Errorf("erreur apprentissage imputation: %w", err)
	}
	imputed, err := imputer.Transform(frame)
	if err != nil {
		return err
	}

	encoder, err := domain.FitEncoder(imputed, p.categorical, p.encStrategy)
	if err != nil {
		return fmt.Errorf("erreur apprentissage encodage: %w", err)
	}

	matrix, err := imputed.Matrix(p.numeric)
	if err != nil {
		return err
	}
	scaler, err := domain.FitStandardScaler(p.numeric, matrix)
	if err != nil {
		return fmt.Errorf("erreur apprentissage normalisation: %w", err)
	}

	p.imputer, p.encoder, p.scaler = imputer, encoder, scaler
	p.logger.Debug("préprocesseur entraîné",
		zap.Int("rows", frame.Rows()),
		zap.String("imputation", string(p.numStrategy)),
		zap.String("encoding", string(p.encStrategy)),
	)
	return nil
}

// Impute applique uniquement l'imputation apprise (valeurs en unités d'origine)
func (p *Preprocessor) Impute(frame *datasetdomain.Frame) (*datasetdomain.Frame, error) {
	if !p.Fitted() {
		return nil, &shared.ErrUnfitted{Operation: "Preprocessor.Impute"}
	}
	if err := p.checkRequired(frame); err != nil {
		return nil, err
	}
	return p.imputer.Transform(frame)
}

// Transform applique imputation, encodage puis normalisation des colonnes numériques
func (p *Preprocessor) Transform(ctx context.Context, frame *datasetdomain.Frame) (*datasetdomain.Frame, error) {
	_, span := tracer.Start(ctx, "Preprocessor.Transform")
	defer span.End()

	imputed, err := p.Impute(frame)
	if err != nil {
		return nil, err
	}
	encoded, err := p.encoder.Transform(imputed)
	if err != nil {
		return nil, fmt.Errorf("erreur encodage: %w", err)
	}

	for j, col := range p.numeric {
		values, err := encoded.Numeric(col)
		if err != nil {
			return nil, err
		}
		if err := encoded.SetNumeric(col, p.scaler.TransformColumn(j, values)); err != nil {
			return nil, err
		}
	}
	return encoded, nil
}

// FitTransform apprend puis transforme le même tableau
func (p *Preprocessor) FitTransform(ctx context.Context, frame *datasetdomain.Frame) (*datasetdomain.Frame, error) {
	if err := p.Fit(ctx, frame); err != nil {
		return nil, err
	}
	return p.Transform(ctx, frame)
}

// Scaler retourne la normalisation apprise (nil avant Fit)
func (p *Preprocessor) Scaler() *domain.StandardScaler {
	return p.scaler
}

// MissingReport liste les colonnes ayant des valeurs manquantes
func MissingReport(frame *datasetdomain.Frame) []MissingInfo {
	var report []MissingInfo
	for _, col := range frame.Columns() {
		count := frame.MissingCount(col)
		if count == 0 {
			continue
		}
		pct := 0.0
		if frame.Rows() > 0 {
			pct = float64(count) / float64(frame.Rows()) * 100
		}
		report = append(report, MissingInfo{Column: col, Count: count, Percent: pct})
	}
	return report
}

// checkRequired toute colonne numérique configurée doit exister et être numérique
func (p *Preprocessor) checkRequired(frame *datasetdomain.Frame) error {
	for _, col := range p.numeric {
		kind, ok := frame.Kind(col)
		if !ok {
			return &shared.ErrMissingColumn{Column: col}
		}
		if kind != datasetdomain.KindNumeric {
			return shared.NewInvalidParameter(col, "colonne numérique attendue")
		}
	}
	return nil
}
