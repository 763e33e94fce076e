package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	exportdomain "segmentation/internal/export/domain"
	segdomain "segmentation/internal/segmentation/domain"
	shared "segmentation/internal/shared/domain"
	sharedinfra "segmentation/internal/shared/infrastructure"
)

var tracer = otel.Tracer("store/infrastructure")

// insertChunk lignes par INSERT multi-valeurs (14 paramètres par ligne)
const insertChunk = 500

// Store persistance relationnelle des résultats de segmentation (Postgres ou MySQL).
// Chaque exécution est isolée par son run_id.
type Store struct {
	sharedinfra.BaseRepository
	db     *sql.DB
	uow    sharedinfra.UnitOfWork
	logger *zap.Logger
}

// ParseURL convertit postgres://... ou mysql://... en (driver, dsn, dialecte)
func ParseURL(raw string) (string, string, sharedinfra.Dialect, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", shared.NewInvalidParameter("database.url", "URL invalide: %v", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres", raw, sharedinfra.DialectPostgres, nil
	case "mysql", "mariadb":
		cfg := mysql.NewConfig()
		if u.User != nil {
			cfg.User = u.User.Username()
			cfg.Passwd, _ = u.User.Password()
		}
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		cfg.ParseTime = true
		cfg.InterpolateParams = true
		if cfg.User == "" || cfg.Addr == "" || cfg.DBName == "" {
			return "", "", "", shared.NewInvalidParameter("database.url", "URL MySQL incomplète (utilisateur/hôte/base)")
		}
		return "mysql", cfg.FormatDSN(), sharedinfra.DialectMySQL, nil
	default:
		return "", "", "", &shared.ErrUnsupportedFormat{Path: u.Redacted(), Extension: u.Scheme}
	}
}

// Open ouvre et vérifie la connexion
func Open(ctx context.Context, raw string, logger *zap.Logger) (*Store, error) {
	driver, dsn, dialect, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("erreur ouverture base %s: %w", driver, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("erreur connexion base %s: %w", driver, err)
	}
	logger.Info("base de données connectée", zap.String("dialect", string(dialect)))
	return NewStore(db, dialect, logger), nil
}

// NewStore crée un store sur une connexion existante
func NewStore(db *sql.DB, dialect sharedinfra.Dialect, logger *zap.Logger) *Store {
	return &Store{
		BaseRepository: sharedinfra.NewBaseRepository(db, dialect),
		db:             db,
		uow:            sharedinfra.NewUnitOfWork(db),
		logger:         logger,
	}
}

// Close ferme la connexion
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema crée les tables si nécessaire
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Store.EnsureSchema")
	defer span.End()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS segment_customers (
			run_id VARCHAR(64) NOT NULL,
			customer_id VARCHAR(64) NOT NULL,
			segment INTEGER NOT NULL,
			segment_label VARCHAR(255) NOT NULL,
			age DOUBLE PRECISION,
			sexe VARCHAR(32),
			zone_geographique VARCHAR(64),
			type_client VARCHAR(64),
			montant_consommation DOUBLE PRECISION,
			nombre_appels DOUBLE PRECISION,
			volume_data DOUBLE PRECISION,
			nombre_sms DOUBLE PRECISION,
			type_abonnement VARCHAR(64),
			duree_abonnement DOUBLE PRECISION,
			PRIMARY KEY (run_id, customer_id)
		)`,
		`CREATE TABLE IF NOT EXISTS segment_offers (
			run_id VARCHAR(64) NOT NULL,
			cluster_id INTEGER NOT NULL,
			segment_label VARCHAR(255) NOT NULL,
			offer VARCHAR(255) NOT NULL,
			description TEXT,
			discount DOUBLE PRECISION NOT NULL,
			services TEXT,
			priority_support BOOLEAN NOT NULL,
			PRIMARY KEY (run_id, cluster_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("erreur création schéma: %w", err)
		}
	}
	return nil
}

// ReplaceCustomers remplace, dans une transaction, les clients segmentés d'une exécution
func (s *Store) ReplaceCustomers(ctx context.Context, runID string, rows []exportdomain.ClusterExportRow) error {
	ctx, span := tracer.Start(ctx, "Store.ReplaceCustomers")
	defer span.End()

	err := s.uow.Execute(ctx, func(tx *sql.Tx) error {
		repo := s.WithTx(tx)
		if _, err := repo.Exec(ctx, `DELETE FROM segment_customers WHERE run_id = ?`, runID); err != nil {
			return err
		}
		for start := 0; start < len(rows); start += insertChunk {
			end := start + insertChunk
			if end > len(rows) {
				end = len(rows)
			}
			query, args := customerInsert(runID, rows[start:end])
			if _, err := repo.Exec(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("erreur enregistrement des clients (run %s): %w", runID, err)
	}
	s.logger.Debug("clients enregistrés", zap.String("run_id", runID), zap.Int("rows", len(rows)))
	return nil
}

func customerInsert(runID string, rows []exportdomain.ClusterExportRow) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO segment_customers (run_id, customer_id, segment, segment_label, age, sexe,
		zone_geographique, type_client, montant_consommation, nombre_appels, volume_data, nombre_sms,
		type_abonnement, duree_abonnement) VALUES `)
	args := make([]interface{}, 0, len(rows)*14)
	for i, r := range rows {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?,?,?,?,?,?,?,?,?,?)")
		args = append(args, runID, r.CustomerID, r.Segment, r.SegmentLabel, r.Age, r.Gender,
			r.Zone, r.ClientType, r.Consumption, r.Calls, r.DataVolume, r.SMS,
			r.Subscription, r.Duration)
	}
	return sb.String(), args
}

// ListCustomers relit les clients d'une exécution, triés par identifiant
func (s *Store) ListCustomers(ctx context.Context, runID string) ([]exportdomain.ClusterExportRow, error) {
	ctx, span := tracer.Start(ctx, "Store.ListCustomers")
	defer span.End()

	rows, err := s.Query(ctx, `
		SELECT customer_id, segment, segment_label, age, sexe, zone_geographique, type_client,
			montant_consommation, nombre_appels, volume_data, nombre_sms, type_abonnement, duree_abonnement
		FROM segment_customers
		WHERE run_id = ?
		ORDER BY customer_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []exportdomain.ClusterExportRow
	for rows.Next() {
		var r exportdomain.ClusterExportRow
		if err := rows.Scan(&r.CustomerID, &r.Segment, &r.SegmentLabel, &r.Age, &r.Gender, &r.Zone, &r.ClientType,
			&r.Consumption, &r.Calls, &r.DataVolume, &r.SMS, &r.Subscription, &r.Duration); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SegmentStats agrège les clients d'une exécution par segment (bruit en dernier)
func (s *Store) SegmentStats(ctx context.Context, runID string) ([]exportdomain.SegmentStat, error) {
	ctx, span := tracer.Start(ctx, "Store.SegmentStats")
	defer span.End()

	rows, err := s.Query(ctx, `
		SELECT segment, MIN(segment_label), COUNT(*),
			AVG(montant_consommation), AVG(volume_data), AVG(nombre_appels), SUM(montant_consommation)
		FROM segment_customers
		WHERE run_id = ?
		GROUP BY segment
		ORDER BY CASE WHEN segment < 0 THEN 1 ELSE 0 END, segment`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []exportdomain.SegmentStat
	for rows.Next() {
		var st exportdomain.SegmentStat
		if err := rows.Scan(&st.Segment, &st.Label, &st.Customers,
			&st.AvgConsumption, &st.AvgData, &st.AvgCalls, &st.TotalConsumption); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ReplaceOffers remplace les offres d'une exécution
func (s *Store) ReplaceOffers(ctx context.Context, runID string, offers map[int]segdomain.CommercialOffer) error {
	ctx, span := tracer.Start(ctx, "Store.ReplaceOffers")
	defer span.End()

	ids := make([]int, 0, len(offers))
	for id := range offers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return s.uow.Execute(ctx, func(tx *sql.Tx) error {
		repo := s.WithTx(tx)
		if _, err := repo.Exec(ctx, `DELETE FROM segment_offers WHERE run_id = ?`, runID); err != nil {
			return err
		}
		for _, id := range ids {
			o := offers[id]
			if _, err := repo.Exec(ctx, `
				INSERT INTO segment_offers (run_id, cluster_id, segment_label, offer, description, discount, services, priority_support)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, id, o.Segment, o.Name, o.Description, o.Discount.Fraction(),
				strings.Join(o.Services, ";"), o.PrioritySupport); err != nil {
				return fmt.Errorf("erreur enregistrement offre %d: %w", id, err)
			}
		}
		return nil
	})
}

// ListOffers relit les offres d'une exécution, triées par cluster
func (s *Store) ListOffers(ctx context.Context, runID string) ([]exportdomain.OfferExportRow, error) {
	ctx, span := tracer.Start(ctx, "Store.ListOffers")
	defer span.End()

	rows, err := s.Query(ctx, `
		SELECT cluster_id, segment_label, offer, description, discount, services, priority_support
		FROM segment_offers
		WHERE run_id = ?
		ORDER BY cluster_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []exportdomain.OfferExportRow
	for rows.Next() {
		var (
			r        exportdomain.OfferExportRow
			discount float64
			services sql.NullString
			desc     sql.NullString
		)
		if err := rows.Scan(&r.ClusterID, &r.Segment, &r.Offer, &desc, &discount, &services, &r.PrioritySupport); err != nil {
			return nil, err
		}
		d, err := shared.NewDiscount(discount)
		if err != nil {
			return nil, err
		}
		r.Discount = d
		r.Description = desc.String
		if services.String != "" {
			r.Services = strings.Split(services.String, ";")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
