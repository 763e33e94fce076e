package testhelpers

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"segmentation/internal/config"
	datasetdomain "segmentation/internal/dataset/domain"
	genapp "segmentation/internal/generation/application"
	storeinfra "segmentation/internal/store/infrastructure"
)

// TestContext contient les dépendances des tests d'intégration base de données
// Note: ne contient PAS les services applicatifs pour éviter les import cycles
type TestContext struct {
	Store *storeinfra.Store
	// RunID identifiant isolant les lignes écrites par le test
	RunID string
}

// DatabaseURL URL de la base de test: TEST_DATABASE_URL, sinon construite depuis DB_*
func DatabaseURL() string {
	// Charger les variables d'environnement
	_ = godotenv.Load("../../../.env")

	if raw := os.Getenv("TEST_DATABASE_URL"); raw != "" {
		return raw
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("DB_USER", "seguser"), getEnv("DB_PASSWORD", "segpass")),
		Host:     getEnv("DB_HOST", "localhost") + ":" + getEnv("DB_PORT", "5432"),
		Path:     "/" + getEnv("DB_NAME", "segdb"),
		RawQuery: "sslmode=" + getEnv("DB_SSLMODE", "disable"),
	}
	return u.String()
}

// SetupTestContext ouvre la base de test et crée le schéma
func SetupTestContext(tb testing.TB) *TestContext {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := storeinfra.Open(ctx, DatabaseURL(), zap.NewNop())
	if err != nil {
		tb.Fatalf("Failed to open database: %v", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		tb.Fatalf("Failed to create schema: %v", err)
	}
	return &TestContext{
		Store: store,
		RunID: fmt.Sprintf("test-%s-%d", tb.Name(), time.Now().UnixNano()),
	}
}

// Cleanup supprime les lignes du test puis ferme la connexion
func (tc *TestContext) Cleanup() {
	if tc.Store == nil {
		return
	}
	ctx := context.Background()
	_, _ = tc.Store.Exec(ctx, `DELETE FROM segment_customers WHERE run_id = ?`, tc.RunID)
	_, _ = tc.Store.Exec(ctx, `DELETE FROM segment_offers WHERE run_id = ?`, tc.RunID)
	tc.Store.Close()
}

// SkipIfNoDatabase skip le test/benchmark si la DB n'est pas disponible
func SkipIfNoDatabase(tb testing.TB) {
	tb.Helper()

	if testing.Short() {
		tb.Skip("Database tests skipped in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, err := storeinfra.Open(ctx, DatabaseURL(), zap.NewNop())
	if err != nil {
		tb.Skip("Database not available:", err)
	}
	store.Close()
}

// CustomerFrame génère n clients synthétiques avec la configuration de référence
func CustomerFrame(tb testing.TB, n int, seed int64) *datasetdomain.Frame {
	tb.Helper()

	gen := genapp.NewGenerator(config.Default().Generator, zap.NewNop())
	records, err := gen.Generate(context.Background(), n, seed)
	if err != nil {
		tb.Fatalf("Failed to generate customers: %v", err)
	}
	return datasetdomain.RecordsToFrame(records)
}

// getEnv récupère une variable d'environnement avec fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
