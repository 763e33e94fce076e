package observability_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"segmentation/internal/shared/observability"
)

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger := observability.NewLogger(level)
		require.NotNil(t, logger, level)
		_ = logger.Sync()
	}
}

func TestMetrics_SnapshotAndTextfile(t *testing.T) {
	m := observability.NewMetrics()
	m.ObserveStage("fit", 150*time.Millisecond)
	m.AddRows("preprocess", 800)
	m.SetClusters(5)
	m.SetScore("silhouette", 0.31)
	m.IncrCacheHit("scores")
	m.IncrCacheMiss("scores")
	m.IncrRun("success")

	snap := m.Snapshot()
	assert.Equal(t, 5, snap.Clusters)
	assert.InDelta(t, 800, snap.RowsProcessed["preprocess"], 1e-9)
	assert.InDelta(t, 0.31, snap.Scores["silhouette"], 1e-9)
	assert.InDelta(t, 0.5, snap.CacheHitRate, 1e-9)

	path := filepath.Join(t.TempDir(), "segmentation.prom")
	require.NoError(t, m.WriteTextfile(path))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "segmentation_clusters 5")
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	shutdown, err := observability.InitTracing(context.Background(), "", "segmentation", "run")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
