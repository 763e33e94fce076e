package infrastructure

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

func TestInMemoryCache_SetGet(t *testing.T) {
	c := NewInMemoryCache(0)
	defer c.Close()

	c.Set("scores:1", 0.42, time.Minute)
	v, ok := c.Get("scores:1")
	if !ok || v.(float64) != 0.42 {
		t.Fatalf("expected cached value 0.42, got %v (%v)", v, ok)
	}
	if _, ok := c.Get("scores:2"); ok {
		t.Fatal("unexpected hit")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %+v", stats)
	}
}

func TestInMemoryCache_Expiration(t *testing.T) {
	c := NewInMemoryCache(0)
	defer c.Close()

	c.Set("k", "v", -time.Second)
	if c.Has("k") {
		t.Fatal("expired entry should not be visible")
	}
}

func TestInMemoryCache_DeletePrefix(t *testing.T) {
	c := NewInMemoryCache(0)
	defer c.Close()

	c.Set("gen:1:a", 1, time.Minute)
	c.Set("gen:1:b", 2, time.Minute)
	c.Set("gen:2:a", 3, time.Minute)

	if removed := c.DeletePrefix("gen:1:"); removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry left, got %d", c.Len())
	}
}

func TestShardedCache(t *testing.T) {
	sc := NewShardedCache(8, 0)
	defer sc.Close()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("profile:%d", i)
			sc.Set(key, i, time.Minute)
			if v, ok := sc.Get(key); !ok || v.(int) != i {
				t.Errorf("key %s: got %v, %v", key, v, ok)
			}
		}(i)
	}
	wg.Wait()

	if sc.Stats().Hits != 64 {
		t.Errorf("expected 64 hits, got %d", sc.Stats().Hits)
	}
	sc.Clear()
	if sc.Has("profile:1") {
		t.Error("cache should be empty after Clear")
	}
}

func TestNewShardedCache_PanicsOnInvalidCount(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for non power of 2")
		}
	}()
	NewShardedCache(3, 0)
}

func TestCacheKeyBuilder_Fingerprint(t *testing.T) {
	cols := []string{"age", "volume_data"}
	a := [][]float64{{30, 1.5}, {40, math.NaN()}}
	b := [][]float64{{30, 1.5}, {40, math.NaN()}}
	c := [][]float64{{30, 1.5}, {41, math.NaN()}}

	ka := NewCacheKeyBuilder().Add("scores").AddInt(1).AddFingerprint(cols, a).Build()
	kb := NewCacheKeyBuilder().Add("scores").AddInt(1).AddFingerprint(cols, b).Build()
	kc := NewCacheKeyBuilder().Add("scores").AddInt(1).AddFingerprint(cols, c).Build()

	if ka != kb {
		t.Errorf("identical matrices must share a key: %s vs %s", ka, kb)
	}
	if ka == kc {
		t.Error("different matrices must not share a key")
	}
}

// ========================================
// Benchmarks
// ========================================

func BenchmarkInMemoryCache_Get_HighContention(b *testing.B) {
	c := NewInMemoryCache(0)
	defer c.Close()
	c.Set("key", 1, time.Hour)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = c.Get("key")
		}
	})
}

func BenchmarkShardedCache_Get_HighContention(b *testing.B) {
	sc := NewShardedCache(16, 0)
	defer sc.Close()
	for i := 0; i < 100; i++ {
		sc.Set(fmt.Sprintf("key:%d", i), i, time.Hour)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = sc.Get(fmt.Sprintf("key:%d", i%100))
			i++
		}
	})
}

func BenchmarkCacheKeyBuilder_Fingerprint(b *testing.B) {
	values := make([][]float64, 1000)
	for i := range values {
		values[i] = []float64{float64(i), float64(i) / 3, float64(i % 11)}
	}
	cols := []string{"a", "b", "c"}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = NewCacheKeyBuilder().Add("scores").AddFingerprint(cols, values).Build()
	}
}
