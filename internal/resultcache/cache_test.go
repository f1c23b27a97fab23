package resultcache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxpipe/voxpipe/internal/resultcache"
)

func TestGetOrCompute_MissThenHit(t *testing.T) {
	t.Parallel()
	c := resultcache.New[string](10, time.Minute)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (string, error) {
		calls++
		return "value", nil
	}

	v, hit, err := c.GetOrCompute(ctx, "k", compute)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if hit || v != "value" {
		t.Errorf("first call: v=%q hit=%v; want value, false", v, hit)
	}

	v, hit, err = c.GetOrCompute(ctx, "k", compute)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if !hit || v != "value" {
		t.Errorf("second call: v=%q hit=%v; want value, true", v, hit)
	}
	if calls != 1 {
		t.Errorf("compute ran %d times; want 1", calls)
	}
}

func TestGetOrCompute_FailureNotCached(t *testing.T) {
	t.Parallel()
	c := resultcache.New[int](10, time.Minute)
	ctx := context.Background()

	boom := errors.New("provider down")
	_, _, err := c.GetOrCompute(ctx, "k", func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v; want provider down", err)
	}

	// The failed key must recompute, not serve a cached error.
	v, hit, err := c.GetOrCompute(ctx, "k", func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute after failure: %v", err)
	}
	if hit || v != 42 {
		t.Errorf("after failure: v=%d hit=%v; want 42, false", v, hit)
	}
}

func TestGetOrCompute_SingleFlight(t *testing.T) {
	t.Parallel()
	c := resultcache.New[string](10, time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetOrCompute(ctx, "k", compute)
			if err != nil {
				t.Errorf("GetOrCompute: %v", err)
			}
			results[i] = v
		}()
	}

	// Give the goroutines a moment to pile onto the same key, then let the
	// one in-flight computation finish.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("compute ran %d times under contention; want 1", got)
	}
	for i, v := range results {
		if v != "shared" {
			t.Errorf("result[%d] = %q; want shared", i, v)
		}
	}
}

func TestGetOrCompute_TTLExpiry(t *testing.T) {
	t.Parallel()
	c := resultcache.New[string](10, 10*time.Millisecond)
	ctx := context.Background()

	c.GetOrCompute(ctx, "k", func(context.Context) (string, error) { return "old", nil })
	time.Sleep(30 * time.Millisecond)

	v, hit, err := c.GetOrCompute(ctx, "k", func(context.Context) (string, error) { return "new", nil })
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if hit || v != "new" {
		t.Errorf("after ttl: v=%q hit=%v; want new, false", v, hit)
	}
}

func TestGetOrCompute_LRUEviction(t *testing.T) {
	t.Parallel()
	c := resultcache.New[int](2, time.Minute)
	ctx := context.Background()

	put := func(key string, v int) {
		c.GetOrCompute(ctx, key, func(context.Context) (int, error) { return v, nil })
	}
	put("a", 1)
	put("b", 2)
	// Touch a so b becomes the least recently used.
	c.GetOrCompute(ctx, "a", func(context.Context) (int, error) { return -1, nil })
	put("c", 3)

	if _, hit, _ := c.GetOrCompute(ctx, "a", func(context.Context) (int, error) { return -1, nil }); !hit {
		t.Error("a should have survived eviction")
	}
	if _, hit, _ := c.GetOrCompute(ctx, "b", func(context.Context) (int, error) { return -1, nil }); hit {
		t.Error("b should have been evicted")
	}
}

func TestStats_CountsAndClear(t *testing.T) {
	t.Parallel()
	c := resultcache.New[string](10, time.Minute)
	ctx := context.Background()

	compute := func(context.Context) (string, error) { return "v", nil }
	c.GetOrCompute(ctx, "a", compute) // miss
	c.GetOrCompute(ctx, "a", compute) // hit
	c.GetOrCompute(ctx, "b", compute) // miss

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 2 || s.Entries != 2 {
		t.Errorf("stats = %+v; want hits=1 misses=2 entries=2", s)
	}

	c.Clear()
	s = c.Stats()
	if s.Entries != 0 {
		t.Errorf("entries after clear = %d; want 0", s.Entries)
	}
	if s.Hits != 1 || s.Misses != 2 {
		t.Errorf("counters after clear = %+v; clear must preserve hit/miss counts", s)
	}
}

func TestCleanup_SweepsExpiredEntries(t *testing.T) {
	t.Parallel()
	c := resultcache.New[string](10, 20*time.Millisecond)
	ctx := context.Background()

	c.GetOrCompute(ctx, "stale", func(context.Context) (string, error) { return "v", nil })
	time.Sleep(40 * time.Millisecond)
	c.GetOrCompute(ctx, "fresh", func(context.Context) (string, error) { return "v", nil })

	if removed := c.Cleanup(); removed != 1 {
		t.Errorf("Cleanup removed %d entries; want 1", removed)
	}
	if s := c.Stats(); s.Entries != 1 {
		t.Errorf("entries after cleanup = %d; want 1", s.Entries)
	}
	if _, hit, _ := c.GetOrCompute(ctx, "fresh", func(context.Context) (string, error) { return "v", nil }); !hit {
		t.Error("fresh entry must survive the sweep")
	}
}

func TestCleanup_NoTTLIsNoop(t *testing.T) {
	t.Parallel()
	c := resultcache.New[string](10, 0)
	ctx := context.Background()

	c.GetOrCompute(ctx, "k", func(context.Context) (string, error) { return "v", nil })
	if removed := c.Cleanup(); removed != 0 {
		t.Errorf("Cleanup removed %d entries from a TTL-less cache; want 0", removed)
	}
}
