package indexer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elastic/file-to-elasticsearch/internal/config"
	"github.com/elastic/file-to-elasticsearch/internal/document"
)

func testConfig(t *testing.T, servers []string) config.IndexerConfig {
	t.Helper()
	return config.IndexerConfig{
		FlushInterval: time.Hour, // disable the timer; tests trigger flushes explicitly
		FlushSize:     2,
		DefaultIndex:  "logs-%Y.%m.%d",
		DefaultType:   "log",
		BatchDir:      t.TempDir(),
		Servers:       servers,
		Timeout:       time.Second,
		StatsInterval: time.Hour,
	}
}

func newDoc(msg string) *document.Document {
	d := document.New()
	d.Set("message", msg)
	return d
}

func TestEnqueueFlushesAtFlushSize(t *testing.T) {
	var reqs int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&reqs, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"took":1,"errors":false,"items":[{"index":{"status":201}},{"index":{"status":201}}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, []string{strings.TrimPrefix(srv.URL, "http://")})
	sess := New(cfg, nil)
	defer sess.Close(context.Background())

	sess.Enqueue(newDoc("one"), newDoc("two"))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&reqs) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		snap := sess.Stats()
		return snap["bulk_success"] == 1 && snap["indexed"] == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClusterDownSpillsToBacklogThenReplaysOnceHealthy(t *testing.T) {
	var healthy int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&healthy) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"took":1,"errors":false,"items":[{"index":{"status":201}}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, []string{strings.TrimPrefix(srv.URL, "http://")})
	cfg.FlushSize = 1
	sess := New(cfg, nil)
	defer sess.Close(context.Background())

	sess.Enqueue(newDoc("one"))

	require.Eventually(t, func() bool {
		entries, _ := os.ReadDir(cfg.BatchDir)
		return len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond, "expected batch to spill to disk while the cluster is down")

	atomic.StoreInt32(&healthy, 1)
	sess.TriggerReplay()

	require.Eventually(t, func() bool {
		entries, _ := os.ReadDir(cfg.BatchDir)
		return len(entries) == 0
	}, 3*time.Second, 20*time.Millisecond, "expected the backlogged batch to be replayed once the cluster recovers")
}

func TestCloseDrainsPendingWork(t *testing.T) {
	var reqs int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&reqs, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"took":1,"errors":false,"items":[{"index":{"status":201}}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, []string{strings.TrimPrefix(srv.URL, "http://")})
	cfg.FlushSize = 100 // large enough that only Close's final flush sends it
	sess := New(cfg, nil)

	sess.Enqueue(newDoc("only one"))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sess.Close(ctx)

	require.NoError(t, ctx.Err(), "Close should return before its deadline once drained")
	require.GreaterOrEqual(t, atomic.LoadInt32(&reqs), int32(1))
}

func TestStatsTickerInvokesCallbackPeriodically(t *testing.T) {
	cfg := testConfig(t, nil)
	sess := New(cfg, nil)
	defer sess.Close(context.Background())

	var calls int32
	var mu sync.Mutex
	var last map[string]int64

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	sess.RunStatsTicker(ctx, 50*time.Millisecond, func(snap map[string]int64) {
		atomic.AddInt32(&calls, 1)
		mu.Lock()
		last = snap
		mu.Unlock()
	})

	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, last)
}

func TestStatsTickerDisablesAfterPanickingCallback(t *testing.T) {
	cfg := testConfig(t, nil)
	sess := New(cfg, nil)
	defer sess.Close(context.Background())

	var calls int32
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	sess.RunStatsTicker(ctx, 30*time.Millisecond, func(map[string]int64) {
		atomic.AddInt32(&calls, 1)
		panic("boom")
	})

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestReportTailErrorIncrementsWheelError(t *testing.T) {
	cfg := testConfig(t, nil)
	sess := New(cfg, nil)
	defer sess.Close(context.Background())

	sess.ReportTailError()
	sess.ReportTailError()

	require.EqualValues(t, 2, sess.Stats()["wheel_error"])
}

func TestReclaimCleanupCountersSurfaceThroughSessionStats(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.BatchDiskSpace = 1 // any batch spilled immediately exceeds this, forcing eviction
	cfg.FlushSize = 1
	sess := New(cfg, nil)
	defer sess.Close(context.Background())

	// No reachable cluster configured, so every flush spills to disk.
	// Reclaim only runs automatically every 10th spill, so ten distinct
	// batches (distinct content -> distinct sha1 ids) are needed to drive
	// at least one eviction pass under the 1-byte ceiling.
	for i := 0; i < 10; i++ {
		sess.Enqueue(newDoc(strings.Repeat("x", i+1)))
	}

	require.Eventually(t, func() bool {
		snap := sess.Stats()
		return snap["cleanup_success"] >= 1
	}, 3*time.Second, 20*time.Millisecond, "expected backlog eviction to surface through the session's own stats snapshot")
}

func TestBatchIDMatchesFilenameOnReplay(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.FlushSize = 1
	sess := New(cfg, nil)
	defer sess.Close(context.Background())

	sess.Enqueue(newDoc("offline"))

	require.Eventually(t, func() bool {
		entries, _ := os.ReadDir(cfg.BatchDir)
		return len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := os.ReadDir(cfg.BatchDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	require.Equal(t, ".batch", filepath.Ext(name))

	// A replay-read of the file yields the same content-addressed id as
	// its filename.
	data, err := os.ReadFile(filepath.Join(cfg.BatchDir, name))
	require.NoError(t, err)
	sum := sha1.Sum(data)
	require.Equal(t, hex.EncodeToString(sum[:])+".batch", name)
}
