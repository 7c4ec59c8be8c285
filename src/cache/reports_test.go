package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/osintops/src/shared/osint"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestReportRoundTrip(t *testing.T) {
	kv := newFakeKV()
	c := NewReportCache(kv, time.Hour)
	ctx := context.Background()

	_, ok, err := c.GetReport(ctx, "inv-1")
	require.NoError(t, err)
	assert.False(t, ok)

	report := osint.Report{ID: "r1", InvestigationID: "inv-1", Status: osint.InvestigationCompleted, Digest: "abc"}
	require.NoError(t, c.PutReport(ctx, report))
	assert.Equal(t, time.Hour, kv.ttl["osint:report:inv-1"])

	got, ok, err := c.GetReport(ctx, "inv-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", got.Digest)

	require.NoError(t, c.Invalidate(ctx, "inv-1"))
	_, ok, err = c.GetReport(ctx, "inv-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotRequiresTerminal(t *testing.T) {
	c := NewReportCache(newFakeKV(), 0)
	ctx := context.Background()

	err := c.PutSnapshot(ctx, Snapshot{Investigation: osint.Investigation{ID: "x", Status: osint.InvestigationRunning}})
	assert.Error(t, err)

	snap := Snapshot{
		Investigation: osint.Investigation{ID: "x", Status: osint.InvestigationCancelled},
		Tasks:         []osint.Task{{ID: "t1", State: osint.TaskCancelled}},
	}
	require.NoError(t, c.PutSnapshot(ctx, snap))
	got, ok, err := c.GetSnapshot(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.Tasks, got.Tasks)
	assert.Nil(t, got.Report)
}

func TestBackendErrorsSurface(t *testing.T) {
	kv := newFakeKV()
	kv.err = errors.New("connection refused")
	c := NewReportCache(kv, 0)

	assert.ErrorContains(t, c.PutReport(context.Background(), osint.Report{InvestigationID: "y"}), "connection refused")
	_, ok, err := c.GetReport(context.Background(), "y")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestNilCacheNeverHits(t *testing.T) {
	var c *ReportCache
	require.NoError(t, c.PutReport(context.Background(), osint.Report{}))
	_, ok, err := c.GetReport(context.Background(), "z")
	assert.NoError(t, err)
	assert.False(t, ok)

	disabled := NewReportCache(nil, 0)
	_, ok, err = disabled.GetSnapshot(context.Background(), "z")
	assert.NoError(t, err)
	assert.False(t, ok)
}
