package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stake-plus/osintops/src/shared/osint"
)

const (
	reportPrefix   = "osint:report:"
	statusPrefix   = "osint:status:"
	defaultTTL     = 24 * time.Hour
	defaultTimeout = 2 * time.Second
)

// KV is the subset of *redis.Client used by the cache.
type KV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Snapshot is the cached status view of a terminal investigation.
type Snapshot struct {
	Investigation osint.Investigation `json:"investigation"`
	Tasks         []osint.Task        `json:"tasks"`
	Report        *osint.Report       `json:"report,omitempty"`
}

// ReportCache keeps rendered reports and terminal snapshots in Redis so
// polling front ends do not hit the database.
type ReportCache struct {
	kv  KV
	ttl time.Duration
}

// NewReportCache wraps kv. A nil kv yields a cache that never hits.
func NewReportCache(kv KV, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ReportCache{kv: kv, ttl: ttl}
}

// PutReport stores the latest report of an investigation.
func (c *ReportCache) PutReport(ctx context.Context, report osint.Report) error {
	return c.put(ctx, reportPrefix+report.InvestigationID, report)
}

// GetReport returns the cached report. ok is false on a miss.
func (c *ReportCache) GetReport(ctx context.Context, investigationID string) (osint.Report, bool, error) {
	var report osint.Report
	ok, err := c.get(ctx, reportPrefix+investigationID, &report)
	return report, ok, err
}

// PutSnapshot caches a terminal investigation's status view.
func (c *ReportCache) PutSnapshot(ctx context.Context, snap Snapshot) error {
	if !snap.Investigation.Status.IsTerminal() {
		return fmt.Errorf("cache: investigation %s is %s", snap.Investigation.ID, snap.Investigation.Status)
	}
	return c.put(ctx, statusPrefix+snap.Investigation.ID, snap)
}

// GetSnapshot returns the cached status view. ok is false on a miss.
func (c *ReportCache) GetSnapshot(ctx context.Context, investigationID string) (Snapshot, bool, error) {
	var snap Snapshot
	ok, err := c.get(ctx, statusPrefix+investigationID, &snap)
	return snap, ok, err
}

// Invalidate drops both entries for an investigation.
func (c *ReportCache) Invalidate(ctx context.Context, investigationID string) error {
	if c == nil || c.kv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return c.kv.Del(ctx, reportPrefix+investigationID, statusPrefix+investigationID).Err()
}

func (c *ReportCache) put(ctx context.Context, key string, value any) error {
	if c == nil || c.kv == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := c.kv.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

func (c *ReportCache) get(ctx context.Context, key string, into any) (bool, error) {
	if c == nil || c.kv == nil {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	raw, err := c.kv.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}
