package evidence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

// ErrUnmappedFinding marks raw output that cannot be mapped onto a canonical
// category: unknown adapter, unknown kind or an empty value.
var ErrUnmappedFinding = errors.New("evidence: unmapped finding")

// Schemas resolves adapter schemas and trust weights; *agentcore.Registry
// satisfies it.
type Schemas interface {
	SchemaFor(adapter string) (agentcore.Schema, bool)
	TrustFor(adapter string) float64
}

// Repository is the persistence the store writes through.
type Repository interface {
	SaveFinding(ctx context.Context, finding osint.Finding) error
}

// Options wires a Store.
type Options struct {
	Schemas    Schemas
	Repository Repository
	Tracer     tracing.Recorder
	Logger     *zap.Logger
	Now        func() time.Time
}

// Store deduplicates findings per investigation. Merges on different
// fingerprints never contend; merges on the same fingerprint serialize on
// that fingerprint's entry.
type Store struct {
	schemas Schemas
	repo    Repository
	tracer  tracing.Recorder
	logger  *zap.Logger
	now     func() time.Time

	investigations sync.Map // investigation id -> *ledger
}

type ledger struct {
	entries sync.Map // fingerprint -> *entry
}

type entry struct {
	mu      sync.Mutex
	finding osint.Finding
	stored  bool
}

// NewStore constructs a store.
func NewStore(opts Options) *Store {
	s := &Store{
		schemas: opts.Schemas,
		repo:    opts.Repository,
		tracer:  opts.Tracer,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if s.tracer == nil {
		s.tracer = tracing.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Merge inserts raw as a new finding or folds it into the existing finding
// with the same fingerprint. The merged finding is persisted before it
// becomes visible; on a repository failure the previous state is kept and the
// error wraps osint.ErrStoreUnavailable.
func (s *Store) Merge(ctx context.Context, investigationID string, raw osint.RawFinding) (osint.Finding, error) {
	schema, ok := s.schemas.SchemaFor(raw.Adapter)
	if !ok {
		return osint.Finding{}, s.reject(investigationID, raw, "unknown adapter")
	}
	category, value, ok := schema.Resolve(raw)
	if !ok {
		return osint.Finding{}, s.reject(investigationID, raw, "unmapped kind")
	}
	normalized := Normalize(category, value)
	if normalized == "" {
		return osint.Finding{}, s.reject(investigationID, raw, "empty value")
	}

	fingerprint := Fingerprint(category, normalized)
	observed := raw.ObservedAt
	if observed.IsZero() {
		observed = s.now()
	}
	observed = observed.UTC()

	e := s.entry(investigationID, fingerprint)
	e.mu.Lock()
	defer e.mu.Unlock()

	created := !e.stored
	var candidate osint.Finding
	if created {
		candidate = osint.Finding{
			InvestigationID: investigationID,
			Fingerprint:     fingerprint,
			Category:        category,
			Value:           normalized,
			FirstSeen:       observed,
			LastSeen:        observed,
		}
	} else {
		candidate = e.finding.Clone()
	}

	candidate.Sources = addSource(candidate.Sources, raw.Adapter)
	if observed.Before(candidate.FirstSeen) {
		candidate.FirstSeen = observed
	}
	if observed.After(candidate.LastSeen) {
		candidate.LastSeen = observed
	}
	candidate.Attributes = mergeAttributes(candidate.Attributes, raw.Attributes, schema)

	weights := make([]float64, 0, len(candidate.Sources))
	for _, source := range candidate.Sources {
		weights = append(weights, s.schemas.TrustFor(source))
	}
	if c := Confidence(weights); c > candidate.Confidence {
		candidate.Confidence = c
	}

	if s.repo != nil {
		if err := s.repo.SaveFinding(ctx, candidate); err != nil {
			s.tracer.Record(investigationID, tracing.EventStoreUnavailable, map[string]any{
				"fingerprint": fingerprint,
				"adapter":     raw.Adapter,
				"error":       err.Error(),
			})
			return osint.Finding{}, fmt.Errorf("%w: save finding %s: %w", osint.ErrStoreUnavailable, fingerprint, err)
		}
	}

	e.finding = candidate
	e.stored = true

	s.tracer.Record(investigationID, tracing.EventEvidenceMerged, map[string]any{
		"fingerprint": fingerprint,
		"category":    string(category),
		"adapter":     raw.Adapter,
		"task":        raw.TaskID,
		"created":     created,
		"sources":     len(candidate.Sources),
		"confidence":  candidate.Confidence,
	})
	return candidate.Clone(), nil
}

// MergeAll merges every raw finding. Unmapped findings are skipped and
// counted; the first store failure aborts the batch.
func (s *Store) MergeAll(ctx context.Context, investigationID string, raws []osint.RawFinding) ([]osint.Finding, int, error) {
	merged := make([]osint.Finding, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		finding, err := s.Merge(ctx, investigationID, raw)
		if errors.Is(err, ErrUnmappedFinding) {
			skipped++
			continue
		}
		if err != nil {
			return merged, skipped, err
		}
		merged = append(merged, finding)
	}
	return merged, skipped, nil
}

// Query returns a snapshot of an investigation's findings ordered by
// category, first-seen, fingerprint.
func (s *Store) Query(investigationID string) []osint.Finding {
	value, ok := s.investigations.Load(investigationID)
	if !ok {
		return []osint.Finding{}
	}

	out := []osint.Finding{}
	value.(*ledger).entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if e.stored {
			out = append(out, e.finding.Clone())
		}
		e.mu.Unlock()
		return true
	})
	SortFindings(out)
	return out
}

// Drop forgets an investigation's in-memory findings.
func (s *Store) Drop(investigationID string) {
	s.investigations.Delete(investigationID)
}

// SortFindings orders findings by category, first-seen, fingerprint.
func SortFindings(findings []osint.Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if !a.FirstSeen.Equal(b.FirstSeen) {
			return a.FirstSeen.Before(b.FirstSeen)
		}
		return a.Fingerprint < b.Fingerprint
	})
}

func (s *Store) entry(investigationID, fingerprint string) *entry {
	value, _ := s.investigations.LoadOrStore(investigationID, &ledger{})
	e, _ := value.(*ledger).entries.LoadOrStore(fingerprint, &entry{})
	return e.(*entry)
}

func (s *Store) reject(investigationID string, raw osint.RawFinding, reason string) error {
	s.tracer.Record(investigationID, tracing.EventEvidenceRejected, map[string]any{
		"adapter": raw.Adapter,
		"task":    raw.TaskID,
		"reason":  reason,
	})
	s.logger.Debug("finding rejected",
		zap.String("investigation", investigationID),
		zap.String("adapter", raw.Adapter),
		zap.String("reason", reason))
	return fmt.Errorf("%w: %s from %q", ErrUnmappedFinding, reason, raw.Adapter)
}

func addSource(sources []string, source string) []string {
	idx := sort.SearchStrings(sources, source)
	if idx < len(sources) && sources[idx] == source {
		return sources
	}
	out := make([]string, 0, len(sources)+1)
	out = append(out, sources[:idx]...)
	out = append(out, source)
	return append(out, sources[idx:]...)
}

// mergeAttributes unions attributes, skipping the schema's kind/value keys.
// When two sources disagree the lexicographically smaller value wins, which
// keeps the result independent of merge order.
func mergeAttributes(current, incoming map[string]string, schema agentcore.Schema) map[string]string {
	kindKey, valueKey := schema.Keys()
	for k, v := range incoming {
		if k == kindKey || k == valueKey || v == "" {
			continue
		}
		if current == nil {
			current = map[string]string{}
		}
		if existing, ok := current[k]; ok && existing <= v {
			continue
		}
		current[k] = v
	}
	return current
}
