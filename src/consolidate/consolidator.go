// Package consolidate turns the evidence of a finished investigation into a
// ranked, grouped report.
package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

// Repository is what the consolidator reads from and writes reports to.
type Repository interface {
	GetInvestigation(ctx context.Context, id string) (osint.Investigation, error)
	ListTasks(ctx context.Context, investigationID string) ([]osint.Task, error)
	ListFindings(ctx context.Context, investigationID string) ([]osint.Finding, error)
	SaveReport(ctx context.Context, report osint.Report) error
}

// Options wires a Consolidator.
type Options struct {
	Repository Repository
	Tracer     tracing.Recorder
	Logger     *zap.Logger
	Now        func() time.Time
	NewID      func() string
}

// Consolidator builds reports for terminal investigations.
type Consolidator struct {
	repo   Repository
	tracer tracing.Recorder
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// New constructs a Consolidator.
func New(opts Options) *Consolidator {
	c := &Consolidator{
		repo:   opts.Repository,
		tracer: opts.Tracer,
		logger: opts.Logger,
		now:    opts.Now,
		newID:  opts.NewID,
	}
	if c.tracer == nil {
		c.tracer = tracing.Nop{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// Consolidate builds and stores a new report. Investigations that are not
// terminal, or that still have non-terminal tasks, yield
// osint.ErrInvestigationNotTerminal.
func (c *Consolidator) Consolidate(ctx context.Context, investigationID string) (*osint.Report, error) {
	inv, err := c.repo.GetInvestigation(ctx, investigationID)
	if err != nil {
		return nil, err
	}
	if !inv.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", osint.ErrInvestigationNotTerminal, investigationID, inv.Status)
	}
	tasks, err := c.repo.ListTasks(ctx, investigationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
	}
	return c.ConsolidateFrom(ctx, inv, tasks)
}

// ConsolidateFrom builds and stores a report from a known investigation and
// task set, reading only the findings from the repository. Callers holding a
// final in-memory snapshot use it so stale task rows cannot block the report.
func (c *Consolidator) ConsolidateFrom(ctx context.Context, inv osint.Investigation, tasks []osint.Task) (*osint.Report, error) {
	if !inv.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", osint.ErrInvestigationNotTerminal, inv.ID, inv.Status)
	}
	for _, task := range tasks {
		if !task.State.IsTerminal() {
			return nil, fmt.Errorf("%w: task %s is %s", osint.ErrInvestigationNotTerminal, task.ID, task.State)
		}
	}
	findings, err := c.repo.ListFindings(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
	}

	report := Build(inv, tasks, findings)
	report.ID = c.newID()
	report.GeneratedAt = c.now().UTC()

	if err := c.repo.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("%w: save report: %w", osint.ErrStoreUnavailable, err)
	}

	c.tracer.Record(inv.ID, tracing.EventReportGenerated, map[string]any{
		"report":   report.ID,
		"findings": report.Summary.TotalFindings,
		"partial":  report.Partial,
		"digest":   report.Digest,
	})
	c.logger.Info("report generated",
		zap.String("investigation", inv.ID),
		zap.String("report", report.ID),
		zap.Int("findings", report.Summary.TotalFindings),
		zap.Bool("partial", report.Partial))
	return &report, nil
}

// Build assembles the deterministic part of a report: groups, summary,
// flags and digest. ID and GeneratedAt are left to the caller.
func Build(inv osint.Investigation, tasks []osint.Task, findings []osint.Finding) osint.Report {
	refs := crossReferences(findings)

	byCategory := map[osint.FindingCategory][]osint.ReportEntry{}
	summary := osint.Summary{
		ByCategory: map[osint.FindingCategory]int{},
		Tasks:      map[osint.TaskState]int{},
	}
	for _, f := range findings {
		entry := osint.ReportEntry{
			Finding:         f.Clone(),
			CrossReferences: refs[f.Fingerprint],
		}
		entry.Corroborated = len(entry.CrossReferences) > 0 || len(f.Sources) >= 2
		if entry.Corroborated {
			summary.Corroborated++
		}
		byCategory[f.Category] = append(byCategory[f.Category], entry)
		summary.ByCategory[f.Category]++
		summary.TotalFindings++
	}

	categories := make([]osint.FindingCategory, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	groups := make([]osint.FindingGroup, 0, len(categories))
	for _, category := range categories {
		entries := byCategory[category]
		sort.Slice(entries, func(i, j int) bool {
			a, b := entries[i].Finding, entries[j].Finding
			if a.Confidence != b.Confidence {
				return a.Confidence > b.Confidence
			}
			if !a.FirstSeen.Equal(b.FirstSeen) {
				return a.FirstSeen.Before(b.FirstSeen)
			}
			return a.Fingerprint < b.Fingerprint
		})
		groups = append(groups, osint.FindingGroup{Category: category, Entries: entries})
	}

	partial := inv.DeadlineExceeded || inv.Status == osint.InvestigationCancelled
	for _, task := range tasks {
		summary.Tasks[task.State]++
		if task.State != osint.TaskSucceeded {
			partial = true
		}
	}

	report := osint.Report{
		InvestigationID:  inv.ID,
		Target:           inv.Target,
		Status:           inv.Status,
		Partial:          partial,
		DeadlineExceeded: inv.DeadlineExceeded,
		Groups:           groups,
		Summary:          summary,
	}
	report.Digest = Digest(report)
	return report
}

// Digest hashes the canonical JSON of a report's groups and summary.
func Digest(report osint.Report) string {
	payload, err := json.Marshal(struct {
		Groups  []osint.FindingGroup `json:"groups"`
		Summary osint.Summary        `json:"summary"`
	}{report.Groups, report.Summary})
	if err != nil {
		return ""
	}
	hash := xxhash.NewS64(0)
	hash.Write(payload)
	return fmt.Sprintf("%016x", hash.Sum64())
}

// crossReferences links findings that name the same entity under different
// categories, such as a subdomain and a URL on that host.
func crossReferences(findings []osint.Finding) map[string][]string {
	byKey := map[string][]osint.Finding{}
	for _, f := range findings {
		key := entityKey(f)
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], f)
	}

	out := map[string][]string{}
	for _, group := range byKey {
		if len(group) < 2 {
			continue
		}
		for _, f := range group {
			for _, other := range group {
				if other.Category == f.Category {
					continue
				}
				out[f.Fingerprint] = append(out[f.Fingerprint], other.Fingerprint)
			}
		}
	}
	for fp, list := range out {
		sort.Strings(list)
		out[fp] = dedupe(list)
	}
	return out
}

func entityKey(f osint.Finding) string {
	switch f.Category {
	case osint.FindingURL:
		if u, err := url.Parse(f.Value); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
		return f.Value
	default:
		return f.Value
	}
}

func dedupe(sorted []string) []string {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, s := range sorted[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
