package data

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

// MemRepository keeps everything in process memory.
type MemRepository struct {
	mu             sync.RWMutex
	investigations map[string]osint.Investigation
	tasks          map[string]map[string]osint.Task
	findings       map[string]map[string]osint.Finding
	reports        map[string]osint.Report
	traces         map[string]map[uint64]tracing.Event
}

// NewMemRepository returns an empty in-memory repository.
func NewMemRepository() *MemRepository {
	return &MemRepository{
		investigations: map[string]osint.Investigation{},
		tasks:          map[string]map[string]osint.Task{},
		findings:       map[string]map[string]osint.Finding{},
		reports:        map[string]osint.Report{},
		traces:         map[string]map[uint64]tracing.Event{},
	}
}

func (m *MemRepository) SaveInvestigation(_ context.Context, inv osint.Investigation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.investigations[inv.ID] = inv.Clone()
	return nil
}

func (m *MemRepository) GetInvestigation(_ context.Context, id string) (osint.Investigation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.investigations[id]
	if !ok {
		return osint.Investigation{}, fmt.Errorf("%w: investigation %s", osint.ErrNotFound, id)
	}
	return inv.Clone(), nil
}

func (m *MemRepository) ListInvestigations(_ context.Context, limit int) ([]osint.Investigation, error) {
	m.mu.RLock()
	out := make([]osint.Investigation, 0, len(m.investigations))
	for _, inv := range m.investigations {
		out = append(out, inv.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemRepository) DeleteInvestigation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.investigations, id)
	delete(m.tasks, id)
	delete(m.findings, id)
	delete(m.reports, id)
	delete(m.traces, id)
	return nil
}

func (m *MemRepository) SaveTask(_ context.Context, task osint.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.tasks[task.InvestigationID]
	if !ok {
		byID = map[string]osint.Task{}
		m.tasks[task.InvestigationID] = byID
	}
	byID[task.ID] = task
	return nil
}

func (m *MemRepository) ListTasks(_ context.Context, investigationID string) ([]osint.Task, error) {
	m.mu.RLock()
	out := make([]osint.Task, 0, len(m.tasks[investigationID]))
	for _, task := range m.tasks[investigationID] {
		out = append(out, task)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Adapter != out[j].Adapter {
			return out[i].Adapter < out[j].Adapter
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemRepository) SaveFinding(_ context.Context, finding osint.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byFP, ok := m.findings[finding.InvestigationID]
	if !ok {
		byFP = map[string]osint.Finding{}
		m.findings[finding.InvestigationID] = byFP
	}
	byFP[finding.Fingerprint] = finding.Clone()
	return nil
}

func (m *MemRepository) ListFindings(_ context.Context, investigationID string) ([]osint.Finding, error) {
	m.mu.RLock()
	out := make([]osint.Finding, 0, len(m.findings[investigationID]))
	for _, f := range m.findings[investigationID] {
		out = append(out, f.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}

func (m *MemRepository) SaveReport(_ context.Context, report osint.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.InvestigationID] = report
	return nil
}

func (m *MemRepository) GetReport(_ context.Context, investigationID string) (osint.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	report, ok := m.reports[investigationID]
	if !ok {
		return osint.Report{}, fmt.Errorf("%w: report for %s", osint.ErrNotFound, investigationID)
	}
	return report, nil
}

func (m *MemRepository) SaveTraceEvent(_ context.Context, ev tracing.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySeq, ok := m.traces[ev.InvestigationID]
	if !ok {
		bySeq = map[uint64]tracing.Event{}
		m.traces[ev.InvestigationID] = bySeq
	}
	ev.Detail = copyDetail(ev.Detail)
	bySeq[ev.Seq] = ev
	return nil
}

func (m *MemRepository) ListTraceEvents(_ context.Context, investigationID string, after uint64) ([]tracing.Event, error) {
	m.mu.RLock()
	out := make([]tracing.Event, 0, len(m.traces[investigationID]))
	for seq, ev := range m.traces[investigationID] {
		if seq > after {
			ev.Detail = copyDetail(ev.Detail)
			out = append(out, ev)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func copyDetail(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
