package data

import (
	"context"

	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

// Repository is the persistence boundary for investigations, tasks, findings,
// reports and trace events. Implementations must be safe for concurrent use; a failed
// write leaves previously stored state untouched.
type Repository interface {
	SaveInvestigation(ctx context.Context, inv osint.Investigation) error
	GetInvestigation(ctx context.Context, id string) (osint.Investigation, error)
	ListInvestigations(ctx context.Context, limit int) ([]osint.Investigation, error)
	DeleteInvestigation(ctx context.Context, id string) error

	SaveTask(ctx context.Context, task osint.Task) error
	ListTasks(ctx context.Context, investigationID string) ([]osint.Task, error)

	SaveFinding(ctx context.Context, finding osint.Finding) error
	ListFindings(ctx context.Context, investigationID string) ([]osint.Finding, error)

	SaveReport(ctx context.Context, report osint.Report) error
	GetReport(ctx context.Context, investigationID string) (osint.Report, error)

	// SaveTraceEvent is idempotent on (investigation, seq).
	SaveTraceEvent(ctx context.Context, ev tracing.Event) error
	ListTraceEvents(ctx context.Context, investigationID string, after uint64) ([]tracing.Event, error)
}
