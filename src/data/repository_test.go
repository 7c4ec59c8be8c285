package data

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

func newSQLiteRepository(t *testing.T) *GormRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	repo := NewGormRepository(db)
	require.NoError(t, repo.Migrate(context.Background()))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repo
}

func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"memory": NewMemRepository(),
		"sqlite": newSQLiteRepository(t),
	}
}

func TestRepositoryInvestigations(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := osint.Investigation{
				ID:        "inv-1",
				Target:    osint.Target{Type: osint.TargetDomain, Value: "example.com"},
				Scope:     []osint.Category{osint.CategorySubdomainEnum},
				Status:    osint.InvestigationPending,
				CreatedAt: base,
				Deadline:  base.Add(10 * time.Minute),
			}
			second := first
			second.ID = "inv-2"
			second.Scope = nil
			second.CreatedAt = base.Add(time.Minute)

			require.NoError(t, repo.SaveInvestigation(ctx, first))
			require.NoError(t, repo.SaveInvestigation(ctx, second))

			first.Status = osint.InvestigationCompleted
			first.StartedAt = base.Add(time.Second)
			first.CompletedAt = base.Add(2 * time.Minute)
			first.DeadlineExceeded = true
			require.NoError(t, repo.SaveInvestigation(ctx, first))

			got, err := repo.GetInvestigation(ctx, "inv-1")
			require.NoError(t, err)
			assert.Equal(t, osint.InvestigationCompleted, got.Status)
			assert.True(t, got.DeadlineExceeded)
			assert.True(t, got.CompletedAt.Equal(first.CompletedAt))
			assert.Equal(t, first.Scope, got.Scope)

			list, err := repo.ListInvestigations(ctx, 10)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "inv-2", list[0].ID)

			limited, err := repo.ListInvestigations(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, limited, 1)

			_, err = repo.GetInvestigation(ctx, "missing")
			assert.ErrorIs(t, err, osint.ErrNotFound)
		})
	}
}

func TestRepositoryTasksFindingsReports(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.SaveInvestigation(ctx, osint.Investigation{
				ID: "inv", Target: osint.Target{Type: osint.TargetDomain, Value: "example.com"},
				Status: osint.InvestigationRunning, CreatedAt: at, Deadline: at.Add(time.Hour),
			}))

			task := osint.Task{ID: "t1", InvestigationID: "inv", Adapter: "amass", Category: osint.CategorySubdomainEnum, State: osint.TaskQueued, MaxAttempts: 3, CreatedAt: at}
			require.NoError(t, repo.SaveTask(ctx, task))
			require.NoError(t, task.Transition(osint.TaskDispatched, at.Add(time.Second)))
			require.NoError(t, repo.SaveTask(ctx, task))

			tasks, err := repo.ListTasks(ctx, "inv")
			require.NoError(t, err)
			require.Len(t, tasks, 1)
			assert.Equal(t, osint.TaskDispatched, tasks[0].State)
			assert.Equal(t, 1, tasks[0].Attempts)

			finding := osint.Finding{
				InvestigationID: "inv", Fingerprint: "abc", Category: osint.FindingSubdomain, Value: "www.example.com",
				Sources: []string{"amass"}, Confidence: 0.6, FirstSeen: at, LastSeen: at,
				Attributes: map[string]string{"source": "crtsh"},
			}
			require.NoError(t, repo.SaveFinding(ctx, finding))
			finding.Sources = []string{"amass", "search"}
			finding.Confidence = 0.8
			require.NoError(t, repo.SaveFinding(ctx, finding))

			findings, err := repo.ListFindings(ctx, "inv")
			require.NoError(t, err)
			require.Len(t, findings, 1)
			assert.Equal(t, []string{"amass", "search"}, findings[0].Sources)
			assert.InDelta(t, 0.8, findings[0].Confidence, 1e-9)
			assert.Equal(t, "crtsh", findings[0].Attributes["source"])

			_, err = repo.GetReport(ctx, "inv")
			assert.ErrorIs(t, err, osint.ErrNotFound)

			older := osint.Report{ID: "r1", InvestigationID: "inv", Status: osint.InvestigationCompleted, GeneratedAt: at, Digest: "d1"}
			newer := osint.Report{ID: "r2", InvestigationID: "inv", Status: osint.InvestigationCompleted, GeneratedAt: at.Add(time.Minute), Digest: "d2"}
			require.NoError(t, repo.SaveReport(ctx, older))
			require.NoError(t, repo.SaveReport(ctx, newer))
			report, err := repo.GetReport(ctx, "inv")
			require.NoError(t, err)
			assert.Equal(t, "r2", report.ID)

			require.NoError(t, repo.DeleteInvestigation(ctx, "inv"))
			_, err = repo.GetInvestigation(ctx, "inv")
			assert.ErrorIs(t, err, osint.ErrNotFound)
			findings, err = repo.ListFindings(ctx, "inv")
			require.NoError(t, err)
			assert.Empty(t, findings)
		})
	}
}

// taskErrorKinds lists every value written to Task.ErrorKind.
var taskErrorKinds = []string{
	string(agentcore.ErrorTransient),
	string(agentcore.ErrorPermanent),
	string(agentcore.ErrorRateLimited),
	"timeout",
	"store_unavailable",
	"cancelled",
}

func TestRepositoryTaskErrorKinds(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, kind := range taskErrorKinds {
				require.NoError(t, repo.SaveTask(ctx, osint.Task{
					ID: fmt.Sprintf("t%d", i), InvestigationID: "inv", Adapter: kind,
					Category: osint.CategorySearch, State: osint.TaskFailed, Attempts: 1, MaxAttempts: 3,
					CreatedAt: at, Error: "boom", ErrorKind: kind,
				}))
			}
			tasks, err := repo.ListTasks(ctx, "inv")
			require.NoError(t, err)
			require.Len(t, tasks, len(taskErrorKinds))
			for _, task := range tasks {
				assert.Equal(t, task.Adapter, task.ErrorKind)
			}
		})
	}
}

func TestTaskErrorKindColumnFitsEveryKind(t *testing.T) {
	repo := newSQLiteRepository(t)
	stmt := &gorm.Statement{DB: repo.db}
	require.NoError(t, stmt.Parse(&TaskRow{}))
	field := stmt.Schema.LookUpField("ErrorKind")
	require.NotNil(t, field)
	for _, kind := range taskErrorKinds {
		assert.LessOrEqual(t, len(kind), field.Size, "error kind %q", kind)
	}
}

func TestRepositoryTraceEvents(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.SaveInvestigation(ctx, osint.Investigation{
				ID: "inv", Target: osint.Target{Type: osint.TargetDomain, Value: "example.com"},
				Status: osint.InvestigationCompleted, CreatedAt: at, Deadline: at.Add(time.Hour),
			}))
			for seq := uint64(3); seq >= 1; seq-- {
				require.NoError(t, repo.SaveTraceEvent(ctx, tracing.Event{
					InvestigationID: "inv", Seq: seq, Kind: tracing.EventTaskState,
					Detail: map[string]any{"task": "t1", "attempt": float64(seq)},
					At:     at.Add(time.Duration(seq) * time.Second),
				}))
			}
			require.NoError(t, repo.SaveTraceEvent(ctx, tracing.Event{
				InvestigationID: "inv", Seq: 2, Kind: tracing.EventTaskState,
				Detail: map[string]any{"task": "t1", "attempt": float64(2)}, At: at.Add(2 * time.Second),
			}))
			require.NoError(t, repo.SaveTraceEvent(ctx, tracing.Event{InvestigationID: "other", Seq: 1, Kind: tracing.EventInvestigationCreated, At: at}))

			events, err := repo.ListTraceEvents(ctx, "inv", 1)
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, uint64(2), events[0].Seq)
			assert.Equal(t, uint64(3), events[1].Seq)
			assert.Equal(t, tracing.EventTaskState, events[1].Kind)
			assert.Equal(t, "t1", events[1].Detail["task"])
			assert.Equal(t, float64(3), events[1].Detail["attempt"])
			assert.WithinDuration(t, at.Add(3*time.Second), events[1].At, time.Millisecond)

			require.NoError(t, repo.DeleteInvestigation(ctx, "inv"))
			events, err = repo.ListTraceEvents(ctx, "inv", 0)
			require.NoError(t, err)
			assert.Empty(t, events)
			events, err = repo.ListTraceEvents(ctx, "other", 0)
			require.NoError(t, err)
			assert.Len(t, events, 1)
		})
	}
}

func TestSettingsCache(t *testing.T) {
	repo := newSQLiteRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.db.Create(&Setting{Name: "worker_pool_size", Value: "4", Active: 1}).Error)
	require.NoError(t, repo.db.Create(&Setting{Name: "disabled", Value: "x", Active: 0}).Error)
	t.Cleanup(ResetSettings)

	require.NoError(t, LoadSettings(ctx, repo.db))
	assert.Equal(t, "4", GetSetting("worker_pool_size"))
	assert.Empty(t, GetSetting("disabled"))
}

func TestEnsureParam(t *testing.T) {
	assert.Equal(t, "u@/db?parseTime=true", ensureParam("u@/db", "parseTime", "true"))
	assert.Equal(t, "u@/db?a=1&parseTime=true", ensureParam("u@/db?a=1", "parseTime", "true"))
	assert.Equal(t, "u@/db?parseTime=false", ensureParam("u@/db?parseTime=false", "parseTime", "true"))
}

func TestConnectSQLite(t *testing.T) {
	db, err := Connect("sqlite://file:connect?mode=memory&cache=shared", nil)
	require.NoError(t, err)
	require.NoError(t, NewGormRepository(db).Migrate(context.Background()))

	_, err = ConnectMySQL(" ", nil)
	assert.Error(t, err)
}
