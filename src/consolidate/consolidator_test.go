package consolidate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/osintops/src/data"
	"github.com/stake-plus/osintops/src/data/datatest"
	"github.com/stake-plus/osintops/src/evidence"
	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func finding(category osint.FindingCategory, value string, confidence float64, first time.Time, sources ...string) osint.Finding {
	return osint.Finding{
		InvestigationID: "inv",
		Fingerprint:     evidence.Fingerprint(category, value),
		Category:        category,
		Value:           value,
		Sources:         sources,
		Confidence:      confidence,
		FirstSeen:       first,
		LastSeen:        first,
	}
}

func seed(t *testing.T, repo data.Repository, inv osint.Investigation, tasks []osint.Task, findings []osint.Finding) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.SaveInvestigation(ctx, inv))
	for _, task := range tasks {
		require.NoError(t, repo.SaveTask(ctx, task))
	}
	for _, f := range findings {
		require.NoError(t, repo.SaveFinding(ctx, f))
	}
}

func completed() osint.Investigation {
	return osint.Investigation{
		ID:        "inv",
		Target:    osint.Target{Type: osint.TargetDomain, Value: "example.com"},
		Status:    osint.InvestigationCompleted,
		CreatedAt: t0,
		Deadline:  t0.Add(time.Hour),
	}
}

func tasks(states ...osint.TaskState) []osint.Task {
	out := make([]osint.Task, 0, len(states))
	for i, s := range states {
		out = append(out, osint.Task{ID: string(rune('a' + i)), InvestigationID: "inv", Adapter: string(rune('a' + i)), State: s})
	}
	return out
}

func sampleFindings() []osint.Finding {
	return []osint.Finding{
		finding(osint.FindingSubdomain, "www.example.com", 0.92, t0, "amass", "search"),
		finding(osint.FindingSubdomain, "mail.example.com", 0.6, t0.Add(time.Second), "amass"),
		finding(osint.FindingSubdomain, "dev.example.com", 0.6, t0, "amass"),
		finding(osint.FindingURL, "https://www.example.com/about", 0.5, t0, "search"),
	}
}

func TestConsolidateGroupsAndRanks(t *testing.T) {
	repo := data.NewMemRepository()
	seed(t, repo, completed(), tasks(osint.TaskSucceeded, osint.TaskSucceeded), sampleFindings())
	tr := tracing.New(tracing.Options{})
	c := New(Options{Repository: repo, Tracer: tr})

	report, err := c.Consolidate(context.Background(), "inv")
	require.NoError(t, err)

	require.Len(t, report.Groups, 2)
	subs := report.Groups[0]
	assert.Equal(t, osint.FindingSubdomain, subs.Category)
	require.Len(t, subs.Entries, 3)
	assert.Equal(t, "www.example.com", subs.Entries[0].Finding.Value)
	assert.Equal(t, "dev.example.com", subs.Entries[1].Finding.Value)
	assert.Equal(t, "mail.example.com", subs.Entries[2].Finding.Value)

	www := subs.Entries[0]
	assert.True(t, www.Corroborated)
	url := report.Groups[1].Entries[0]
	assert.True(t, url.Corroborated)
	assert.Equal(t, []string{www.Finding.Fingerprint}, url.CrossReferences)
	assert.Equal(t, []string{url.Finding.Fingerprint}, www.CrossReferences)
	assert.False(t, subs.Entries[1].Corroborated)

	assert.Equal(t, 4, report.Summary.TotalFindings)
	assert.Equal(t, 3, report.Summary.ByCategory[osint.FindingSubdomain])
	assert.Equal(t, 2, report.Summary.Corroborated)
	assert.Equal(t, 2, report.Summary.Tasks[osint.TaskSucceeded])
	assert.False(t, report.Partial)
	assert.NotEmpty(t, report.Digest)

	stored, err := repo.GetReport(context.Background(), "inv")
	require.NoError(t, err)
	assert.Equal(t, report.ID, stored.ID)

	events := tr.Events("inv", 0)
	require.Len(t, events, 1)
	assert.Equal(t, tracing.EventReportGenerated, events[0].Kind)
}

func TestConsolidateIsDeterministic(t *testing.T) {
	repo := data.NewMemRepository()
	seed(t, repo, completed(), tasks(osint.TaskSucceeded, osint.TaskFailed), sampleFindings())
	c := New(Options{Repository: repo})

	first, err := c.Consolidate(context.Background(), "inv")
	require.NoError(t, err)
	second, err := c.Consolidate(context.Background(), "inv")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Digest, second.Digest)
	if diff := cmp.Diff(first.Groups, second.Groups); diff != "" {
		t.Fatalf("groups differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Summary, second.Summary); diff != "" {
		t.Fatalf("summary differs (-first +second):\n%s", diff)
	}

	reversed := sampleFindings()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	rebuilt := Build(completed(), tasks(osint.TaskSucceeded, osint.TaskFailed), reversed)
	assert.Equal(t, first.Digest, rebuilt.Digest)
}

func TestConsolidateRejectsNonTerminal(t *testing.T) {
	repo := data.NewMemRepository()
	running := completed()
	running.Status = osint.InvestigationRunning
	seed(t, repo, running, tasks(osint.TaskDispatched), nil)
	c := New(Options{Repository: repo})

	_, err := c.Consolidate(context.Background(), "inv")
	assert.ErrorIs(t, err, osint.ErrInvestigationNotTerminal)

	repo2 := data.NewMemRepository()
	seed(t, repo2, completed(), tasks(osint.TaskSucceeded, osint.TaskRetrying), nil)
	_, err = New(Options{Repository: repo2}).Consolidate(context.Background(), "inv")
	assert.ErrorIs(t, err, osint.ErrInvestigationNotTerminal)

	_, err = c.Consolidate(context.Background(), "missing")
	assert.ErrorIs(t, err, osint.ErrNotFound)
}

func TestPartialFlags(t *testing.T) {
	inv := completed()
	assert.True(t, Build(inv, tasks(osint.TaskSucceeded, osint.TaskTimedOut), nil).Partial)

	inv.DeadlineExceeded = true
	report := Build(inv, tasks(osint.TaskSucceeded), nil)
	assert.True(t, report.Partial)
	assert.True(t, report.DeadlineExceeded)

	cancelled := completed()
	cancelled.Status = osint.InvestigationCancelled
	assert.True(t, Build(cancelled, nil, nil).Partial)

	assert.False(t, Build(completed(), tasks(osint.TaskSucceeded), nil).Partial)
}

func TestConsolidateStoreFailure(t *testing.T) {
	flaky := datatest.NewFlaky(data.NewMemRepository())
	seed(t, flaky, completed(), tasks(osint.TaskSucceeded), sampleFindings())
	flaky.FailReports(errors.New("disk full"))

	_, err := New(Options{Repository: flaky}).Consolidate(context.Background(), "inv")
	assert.ErrorIs(t, err, osint.ErrStoreUnavailable)
}

func TestRenderMarkdown(t *testing.T) {
	report := Build(completed(), tasks(osint.TaskSucceeded, osint.TaskTimedOut), sampleFindings())
	out := RenderMarkdown(report, 0)

	assert.Contains(t, out, "## OSINT report: domain:example.com")
	assert.Contains(t, out, "completed (partial)")
	assert.Contains(t, out, "### subdomain (3)")
	assert.Contains(t, out, "`www.example.com` 0.92 [amass, search] **corroborated**")
	assert.Contains(t, out, "succeeded 1, timed_out 1")

	short := RenderMarkdown(report, 200)
	assert.LessOrEqual(t, len(short), 200)
	assert.True(t, strings.HasSuffix(short, truncatedSuffix))

	empty := RenderMarkdown(Build(completed(), nil, nil), 0)
	assert.Contains(t, empty, "_No findings._")
}
