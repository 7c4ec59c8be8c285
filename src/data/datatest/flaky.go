// Package datatest provides repository wrappers for failure-path tests.
package datatest

import (
	"context"
	"sync"

	"github.com/stake-plus/osintops/src/data"
	"github.com/stake-plus/osintops/src/shared/osint"
)

// Flaky wraps a repository and fails selected writes on demand.
type Flaky struct {
	data.Repository

	mu          sync.Mutex
	findingErr  error
	taskErr     error
	reportErr   error
	failAfter   int
	findingSave int
}

// NewFlaky wraps repo.
func NewFlaky(repo data.Repository) *Flaky {
	return &Flaky{Repository: repo}
}

// FailFindings makes SaveFinding return err. When after > 0 the first after
// saves still succeed.
func (f *Flaky) FailFindings(err error, after int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findingErr = err
	f.failAfter = after
	f.findingSave = 0
}

// FailTasks makes SaveTask return err.
func (f *Flaky) FailTasks(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskErr = err
}

// FailReports makes SaveReport return err.
func (f *Flaky) FailReports(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reportErr = err
}

// Heal clears every injected failure.
func (f *Flaky) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findingErr, f.taskErr, f.reportErr = nil, nil, nil
}

func (f *Flaky) SaveFinding(ctx context.Context, finding osint.Finding) error {
	f.mu.Lock()
	err := f.findingErr
	if err != nil && f.findingSave < f.failAfter {
		err = nil
	}
	f.findingSave++
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Repository.SaveFinding(ctx, finding)
}

func (f *Flaky) SaveTask(ctx context.Context, task osint.Task) error {
	f.mu.Lock()
	err := f.taskErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Repository.SaveTask(ctx, task)
}

func (f *Flaky) SaveReport(ctx context.Context, report osint.Report) error {
	f.mu.Lock()
	err := f.reportErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Repository.SaveReport(ctx, report)
}
