// Package controller runs investigations: it turns resolved adapters into
// tasks, dispatches them on a shared worker pool, retries, enforces deadlines
// and cancellation, and drives every task to a terminal state.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

// Evidence is the part of the evidence store the controller writes to.
type Evidence interface {
	MergeAll(ctx context.Context, investigationID string, raws []osint.RawFinding) ([]osint.Finding, int, error)
}

// Repository persists investigation and task state changes.
type Repository interface {
	SaveInvestigation(ctx context.Context, inv osint.Investigation) error
	SaveTask(ctx context.Context, task osint.Task) error
}

// Options wires the controller's collaborators.
type Options struct {
	Evidence   Evidence
	Repository Repository
	Tracer     tracing.Recorder
	Logger     *zap.Logger
	Now        func() time.Time
	NewID      func() string
	Rand       func() float64
}

// Controller owns the shared worker pool and the running investigations.
type Controller struct {
	cfg     Config
	backoff Backoff
	sem     *semaphore.Weighted

	evidence Evidence
	repo     Repository
	tracer   tracing.Recorder
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	// wg tracks coordinators and attempts; calls tracks adapter invocations,
	// which may outlive their attempt when an adapter ignores cancellation.
	wg    sync.WaitGroup
	calls sync.WaitGroup
}

// New constructs a controller.
func New(cfg Config, opts Options) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:      cfg,
		backoff:  Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay, Jitter: cfg.Jitter, Rand: opts.Rand},
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		evidence: opts.Evidence,
		repo:     opts.Repository,
		tracer:   opts.Tracer,
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
		runs:     map[string]*run{},
	}
	if c.tracer == nil {
		c.tracer = tracing.Nop{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("controller")
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// Start creates one task per adapter and begins running the investigation.
// ctx bounds the investigation's lifetime: cancelling it cancels the
// investigation.
func (c *Controller) Start(ctx context.Context, inv osint.Investigation, refs []agentcore.AdapterRef) (*Handle, error) {
	if inv.ID == "" {
		return nil, fmt.Errorf("controller: investigation id is required")
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no adapters for %s", osint.ErrUnsupportedTarget, inv.Target)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("controller: closed")
	}
	if _, exists := c.runs[inv.ID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", osint.ErrDuplicateInvestigation, inv.ID)
	}
	r := c.newRun(ctx, inv, refs)
	c.runs[inv.ID] = r
	c.wg.Add(1)
	c.mu.Unlock()

	r.begin()
	go func() {
		defer c.wg.Done()
		r.loop()
	}()
	return &Handle{run: r}, nil
}

// Cancel asks a running investigation to stop. Cancelling a finished or
// unknown investigation returns osint.ErrNotFound.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	r, ok := c.runs[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no running investigation %s", osint.ErrNotFound, id)
	}
	r.requestCancel()
	return nil
}

// Lookup returns the handle of a running investigation.
func (c *Controller) Lookup(id string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runs[id]
	if !ok {
		return nil, false
	}
	return &Handle{run: r}, true
}

// Running returns the number of investigations in flight.
func (c *Controller) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.runs)
}

// Close cancels every running investigation and waits for coordinators and
// attempts to exit. Attempts give up on an unresponsive adapter after
// GracePeriod, so Close is bounded; the abandoned calls themselves are only
// awaited by Drain.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	runs := make([]*run, 0, len(c.runs))
	for _, r := range c.runs {
		runs = append(runs, r)
	}
	c.mu.Unlock()

	for _, r := range runs {
		r.requestCancel()
	}
	c.wg.Wait()
}

// Drain waits until every abandoned adapter call has returned or ctx ends.
func (c *Controller) Drain(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		c.calls.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) forget(id string) {
	c.mu.Lock()
	delete(c.runs, id)
	c.mu.Unlock()
}

// Snapshot is a consistent copy of an investigation and its tasks.
type Snapshot struct {
	Investigation osint.Investigation
	Tasks         []osint.Task
}

// Handle observes one investigation.
type Handle struct {
	run *run
}

// ID returns the investigation id.
func (h *Handle) ID() string { return h.run.id }

// Done is closed once the investigation and all its tasks are terminal.
func (h *Handle) Done() <-chan struct{} { return h.run.done }

// Snapshot returns the current state.
func (h *Handle) Snapshot() Snapshot { return h.run.snapshot() }

// Wait blocks until the investigation is terminal or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-h.run.done:
		return h.run.snapshot(), nil
	case <-ctx.Done():
		return h.run.snapshot(), ctx.Err()
	}
}
