package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

// Error kinds recorded on tasks in addition to the adapter error kinds.
const (
	kindTimeout          = "timeout"
	kindStoreUnavailable = "store_unavailable"
	kindCancelled        = "cancelled"
)

type eventKind int

const (
	eventStarted eventKind = iota
	eventFinished
)

// event is what attempt goroutines report to the coordinator.
type event struct {
	kind    eventKind
	taskID  string
	attempt *attempt
	err     error
	// storeErr is set when the adapter succeeded but evidence could not be
	// persisted.
	storeErr error
	merged   int
	skipped  int
}

type taskRun struct {
	task    osint.Task
	ref     agentcore.AdapterRef
	timeout time.Duration
	attempt *attempt
	retry   *time.Timer
	// unsaved is set while the latest state has not reached the repository.
	unsaved bool
}

// run is the coordinator state of one investigation. Only the loop
// goroutine mutates inv and tasks; readers take mu.
type run struct {
	c   *Controller
	id  string
	mu  sync.RWMutex
	inv osint.Investigation

	tasks map[string]*taskRun
	order []*taskRun

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	events   chan event
	retries  chan string
	cancelCh chan struct{}
	done     chan struct{}

	closing      bool
	closingState osint.TaskState
	storeErr     error
}

func (c *Controller) newRun(parent context.Context, inv osint.Investigation, refs []agentcore.AdapterRef) *run {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	r := &run{
		c:        c,
		id:       inv.ID,
		inv:      inv.Clone(),
		tasks:    make(map[string]*taskRun, len(refs)),
		parent:   parent,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan event, 2*len(refs)),
		retries:  make(chan string, len(refs)),
		cancelCh: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	now := c.now()
	for _, ref := range refs {
		tr := &taskRun{
			task: osint.Task{
				ID:              c.newID(),
				InvestigationID: inv.ID,
				Adapter:         ref.Name(),
				Category:        ref.Capability.Category,
				State:           osint.TaskQueued,
				MaxAttempts:     c.cfg.MaxAttempts,
				CreatedAt:       now,
			},
			ref:     ref,
			timeout: c.cfg.taskTimeout(ref.Name(), ref.Capability.MaxDuration),
		}
		r.tasks[tr.task.ID] = tr
		r.order = append(r.order, tr)
	}
	return r
}

func (r *run) begin() {
	r.mu.Lock()
	r.inv.Status = osint.InvestigationRunning
	r.inv.StartedAt = r.c.now()
	r.mu.Unlock()
	r.saveInvestigation()

	r.c.tracer.Record(r.id, tracing.EventInvestigationStarted, map[string]any{
		"target":   r.inv.Target.String(),
		"tasks":    len(r.order),
		"deadline": r.inv.Deadline.UTC().Format(time.RFC3339),
	})
	for _, tr := range r.order {
		r.saveTask(tr)
		r.c.tracer.Record(r.id, tracing.EventTaskCreated, map[string]any{
			"task":    tr.task.ID,
			"adapter": tr.task.Adapter,
			"timeout": tr.timeout.String(),
		})
	}
}

func (r *run) requestCancel() {
	select {
	case r.cancelCh <- struct{}{}:
	default:
	}
}

func (r *run) snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{Investigation: r.inv.Clone(), Tasks: make([]osint.Task, 0, len(r.order))}
	for _, tr := range r.order {
		snap.Tasks = append(snap.Tasks, tr.task)
	}
	return snap
}

func (r *run) send(ev event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *run) loop() {
	defer r.finish()

	for _, tr := range r.order {
		r.launch(tr)
	}

	deadline := time.NewTimer(time.Until(r.inv.Deadline))
	defer deadline.Stop()

	for !r.allTerminal() {
		select {
		case ev := <-r.events:
			r.handle(ev)
		case taskID := <-r.retries:
			r.resubmit(taskID)
		case <-deadline.C:
			r.drainEvents()
			if r.allTerminal() {
				return
			}
			r.expire()
			return
		case <-r.cancelCh:
			r.abort("cancelled by operator")
			return
		case <-r.parent.Done():
			r.abort("shutdown")
			return
		}
	}
	r.complete()
}

// launch starts a new attempt for the task; it waits for a worker slot in
// its own goroutine.
func (r *run) launch(tr *taskRun) {
	a := newAttempt(r.ctx, tr.task.Attempts+1)
	tr.attempt = a
	j := job{
		investigationID: r.id,
		taskID:          tr.task.ID,
		target:          r.inv.Target,
		deadline:        r.inv.Deadline,
		ref:             tr.ref,
		timeout:         tr.timeout,
	}
	r.c.wg.Add(1)
	go func() {
		defer r.c.wg.Done()
		r.c.work(r, j, a)
	}()
}

func (r *run) handle(ev event) {
	tr, ok := r.tasks[ev.taskID]
	if !ok || tr.attempt != ev.attempt || tr.task.State.IsTerminal() {
		return
	}

	switch ev.kind {
	case eventStarted:
		r.transition(tr, osint.TaskDispatched, nil, "")
		r.c.tracer.Record(r.id, tracing.EventAttemptStarted, map[string]any{
			"task":    tr.task.ID,
			"adapter": tr.task.Adapter,
			"attempt": tr.task.Attempts,
		})
	case eventFinished:
		tr.attempt = nil
		r.finished(tr, ev)
	}
}

func (r *run) finished(tr *taskRun, ev event) {
	detail := map[string]any{
		"task":    tr.task.ID,
		"adapter": tr.task.Adapter,
		"attempt": tr.task.Attempts,
	}
	if ev.err != nil {
		detail["error"] = ev.err.Error()
	}
	if ev.err == nil {
		detail["merged"] = ev.merged
		detail["skipped"] = ev.skipped
	}
	r.c.tracer.Record(r.id, tracing.EventAttemptFinished, detail)

	// Attempts that were running when the task was still queued in the
	// coordinator's view (started event not yet processed) enter dispatched
	// first so the state machine stays intact.
	if tr.task.State != osint.TaskDispatched {
		r.transition(tr, osint.TaskDispatched, nil, "")
	}

	switch {
	case ev.storeErr != nil:
		r.storeErr = ev.storeErr
		r.transition(tr, osint.TaskFailed, ev.storeErr, kindStoreUnavailable)
		r.c.tracer.Record(r.id, tracing.EventStoreUnavailable, map[string]any{
			"task":  tr.task.ID,
			"error": ev.storeErr.Error(),
		})
	case ev.err == nil:
		r.transition(tr, osint.TaskSucceeded, nil, "")
	case errors.Is(ev.err, errAttemptTimeout):
		r.retryOr(tr, ev.err, kindTimeout, osint.TaskTimedOut, 0)
	default:
		classified := agentcore.Classify(tr.task.Adapter, ev.err)
		switch classified.Kind {
		case agentcore.ErrorPermanent:
			r.transition(tr, osint.TaskFailed, classified, string(classified.Kind))
		case agentcore.ErrorRateLimited:
			r.retryOr(tr, classified, string(classified.Kind), osint.TaskFailed, classified.RetryAfter)
		default:
			r.retryOr(tr, classified, string(classified.Kind), osint.TaskFailed, 0)
		}
	}
}

// retryOr schedules another attempt when attempts remain and the
// investigation is not shutting down; otherwise the task ends in final.
func (r *run) retryOr(tr *taskRun, err error, kind string, final osint.TaskState, hint time.Duration) {
	if r.closing {
		r.transition(tr, r.closingState, err, kind)
		return
	}
	if tr.task.Attempts >= tr.task.MaxAttempts {
		r.transition(tr, final, err, kind)
		return
	}

	delay := r.c.backoff.RetryDelay(tr.task.Attempts, hint)
	r.transition(tr, osint.TaskRetrying, err, kind)
	r.c.logger.Debug("task retry scheduled",
		zap.String("investigation", r.id),
		zap.String("task", tr.task.ID),
		zap.String("adapter", tr.task.Adapter),
		zap.Int("attempt", tr.task.Attempts),
		zap.Duration("delay", delay),
		zap.Error(err))

	taskID := tr.task.ID
	tr.retry = time.AfterFunc(delay, func() {
		select {
		case r.retries <- taskID:
		case <-r.done:
		}
	})
}

func (r *run) resubmit(taskID string) {
	tr, ok := r.tasks[taskID]
	if !ok || r.closing || tr.task.State != osint.TaskRetrying {
		return
	}
	tr.retry = nil
	r.launch(tr)
}

func (r *run) transition(tr *taskRun, to osint.TaskState, cause error, kind string) {
	from := tr.task.State
	r.mu.Lock()
	err := tr.task.Transition(to, r.c.now())
	if err == nil {
		switch {
		case cause != nil:
			tr.task.Error = cause.Error()
			tr.task.ErrorKind = kind
		case to == osint.TaskSucceeded:
			tr.task.Error = ""
			tr.task.ErrorKind = ""
		}
	}
	r.mu.Unlock()

	if err != nil {
		r.c.logger.Error("illegal task transition",
			zap.String("investigation", r.id),
			zap.String("task", tr.task.ID),
			zap.Error(err))
		return
	}

	r.saveTask(tr)
	detail := map[string]any{
		"task":    tr.task.ID,
		"adapter": tr.task.Adapter,
		"from":    string(from),
		"to":      string(to),
		"attempt": tr.task.Attempts,
	}
	if cause != nil {
		detail["error"] = cause.Error()
		detail["errorKind"] = kind
	}
	r.c.tracer.Record(r.id, tracing.EventTaskState, detail)
}

func (r *run) allTerminal() bool {
	for _, tr := range r.order {
		if !tr.task.State.IsTerminal() {
			return false
		}
	}
	return true
}

func (r *run) drainEvents() {
	for {
		select {
		case ev := <-r.events:
			r.handle(ev)
		default:
			return
		}
	}
}

// stop halts new work, abandons attempts that have not begun committing and
// waits for the ones that have. Remaining tasks end in the state chosen by
// terminal.
func (r *run) stop(state osint.TaskState, reason string, terminal func(osint.TaskState) osint.TaskState) {
	r.closing = true
	r.closingState = state

	committing := map[*attempt]struct{}{}
	for _, tr := range r.order {
		if tr.retry != nil {
			tr.retry.Stop()
			tr.retry = nil
		}
		if tr.task.State.IsTerminal() || tr.attempt == nil {
			continue
		}
		if tr.attempt.abandon() {
			tr.attempt = nil
			continue
		}
		committing[tr.attempt] = struct{}{}
	}

	for len(committing) > 0 {
		ev := <-r.events
		if ev.kind == eventFinished {
			delete(committing, ev.attempt)
		}
		r.handle(ev)
	}

	cause := errors.New(reason)
	for _, tr := range r.order {
		if tr.task.State.IsTerminal() {
			continue
		}
		r.transition(tr, terminal(tr.task.State), cause, kindCancelled)
	}
}

func (r *run) expire() {
	r.c.tracer.Record(r.id, tracing.EventDeadlineExceeded, map[string]any{
		"deadline": r.inv.Deadline.UTC().Format(time.RFC3339),
	})
	r.stop(osint.TaskTimedOut, "investigation deadline exceeded", func(s osint.TaskState) osint.TaskState {
		if s == osint.TaskDispatched {
			return osint.TaskTimedOut
		}
		return osint.TaskCancelled
	})

	r.mu.Lock()
	r.inv.DeadlineExceeded = true
	r.inv.Error = osint.ErrDeadlineExceeded.Error()
	r.mu.Unlock()
	r.settle(osint.InvestigationCompleted)
}

func (r *run) abort(reason string) {
	r.c.tracer.Record(r.id, tracing.EventInvestigationCancelled, map[string]any{"reason": reason})
	r.stop(osint.TaskCancelled, reason, func(osint.TaskState) osint.TaskState {
		return osint.TaskCancelled
	})

	r.mu.Lock()
	r.inv.Status = osint.InvestigationCancelled
	r.inv.Error = reason
	r.mu.Unlock()
}

func (r *run) complete() {
	r.settle(osint.InvestigationCompleted)
}

// settle picks completed or failed depending on whether any task succeeded.
func (r *run) settle(status osint.InvestigationStatus) {
	succeeded := false
	for _, tr := range r.order {
		if tr.task.State == osint.TaskSucceeded {
			succeeded = true
			break
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !succeeded {
		status = osint.InvestigationFailed
		if r.inv.Error == "" {
			r.inv.Error = "no task succeeded"
		}
	}
	if r.storeErr != nil {
		r.inv.Error = r.storeErr.Error()
	}
	r.inv.Status = status
}

func (r *run) finish() {
	flushed := r.flushTasks()
	r.mu.Lock()
	if !flushed && r.inv.Status != osint.InvestigationCancelled {
		r.inv.Status = osint.InvestigationFailed
		r.inv.Error = r.storeErr.Error()
	}
	r.inv.CompletedAt = r.c.now()
	inv := r.inv.Clone()
	r.mu.Unlock()

	r.saveInvestigation()
	counts := map[string]int{}
	for _, tr := range r.order {
		counts[string(tr.task.State)]++
	}
	r.c.tracer.Record(r.id, tracing.EventInvestigationFinished, map[string]any{
		"status":           string(inv.Status),
		"deadlineExceeded": inv.DeadlineExceeded,
		"tasks":            counts,
	})
	r.c.logger.Info("investigation finished",
		zap.String("investigation", r.id),
		zap.String("status", string(inv.Status)),
		zap.Bool("deadlineExceeded", inv.DeadlineExceeded))

	r.c.forget(r.id)
	r.cancel()
	close(r.done)
}

// saveTask persists the task's current state. A failed write is a store
// failure for the investigation: the task stays marked unsaved until a later
// write succeeds.
func (r *run) saveTask(tr *taskRun) {
	if r.c.repo == nil {
		return
	}
	r.mu.RLock()
	task := tr.task
	r.mu.RUnlock()
	if err := r.c.repo.SaveTask(r.ctx, task); err != nil {
		tr.unsaved = true
		if r.storeErr == nil {
			r.storeErr = fmt.Errorf("%w: save task %s: %w", osint.ErrStoreUnavailable, task.ID, err)
		}
		r.c.logger.Warn("persist task failed",
			zap.String("investigation", r.id),
			zap.String("task", task.ID),
			zap.Error(err))
		r.c.tracer.Record(r.id, tracing.EventStoreUnavailable, map[string]any{"task": task.ID, "error": err.Error()})
		return
	}
	tr.unsaved = false
}

// flushTasks retries every unsaved task once and reports whether all task
// rows now match the coordinator's view.
func (r *run) flushTasks() bool {
	ok := true
	for _, tr := range r.order {
		if !tr.unsaved {
			continue
		}
		r.saveTask(tr)
		ok = ok && !tr.unsaved
	}
	return ok
}

func (r *run) saveInvestigation() {
	if r.c.repo == nil {
		return
	}
	r.mu.RLock()
	inv := r.inv.Clone()
	r.mu.RUnlock()
	if err := r.c.repo.SaveInvestigation(r.ctx, inv); err != nil {
		r.c.logger.Warn("persist investigation failed", zap.String("investigation", r.id), zap.Error(err))
		r.c.tracer.Record(r.id, tracing.EventStoreUnavailable, map[string]any{"error": err.Error()})
	}
}
