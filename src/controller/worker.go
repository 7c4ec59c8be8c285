package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

var errAttemptTimeout = errors.New("controller: attempt timed out")

const (
	attemptWaiting int32 = iota
	attemptRunning
	attemptCommitting
	attemptAbandoned
)

// attempt is one invocation of an adapter for a task. Its state moves
// waiting -> running -> committing, or to abandoned from waiting/running.
// Only the goroutine that wins running -> committing may merge evidence and
// report a result; once abandoned, any result is discarded.
type attempt struct {
	n      int
	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
}

func newAttempt(parent context.Context, n int) *attempt {
	ctx, cancel := context.WithCancel(parent)
	return &attempt{n: n, ctx: ctx, cancel: cancel}
}

// abandon reports whether the attempt is (now) abandoned. It fails only when
// the attempt is already committing.
func (a *attempt) abandon() bool {
	for {
		switch s := a.state.Load(); s {
		case attemptWaiting, attemptRunning:
			if a.state.CompareAndSwap(s, attemptAbandoned) {
				a.cancel()
				return true
			}
		case attemptAbandoned:
			return true
		default:
			return false
		}
	}
}

type job struct {
	investigationID string
	taskID          string
	target          osint.Target
	deadline        time.Time
	ref             agentcore.AdapterRef
	timeout         time.Duration
}

type callResult struct {
	raws []osint.RawFinding
	err  error
}

// work runs one attempt: wait for a pool slot, call the adapter, then claim
// the right to commit and merge the evidence before reporting.
func (c *Controller) work(r *run, j job, a *attempt) {
	defer a.cancel()

	if err := c.sem.Acquire(a.ctx, 1); err != nil {
		return
	}
	if !a.state.CompareAndSwap(attemptWaiting, attemptRunning) {
		c.sem.Release(1)
		return
	}
	r.send(event{kind: eventStarted, taskID: j.taskID, attempt: a})

	raws, err := c.invoke(a.ctx, j, a.n)
	c.sem.Release(1)

	if !a.state.CompareAndSwap(attemptRunning, attemptCommitting) {
		c.tracer.Record(j.investigationID, tracing.EventLateResultDiscarded, map[string]any{
			"task":     j.taskID,
			"adapter":  j.ref.Name(),
			"attempt":  a.n,
			"findings": len(raws),
		})
		return
	}

	ev := event{kind: eventFinished, taskID: j.taskID, attempt: a, err: err}
	if err == nil && len(raws) > 0 && c.evidence != nil {
		merged, skipped, mergeErr := c.evidence.MergeAll(r.ctx, j.investigationID, raws)
		ev.merged = len(merged)
		ev.skipped = skipped
		if mergeErr != nil {
			ev.storeErr = mergeErr
		}
	}
	r.send(ev)
}

// invoke calls the adapter under the task timeout. An adapter that keeps
// running after its context ends is given GracePeriod to return, then
// abandoned.
func (c *Controller) invoke(ctx context.Context, j job, n int) ([]osint.RawFinding, error) {
	callCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	results := make(chan callResult, 1)
	c.calls.Add(1)
	go func() {
		defer c.calls.Done()
		defer func() {
			if p := recover(); p != nil {
				results <- callResult{err: agentcore.Permanent(j.ref.Name(), fmt.Errorf("adapter panic: %v", p))}
			}
		}()
		raws, err := j.ref.Adapter.Collect(callCtx, j.target, agentcore.Options{
			TaskID:   j.taskID,
			Attempt:  n,
			Deadline: j.deadline,
		})
		results <- callResult{raws: raws, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil && callCtx.Err() != nil {
			return nil, fmt.Errorf("%w after %s: %w", errAttemptTimeout, j.timeout, res.err)
		}
		return res.raws, res.err
	case <-callCtx.Done():
	}

	grace := time.NewTimer(c.cfg.GracePeriod)
	defer grace.Stop()
	select {
	case <-results:
	case <-grace.C:
		c.logger.Warn("adapter ignored cancellation, abandoning call",
			zap.String("investigation", j.investigationID),
			zap.String("task", j.taskID),
			zap.String("adapter", j.ref.Name()),
			zap.Duration("grace", c.cfg.GracePeriod))
	}
	return nil, fmt.Errorf("%w after %s", errAttemptTimeout, j.timeout)
}
