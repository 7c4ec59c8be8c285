// Package fixture provides scripted adapters for tests and offline demos.
package fixture

import (
	"context"
	"sync"
	"time"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/shared/osint"
)

// Step scripts one invocation of a fixture adapter.
type Step struct {
	Findings []map[string]string
	Err      error
	Delay    time.Duration
	// IgnoreContext makes the call sleep the full Delay even after cancellation,
	// simulating a tool that does not honor its deadline.
	IgnoreContext bool
}

// Succeed returns a step yielding the given attribute sets.
func Succeed(findings ...map[string]string) Step {
	return Step{Findings: findings}
}

// Fail returns a step failing with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Attrs is shorthand for a kind/value attribute set.
func Attrs(kind, value string, extra ...string) map[string]string {
	out := map[string]string{"kind": kind, "value": value}
	for i := 0; i+1 < len(extra); i += 2 {
		out[extra[i]] = extra[i+1]
	}
	return out
}

// Adapter replays its steps in order; the last step repeats once exhausted.
type Adapter struct {
	name string

	mu          sync.Mutex
	steps       []Step
	calls       int
	unavailable string
	observedAt  time.Time
}

// New constructs a scripted adapter.
func New(name string, steps ...Step) *Adapter {
	return &Adapter{name: name, steps: steps}
}

func (a *Adapter) Name() string { return a.name }

// SetUnavailable marks the adapter unavailable with a reason.
func (a *Adapter) SetUnavailable(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unavailable = reason
}

// SetObservedAt pins the ObservedAt stamp of produced findings.
func (a *Adapter) SetObservedAt(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observedAt = at
}

func (a *Adapter) Available() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unavailable != "" {
		return false, a.unavailable
	}
	return true, ""
}

// Calls returns how many times Collect was invoked.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *Adapter) Collect(ctx context.Context, target osint.Target, opts agentcore.Options) ([]osint.RawFinding, error) {
	a.mu.Lock()
	var step Step
	if len(a.steps) > 0 {
		idx := a.calls
		if idx >= len(a.steps) {
			idx = len(a.steps) - 1
		}
		step = a.steps[idx]
	}
	a.calls++
	observedAt := a.observedAt
	a.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		if step.IgnoreContext {
			<-timer.C
		} else {
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, agentcore.Transient(a.name, ctx.Err())
			case <-timer.C:
			}
		}
	}

	if step.Err != nil {
		return nil, step.Err
	}

	out := make([]osint.RawFinding, 0, len(step.Findings))
	for _, attrs := range step.Findings {
		copied := make(map[string]string, len(attrs))
		for k, v := range attrs {
			copied[k] = v
		}
		out = append(out, osint.RawFinding{
			TaskID:     opts.TaskID,
			Adapter:    a.name,
			Attributes: copied,
			ObservedAt: observedAt,
		})
	}
	return out, nil
}

// Schema is the schema fixture adapters declare: kind names the canonical
// category directly.
func Schema() agentcore.Schema {
	kinds := map[string]osint.FindingCategory{}
	for _, c := range []osint.FindingCategory{
		osint.FindingSubdomain, osint.FindingDomain, osint.FindingIPAddress, osint.FindingURL,
		osint.FindingEmail, osint.FindingAccountHandle, osint.FindingPhoneCarrier,
		osint.FindingPhoneLocation, osint.FindingEmailRegistration, osint.FindingOpenPort,
	} {
		kinds[string(c)] = c
	}
	return agentcore.Schema{Kinds: kinds}
}
