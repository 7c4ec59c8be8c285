package osint

import (
	"fmt"
	"time"
)

// TaskState is a node in the task state machine.
type TaskState string

const (
	TaskQueued     TaskState = "queued"
	TaskDispatched TaskState = "dispatched"
	TaskRetrying   TaskState = "retrying"
	TaskSucceeded  TaskState = "succeeded"
	TaskFailed     TaskState = "failed"
	TaskTimedOut   TaskState = "timed_out"
	TaskCancelled  TaskState = "cancelled"
)

// TaskStates lists every state in lifecycle order.
var TaskStates = []TaskState{
	TaskQueued, TaskDispatched, TaskRetrying,
	TaskSucceeded, TaskFailed, TaskTimedOut, TaskCancelled,
}

// IsTerminal reports whether no further transitions are allowed.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskTimedOut, TaskCancelled:
		return true
	}
	return false
}

var taskTransitions = map[TaskState][]TaskState{
	TaskQueued:     {TaskDispatched, TaskCancelled},
	TaskDispatched: {TaskSucceeded, TaskRetrying, TaskFailed, TaskTimedOut, TaskCancelled},
	TaskRetrying:   {TaskDispatched, TaskCancelled},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to TaskState) bool {
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task is one scheduled invocation of one adapter within an investigation.
type Task struct {
	ID                   string    `json:"id"`
	InvestigationID      string    `json:"investigationId"`
	Adapter              string    `json:"adapter"`
	Category             Category  `json:"category"`
	State                TaskState `json:"state"`
	Attempts             int       `json:"attempts"`
	MaxAttempts          int       `json:"maxAttempts"`
	CreatedAt            time.Time `json:"createdAt"`
	LastAttemptStartedAt time.Time `json:"lastAttemptStartedAt,omitempty"`
	LastAttemptEndedAt   time.Time `json:"lastAttemptEndedAt,omitempty"`
	CompletedAt          time.Time `json:"completedAt,omitempty"`
	Error                string    `json:"error,omitempty"`
	ErrorKind            string    `json:"errorKind,omitempty"`
}

// Transition moves the task to the next state, stamping timestamps.
// Dispatching counts as a new attempt.
func (t *Task) Transition(to TaskState, at time.Time) error {
	if !CanTransition(t.State, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrIllegalTransition, t.ID, t.State, to)
	}
	switch to {
	case TaskDispatched:
		t.Attempts++
		t.LastAttemptStartedAt = at
	case TaskRetrying:
		t.LastAttemptEndedAt = at
	default:
		if t.State == TaskDispatched {
			t.LastAttemptEndedAt = at
		}
		t.CompletedAt = at
	}
	t.State = to
	return nil
}
