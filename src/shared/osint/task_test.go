package osint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskTransitionHappyPath(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	task := &Task{ID: "t1", State: TaskQueued}

	require.NoError(t, task.Transition(TaskDispatched, now))
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, now, task.LastAttemptStartedAt)

	require.NoError(t, task.Transition(TaskRetrying, now.Add(time.Second)))
	require.NoError(t, task.Transition(TaskDispatched, now.Add(2*time.Second)))
	assert.Equal(t, 2, task.Attempts)

	require.NoError(t, task.Transition(TaskSucceeded, now.Add(3*time.Second)))
	assert.Equal(t, now.Add(3*time.Second), task.CompletedAt)
	assert.Equal(t, now.Add(3*time.Second), task.LastAttemptEndedAt)
}

func TestTaskTerminalStatesAreFinal(t *testing.T) {
	for _, terminal := range []TaskState{TaskSucceeded, TaskFailed, TaskTimedOut, TaskCancelled} {
		for _, next := range TaskStates {
			task := &Task{ID: "t", State: terminal}
			err := task.Transition(next, time.Now())
			assert.ErrorIs(t, err, ErrIllegalTransition, "%s -> %s", terminal, next)
			assert.Equal(t, terminal, task.State)
		}
	}
}

func TestTaskNoBackwardTransitions(t *testing.T) {
	assert.False(t, CanTransition(TaskDispatched, TaskQueued))
	assert.False(t, CanTransition(TaskRetrying, TaskQueued))
	assert.False(t, CanTransition(TaskQueued, TaskSucceeded))
	assert.False(t, CanTransition(TaskQueued, TaskRetrying))
	assert.True(t, CanTransition(TaskRetrying, TaskDispatched))
	assert.True(t, CanTransition(TaskQueued, TaskCancelled))
}
