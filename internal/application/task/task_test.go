package task_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-device-stream/internal/application/task"
	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
)

func TestProducer_LifecycleEmitsThreeBroadcasts(t *testing.T) {
	sender := &fakeSender{}
	p := task.NewProducer(sender, logger.Nop())
	ctx := context.Background()

	taskID, err := p.Begin(ctx, "job-1", nil)
	require.NoError(t, err)
	require.Equal(t, "job-1", taskID)

	require.NoError(t, p.Transition(ctx, "job-1", task.StateRunning, nil))
	require.NoError(t, p.Transition(ctx, "job-1", task.StateCompleted, nil))

	events := sender.events(t)
	require.Len(t, events, 3)

	types := []string{events[0].EventType, events[1].EventType, events[2].EventType}
	assert.Equal(t, []string{task.EventStarted, task.EventProgress, task.EventCompleted}, types)
	for _, e := range events {
		assert.Equal(t, "job-1", e.TaskID, "every event carries the task id")
		assert.False(t, e.Timestamp.IsZero())
	}

	// All task events go out as broadcasts under the task category.
	for _, c := range sender.calls() {
		assert.Empty(t, c.target)
		assert.Equal(t, delivery.EventTask, c.event)
		assert.Equal(t, delivery.CategoryTask, c.category)
	}
}

func TestProducer_GeneratesTaskID(t *testing.T) {
	sender := &fakeSender{}
	p := task.NewProducer(sender, logger.Nop())

	taskID, err := p.Begin(context.Background(), "", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	state, ok := p.StateOf(taskID)
	require.True(t, ok)
	assert.Equal(t, task.StatePending, state)
}

func TestProducer_RejectsDuplicateBegin(t *testing.T) {
	sender := &fakeSender{}
	p := task.NewProducer(sender, logger.Nop())
	ctx := context.Background()

	_, err := p.Begin(ctx, "job-1", nil)
	require.NoError(t, err)
	_, err = p.Begin(ctx, "job-1", nil)
	assert.ErrorIs(t, err, task.ErrTaskExists)
}

func TestProducer_TerminalStatesAreFinal(t *testing.T) {
	sender := &fakeSender{}
	p := task.NewProducer(sender, logger.Nop())
	ctx := context.Background()

	_, err := p.Begin(ctx, "job-1", nil)
	require.NoError(t, err)
	require.NoError(t, p.Transition(ctx, "job-1", task.StateRunning, nil))
	require.NoError(t, p.Transition(ctx, "job-1", task.StateFailed, nil))

	emitted := len(sender.calls())

	for _, next := range []task.State{task.StateRunning, task.StateCompleted, task.StateCancelled, task.StatePending} {
		err := p.Transition(ctx, "job-1", next, nil)
		assert.ErrorIs(t, err, task.ErrInvalidTransition, "terminal state must reject %s", next)
	}

	assert.Len(t, sender.calls(), emitted, "rejected transitions must broadcast nothing")
	state, _ := p.StateOf("job-1")
	assert.Equal(t, task.StateFailed, state)
}

func TestProducer_PendingCannotSkipRunning(t *testing.T) {
	sender := &fakeSender{}
	p := task.NewProducer(sender, logger.Nop())
	ctx := context.Background()

	_, err := p.Begin(ctx, "job-1", nil)
	require.NoError(t, err)

	err = p.Transition(ctx, "job-1", task.StateCompleted, nil)
	assert.ErrorIs(t, err, task.ErrInvalidTransition)
}

func TestProducer_UnknownTask(t *testing.T) {
	sender := &fakeSender{}
	p := task.NewProducer(sender, logger.Nop())

	err := p.Transition(context.Background(), "nope", task.StateRunning, nil)
	assert.ErrorIs(t, err, task.ErrUnknownTask)
}

func TestProducer_ProgressOnlyWhileRunning(t *testing.T) {
	sender := &fakeSender{}
	p := task.NewProducer(sender, logger.Nop())
	ctx := context.Background()

	_, err := p.Begin(ctx, "job-1", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Progress(ctx, "job-1", nil), task.ErrInvalidTransition)

	require.NoError(t, p.Transition(ctx, "job-1", task.StateRunning, nil))
	require.NoError(t, p.Progress(ctx, "job-1", map[string]any{"percent": 40}))

	events := sender.events(t)
	last := events[len(events)-1]
	assert.Equal(t, task.EventProgress, last.EventType)
	assert.Equal(t, task.StateRunning, last.State)
}

func TestProducer_ConcurrentTasksBroadcastIndependently(t *testing.T) {
	sender := &fakeSender{}
	p := task.NewProducer(sender, logger.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := []string{"job-a", "job-b", "job-c"}
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Begin(ctx, id, nil)
			require.NoError(t, err)
			require.NoError(t, p.Transition(ctx, id, task.StateRunning, nil))
			require.NoError(t, p.Transition(ctx, id, task.StateCompleted, nil))
		}()
	}
	wg.Wait()

	perTask := make(map[string]int)
	for _, e := range sender.events(t) {
		perTask[e.TaskID]++
	}
	for _, id := range ids {
		assert.Equal(t, 3, perTask[id])
	}
}

// Test doubles

type sentCall struct {
	target   string
	event    string
	category string
	payload  any
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentCall
}

func (f *fakeSender) Send(_ context.Context, target, event, category string, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCall{target: target, event: event, category: category, payload: payload})
	return true
}

func (f *fakeSender) calls() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.sent...)
}

func (f *fakeSender) events(t *testing.T) []task.Event {
	t.Helper()
	calls := f.calls()
	events := make([]task.Event, 0, len(calls))
	for _, c := range calls {
		e, ok := c.payload.(task.Event)
		if !ok {
			t.Fatalf("payload is not a task.Event: %T", c.payload)
		}
		events = append(events, e)
	}
	return events
}
