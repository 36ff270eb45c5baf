// Package task emits lifecycle events for long-running background work.
// Every accepted transition is broadcast to all connections; consumers filter
// by task_id. Task lifecycle and connection lifecycle are fully decoupled: no
// transition ever touches a connection.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
)

// State is a task lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Event types carried in broadcast task events.
const (
	EventStarted   = "started"
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
)

var (
	// ErrUnknownTask reports a transition for a task that was never begun.
	ErrUnknownTask = errors.New("task: unknown task")

	// ErrTaskExists reports a Begin for an ID already tracked.
	ErrTaskExists = errors.New("task: already exists")

	// ErrInvalidTransition rejects transitions the state machine does not
	// allow, including any transition out of a terminal state.
	ErrInvalidTransition = errors.New("task: invalid transition")
)

// allowed lists the outgoing edges of the state machine. Terminal states have
// none.
var allowed = map[State][]State{
	StatePending: {StateRunning},
	StateRunning: {StateCompleted, StateFailed, StateCancelled},
}

// eventTypeFor maps the state being entered to the broadcast event type.
var eventTypeFor = map[State]string{
	StatePending:   EventStarted,
	StateRunning:   EventProgress,
	StateCompleted: EventCompleted,
	StateFailed:    EventFailed,
	StateCancelled: EventCancelled,
}

// Event is the payload broadcast on each transition. It is transient; nothing
// persists it.
type Event struct {
	TaskID    string    `json:"task_id"`
	EventType string    `json:"event_type"`
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Sender is the slice of the broadcaster this package needs.
type Sender interface {
	Send(ctx context.Context, targetID, eventName, category string, payload any) bool
}

// Producer tracks task states and broadcasts their transitions.
type Producer struct {
	mu    sync.Mutex
	tasks map[string]State

	sender Sender
	logger logger.Logger
}

// NewProducer creates a Producer.
func NewProducer(sender Sender, log logger.Logger) *Producer {
	return &Producer{
		tasks:  make(map[string]State),
		sender: sender,
		logger: log.WithField("component", "task"),
	}
}

// Begin registers a task in the pending state and broadcasts its started
// event. An empty taskID gets a generated UUID. Returns the task ID.
func (p *Producer) Begin(ctx context.Context, taskID string, payload any) (string, error) {
	if taskID == "" {
		taskID = uuid.NewString()
	}

	p.mu.Lock()
	if _, exists := p.tasks[taskID]; exists {
		p.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrTaskExists, taskID)
	}
	p.tasks[taskID] = StatePending
	p.mu.Unlock()

	p.emit(ctx, taskID, StatePending, payload)
	return taskID, nil
}

// Transition moves a task to next and broadcasts the corresponding event.
// Invalid transitions are rejected and broadcast nothing.
func (p *Producer) Transition(ctx context.Context, taskID string, next State, payload any) error {
	if _, ok := eventTypeFor[next]; !ok {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, next)
	}

	p.mu.Lock()
	current, ok := p.tasks[taskID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if !transitionAllowed(current, next) {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	p.tasks[taskID] = next
	p.mu.Unlock()

	p.emit(ctx, taskID, next, payload)
	return nil
}

// Progress broadcasts a progress event for a running task without changing
// its state.
func (p *Producer) Progress(ctx context.Context, taskID string, payload any) error {
	p.mu.Lock()
	current, ok := p.tasks[taskID]
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if current != StateRunning {
		return fmt.Errorf("%w: progress in state %s", ErrInvalidTransition, current)
	}

	p.send(ctx, Event{
		TaskID:    taskID,
		EventType: EventProgress,
		State:     StateRunning,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	return nil
}

// StateOf returns the current state of taskID.
func (p *Producer) StateOf(taskID string) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.tasks[taskID]
	return state, ok
}

func (p *Producer) emit(ctx context.Context, taskID string, entered State, payload any) {
	p.send(ctx, Event{
		TaskID:    taskID,
		EventType: eventTypeFor[entered],
		State:     entered,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

func (p *Producer) send(ctx context.Context, event Event) {
	delivered := p.sender.Send(ctx, "", delivery.EventTask, delivery.CategoryTask, event)
	if !delivered {
		p.logger.Debugf("task %s %s event had no recipients", event.TaskID, event.EventType)
	}
}

func transitionAllowed(from, to State) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}
