// Package driver advances a persisted thread through the reasoning engine.
//
// One Advance loads the thread snapshot, feeds the engine one input, records
// every emitted message, asks the engine whether the thread is paused and writes
// the snapshot back. Engine failures leave the stored snapshot untouched.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/ashureev/retention-agent/internal/engine"
	"github.com/ashureev/retention-agent/internal/metrics"
	"github.com/ashureev/retention-agent/internal/policy"
	"github.com/ashureev/retention-agent/internal/store"
	"github.com/ashureev/retention-agent/internal/telemetry"
)

// PauseKind is the classified result of one advance.
type PauseKind int

const (
	// Finished means the engine produced a final answer.
	Finished PauseKind = iota
	// PausedBeforeAction means the engine stopped before executing tool calls.
	PausedBeforeAction
	// NoProgress means the engine is paused but the transcript shows no pending tool call.
	NoProgress
)

func (k PauseKind) String() string {
	switch k {
	case Finished:
		return "finished"
	case PausedBeforeAction:
		return "paused"
	case NoProgress:
		return "no_progress"
	default:
		return "unknown"
	}
}

// Result describes where a thread ended up after one advance.
type Result struct {
	Kind PauseKind
	// Actions proposed by the last assistant message when Kind is PausedBeforeAction.
	Actions []domain.Action
	// FinalText is the last assistant answer when Kind is Finished.
	FinalText string
	// Thread is the snapshot as persisted by this advance.
	Thread *domain.Thread
}

// Driver owns the store and engine handles.
type Driver struct {
	store      store.ThreadStore
	engine     engine.Engine
	classifier *policy.Classifier
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a driver. A nil classifier uses the built-in tool table.
func New(st store.ThreadStore, eng engine.Engine, classifier *policy.Classifier, opts ...Option) *Driver {
	if classifier == nil {
		classifier = policy.Default()
	}
	d := &Driver{
		store:      st,
		engine:     eng,
		classifier: classifier,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Advance feeds in to the engine for threadID and persists the result.
// A first message on an unknown thread creates it; resuming an unknown thread
// fails with store.ErrThreadNotFound.
func (d *Driver) Advance(ctx context.Context, threadID string, in engine.Input) (res Result, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "driver.advance",
		telemetry.AttrThreadID.String(threadID),
		telemetry.AttrInputKind.String(string(in.Kind)),
	)
	defer func() {
		label := res.Kind.String()
		if err != nil {
			label = "error"
		} else {
			span.SetAttributes(telemetry.AttrPauseKind.String(label))
		}
		metrics.RecordAdvance(label, time.Since(start))
		telemetry.EndSpan(span, err)
	}()

	thread, err := d.load(ctx, threadID, in)
	if err != nil {
		return Result{}, err
	}

	if in.Kind == engine.InputMessage {
		thread.Append(domain.Message{Role: domain.RoleUser, Content: in.Text})
	}

	emitted := 0
	for update, stepErr := range d.engine.Step(ctx, threadID, in) {
		if stepErr != nil {
			return Result{}, unavailable("step", stepErr)
		}
		if update.Message.Role != "" {
			thread.Append(update.Message)
			emitted++
		}
		if update.Paused || isTerminal(update.Message) {
			break
		}
	}

	status, err := d.engine.Status(ctx, threadID)
	if err != nil {
		return Result{}, unavailable("status", err)
	}

	res = d.classify(thread, status)
	thread.PendingAction = nil
	if res.Kind == PausedBeforeAction {
		if gate, ok := d.classifier.Gate(res.Actions); ok {
			thread.PendingAction = &gate
		}
	}
	thread.Rejection = nil
	thread.UpdatedAt = d.now()

	if err := d.store.Put(ctx, thread); err != nil {
		return Result{}, fmt.Errorf("persist thread %s: %w", threadID, err)
	}

	d.logger.Debug("advanced thread",
		"thread_id", threadID,
		"input", in.Kind,
		"messages", emitted,
		"result", res.Kind.String(),
	)

	res.Thread = thread.Clone()
	return res, nil
}

func (d *Driver) load(ctx context.Context, threadID string, in engine.Input) (*domain.Thread, error) {
	thread, err := d.store.Get(ctx, threadID)
	switch {
	case err == nil:
		return thread, nil
	case errors.Is(err, store.ErrThreadNotFound) && in.Kind == engine.InputMessage:
		return domain.NewThread(threadID, d.now()), nil
	case errors.Is(err, store.ErrThreadNotFound):
		return nil, fmt.Errorf("resume thread %s: %w", threadID, err)
	default:
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
}

// classify maps the engine status and transcript tail onto a pause kind.
func (d *Driver) classify(thread *domain.Thread, status engine.Status) Result {
	last, ok := thread.LastMessage()
	if !status.Paused {
		return Result{Kind: Finished, FinalText: finalText(thread)}
	}
	if ok && last.HasToolCalls() {
		return Result{Kind: PausedBeforeAction, Actions: last.Actions()}
	}
	return Result{Kind: NoProgress}
}

func isTerminal(msg domain.Message) bool {
	return msg.Role == domain.RoleAssistant && !msg.HasToolCalls()
}

func finalText(thread *domain.Thread) string {
	for i := len(thread.Messages) - 1; i >= 0; i-- {
		m := thread.Messages[i]
		if m.Role == domain.RoleUser {
			break
		}
		if isTerminal(m) {
			return m.Content
		}
	}
	return ""
}

func unavailable(op string, err error) error {
	if errors.Is(err, engine.ErrUnavailable) {
		return fmt.Errorf("engine %s: %w", op, err)
	}
	return fmt.Errorf("%w: engine %s: %w", engine.ErrUnavailable, op, err)
}
