// Package orchestrator runs the bounded auto-resume loop over the step driver.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/ashureev/retention-agent/internal/driver"
	"github.com/ashureev/retention-agent/internal/engine"
	"github.com/ashureev/retention-agent/internal/metrics"
	"github.com/ashureev/retention-agent/internal/notify"
	"github.com/ashureev/retention-agent/internal/policy"
	"github.com/ashureev/retention-agent/internal/store"
	"github.com/ashureev/retention-agent/internal/telemetry"
)

var (
	// ErrInconsistentState is returned when the engine is paused with no pending tool call.
	ErrInconsistentState = errors.New("engine paused without a pending action")
	// ErrIterationCeiling is returned when a request exhausts its advance budget.
	ErrIterationCeiling = errors.New("auto-resume iteration ceiling reached")
)

// DefaultMaxIterations bounds driver advances per request.
const DefaultMaxIterations = 25

// Stepper advances a thread by one engine step.
type Stepper interface {
	Advance(ctx context.Context, threadID string, in engine.Input) (driver.Result, error)
}

// Controller resumes past SAFE actions and stops at SENSITIVE ones.
type Controller struct {
	stepper       Stepper
	classifier    *policy.Classifier
	maxIterations int
	notifier      notify.Notifier
	logger        *slog.Logger
}

// Config wires a Controller.
type Config struct {
	Classifier    *policy.Classifier
	MaxIterations int
	Notifier      notify.Notifier
	Logger        *slog.Logger
}

// New creates a controller.
func New(stepper Stepper, cfg Config) *Controller {
	c := &Controller{
		stepper:       stepper,
		classifier:    cfg.Classifier,
		maxIterations: cfg.MaxIterations,
		notifier:      cfg.Notifier,
		logger:        cfg.Logger,
	}
	if c.classifier == nil {
		c.classifier = policy.Default()
	}
	if c.maxIterations <= 0 {
		c.maxIterations = DefaultMaxIterations
	}
	if c.notifier == nil {
		c.notifier = notify.Noop{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// MaxIterations returns the advance budget per request.
func (c *Controller) MaxIterations() int {
	return c.maxIterations
}

// Run feeds in to the thread and keeps resuming while every paused action is
// SAFE. It returns exactly one outcome; the error is non-nil iff the outcome
// status is error.
func (c *Controller) Run(ctx context.Context, threadID string, in engine.Input) (domain.Outcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "controller.run", telemetry.AttrThreadID.String(threadID))

	outcome, err := c.run(ctx, threadID, in)
	span.SetAttributes(telemetry.AttrOutcome.String(string(outcome.Status)))
	telemetry.EndSpan(span, err)
	return outcome, err
}

func (c *Controller) run(ctx context.Context, threadID string, in engine.Input) (domain.Outcome, error) {
	for iteration := 1; iteration <= c.maxIterations; iteration++ {
		res, err := c.stepper.Advance(ctx, threadID, in)
		if err != nil {
			return c.fail(threadID, iteration, err)
		}

		switch res.Kind {
		case driver.Finished:
			c.logger.Info("thread completed", "thread_id", threadID, "iterations", iteration)
			return domain.Completed(threadID, res.FinalText), nil

		case driver.NoProgress:
			return c.fail(threadID, iteration, fmt.Errorf("thread %s: %w", threadID, ErrInconsistentState))

		case driver.PausedBeforeAction:
			if len(res.Actions) == 0 {
				return c.fail(threadID, iteration, fmt.Errorf("thread %s: %w", threadID, ErrInconsistentState))
			}
			for _, a := range res.Actions {
				metrics.RecordClassification(a.Name, c.classifier.Classify(a.Name).String())
			}
			if action, ok := c.classifier.FirstSensitive(res.Actions); ok {
				outcome := domain.RequiresAction(threadID, action)
				c.logger.Info("approval required",
					"thread_id", threadID,
					"tool", action.Name,
					"iterations", iteration,
				)
				c.publish(ctx, outcome)
				return outcome, nil
			}
			c.logger.Debug("auto-resuming past safe actions",
				"thread_id", threadID,
				"tools", actionNames(res.Actions),
				"iteration", iteration,
			)
			metrics.RecordAutoResume()
			in = engine.Resume()

		default:
			return c.fail(threadID, iteration, fmt.Errorf("unknown pause kind %d", res.Kind))
		}
	}

	err := fmt.Errorf("thread %s: %w after %d advances", threadID, ErrIterationCeiling, c.maxIterations)
	return c.fail(threadID, c.maxIterations, err)
}

func (c *Controller) fail(threadID string, iteration int, err error) (domain.Outcome, error) {
	kind := KindOf(err)
	metrics.RecordError(string(kind))

	attrs := []any{"thread_id", threadID, "iteration", iteration, "kind", kind, "error", err}
	switch kind {
	case domain.ErrorKindEngineUnavailable:
		c.logger.Warn("engine call failed", attrs...)
	default:
		c.logger.Error("run failed", attrs...)
	}
	return domain.Failed(threadID, kind, Message(kind, err, c.maxIterations)), err
}

func (c *Controller) publish(ctx context.Context, outcome domain.Outcome) {
	event := notify.Event{
		Type:     notify.EventRequiresAction,
		ThreadID: outcome.ThreadID,
		Tool:     outcome.Action.Name,
		Args:     outcome.Action.Arguments,
		Message:  outcome.Message,
	}
	err := c.notifier.Publish(ctx, event)
	metrics.RecordNotification(err)
	if err != nil {
		c.logger.Warn("failed to publish approval notification", "thread_id", outcome.ThreadID, "error", err)
	}
}

// KindOf maps an error onto the outcome error kind.
func KindOf(err error) domain.ErrorKind {
	switch {
	case errors.Is(err, ErrIterationCeiling):
		return domain.ErrorKindIterationCeiling
	case errors.Is(err, ErrInconsistentState):
		return domain.ErrorKindInconsistentState
	case errors.Is(err, engine.ErrUnavailable):
		return domain.ErrorKindEngineUnavailable
	case errors.Is(err, store.ErrThreadNotFound), errors.Is(err, store.ErrInvalidThreadID):
		return domain.ErrorKindClientInput
	default:
		return domain.ErrorKindInternal
	}
}

// Message renders the caller-facing text for an error outcome.
func Message(kind domain.ErrorKind, err error, ceiling int) string {
	switch kind {
	case domain.ErrorKindIterationCeiling:
		return fmt.Sprintf("Stopped after %d automatic steps without reaching an answer or an approval point.", ceiling)
	case domain.ErrorKindInconsistentState:
		return "The agent paused without proposing an action; the thread needs operator attention."
	case domain.ErrorKindEngineUnavailable:
		return "The reasoning engine is unavailable. Please retry."
	case domain.ErrorKindClientInput:
		return err.Error()
	default:
		return "Internal error."
	}
}

func actionNames(actions []domain.Action) []string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.Name
	}
	return names
}
