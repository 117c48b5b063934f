// Package approval is the entry point for caller decisions against a thread.
//
// The gateway validates each decision against the stored thread, serializes
// requests per thread and hands accepted work to the resume controller.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/retention-agent/internal/audit"
	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/ashureev/retention-agent/internal/engine"
	"github.com/ashureev/retention-agent/internal/metrics"
	"github.com/ashureev/retention-agent/internal/policy"
	"github.com/ashureev/retention-agent/internal/store"
	"github.com/ashureev/retention-agent/internal/telemetry"
	"github.com/google/uuid"
)

// ErrClientInput marks decisions that are invalid for the thread's current state.
var ErrClientInput = errors.New("invalid request")

// Runner executes the bounded resume loop.
type Runner interface {
	Run(ctx context.Context, threadID string, in engine.Input) (domain.Outcome, error)
}

// Gateway accepts NEW_MESSAGE, APPROVE and REJECT decisions.
type Gateway struct {
	store      store.ThreadStore
	runner     Runner
	classifier *policy.Classifier
	locks      *keyedMutex
	audit      audit.ConversationLogger
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithAudit records decisions and outcomes in the conversation log.
func WithAudit(l audit.ConversationLogger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.audit = l
		}
	}
}

// WithClassifier sets the classifier used to tell approval gates from
// interrupted automatic steps. It should match the controller's classifier.
func WithClassifier(c *policy.Classifier) Option {
	return func(g *Gateway) {
		if c != nil {
			g.classifier = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGateway creates a gateway over the store and runner.
func NewGateway(st store.ThreadStore, runner Runner, opts ...Option) *Gateway {
	g := &Gateway{
		store:      st,
		runner:     runner,
		classifier: policy.Default(),
		locks:      newKeyedMutex(),
		audit:      audit.Noop{},
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewThreadID allocates a fresh thread id.
func NewThreadID() string {
	return uuid.NewString()
}

// Submit applies decision to threadID and returns the single outcome of the
// request. An empty threadID is only valid for NEW_MESSAGE and gets a fresh id.
// The error is non-nil iff the outcome status is error.
func (g *Gateway) Submit(ctx context.Context, threadID string, decision domain.Decision) (domain.Outcome, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" && decision.Kind == domain.DecisionNewMessage {
		threadID = NewThreadID()
	}

	ctx, span := telemetry.StartSpan(ctx, "gateway.submit",
		telemetry.AttrThreadID.String(threadID),
		telemetry.AttrDecision.String(string(decision.Kind)),
	)
	outcome, err := g.submit(ctx, threadID, decision)
	telemetry.EndSpan(span, err)

	metrics.RecordRequest(string(decision.Kind), string(outcome.Status))
	g.audit.Log(audit.Event{
		ThreadID:   threadID,
		Direction:  "outbound",
		EventType:  audit.EventOutcome,
		Status:     string(outcome.Status),
		Tool:       actionName(outcome.Action),
		ContentRaw: firstNonEmpty(outcome.Response, outcome.Message, outcome.Reason),
	})
	return outcome, err
}

func (g *Gateway) submit(ctx context.Context, threadID string, decision domain.Decision) (domain.Outcome, error) {
	if threadID == "" {
		return g.reject(threadID, fmt.Errorf("%w: thread_id is required for %s", ErrClientInput, decision.Kind))
	}

	unlock := g.locks.Lock(threadID)
	defer unlock()

	thread, err := g.store.Get(ctx, threadID)
	if err != nil && !errors.Is(err, store.ErrThreadNotFound) {
		g.logger.Error("failed to load thread", "thread_id", threadID, "error", err)
		return domain.Failed(threadID, domain.ErrorKindInternal, "Internal error."), fmt.Errorf("load thread: %w", err)
	}

	g.audit.Log(audit.Event{
		ThreadID:   threadID,
		Direction:  "inbound",
		EventType:  eventType(decision),
		ContentRaw: firstNonEmpty(decision.Text, string(decision.Kind)),
	})

	status := domain.ThreadStatusReady
	if thread != nil {
		status = g.Status(thread)
	}

	switch decision.Kind {
	case domain.DecisionNewMessage:
		if strings.TrimSpace(decision.Text) == "" {
			return g.reject(threadID, fmt.Errorf("%w: message must not be empty", ErrClientInput))
		}
		switch status {
		case domain.ThreadStatusAwaitingApproval:
			return g.reject(threadID, fmt.Errorf("%w: thread is awaiting approval for %s; send APPROVE or REJECT",
				ErrClientInput, thread.PendingAction.Name))
		case domain.ThreadStatusInterrupted:
			// Finish the interrupted automatic steps before taking the new message.
			outcome, err := g.resumeInterrupted(ctx, thread)
			if err != nil || outcome.Status != domain.OutcomeCompleted {
				return outcome, err
			}
		}
		return g.runner.Run(ctx, threadID, engine.Message(decision.Text))

	case domain.DecisionApprove:
		if thread == nil || !thread.HasPendingAction() {
			return g.reject(threadID, fmt.Errorf("%w: no pending action to approve", ErrClientInput))
		}
		if status == domain.ThreadStatusInterrupted {
			return g.resumeInterrupted(ctx, thread)
		}
		g.logger.Info("action approved", "thread_id", threadID, "tool", thread.PendingAction.Name)
		return g.runner.Run(ctx, threadID, engine.Resume())

	case domain.DecisionReject:
		if thread == nil || !thread.HasPendingAction() {
			return g.reject(threadID, fmt.Errorf("%w: no pending action to reject", ErrClientInput))
		}
		if status == domain.ThreadStatusInterrupted {
			return g.reject(threadID, fmt.Errorf("%w: no action is awaiting approval", ErrClientInput))
		}
		if thread.Rejection == nil {
			thread.Rejection = &domain.Rejection{Reason: domain.RejectedReason, At: g.now()}
			if err := g.store.Put(ctx, thread); err != nil {
				g.logger.Error("failed to record rejection", "thread_id", threadID, "error", err)
				return domain.Failed(threadID, domain.ErrorKindInternal, "Internal error."), fmt.Errorf("record rejection: %w", err)
			}
		}
		g.logger.Info("action rejected", "thread_id", threadID, "tool", thread.PendingAction.Name)
		return domain.Stopped(threadID, domain.RejectedReason), nil

	default:
		return g.reject(threadID, fmt.Errorf("%w: unknown decision %q", ErrClientInput, decision.Kind))
	}
}

// Thread returns the stored snapshot for inspection.
func (g *Gateway) Thread(ctx context.Context, threadID string) (*domain.Thread, error) {
	return g.store.Get(ctx, threadID)
}

// Status derives the caller-facing status of a stored thread. Only a pending
// action that requires approval reports awaiting_approval.
func (g *Gateway) Status(thread *domain.Thread) domain.ThreadStatus {
	return thread.Status(g.classifier.RequiresApproval)
}

func (g *Gateway) resumeInterrupted(ctx context.Context, thread *domain.Thread) (domain.Outcome, error) {
	g.logger.Info("resuming interrupted thread", "thread_id", thread.ID, "tool", thread.PendingAction.Name)
	return g.runner.Run(ctx, thread.ID, engine.Resume())
}

func (g *Gateway) reject(threadID string, err error) (domain.Outcome, error) {
	g.logger.Info("rejected decision", "thread_id", threadID, "reason", err)
	metrics.RecordError(string(domain.ErrorKindClientInput))
	return domain.Failed(threadID, domain.ErrorKindClientInput, strings.TrimPrefix(err.Error(), ErrClientInput.Error()+": ")), err
}

func eventType(d domain.Decision) string {
	if d.Kind == domain.DecisionNewMessage {
		return audit.EventUserMessage
	}
	return audit.EventDecision
}

func actionName(a *domain.Action) string {
	if a == nil {
		return ""
	}
	return a.Name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
