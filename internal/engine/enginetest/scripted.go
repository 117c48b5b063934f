// Package enginetest provides a deterministic in-process reasoning engine.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/ashureev/retention-agent/internal/engine"
)

// ErrScriptExhausted is returned when Step is called past the end of a script.
var ErrScriptExhausted = errors.New("scripted engine: no more steps")

// Turn is what one Step call emits.
type Turn struct {
	Messages []domain.Message
	// Pause leaves the thread paused after the last message.
	Pause bool
	// Err is yielded after Messages when set.
	Err error
}

// TurnFunc produces the turn for the n-th Step call (zero based) on a thread.
type TurnFunc func(ctx context.Context, n int, threadID string, in engine.Input) Turn

// Call records one Step invocation.
type Call struct {
	ThreadID string
	Input    engine.Input
}

// Scripted replays turns per thread. It is safe for concurrent use.
type Scripted struct {
	next TurnFunc

	mu        sync.Mutex
	calls     []Call
	perThread map[string]int
	paused    map[string]*domain.Action
	statusErr error
	healthErr error
}

var _ engine.Engine = (*Scripted)(nil)

// New replays turns in order for every thread and fails once they run out.
func New(turns ...Turn) *Scripted {
	return NewFunc(func(_ context.Context, n int, _ string, _ engine.Input) Turn {
		if n >= len(turns) {
			return Turn{Err: fmt.Errorf("%w (call %d)", ErrScriptExhausted, n+1)}
		}
		return turns[n]
	})
}

// NewFunc builds an engine whose turns are computed by fn.
func NewFunc(fn TurnFunc) *Scripted {
	return &Scripted{
		next:      fn,
		perThread: make(map[string]int),
		paused:    make(map[string]*domain.Action),
	}
}

// FailStatus makes subsequent Status calls return err.
func (s *Scripted) FailStatus(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusErr = err
}

// FailHealth makes subsequent Health calls return err.
func (s *Scripted) FailHealth(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthErr = err
}

// Calls returns every Step invocation so far.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Step emits the next turn for the thread.
func (s *Scripted) Step(ctx context.Context, threadID string, in engine.Input) iter.Seq2[engine.Update, error] {
	return func(yield func(engine.Update, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(engine.Update{}, err)
			return
		}

		s.mu.Lock()
		n := s.perThread[threadID]
		s.perThread[threadID] = n + 1
		s.calls = append(s.calls, Call{ThreadID: threadID, Input: in})
		s.mu.Unlock()

		turn := s.next(ctx, n, threadID, in)

		var pending *domain.Action
		if turn.Pause && len(turn.Messages) > 0 {
			last := turn.Messages[len(turn.Messages)-1]
			if last.HasToolCalls() {
				action := last.ToolCalls[0].Action()
				pending = &action
			}
		}
		s.mu.Lock()
		if turn.Err == nil && turn.Pause {
			if pending == nil {
				pending = &domain.Action{}
			}
			s.paused[threadID] = pending
		} else if turn.Err == nil {
			delete(s.paused, threadID)
		}
		s.mu.Unlock()

		for i, msg := range turn.Messages {
			update := engine.Update{Message: msg.Clone(), Paused: turn.Pause && i == len(turn.Messages)-1}
			if !yield(update, nil) {
				return
			}
		}
		if turn.Err != nil {
			yield(engine.Update{}, turn.Err)
		}
	}
}

// Status reports whether the last completed turn left the thread paused.
func (s *Scripted) Status(ctx context.Context, threadID string) (engine.Status, error) {
	if err := ctx.Err(); err != nil {
		return engine.Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return engine.Status{}, s.statusErr
	}
	pending, ok := s.paused[threadID]
	if !ok {
		return engine.Status{}, nil
	}
	st := engine.Status{Paused: true}
	if pending.Name != "" {
		action := pending.Clone()
		st.PendingAction = &action
	}
	return st, nil
}

// Health returns the configured health error.
func (s *Scripted) Health(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthErr
}

// Close is a no-op.
func (s *Scripted) Close() {}
