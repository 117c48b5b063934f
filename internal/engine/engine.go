// Package engine defines the reasoning-engine collaborator and its adapters.
//
// The engine owns the model and the tools. The orchestration core only asks it
// to advance a thread and to report whether that thread is paused before an
// action.
package engine

import (
	"context"
	"errors"
	"iter"

	"github.com/ashureev/retention-agent/internal/domain"
)

// ErrUnavailable marks any failure to reach or complete a call to the engine.
var ErrUnavailable = errors.New("reasoning engine unavailable")

// InputKind distinguishes a fresh user message from a plain resume.
type InputKind string

const (
	InputMessage InputKind = "message"
	InputResume  InputKind = "resume"
)

// Input is what a single Step call feeds the engine.
type Input struct {
	Kind InputKind
	Text string
}

// Message builds an input carrying a user message.
func Message(text string) Input {
	return Input{Kind: InputMessage, Text: text}
}

// Resume builds an input that continues a paused thread with no new content.
func Resume() Input {
	return Input{Kind: InputResume}
}

// Update is one incremental state change emitted while stepping.
type Update struct {
	Message domain.Message
	// Paused is set on the update after which the engine stopped before an action.
	Paused bool
}

// Status is the authoritative execution state of a thread inside the engine.
type Status struct {
	Paused        bool
	PendingAction *domain.Action
}

// Engine is the external reasoning engine.
type Engine interface {
	// Step advances the thread and streams updates until the engine finishes or pauses.
	Step(ctx context.Context, threadID string, in Input) iter.Seq2[Update, error]

	// Status reports whether the thread is paused before an action.
	Status(ctx context.Context, threadID string) (Status, error)

	// Health checks that the engine is serving.
	Health(ctx context.Context) error

	// Close releases resources.
	Close()
}
