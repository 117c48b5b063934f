// Package domain contains core domain types for the retention agent.
package domain

import (
	"time"
)

// ThreadStatus is the externally observable state of a conversation thread.
type ThreadStatus string

const (
	// ThreadStatusReady means the thread accepts a new user message.
	ThreadStatusReady ThreadStatus = "ready"
	// ThreadStatusAwaitingApproval means the engine is paused before an action.
	ThreadStatusAwaitingApproval ThreadStatus = "awaiting_approval"
	// ThreadStatusRejected means the pending action was rejected and a correction may follow.
	ThreadStatusRejected ThreadStatus = "rejected"
	// ThreadStatusInterrupted means a request stopped between automatic steps
	// and the next decision resumes the pending auto-approved action.
	ThreadStatusInterrupted ThreadStatus = "interrupted"
)

// Rejection records that the caller refused the pending action.
// The pending action itself is left untouched.
type Rejection struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Thread is one ongoing retention conversation and the unit of persistence.
type Thread struct {
	ID            string     `json:"thread_id"`
	Messages      []Message  `json:"messages"`
	PendingAction *Action    `json:"pending_action,omitempty"`
	Rejection     *Rejection `json:"rejection,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewThread returns an empty thread with the given id.
func NewThread(id string, now time.Time) *Thread {
	return &Thread{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Status derives the thread status from the pending action and rejection
// marker. needsApproval classifies the pending action; nil treats every
// pending action as needing approval.
func (t *Thread) Status(needsApproval func(name string) bool) ThreadStatus {
	switch {
	case t.PendingAction == nil:
		return ThreadStatusReady
	case t.Rejection != nil:
		return ThreadStatusRejected
	case needsApproval != nil && !needsApproval(t.PendingAction.Name):
		return ThreadStatusInterrupted
	default:
		return ThreadStatusAwaitingApproval
	}
}

// HasPendingAction returns true if the engine is paused before an action.
func (t *Thread) HasPendingAction() bool {
	return t.PendingAction != nil
}

// Append adds messages to the transcript.
func (t *Thread) Append(msgs ...Message) {
	for _, m := range msgs {
		t.Messages = append(t.Messages, m.Clone())
	}
}

// LastMessage returns the most recent transcript entry.
func (t *Thread) LastMessage() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// Clone returns a deep copy safe to hand across store boundaries.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	out := *t
	out.Messages = CloneMessages(t.Messages)
	if t.PendingAction != nil {
		action := t.PendingAction.Clone()
		out.PendingAction = &action
	}
	if t.Rejection != nil {
		rejection := *t.Rejection
		out.Rejection = &rejection
	}
	return &out
}
