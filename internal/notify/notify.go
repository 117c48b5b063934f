// Package notify publishes approval requests to external reviewers.
package notify

import (
	"context"
	"encoding/json"
	"time"
)

// EventRequiresAction is published when a thread pauses before a sensitive action.
const EventRequiresAction = "requires_action"

// Event describes a thread waiting for sign-off.
type Event struct {
	Type      string         `json:"type"`
	ThreadID  string         `json:"thread_id"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
}

// JSON encodes the event. Encoding errors yield nil.
func (e Event) JSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// Notifier publishes events.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }
