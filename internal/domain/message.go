package domain

import "maps"

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation declared by an assistant message.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"args,omitempty"`
}

// Action returns the orchestration view of the tool call.
func (c ToolCall) Action() Action {
	return Action{Name: c.Name, Arguments: cloneArgs(c.Arguments)}
}

// Message is a single entry of the reasoning transcript.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// HasToolCalls reports whether the message is an assistant decision to act.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// Actions returns the actions proposed by the message, in declaration order.
func (m Message) Actions() []Action {
	if len(m.ToolCalls) == 0 {
		return nil
	}
	actions := make([]Action, 0, len(m.ToolCalls))
	for _, call := range m.ToolCalls {
		actions = append(actions, call.Action())
	}
	return actions
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			call.Arguments = cloneArgs(call.Arguments)
			out.ToolCalls[i] = call
		}
	}
	return out
}

// CloneMessages returns deep copies of all messages.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// Action is a side-effecting operation the reasoning engine wants to perform.
// Arguments are opaque to the orchestration core.
type Action struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"args,omitempty"`
}

// Clone returns a deep copy of the action.
func (a Action) Clone() Action {
	return Action{Name: a.Name, Arguments: cloneArgs(a.Arguments)}
}

// cloneArgs copies nested maps and slices so JSON-shaped arguments are never shared.
func cloneArgs(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneArgs(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
