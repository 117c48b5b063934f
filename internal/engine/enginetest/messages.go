package enginetest

import (
	"context"
	"fmt"

	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/ashureev/retention-agent/internal/engine"
)

// Assistant returns a terminal assistant message.
func Assistant(text string) domain.Message {
	return domain.Message{Role: domain.RoleAssistant, Content: text}
}

// ToolCall returns an assistant message declaring one tool call per action.
func ToolCall(actions ...domain.Action) domain.Message {
	msg := domain.Message{Role: domain.RoleAssistant}
	for i, a := range actions {
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:        fmt.Sprintf("call_%s_%d", a.Name, i),
			Name:      a.Name,
			Arguments: a.Arguments,
		})
	}
	return msg
}

// ToolResult returns the transcript entry for an executed tool.
func ToolResult(name, content string) domain.Message {
	return domain.Message{
		Role:       domain.RoleTool,
		Name:       name,
		Content:    content,
		ToolCallID: fmt.Sprintf("call_%s_0", name),
	}
}

// PauseAt is a turn that stops before the given actions.
func PauseAt(actions ...domain.Action) Turn {
	return Turn{Messages: []domain.Message{ToolCall(actions...)}, Pause: true}
}

// Finish is a turn that ends with a final answer.
func Finish(text string) Turn {
	return Turn{Messages: []domain.Message{Assistant(text)}}
}

// RetentionTurns scripts the standard retention flow for one customer: three
// SAFE lookups, a SENSITIVE email pause, then the final answer once resumed.
func RetentionTurns(customerID string) []Turn {
	args := map[string]any{"customer_id": customerID}
	return []Turn{
		PauseAt(domain.Action{Name: "fetch_customer_booking", Arguments: args}),
		{Messages: []domain.Message{
			ToolResult("fetch_customer_booking", fmt.Sprintf(`{"customer_id":%q,"hotel":"Grand Plaza","nights":3}`, customerID)),
			ToolCall(domain.Action{Name: "get_customer_risk_score", Arguments: args}),
		}, Pause: true},
		{Messages: []domain.Message{
			ToolResult("get_customer_risk_score", `{"risk_score":0.82,"tier":"high"}`),
			ToolCall(domain.Action{Name: "search_retention_policy", Arguments: map[string]any{"query": "high risk gold member"}}),
		}, Pause: true},
		{Messages: []domain.Message{
			ToolResult("search_retention_policy", "High-risk guests may receive a 20% discount on their next stay."),
			ToolCall(domain.Action{Name: "send_retention_email", Arguments: map[string]any{
				"customer_id": customerID,
				"offer":       "20% off next stay",
			}}),
		}, Pause: true},
		{Messages: []domain.Message{
			ToolResult("send_retention_email", "Email sent."),
			Assistant(fmt.Sprintf("Customer %s is high risk. I sent a retention email offering 20%% off their next stay.", customerID)),
		}},
	}
}

// ThreadSource loads the persisted transcript of a thread.
type ThreadSource interface {
	Get(ctx context.Context, threadID string) (*domain.Thread, error)
}

// Demo returns an engine that runs the retention flow for every thread. A new
// user message starts the flow over for the customer id it mentions. A resume
// continues from the tool results already recorded in the stored transcript,
// so the flow picks up where it left off after a restart.
func Demo(threads ThreadSource) *Scripted {
	return NewFunc(func(ctx context.Context, _ int, threadID string, in engine.Input) Turn {
		if in.Kind == engine.InputMessage {
			return RetentionTurns(customerFrom(in.Text))[0]
		}
		thread, err := threads.Get(ctx, threadID)
		if err != nil {
			return Turn{Err: fmt.Errorf("demo engine: load thread %s: %w", threadID, err)}
		}
		customer, pos := demoPosition(thread)
		turns := RetentionTurns(customer)
		if pos >= len(turns) {
			return Finish("There is nothing left to do for this customer.")
		}
		return turns[pos]
	})
}

// demoPosition returns the customer named by the latest user message and the
// index of the next turn. Every turn after the first records one tool result.
func demoPosition(thread *domain.Thread) (string, int) {
	customer, results := "unknown", 0
	for _, m := range thread.Messages {
		switch m.Role {
		case domain.RoleUser:
			customer, results = customerFrom(m.Content), 0
		case domain.RoleTool:
			results++
		}
	}
	return customer, results + 1
}

func customerFrom(text string) string {
	var id string
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			id += string(r)
		case id != "":
			return id
		}
	}
	if id == "" {
		return "unknown"
	}
	return id
}
