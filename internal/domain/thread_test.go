package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadStatus(t *testing.T) {
	t.Parallel()

	needsApproval := func(name string) bool { return name != "fetch_customer_booking" }

	th := NewThread("t-1", time.Unix(100, 0))
	assert.Equal(t, ThreadStatusReady, th.Status(needsApproval))
	assert.False(t, th.HasPendingAction())

	th.PendingAction = &Action{Name: "fetch_customer_booking"}
	assert.Equal(t, ThreadStatusInterrupted, th.Status(needsApproval))
	assert.Equal(t, ThreadStatusAwaitingApproval, th.Status(nil))

	th.PendingAction = &Action{Name: "send_retention_email"}
	assert.Equal(t, ThreadStatusAwaitingApproval, th.Status(needsApproval))

	th.Rejection = &Rejection{Reason: RejectedReason, At: time.Unix(200, 0)}
	assert.Equal(t, ThreadStatusRejected, th.Status(needsApproval))
}

func TestThreadCloneIsDeep(t *testing.T) {
	t.Parallel()

	th := NewThread("t-1", time.Unix(100, 0))
	th.Append(Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{{
			ID:   "call-1",
			Name: "send_retention_email",
			Arguments: map[string]any{
				"customer_name": "John Doe",
				"tags":          []any{"vip"},
				"offer":         map[string]any{"discount": 15.0},
			},
		}},
	})
	action := th.Messages[0].ToolCalls[0].Action()
	th.PendingAction = &action

	cp := th.Clone()
	require.Equal(t, th, cp)

	cp.Messages[0].ToolCalls[0].Arguments["customer_name"] = "Jane"
	cp.Messages[0].ToolCalls[0].Arguments["offer"].(map[string]any)["discount"] = 50.0
	cp.PendingAction.Arguments["tags"].([]any)[0] = "changed"

	assert.Equal(t, "John Doe", th.Messages[0].ToolCalls[0].Arguments["customer_name"])
	assert.Equal(t, 15.0, th.Messages[0].ToolCalls[0].Arguments["offer"].(map[string]any)["discount"])
	assert.Equal(t, "vip", th.PendingAction.Arguments["tags"].([]any)[0])
}

func TestMessageActions(t *testing.T) {
	t.Parallel()

	msg := Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{Name: "fetch_customer_booking", Arguments: map[string]any{"customer_id": 101.0}},
			{Name: "get_customer_risk_score", Arguments: map[string]any{"customer_id": 101.0}},
		},
	}
	require.True(t, msg.HasToolCalls())
	actions := msg.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, "fetch_customer_booking", actions[0].Name)
	assert.Equal(t, "get_customer_risk_score", actions[1].Name)

	assert.False(t, Message{Role: RoleTool, ToolCalls: msg.ToolCalls}.HasToolCalls())
	assert.Nil(t, Message{Role: RoleAssistant, Content: "done"}.Actions())
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	d, err := ParseAction("approve")
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, d.Kind)

	d, err = ParseAction(" REJECT ")
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, d.Kind)

	_, err = ParseAction("maybe")
	assert.Error(t, err)
}

func TestRequiresActionMessage(t *testing.T) {
	t.Parallel()

	out := RequiresAction("t-1", Action{Name: "send_retention_email"})
	assert.Equal(t, OutcomeRequiresAction, out.Status)
	assert.Equal(t, "Approval required for send_retention_email", out.Message)
	require.NotNil(t, out.Action)
	assert.Equal(t, "send_retention_email", out.Action.Name)
}
