package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/ashureev/retention-agent/internal/driver"
	"github.com/ashureev/retention-agent/internal/engine"
	"github.com/ashureev/retention-agent/internal/engine/enginetest"
	"github.com/ashureev/retention-agent/internal/notify"
	"github.com/ashureev/retention-agent/internal/policy"
	"github.com/ashureev/retention-agent/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) Close() error { return nil }

func safe(name string) domain.Action {
	return domain.Action{Name: name, Arguments: map[string]any{"customer_id": "101"}}
}

func setup(t *testing.T, eng *enginetest.Scripted, max int) (*Controller, *store.MemoryStore, *recordingNotifier) {
	t.Helper()
	st := store.NewMemory()
	n := &recordingNotifier{}
	c := New(driver.New(st, eng, policy.Default()), Config{MaxIterations: max, Notifier: n})
	return c, st, n
}

func TestRetentionFlowRequiresEmailApproval(t *testing.T) {
	eng := enginetest.New(enginetest.RetentionTurns("101")...)
	c, st, n := setup(t, eng, 10)
	ctx := context.Background()

	outcome, err := c.Run(ctx, "t1", engine.Message("Check retention for Customer 101"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRequiresAction, outcome.Status)
	require.NotNil(t, outcome.Action)
	assert.Equal(t, policy.ToolSendRetentionEmail, outcome.Action.Name)
	assert.Equal(t, "101", outcome.Action.Arguments["customer_id"])
	assert.Equal(t, "Approval required for send_retention_email", outcome.Message)
	assert.Len(t, eng.Calls(), 4, "three SAFE pauses resumed inside one request")

	stored, err := st.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, stored.PendingAction)
	assert.Equal(t, policy.ToolSendRetentionEmail, stored.PendingAction.Name)

	require.Len(t, n.events, 1)
	assert.Equal(t, "t1", n.events[0].ThreadID)
	assert.Equal(t, policy.ToolSendRetentionEmail, n.events[0].Tool)

	outcome, err = c.Run(ctx, "t1", engine.Resume())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, outcome.Status)
	assert.Contains(t, outcome.Response, "Customer 101")

	stored, err = st.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, stored.PendingAction)
}

func TestAutoResumeConvergesBelowCeiling(t *testing.T) {
	for _, pauses := range []int{0, 1, 5, 9} {
		turns := make([]enginetest.Turn, 0, pauses+1)
		for i := 0; i < pauses; i++ {
			turns = append(turns, enginetest.PauseAt(safe(policy.ToolSearchRetentionPolicy)))
		}
		turns = append(turns, enginetest.Finish("final"))

		eng := enginetest.New(turns...)
		c, _, n := setup(t, eng, 10)

		outcome, err := c.Run(context.Background(), "t", engine.Message("go"))
		require.NoError(t, err, "pauses=%d", pauses)
		assert.Equal(t, domain.OutcomeCompleted, outcome.Status)
		assert.Equal(t, "final", outcome.Response)
		assert.Len(t, eng.Calls(), pauses+1)
		assert.Empty(t, n.events)
	}
}

func TestIterationCeiling(t *testing.T) {
	eng := enginetest.NewFunc(func(context.Context, int, string, engine.Input) enginetest.Turn {
		return enginetest.PauseAt(safe(policy.ToolFetchCustomerBooking))
	})
	c, _, _ := setup(t, eng, 7)

	outcome, err := c.Run(context.Background(), "loop", engine.Message("go"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIterationCeiling)
	assert.Equal(t, domain.OutcomeError, outcome.Status)
	assert.Equal(t, domain.ErrorKindIterationCeiling, outcome.ErrorKind)
	assert.Contains(t, outcome.Message, "7")
	assert.Len(t, eng.Calls(), 7)
}

func TestNoProgressIsInconsistentState(t *testing.T) {
	eng := enginetest.New(enginetest.Turn{Pause: true})
	c, _, _ := setup(t, eng, 5)

	outcome, err := c.Run(context.Background(), "t", engine.Message("go"))
	assert.ErrorIs(t, err, ErrInconsistentState)
	assert.Equal(t, domain.ErrorKindInconsistentState, outcome.ErrorKind)
	assert.Len(t, eng.Calls(), 1, "inconsistent state is not retried")
}

func TestEngineFailureIsReported(t *testing.T) {
	eng := enginetest.New(enginetest.Turn{Err: errors.New("connection refused")})
	c, st, _ := setup(t, eng, 5)

	outcome, err := c.Run(context.Background(), "t", engine.Message("go"))
	assert.ErrorIs(t, err, engine.ErrUnavailable)
	assert.Equal(t, domain.OutcomeError, outcome.Status)
	assert.Equal(t, domain.ErrorKindEngineUnavailable, outcome.ErrorKind)

	_, err = st.Get(context.Background(), "t")
	assert.ErrorIs(t, err, store.ErrThreadNotFound)
}

func TestNotificationFailureDoesNotChangeOutcome(t *testing.T) {
	eng := enginetest.New(enginetest.PauseAt(safe(policy.ToolRequestManagerApproval)))
	c, _, n := setup(t, eng, 5)
	n.err = errors.New("nats down")

	outcome, err := c.Run(context.Background(), "t", engine.Message("go"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRequiresAction, outcome.Status)
}

func TestUnknownToolRequiresApproval(t *testing.T) {
	eng := enginetest.New(enginetest.PauseAt(safe("issue_refund")))
	c, _, _ := setup(t, eng, 5)

	outcome, err := c.Run(context.Background(), "t", engine.Message("go"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRequiresAction, outcome.Status)
	assert.Equal(t, "issue_refund", outcome.Action.Name)
}

type stubStepper struct {
	results []driver.Result
	calls   int
}

func (s *stubStepper) Advance(context.Context, string, engine.Input) (driver.Result, error) {
	r := s.results[s.calls]
	s.calls++
	return r, nil
}

func TestMixedPauseReportsFirstSensitive(t *testing.T) {
	stepper := &stubStepper{results: []driver.Result{{
		Kind: driver.PausedBeforeAction,
		Actions: []domain.Action{
			safe(policy.ToolFetchCustomerBooking),
			safe(policy.ToolRequestManagerApproval),
			safe(policy.ToolSendRetentionEmail),
		},
	}}}
	c := New(stepper, Config{})

	outcome, err := c.Run(context.Background(), "t", engine.Message("go"))
	require.NoError(t, err)
	assert.Equal(t, policy.ToolRequestManagerApproval, outcome.Action.Name)
	assert.Equal(t, DefaultMaxIterations, c.MaxIterations())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, domain.ErrorKindClientInput, KindOf(store.ErrThreadNotFound))
	assert.Equal(t, domain.ErrorKindInternal, KindOf(errors.New("disk full")))
	assert.Equal(t, domain.ErrorKindEngineUnavailable, KindOf(engine.ErrUnavailable))
}
