package engine_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/ashureev/retention-agent/internal/engine"
	"github.com/ashureev/retention-agent/internal/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func startEngine(t *testing.T, impl engine.Engine) *engine.GrpcClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	engine.RegisterServer(srv, impl)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := engine.NewGrpcClient(engine.GrpcClientConfig{
		Address:        "passthrough:///bufnet",
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 5 * time.Second,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func collect(t *testing.T, e engine.Engine, threadID string, in engine.Input) ([]engine.Update, error) {
	t.Helper()
	var out []engine.Update
	for u, err := range e.Step(context.Background(), threadID, in) {
		if err != nil {
			return out, err
		}
		out = append(out, u)
	}
	return out, nil
}

func TestGrpcClientStepAndStatus(t *testing.T) {
	scripted := enginetest.New(enginetest.RetentionTurns("101")...)
	client := startEngine(t, scripted)
	ctx := context.Background()

	require.NoError(t, client.Health(ctx))

	updates, err := collect(t, client, "t1", engine.Message("Check retention for Customer 101"))
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Paused)
	require.True(t, updates[0].Message.HasToolCalls())
	assert.Equal(t, "fetch_customer_booking", updates[0].Message.ToolCalls[0].Name)
	assert.Equal(t, "101", updates[0].Message.ToolCalls[0].Arguments["customer_id"])

	st, err := client.Status(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, st.Paused)
	require.NotNil(t, st.PendingAction)
	assert.Equal(t, "fetch_customer_booking", st.PendingAction.Name)

	updates, err = collect(t, client, "t1", engine.Resume())
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, domain.RoleTool, updates[0].Message.Role)
	assert.False(t, updates[0].Paused)
	assert.True(t, updates[1].Paused)

	calls := scripted.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, engine.InputMessage, calls[0].Input.Kind)
	assert.Equal(t, "Check retention for Customer 101", calls[0].Input.Text)
	assert.Equal(t, engine.InputResume, calls[1].Input.Kind)

	st, err = client.Status(ctx, "other")
	require.NoError(t, err)
	assert.False(t, st.Paused)
}

func TestGrpcClientStepErrorIsUnavailable(t *testing.T) {
	client := startEngine(t, enginetest.New(enginetest.Turn{Err: errors.New("model crashed")}))

	_, err := collect(t, client, "t1", engine.Message("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnavailable)
}

func TestGrpcClientHealthFailure(t *testing.T) {
	scripted := enginetest.New()
	scripted.FailHealth(errors.New("warming up"))
	client := startEngine(t, scripted)

	err := client.Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnavailable)
	assert.True(t, engine.IsTransient(err))
}

func TestNewGrpcClientFailsFast(t *testing.T) {
	lis := bufconn.Listen(1 << 10)
	require.NoError(t, lis.Close())

	_, err := engine.NewGrpcClient(engine.GrpcClientConfig{
		Address:        "passthrough:///closed",
		ConnectTimeout: 200 * time.Millisecond,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnavailable)
}
