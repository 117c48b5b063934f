package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errUnhealthy                = errors.New("engine reported unhealthy")
)

var stepStreamDesc = &grpc.StreamDesc{
	StreamName:    "Step",
	ServerStreams: true,
}

// GrpcClient talks to a remote reasoning engine over gRPC.
type GrpcClient struct {
	conn    *grpc.ClientConn
	addr    string
	timeout time.Duration
	logger  *slog.Logger
}

var _ Engine = (*GrpcClient)(nil)

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	// DialOptions are appended after the defaults (tests inject a bufconn dialer).
	DialOptions []grpc.DialOption
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   60 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcClient connects to the engine and waits until the connection is ready.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultGrpcClientConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = def.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = def.KeepaliveTimeout
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, cfg.DialOptions...)

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("create engine client for %s: %w", cfg.Address, err)
	}

	// Fail fast on a bad engine endpoint.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("%w: engine at %s not ready: %w", ErrUnavailable, cfg.Address, err)
	}

	logger.Info("Connected to reasoning engine", "address", cfg.Address)

	return &GrpcClient{
		conn:    conn,
		addr:    cfg.Address,
		timeout: cfg.RequestTimeout,
		logger:  logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Health calls the engine's Health method.
func (c *GrpcClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := toStruct(struct{}{})
	if err != nil {
		return err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodHealth, req, resp); err != nil {
		return fmt.Errorf("%w: health: %w", ErrUnavailable, err)
	}
	var out healthResponse
	if err := fromStruct(resp, &out); err != nil {
		return fmt.Errorf("%w: health: %w", ErrUnavailable, err)
	}
	if out.Status != "ok" && out.Status != "healthy" {
		return fmt.Errorf("%w: %w: %q", ErrUnavailable, errUnhealthy, out.Status)
	}
	return nil
}

// Status asks the engine whether the thread is paused.
func (c *GrpcClient) Status(ctx context.Context, threadID string) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := toStruct(statusRequest{ThreadID: threadID})
	if err != nil {
		return Status{}, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodGetStatus, req, resp); err != nil {
		return Status{}, fmt.Errorf("%w: get status: %w", ErrUnavailable, err)
	}
	var out statusResponse
	if err := fromStruct(resp, &out); err != nil {
		return Status{}, fmt.Errorf("%w: get status: %w", ErrUnavailable, err)
	}
	return Status{Paused: out.Paused, PendingAction: out.PendingAction}, nil
}

// Step opens a server stream and yields updates until the engine ends it.
func (c *GrpcClient) Step(ctx context.Context, threadID string, in Input) iter.Seq2[Update, error] {
	return func(yield func(Update, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		c.logger.Debug("Stepping thread via gRPC", "thread_id", threadID, "input", in.Kind)

		req, err := toStruct(stepRequest{ThreadID: threadID, Input: wireInput(in)})
		if err != nil {
			yield(Update{}, err)
			return
		}

		stream, err := c.conn.NewStream(ctx, stepStreamDesc, methodStep)
		if err != nil {
			yield(Update{}, fmt.Errorf("%w: step: %w", ErrUnavailable, err))
			return
		}
		if err := stream.SendMsg(req); err != nil {
			yield(Update{}, fmt.Errorf("%w: step send: %w", ErrUnavailable, err))
			return
		}
		if err := stream.CloseSend(); err != nil {
			yield(Update{}, fmt.Errorf("%w: step close send: %w", ErrUnavailable, err))
			return
		}

		for {
			resp := &structpb.Struct{}
			err := stream.RecvMsg(resp)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				c.logger.Error("Step stream error", "error", err, "thread_id", threadID)
				yield(Update{}, fmt.Errorf("%w: step stream: %w", ErrUnavailable, err))
				return
			}

			var out stepResponse
			if err := fromStruct(resp, &out); err != nil {
				yield(Update{}, fmt.Errorf("%w: step stream: %w", ErrUnavailable, err))
				return
			}
			if !yield(Update{Message: out.Message, Paused: out.Paused}, nil) {
				return
			}
		}
	}
}
