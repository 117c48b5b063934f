package engine

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// RegisterServer exposes impl on s under the ReasoningEngine wire protocol.
// It lets any in-process Engine (such as a scripted one) stand in for the
// remote service.
func RegisterServer(s grpc.ServiceRegistrar, impl Engine) {
	s.RegisterService(&serviceDesc, &server{impl: impl})
}

type server struct {
	impl Engine
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "Health", Handler: healthHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Step", Handler: stepHandler, ServerStreams: true},
	},
	Metadata: "retention/engine/v1/engine.proto",
}

func unary(
	srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor,
	method string, fn func(*server, context.Context, *structpb.Struct) (*structpb.Struct, error),
) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return fn(srv.(*server), ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
	handler := func(ctx context.Context, req any) (any, error) {
		return fn(srv.(*server), ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, methodGetStatus, (*server).getStatus)
}

func healthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, methodHealth, (*server).health)
}

func (s *server) getStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req statusRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	st, err := s.impl.Status(ctx, req.ThreadID)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(statusResponse{Paused: st.Paused, PendingAction: st.PendingAction})
}

func (s *server) health(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.impl.Health(ctx); err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return toStruct(healthResponse{Status: "ok"})
}

func stepHandler(srv any, stream grpc.ServerStream) error {
	in := &structpb.Struct{}
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	var req stepRequest
	if err := fromStruct(in, &req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	impl := srv.(*server).impl
	for update, err := range impl.Step(stream.Context(), req.ThreadID, Input(req.Input)) {
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		out, err := toStruct(stepResponse{Message: update.Message, Paused: update.Paused})
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if err := stream.SendMsg(out); err != nil {
			return err
		}
	}
	return nil
}
