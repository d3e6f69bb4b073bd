package enginegrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the registered gRPC service and health check name.
const ServiceName = "tmplay.engine.v1.Engine"

const (
	methodCompile = "/" + ServiceName + "/Compile"
	methodRun     = "/" + ServiceName + "/Run"
	methodPing    = "/" + ServiceName + "/Ping"
)

// Request fields carried in the structpb.Struct payload.
const (
	fieldSource = "source"
	fieldTape   = "tape"
)

// engineServer is the handler set behind ServiceName. Requests travel as
// structpb.Struct and results as the engine's raw JSON in a StringValue.
type engineServer interface {
	Compile(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	Run(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	Ping(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

var engineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*engineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compile", Handler: compileHandler},
		{MethodName: "Run", Handler: runHandler},
		{MethodName: "Ping", Handler: pingHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tmplay/engine.proto",
}

func registerEngineServer(s grpc.ServiceRegistrar, srv engineServer) {
	s.RegisterService(&engineServiceDesc, srv)
}

func compileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(engineServer).Compile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCompile}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(engineServer).Compile(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(engineServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRun}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(engineServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(engineServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPing}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(engineServer).Ping(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[name].GetStringValue()
}
