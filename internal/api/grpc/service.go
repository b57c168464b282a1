// Package grpc serves an snl.Executor over gRPC and provides a client that
// implements snl.Executor against such a server.
//
// The service has a single unary method whose messages are well-known
// protobuf types, so no generated code is needed:
//
//	service Executor {
//	  rpc Execute(google.protobuf.Struct) returns (google.protobuf.Value);
//	}
//
// The request struct carries "command" and "credential" string fields. The
// response value is the SNL response document.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "timeline.snl.v1.Executor"

// ExecuteMethod is the full method name of Execute.
const ExecuteMethod = "/" + ServiceName + "/Execute"

// Request field names.
const (
	FieldCommand    = "command"
	FieldCredential = "credential"
)

// MetadataRequestID is the metadata key carrying the request id.
const MetadataRequestID = "x-request-id"

// ExecutorServer is the server API of the Executor service.
type ExecutorServer interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Value, error)
}

// ServiceDesc describes the Executor service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExecutorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Execute",
			Handler:    executeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "timeline/snl/v1/executor.proto",
}

// RegisterExecutorServer registers srv on s.
func RegisterExecutorServer(s grpc.ServiceRegistrar, srv ExecutorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutorServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ExecuteMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExecutorServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
