package grpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arkilian/timeline/internal/engine"
	"github.com/arkilian/timeline/internal/snl"
)

// Server implements ExecutorServer on top of an snl.Executor.
type Server struct {
	exec   snl.Executor
	logger *slog.Logger
}

// NewServer creates a gRPC executor server.
func NewServer(exec snl.Executor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{exec: exec, logger: logger}
}

// Execute runs the command in req and returns the response document.
func (s *Server) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	requestID := extractRequestID(ctx)
	// header delivery is best effort
	_ = grpc.SetHeader(ctx, metadata.Pairs(MetadataRequestID, requestID))

	fields := req.GetFields()
	command := fields[FieldCommand].GetStringValue()
	if command == "" {
		return nil, status.Error(codes.InvalidArgument, "command is required")
	}
	credential := fields[FieldCredential].GetStringValue()

	resp, err := s.exec.Execute(ctx, command, credential)
	if err != nil {
		code := codeFor(err)
		if code == codes.Internal {
			s.logger.Error("execute failed", "error", err, "request_id", requestID)
		}
		return nil, status.Error(code, err.Error())
	}
	if len(resp) == 0 {
		return structpb.NewNullValue(), nil
	}

	out := new(structpb.Value)
	if err := out.UnmarshalJSON(resp); err != nil {
		return nil, status.Errorf(codes.Internal, "response is not valid JSON: %v", err)
	}
	return out, nil
}

// LoggingInterceptor logs one debug line per unary call.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
			"request_id", extractRequestID(ctx))
		return resp, err
	}
}

// codeFor maps an executor error to a gRPC status code.
func codeFor(err error) codes.Code {
	switch engine.CodeOf(err) {
	case engine.CodeUnauthorized:
		return codes.Unauthenticated
	case engine.CodeBadCommand:
		return codes.InvalidArgument
	case engine.CodeNotFound:
		return codes.NotFound
	}
	switch {
	case errors.Is(err, snl.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

// extractRequestID returns the caller's request id or a new one.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(MetadataRequestID); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return uuid.New().String()
}
