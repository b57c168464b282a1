package grpc

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arkilian/timeline/internal/engine"
	"github.com/arkilian/timeline/internal/snl"
)

// Client implements snl.Executor over a gRPC connection.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Execute sends the command. Status errors are converted to *engine.Error so
// not-found results match snl.ErrNotFound.
func (c *Client) Execute(ctx context.Context, command, credential string) (snl.Response, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		FieldCommand:    command,
		FieldCredential: credential,
	})
	if err != nil {
		return nil, fmt.Errorf("grpc client: build request: %w", err)
	}
	if md, ok := metadata.FromOutgoingContext(ctx); !ok || len(md.Get(MetadataRequestID)) == 0 {
		ctx = metadata.AppendToOutgoingContext(ctx, MetadataRequestID, uuid.New().String())
	}

	out := new(structpb.Value)
	if err := c.conn.Invoke(ctx, ExecuteMethod, req, out); err != nil {
		return nil, fromStatus(err)
	}
	b, err := out.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("grpc client: encode response: %w", err)
	}
	return snl.Response(b), nil
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("grpc client: %w", err)
	}
	var code engine.Code
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		code = engine.CodeUnauthorized
	case codes.InvalidArgument:
		code = engine.CodeBadCommand
	case codes.NotFound:
		code = engine.CodeNotFound
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		code = engine.CodeInternal
	}
	return &engine.Error{Code: code, Message: st.Message()}
}
