package snl

import (
	"context"
	"errors"
)

// ErrNotFound is reported (wrapped) by executors when a command addresses a
// namespace, entity or key that does not exist.
var ErrNotFound = errors.New("snl: not found")

// Executor runs a command string against a store on behalf of a credential.
// Implementations own timeouts and retries.
type Executor interface {
	Execute(ctx context.Context, command, credential string) (Response, error)
}

// ExecutorFunc adapts an ordinary function to the Executor interface.
type ExecutorFunc func(ctx context.Context, command, credential string) (Response, error)

// Execute calls f(ctx, command, credential).
func (f ExecutorFunc) Execute(ctx context.Context, command, credential string) (Response, error) {
	return f(ctx, command, credential)
}
