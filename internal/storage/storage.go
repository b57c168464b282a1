// Package storage provides the object storage that purge archives are
// written to.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrDownloadFailed     = errors.New("download failed")
	ErrDeleteFailed       = errors.New("delete failed")
)

// ObjectStorage stores whole objects addressed by slash-separated paths.
// Implementations are the local filesystem and S3.
type ObjectStorage interface {
	// Put writes data to objectPath, replacing any existing object.
	Put(ctx context.Context, objectPath string, data []byte) error

	// PutIfAbsent writes data only when objectPath does not exist yet and
	// returns ErrPreconditionFailed otherwise.
	PutIfAbsent(ctx context.Context, objectPath string, data []byte) error

	// Get reads the object at objectPath or returns ErrObjectNotFound.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix in
	// ascending order.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
