package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used by S3Storage. *s3.Client
// satisfies it.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Storage keeps archive objects in an S3 bucket under an optional key
// prefix.
type S3Storage struct {
	client  S3API
	bucket  string
	prefix  string
	retries int
	backoff time.Duration
}

// S3Config configures S3Storage.
type S3Config struct {
	Region string

	// Endpoint overrides the service endpoint (MinIO, LocalStack).
	Endpoint     string
	UsePathStyle bool

	// Prefix is prepended to every object path.
	Prefix string

	// MaxRetries bounds retries of transient failures.
	MaxRetries int

	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:       "us-east-1",
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
	}
}

// NewS3Storage builds a client from the default AWS credential chain.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StorageWithClient(client, bucket, cfg), nil
}

// NewS3StorageWithClient wraps an existing client.
func NewS3StorageWithClient(client S3API, bucket string, cfg S3Config) *S3Storage {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	return &S3Storage{
		client:  client,
		bucket:  bucket,
		prefix:  cfg.Prefix,
		retries: cfg.MaxRetries,
		backoff: cfg.RetryBackoff,
	}
}

func (s *S3Storage) key(objectPath string) *string {
	return aws.String(s.prefix + objectPath)
}

// Put writes an object, replacing any existing one.
func (s *S3Storage) Put(ctx context.Context, objectPath string, data []byte) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    s.key(objectPath),
			Body:   bytes.NewReader(data),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrUploadFailed, objectPath, err)
	}
	return nil
}

// PutIfAbsent writes an object with If-None-Match: * so that an existing
// object is never replaced.
func (s *S3Storage) PutIfAbsent(ctx context.Context, objectPath string, data []byte) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         s.key(objectPath),
			Body:        bytes.NewReader(data),
			IfNoneMatch: aws.String("*"),
		})
		return err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPreconditionFailed):
		return ErrPreconditionFailed
	default:
		return fmt.Errorf("%w: put %s: %v", ErrUploadFailed, objectPath, err)
	}
}

// Get reads an object.
func (s *S3Storage) Get(ctx context.Context, objectPath string) ([]byte, error) {
	var data []byte
	err := s.withRetry(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    s.key(objectPath),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, ErrObjectNotFound):
		return nil, ErrObjectNotFound
	default:
		return nil, fmt.Errorf("%w: get %s: %v", ErrDownloadFailed, objectPath, err)
	}
}

// Delete removes an object. S3 reports success for missing keys.
func (s *S3Storage) Delete(ctx context.Context, objectPath string) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    s.key(objectPath),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrDeleteFailed, objectPath, err)
	}
	return nil
}

// Exists reports whether an object exists.
func (s *S3Storage) Exists(ctx context.Context, objectPath string) (bool, error) {
	err := s.withRetry(ctx, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    s.key(objectPath),
		})
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrObjectNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("head %s: %w", objectPath, err)
	}
}

// ListObjects pages through every key under prefix and returns the paths
// without the storage prefix, sorted.
func (s *S3Storage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var objects []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: s.key(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, strings.TrimPrefix(aws.ToString(obj.Key), s.prefix))
		}
	}
	sort.Strings(objects)
	return objects, nil
}

// classify reports whether err is final and must not be retried, and maps
// S3 responses onto the storage sentinels.
func classify(err error) (bool, error) {
	var (
		noSuchKey *types.NoSuchKey
		notFound  *types.NotFound
		apiErr    smithy.APIError
	)
	switch {
	case errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrPreconditionFailed):
		return true, err
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return true, ErrObjectNotFound
	case errors.As(err, &apiErr):
		switch apiErr.ErrorCode() {
		case "PreconditionFailed":
			return true, ErrPreconditionFailed
		case "NoSuchKey", "NotFound":
			return true, ErrObjectNotFound
		}
		return apiErr.ErrorFault() == smithy.FaultClient, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true, err
	}
	return false, err
}

// withRetry runs op until it succeeds, fails with a final error or runs out
// of retries. Delays double from the configured backoff.
func (s *S3Storage) withRetry(ctx context.Context, op func() error) error {
	delay := s.backoff
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op()
		if err == nil {
			return nil
		}
		final, err := classify(err)
		if final || attempt >= s.retries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
