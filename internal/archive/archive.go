// Package archive writes purge candidates to object storage as
// snappy-compressed JSON lines before they are deleted.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/arkilian/timeline/internal/storage"
	"github.com/arkilian/timeline/pkg/types"
)

// DefaultPrefix is the object path prefix of archives.
const DefaultPrefix = "archive"

// Extension is the suffix of every archive object.
const Extension = ".jsonl.sz"

const timestampLayout = "20060102T150405"

// Archiver writes one object per Archive call to
// <prefix>/<namespace>/<yyyymmddThhmmss>-<uuid>.jsonl.sz.
type Archiver struct {
	storage storage.ObjectStorage
	prefix  string
	now     func() time.Time
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithPrefix sets the object path prefix.
func WithPrefix(prefix string) Option {
	return func(a *Archiver) {
		if prefix != "" {
			a.prefix = prefix
		}
	}
}

// WithClock overrides the time used in object names.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// New creates an archiver writing to store.
func New(store storage.ObjectStorage, opts ...Option) *Archiver {
	a := &Archiver{storage: store, prefix: DefaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Archive writes entries and returns the object path. Nothing is written for
// an empty batch.
func (a *Archiver) Archive(ctx context.Context, namespace string, entries []*types.Entry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	data, err := Encode(entries)
	if err != nil {
		return "", err
	}
	objectPath := path.Join(a.prefix, namespace,
		fmt.Sprintf("%s-%s%s", a.now().UTC().Format(timestampLayout), uuid.New().String(), Extension))
	if err := a.storage.PutIfAbsent(ctx, objectPath, data); err != nil {
		return "", fmt.Errorf("archive: write %s: %w", objectPath, err)
	}
	return objectPath, nil
}

// List returns the archive objects of a namespace, oldest first.
func (a *Archiver) List(ctx context.Context, namespace string) ([]string, error) {
	return a.storage.ListObjects(ctx, path.Join(a.prefix, namespace)+"/")
}

// Read loads the entries of one archive object.
func (a *Archiver) Read(ctx context.Context, objectPath string) ([]*types.Entry, error) {
	data, err := a.storage.Get(ctx, objectPath)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", objectPath, err)
	}
	return Decode(data)
}

// Encode renders entries as snappy-framed JSON lines.
func Encode(entries []*types.Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("archive: encode entry %s: %w", e.ID, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("archive: compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses data produced by Encode.
func Decode(data []byte) ([]*types.Entry, error) {
	r := bufio.NewReader(snappy.NewReader(bytes.NewReader(data)))
	dec := json.NewDecoder(r)
	var out []*types.Entry
	for {
		var e types.Entry
		err := dec.Decode(&e)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("archive: decode line %d: %w", len(out)+1, err)
		}
		out = append(out, &e)
	}
}
