package engine

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShards is the shard count used when NewMemoryBackend gets n <= 0.
const DefaultShards = 16

// MemoryBackend keeps records in maps sharded by namespace. All entities of
// a namespace live in the same shard.
type MemoryBackend struct {
	shards []*memoryShard
}

type memoryShard struct {
	mu       sync.RWMutex
	entities map[Loc]map[string]json.RawMessage
}

// NewMemoryBackend creates a backend with n shards.
func NewMemoryBackend(n int) *MemoryBackend {
	if n <= 0 {
		n = DefaultShards
	}
	b := &MemoryBackend{shards: make([]*memoryShard, n)}
	for i := range b.shards {
		b.shards[i] = &memoryShard{entities: make(map[Loc]map[string]json.RawMessage)}
	}
	return b
}

func (b *MemoryBackend) shard(database, namespace string) *memoryShard {
	h := murmur3.Sum32([]byte(database + "." + namespace))
	return b.shards[h%uint32(len(b.shards))]
}

func (b *MemoryBackend) Put(_ context.Context, loc Loc, key string, payload json.RawMessage) error {
	s := b.shard(loc.Database, loc.Namespace)
	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.entities[loc]
	if !ok {
		records = make(map[string]json.RawMessage)
		s.entities[loc] = records
	}
	records[key] = append(json.RawMessage(nil), payload...)
	return nil
}

func (b *MemoryBackend) Scan(_ context.Context, loc Loc, p *Pattern) ([]Record, bool, error) {
	s := b.shard(loc.Database, loc.Namespace)
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.entities[loc]
	if !ok {
		return nil, false, nil
	}
	out := make([]Record, 0)
	for k, v := range records {
		if p.Match(k) {
			out = append(out, Record{Key: k, Payload: append(json.RawMessage(nil), v...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, true, nil
}

func (b *MemoryBackend) Delete(_ context.Context, loc Loc, key string) (bool, error) {
	s := b.shard(loc.Database, loc.Namespace)
	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.entities[loc]
	if !ok {
		return false, nil
	}
	if _, ok := records[key]; !ok {
		return false, nil
	}
	delete(records, key)
	if len(records) == 0 {
		delete(s.entities, loc)
	}
	return true, nil
}

func (b *MemoryBackend) Entities(_ context.Context, database, namespace string) ([]string, error) {
	s := b.shard(database, namespace)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for loc := range s.entities {
		if loc.Database == database && loc.Namespace == namespace {
			names = append(names, loc.Entity)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (b *MemoryBackend) Close() error { return nil }
