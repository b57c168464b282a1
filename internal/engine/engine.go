// Package engine executes SNL commands against a record backend. It is the
// server side of the protocol spoken by the timeline store.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/arkilian/timeline/internal/snl"
)

// Engine parses and executes SNL commands.
type Engine struct {
	backend Backend
	tokens  map[string]struct{}
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokens restricts execution to the given credentials. Without tokens
// every credential is accepted.
func WithTokens(tokens ...string) Option {
	return func(e *Engine) {
		for _, t := range tokens {
			if t != "" {
				e.tokens[t] = struct{}{}
			}
		}
	}
}

// WithLogger sets the logger used for per-command debug output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine over backend.
func New(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		tokens:  make(map[string]struct{}),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close closes the backend.
func (e *Engine) Close() error {
	return e.backend.Close()
}

// Execute implements snl.Executor.
func (e *Engine) Execute(ctx context.Context, command, credential string) (snl.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(e.tokens) > 0 {
		if _, ok := e.tokens[credential]; !ok {
			return nil, errorf(CodeUnauthorized, "credential rejected")
		}
	}

	cmd, err := snl.Parse(command)
	if err != nil {
		return nil, errorf(CodeBadCommand, "%v", err)
	}
	if cmd.Kind != snl.KindStructure {
		return nil, errorf(CodeBadCommand, "unsupported kind %q", cmd.Kind)
	}

	start := time.Now()
	resp, err := e.dispatch(ctx, cmd)
	e.logger.Debug("snl command",
		"op", string(cmd.Op),
		"path", cmd.Path.String(),
		"duration", time.Since(start),
		"code", string(CodeOf(err)))
	return resp, err
}

func (e *Engine) dispatch(ctx context.Context, cmd *snl.Command) (snl.Response, error) {
	if cmd.Op == snl.OpList {
		return e.list(ctx, cmd)
	}
	if cmd.Path.Entity == "" {
		return nil, errorf(CodeBadCommand, "%s needs an entity path, got %q", cmd.Op, cmd.Path.String())
	}
	loc := Loc{Database: cmd.Path.Database, Namespace: cmd.Path.Namespace, Entity: cmd.Path.Entity}

	switch cmd.Op {
	case snl.OpSet:
		return e.set(ctx, loc, cmd)
	case snl.OpView:
		return e.view(ctx, loc, cmd)
	case snl.OpSearch:
		return e.search(ctx, loc, cmd)
	case snl.OpRemove:
		return e.remove(ctx, loc, cmd)
	case snl.OpTag, snl.OpUntag:
		return e.retag(ctx, loc, cmd)
	default:
		return nil, errorf(CodeBadCommand, "unsupported operation %q", cmd.Op)
	}
}

func (e *Engine) set(ctx context.Context, loc Loc, cmd *snl.Command) (snl.Response, error) {
	pair, ok := cmd.Values.(snl.Pair)
	if !ok {
		return nil, errorf(CodeBadCommand, "set needs a [key, payload] value")
	}
	payload, _ := pair.Payload.(json.RawMessage)
	if err := e.backend.Put(ctx, loc, pair.Key, payload); err != nil {
		return nil, errorf(CodeInternal, "%v", err)
	}
	return respond(map[string]json.RawMessage{pair.Key: payload})
}

func (e *Engine) view(ctx context.Context, loc Loc, cmd *snl.Command) (snl.Response, error) {
	p, err := selector(cmd)
	if err != nil {
		return nil, err
	}
	records, err := e.scan(ctx, loc, p)
	if err != nil {
		return nil, err
	}
	if cmd.Path.Key != "" && len(records) == 0 {
		return nil, errorf(CodeNotFound, "key %s does not exist", cmd.Path.Key)
	}
	return respondRecords(records)
}

func (e *Engine) list(ctx context.Context, cmd *snl.Command) (snl.Response, error) {
	path := cmd.Path
	switch {
	case path.Namespace == "":
		return nil, errorf(CodeBadCommand, "list needs a namespace or entity path")
	case path.Entity == "":
		names, err := e.backend.Entities(ctx, path.Database, path.Namespace)
		if err != nil {
			return nil, errorf(CodeInternal, "%v", err)
		}
		if len(names) == 0 {
			return nil, errorf(CodeNotFound, "namespace %s has no entities", path.Namespace)
		}
		return respond(names)
	default:
		loc := Loc{Database: path.Database, Namespace: path.Namespace, Entity: path.Entity}
		records, err := e.scan(ctx, loc, MatchAll)
		if err != nil {
			return nil, err
		}
		keys := make([]string, len(records))
		for i, r := range records {
			keys[i] = r.Key
		}
		return respond(keys)
	}
}

func (e *Engine) search(ctx context.Context, loc Loc, cmd *snl.Command) (snl.Response, error) {
	term, ok := cmd.Values.(snl.Key)
	if !ok || term == "" {
		return nil, errorf(CodeBadCommand, "search needs a term")
	}
	records, err := e.scan(ctx, loc, MatchAll)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(string(term))
	hits := records[:0]
	for _, r := range records {
		if containsText(r.Payload, needle) {
			hits = append(hits, r)
		}
	}
	return respondRecords(hits)
}

func (e *Engine) remove(ctx context.Context, loc Loc, cmd *snl.Command) (snl.Response, error) {
	if cmd.Values == nil && cmd.Path.Key == "" {
		return nil, errorf(CodeBadCommand, "remove needs a key or pattern")
	}
	p, err := selector(cmd)
	if err != nil {
		return nil, err
	}
	records, err := e.scan(ctx, loc, p)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errorf(CodeNotFound, "nothing matches %q in %s", p.String(), loc.Entity)
	}

	removed := make(map[string]bool, len(records))
	for _, r := range records {
		ok, err := e.backend.Delete(ctx, loc, r.Key)
		if err != nil {
			return nil, errorf(CodeInternal, "%v", err)
		}
		if ok {
			removed[r.Key] = true
		}
	}
	return respond(removed)
}

func (e *Engine) retag(ctx context.Context, loc Loc, cmd *snl.Command) (snl.Response, error) {
	pair, ok := cmd.Values.(snl.Pair)
	if !ok {
		return nil, errorf(CodeBadCommand, "%s needs a [key, tags] value", cmd.Op)
	}
	raw, _ := pair.Payload.(json.RawMessage)
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, errorf(CodeBadCommand, "%s payload must be an array of strings", cmd.Op)
	}

	records, err := e.scan(ctx, loc, Exact(pair.Key))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errorf(CodeNotFound, "key %s does not exist", pair.Key)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(records[0].Payload, &doc); err != nil || doc == nil {
		return nil, errorf(CodeBadCommand, "record %s is not an object", pair.Key)
	}
	var current []string
	if existing, ok := doc["tags"]; ok {
		// a null or malformed tags field is treated as empty
		_ = json.Unmarshal(existing, &current)
	}
	if cmd.Op == snl.OpTag {
		current = mergeTags(current, tags)
	} else {
		current = dropTags(current, tags)
	}
	encoded, err := json.Marshal(current)
	if err != nil {
		return nil, errorf(CodeInternal, "%v", err)
	}
	doc["tags"] = encoded

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, errorf(CodeInternal, "%v", err)
	}
	if err := e.backend.Put(ctx, loc, pair.Key, payload); err != nil {
		return nil, errorf(CodeInternal, "%v", err)
	}
	return respond(map[string]json.RawMessage{pair.Key: payload})
}

// scan returns not_found when the entity does not exist.
func (e *Engine) scan(ctx context.Context, loc Loc, p *Pattern) ([]Record, error) {
	records, exists, err := e.backend.Scan(ctx, loc, p)
	if err != nil {
		return nil, errorf(CodeInternal, "%v", err)
	}
	if !exists {
		return nil, errorf(CodeNotFound, "entity %s does not exist", loc.Entity)
	}
	return records, nil
}

// selector picks the key pattern of a view or remove command. A key in the
// path takes precedence over the values clause.
func selector(cmd *snl.Command) (*Pattern, error) {
	if cmd.Path.Key != "" {
		return Exact(cmd.Path.Key), nil
	}
	switch v := cmd.Values.(type) {
	case nil:
		return MatchAll, nil
	case snl.Key:
		p, err := CompilePattern(string(v))
		if err != nil {
			return nil, errorf(CodeBadCommand, "bad pattern %q: %v", v, err)
		}
		return p, nil
	default:
		return nil, errorf(CodeBadCommand, "%s takes a key or pattern", cmd.Op)
	}
}

func mergeTags(current, add []string) []string {
	seen := make(map[string]struct{}, len(current))
	out := make([]string, 0, len(current)+len(add))
	for _, t := range append(append([]string(nil), current...), add...) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func dropTags(current, drop []string) []string {
	skip := make(map[string]struct{}, len(drop))
	for _, t := range drop {
		skip[t] = struct{}{}
	}
	out := make([]string, 0, len(current))
	for _, t := range current {
		if _, ok := skip[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// containsText reports whether any string value in payload contains needle,
// ignoring case. needle must already be lower case.
func containsText(payload json.RawMessage, needle string) bool {
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return strings.Contains(strings.ToLower(string(payload)), needle)
	}
	return walkStrings(v, func(s string) bool {
		return strings.Contains(strings.ToLower(s), needle)
	})
}

func walkStrings(v interface{}, fn func(string) bool) bool {
	switch val := v.(type) {
	case string:
		return fn(val)
	case []interface{}:
		for _, item := range val {
			if walkStrings(item, fn) {
				return true
			}
		}
	case map[string]interface{}:
		for _, item := range val {
			if walkStrings(item, fn) {
				return true
			}
		}
	}
	return false
}

func respondRecords(records []Record) (snl.Response, error) {
	out := make(map[string]json.RawMessage, len(records))
	for _, r := range records {
		out[r.Key] = r.Payload
	}
	return respond(out)
}

func respond(v interface{}) (snl.Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errorf(CodeInternal, "encode response: %v", err)
	}
	return snl.Response(b), nil
}
