// Package snl builds, parses and decodes commands of the SNL key/value protocol.
//
// A command is three lines of text:
//
//	<operation>(<kind>)
//	values(<key> | [<key>, <json-payload>] | <wildcard-pattern>)
//	on(<database>.<namespace>.<entity>[.<key>])
//
// The values line is omitted when an operation carries no values.
package snl

import (
	"encoding/json"
	"fmt"
	"strings"

	tlerrors "github.com/arkilian/timeline/internal/errors"
)

// Operation is an SNL verb.
type Operation string

const (
	OpSet    Operation = "set"
	OpView   Operation = "view"
	OpList   Operation = "list"
	OpSearch Operation = "search"
	OpRemove Operation = "remove"
	OpTag    Operation = "tag"
	OpUntag  Operation = "untag"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpSet, OpView, OpList, OpSearch, OpRemove, OpTag, OpUntag:
		return true
	}
	return false
}

// Kind is the storage object kind a command addresses.
type Kind string

// KindStructure is the only kind the timeline uses.
const KindStructure Kind = "structure"

// PathSeparator joins path segments.
const PathSeparator = "."

// Wildcard matches any run of characters in a key pattern.
const Wildcard = "*"

// Values is the payload of a values(...) clause: nil, a Key or a Pair.
type Values interface {
	isValues()
}

// Key is a single key or wildcard pattern.
type Key string

func (Key) isValues() {}

// Pair is a [key, payload] tuple. Payload is JSON-encoded when the command is
// built; a parsed Pair carries the payload as json.RawMessage.
type Pair struct {
	Key     string
	Payload interface{}
}

func (Pair) isValues() {}

// Path addresses a database, namespace, entity and optionally a key.
type Path struct {
	Database  string
	Namespace string
	Entity    string
	Key       string
}

// Segments returns the non-empty trailing-trimmed segments of the path.
func (p Path) Segments() []string {
	segs := []string{p.Database, p.Namespace, p.Entity, p.Key}
	for len(segs) > 0 && segs[len(segs)-1] == "" {
		segs = segs[:len(segs)-1]
	}
	return segs
}

// String joins the path with the separator.
func (p Path) String() string {
	return strings.Join(p.Segments(), PathSeparator)
}

// Validate rejects empty interior segments and segments that cannot be
// written inside on(...).
func (p Path) Validate() error {
	segs := p.Segments()
	if len(segs) == 0 {
		return tlerrors.NewValidationError(tlerrors.CodeInvalidPath, "path must name a database")
	}
	for i, s := range segs {
		if s == "" {
			return tlerrors.NewValidationError(tlerrors.CodeInvalidPath,
				fmt.Sprintf("path segment %d is empty in %q", i, p.String()))
		}
		if !isBareWord(s) {
			return tlerrors.NewValidationError(tlerrors.CodeInvalidPath,
				fmt.Sprintf("path segment %q contains illegal characters", s))
		}
	}
	return nil
}

// ParsePath splits a dotted path into its segments.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, PathSeparator)
	if len(parts) > 4 {
		return Path{}, tlerrors.NewValidationError(tlerrors.CodeInvalidPath,
			fmt.Sprintf("path %q has more than four segments", s))
	}
	var p Path
	fields := []*string{&p.Database, &p.Namespace, &p.Entity, &p.Key}
	for i, part := range parts {
		*fields[i] = part
	}
	return p, p.Validate()
}

// Command is a typed SNL command.
type Command struct {
	Op     Operation
	Kind   Kind
	Values Values
	Path   Path
}

// String renders the command, panicking on invalid input. Use Build when the
// inputs are not known to be valid.
func (c Command) String() string {
	s, err := Build(c.Op, c.Kind, c.Values, c.Path)
	if err != nil {
		panic(err)
	}
	return s
}

// Build renders a command string. It performs no I/O.
func Build(op Operation, kind Kind, values Values, path Path) (string, error) {
	if !op.Valid() {
		return "", tlerrors.NewValidationError(tlerrors.CodeInvalidValue,
			fmt.Sprintf("unknown operation %q", op))
	}
	if kind == "" {
		kind = KindStructure
	}
	if !isBareWord(string(kind)) {
		return "", tlerrors.NewValidationError(tlerrors.CodeInvalidValue,
			fmt.Sprintf("illegal kind %q", kind))
	}
	if err := path.Validate(); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(string(op))
	sb.WriteByte('(')
	sb.WriteString(string(kind))
	sb.WriteString(")\n")

	if values != nil {
		clause, err := encodeValues(values)
		if err != nil {
			return "", err
		}
		sb.WriteString("values(")
		sb.WriteString(clause)
		sb.WriteString(")\n")
	}

	sb.WriteString("on(")
	sb.WriteString(path.String())
	sb.WriteByte(')')
	return sb.String(), nil
}

func encodeValues(v Values) (string, error) {
	switch val := v.(type) {
	case Key:
		if val == "" {
			return "", tlerrors.NewValidationError(tlerrors.CodeInvalidValue, "values key must not be empty")
		}
		return encodeKey(string(val)), nil
	case Pair:
		if val.Key == "" {
			return "", tlerrors.NewValidationError(tlerrors.CodeInvalidValue, "values key must not be empty")
		}
		payload, err := json.Marshal(val.Payload)
		if err != nil {
			return "", tlerrors.NewValidationError(tlerrors.CodeInvalidValue,
				fmt.Sprintf("payload for %q is not JSON encodable: %v", val.Key, err))
		}
		key, _ := json.Marshal(val.Key)
		return "[" + string(key) + ", " + string(payload) + "]", nil
	case *Pair:
		return encodeValues(*val)
	default:
		return "", tlerrors.NewValidationError(tlerrors.CodeInvalidValue,
			fmt.Sprintf("unsupported values type %T", v))
	}
}

// encodeKey writes bare words as-is and quotes everything else as a JSON string.
func encodeKey(k string) string {
	if isBareWord(k) {
		return k
	}
	b, _ := json.Marshal(k)
	return string(b)
}

func isBareWord(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isWordChar(s[i]) {
			return false
		}
	}
	return true
}

func isWordChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-' || c == '+' || c == '*' || c == ':':
		return true
	}
	return false
}
