package snl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	tlerrors "github.com/arkilian/timeline/internal/errors"
)

// Response is the raw JSON returned by an executor. An empty, null or
// non-object response means "no results".
type Response json.RawMessage

// IsEmpty reports whether the response carries no data.
func (r Response) IsEmpty() bool {
	trimmed := bytes.TrimSpace(r)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Record is a decoded payload together with its storage key.
type Record[T any] struct {
	Key   string
	Value T
}

// idField is the field set from the storage key when a payload lacks one.
const idField = "id"

// objectOf returns the response as a key/payload map, or nil when it is not
// a JSON object.
func (r Response) objectOf() map[string]json.RawMessage {
	trimmed := bytes.TrimSpace(r)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil
	}
	return m
}

// DecodeRecords decodes every key/payload pair of the response, ordered by
// key ascending. Each payload that is an object without a non-empty id gets
// its storage key as id.
func DecodeRecords[T any](resp Response) ([]Record[T], error) {
	m := resp.objectOf()
	if len(m) == 0 {
		return []Record[T]{}, nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]Record[T], 0, len(keys))
	for _, k := range keys {
		v, err := decodePayload[T](k, m[k])
		if err != nil {
			return nil, err
		}
		records = append(records, Record[T]{Key: k, Value: v})
	}
	return records, nil
}

// DecodeRecord decodes the payload stored under key. An empty key selects
// the lowest key in the response. It returns nil when there is no match.
func DecodeRecord[T any](resp Response, key string) (*T, error) {
	m := resp.objectOf()
	if len(m) == 0 {
		return nil, nil
	}
	if key == "" {
		for k := range m {
			if key == "" || k < key {
				key = k
			}
		}
	}
	raw, ok := m[key]
	if !ok {
		return nil, nil
	}
	v, err := decodePayload[T](key, raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// DecodeKeys returns the keys of an object response or the strings of an
// array response. Anything else yields no keys.
func DecodeKeys(resp Response) []string {
	trimmed := bytes.TrimSpace(resp)
	if len(trimmed) == 0 {
		return []string{}
	}
	switch trimmed[0] {
	case '{':
		m := resp.objectOf()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return []string{}
		}
		keys := make([]string, 0, len(items))
		for _, item := range items {
			var s string
			if err := json.Unmarshal(item, &s); err == nil {
				keys = append(keys, s)
			}
		}
		return keys
	}
	return []string{}
}

func decodePayload[T any](key string, raw json.RawMessage) (T, error) {
	var v T
	payload, err := withID(key, raw)
	if err != nil {
		return v, tlerrors.NewDecodeError(fmt.Sprintf("payload under %q", key), err)
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, tlerrors.NewDecodeError(fmt.Sprintf("payload under %q", key), err)
	}
	return v, nil
}

// withID injects "id": key into an object payload when the id is missing or
// empty. Non-object payloads are returned unchanged.
func withID(key string, raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	if existing, ok := obj[idField]; ok {
		var id string
		if json.Unmarshal(existing, &id) == nil && id != "" {
			return raw, nil
		}
	}
	encoded, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}
	obj[idField] = encoded
	return json.Marshal(obj)
}
