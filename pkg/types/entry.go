// Package types provides the core data types of the timeline.
package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// Category classifies what kind of activity an entry records.
type Category string

const (
	CategoryGeneral  Category = "general"
	CategoryAI       Category = "ai"
	CategoryWorkflow Category = "workflow"
	CategoryCommand  Category = "command"
	CategorySecurity Category = "security"
	CategoryConfig   Category = "config"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryGeneral, CategoryAI, CategoryWorkflow,
	CategoryCommand, CategorySecurity, CategoryConfig,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Status is the outcome of a recorded activity.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusSuccess, StatusError, StatusPending, StatusCancelled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Value is an opaque JSON document carried verbatim through the store.
// A nil Value marshals as null.
type Value = json.RawMessage

// Entry is one recorded activity on a user's timeline.
type Entry struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
	AIName    string `json:"aiName"`

	Action   string   `json:"action"`
	Category Category `json:"category"`

	InputData     Value  `json:"inputData,omitempty"`
	OutputData    Value  `json:"outputData,omitempty"`
	InputSummary  string `json:"inputSummary,omitempty"`
	OutputSummary string `json:"outputSummary,omitempty"`

	Status       Status  `json:"status"`
	ErrorMessage *string `json:"errorMessage,omitempty"`
	// Duration is the elapsed time in milliseconds.
	Duration int64 `json:"duration"`

	Metadata          Value    `json:"metadata,omitempty"`
	Tags              []string `json:"tags"`
	IsSystemGenerated bool     `json:"isSystemGenerated"`

	CreatedAt time.Time `json:"createdAt"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Day       int       `json:"day"`
	Hour      int       `json:"hour"`
	Minute    int       `json:"minute"`
}

// EntryInput holds the caller-supplied fields of a new entry.
type EntryInput struct {
	UserID            string
	UserEmail         string
	AIName            string
	Action            string
	Category          Category
	InputData         Value
	OutputData        Value
	InputSummary      string
	OutputSummary     string
	Status            Status
	ErrorMessage      string
	Duration          int64
	Metadata          Value
	Tags              []string
	IsSystemGenerated bool
	// CreatedAt defaults to the current time when zero.
	CreatedAt time.Time
}

// NewEntry builds an in-memory entry, generating its ID and fixing the
// temporal components from CreatedAt. The entry is not validated.
func NewEntry(in EntryInput) *Entry {
	created := in.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	created = created.UTC()

	category := in.Category
	if category == "" {
		category = CategoryGeneral
	}
	status := in.Status
	if status == "" {
		status = StatusSuccess
	}

	e := &Entry{
		ID:                NewEntryID(created),
		UserID:            in.UserID,
		UserEmail:         in.UserEmail,
		AIName:            in.AIName,
		Action:            in.Action,
		Category:          category,
		InputData:         cloneValue(in.InputData),
		OutputData:        cloneValue(in.OutputData),
		InputSummary:      in.InputSummary,
		OutputSummary:     in.OutputSummary,
		Status:            status,
		Duration:          in.Duration,
		Metadata:          cloneValue(in.Metadata),
		Tags:              UniqueTags(in.Tags),
		IsSystemGenerated: in.IsSystemGenerated,
		CreatedAt:         created,
		Year:              created.Year(),
		Month:             int(created.Month()),
		Day:               created.Day(),
		Hour:              created.Hour(),
		Minute:            created.Minute(),
	}
	if status == StatusError && in.ErrorMessage != "" {
		msg := in.ErrorMessage
		e.ErrorMessage = &msg
	}
	return e
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.InputData = cloneValue(e.InputData)
	cp.OutputData = cloneValue(e.OutputData)
	cp.Metadata = cloneValue(e.Metadata)
	if e.Tags != nil {
		cp.Tags = append([]string(nil), e.Tags...)
	}
	if e.ErrorMessage != nil {
		msg := *e.ErrorMessage
		cp.ErrorMessage = &msg
	}
	return &cp
}

// Error returns the error message or "" when none is set.
func (e *Entry) Error() string {
	if e.ErrorMessage == nil {
		return ""
	}
	return *e.ErrorMessage
}

// HasTag reports whether the entry carries tag.
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Equal reports whether two entries hold the same data. Opaque values are
// compared after JSON compaction, timestamps with time.Equal.
func (e *Entry) Equal(o *Entry) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.ID != o.ID || e.UserID != o.UserID || e.UserEmail != o.UserEmail ||
		e.AIName != o.AIName || e.Action != o.Action || e.Category != o.Category ||
		e.InputSummary != o.InputSummary || e.OutputSummary != o.OutputSummary ||
		e.Status != o.Status || e.Error() != o.Error() || e.Duration != o.Duration ||
		e.IsSystemGenerated != o.IsSystemGenerated || !e.CreatedAt.Equal(o.CreatedAt) ||
		e.Year != o.Year || e.Month != o.Month || e.Day != o.Day ||
		e.Hour != o.Hour || e.Minute != o.Minute {
		return false
	}
	if (e.ErrorMessage == nil) != (o.ErrorMessage == nil) {
		return false
	}
	if len(e.Tags) != len(o.Tags) {
		return false
	}
	for i := range e.Tags {
		if e.Tags[i] != o.Tags[i] {
			return false
		}
	}
	return sameValue(e.InputData, o.InputData) &&
		sameValue(e.OutputData, o.OutputData) &&
		sameValue(e.Metadata, o.Metadata)
}

// UniqueTags drops duplicate and empty tags, keeping first-seen order.
func UniqueTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func cloneValue(v Value) Value {
	if v == nil {
		return nil
	}
	return append(Value(nil), v...)
}

func sameValue(a, b Value) bool {
	if isNull(a) || isNull(b) {
		return isNull(a) == isNull(b)
	}
	var ca, cb bytes.Buffer
	if err := json.Compact(&ca, a); err != nil {
		return bytes.Equal(a, b)
	}
	if err := json.Compact(&cb, b); err != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

func isNull(v Value) bool {
	return len(bytes.TrimSpace(v)) == 0 || string(bytes.TrimSpace(v)) == "null"
}
