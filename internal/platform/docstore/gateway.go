// Package docstore is the remote document gateway the store reads and writes
// through. Backends are interchangeable: PostgreSQL JSONB, MongoDB, or an
// in-process map for tests and local development.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
)

// Document is a schemaless record. The "id" key always holds the document id.
type Document map[string]interface{}

// ID returns the document id, or "" when absent.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

type Operator string

const (
	OpEqual    Operator = "=="
	OpNotEqual Operator = "!="
	OpIn       Operator = "in"
)

// Filter restricts a query to documents whose Field compares to Value.
type Filter struct {
	Field string
	Op    Operator
	Value interface{}
}

// Where builds a Filter.
func Where(field string, op Operator, value interface{}) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document already exists")
)

// Gateway is the document database contract consumed by the store.
type Gateway interface {
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	// Create stores doc and returns its id. When doc carries a non-empty "id"
	// it is used as the key, otherwise one is generated.
	Create(ctx context.Context, collection string, doc Document) (string, error)
	// Update merges patch into the top-level fields of an existing document.
	Update(ctx context.Context, collection, id string, patch Document) error
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
var collectionPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateCollection rejects collection names that could not be used as a
// table or collection identifier.
func ValidateCollection(name string) error {
	if !collectionPattern.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

// Validate checks the filter is well-formed.
func (f Filter) Validate() error {
	if !fieldPattern.MatchString(f.Field) {
		return fmt.Errorf("invalid filter field %q", f.Field)
	}
	switch f.Op {
	case OpEqual, OpNotEqual:
		return nil
	case OpIn:
		if _, ok := normalize(f.Value).([]interface{}); !ok {
			return fmt.Errorf("filter %q: operator in needs a list value", f.Field)
		}
		return nil
	}
	return fmt.Errorf("filter %q: unsupported operator %q", f.Field, f.Op)
}

func validateFilters(filters []Filter) error {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Match evaluates the filter against doc. Values are compared after a JSON
// round trip so typed values (for example a named string type) compare equal
// to what a backend would return.
func (f Filter) Match(doc Document) bool {
	got := normalize(doc[f.Field])
	want := normalize(f.Value)
	switch f.Op {
	case OpEqual:
		return reflect.DeepEqual(got, want)
	case OpNotEqual:
		return !reflect.DeepEqual(got, want)
	case OpIn:
		list, _ := want.([]interface{})
		for _, v := range list {
			if reflect.DeepEqual(got, v) {
				return true
			}
		}
	}
	return false
}

// MatchAll reports whether doc satisfies every filter.
func MatchAll(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(doc) {
			return false
		}
	}
	return true
}

func normalize(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// Clone deep-copies a document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out, _ := normalize(map[string]interface{}(d)).(map[string]interface{})
	return Document(out)
}
