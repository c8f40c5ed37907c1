package rehab

import (
	"encoding/json"
	"fmt"

	"github.com/rehab/rehab/internal/platform/docstore"
)

// Encode converts a record into a gateway document using its JSON field names.
// Fields tagged omitempty that are unset are left out, which makes patch
// structs with pointer fields encode to partial documents.
func Encode(v interface{}) (docstore.Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc docstore.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode fills v from a gateway document.
func Decode(doc docstore.Document, v interface{}) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode document %v: %w", doc["id"], err)
	}
	return nil
}

// DecodeAll decodes every document it can. Documents that fail to decode are
// skipped and reported in the second return value.
func DecodeAll[T any](docs []docstore.Document) ([]T, []error) {
	out := make([]T, 0, len(docs))
	var errs []error
	for _, d := range docs {
		var v T
		if err := Decode(d, &v); err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, v)
	}
	return out, errs
}
