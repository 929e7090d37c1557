// Package contentquery implements an additive metadata_query passthrough on
// the gallery read path: a jq filter evaluated against
// a content row's item_metadata, letting a caller project or reshape
// metadata server-side instead of pulling the full blob over the wire.
package contentquery

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// Evaluator compiles and runs a jq filter against item_metadata maps.
type Evaluator struct {
	code  *gojq.Code
	query string
}

// Compile parses and compiles a jq filter string. Returns a validation
// error (not a panic) for a malformed filter, since the filter is supplied
// by the HTTP caller.
func Compile(filter string) (*Evaluator, error) {
	parsed, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata_query filter: %w", err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata_query filter: %w", err)
	}
	return &Evaluator{code: code, query: filter}, nil
}

// Run evaluates the compiled filter against one row's metadata and returns
// the first result, JSON-round-tripped so map[string]interface{} keys from
// bun's jsonb scan behave the same as a freshly decoded document.
func (e *Evaluator) Run(metadata map[string]any) (any, error) {
	normalized, err := normalize(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize metadata: %w", err)
	}

	iter := e.code.Run(normalized)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := v.(error); ok {
		return nil, fmt.Errorf("metadata_query evaluation failed: %w", err)
	}
	return v, nil
}

func normalize(metadata map[string]any) (any, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
