package conditions

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dukex/approvals/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidConditionSet is returned when a condition set does not follow the operator schema.
var ErrInvalidConditionSet = errors.New("invalid condition set")

var conditionSetSchema = map[string]any{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type":    "object",
	"additionalProperties": map[string]any{
		"anyOf": []any{
			map[string]any{"type": []any{"string", "number", "boolean"}},
			map[string]any{
				"type":          "object",
				"minProperties": 1,
				"properties": map[string]any{
					OpEquals:      map[string]any{},
					OpNotEquals:   map[string]any{},
					OpContains:    map[string]any{"type": "string"},
					OpGreaterThan: map[string]any{"type": "number"},
					OpLessThan:    map[string]any{"type": "number"},
					OpIn:          map[string]any{"type": "array"},
					OpNotIn:       map[string]any{"type": "array"},
					OpRegex:       map[string]any{"type": "string", "format": "regex"},
				},
				"additionalProperties": false,
			},
		},
	},
}

var (
	compiledSchema *gojsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func schema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(conditionSetSchema))
	})

	return compiledSchema, compileErr
}

// ValidateSet checks a condition set against the operator schema. It is meant for
// authoring time; evaluation stays tolerant of sets that would fail here.
func ValidateSet(set models.ConditionSet) error {
	if len(set) == 0 {
		return nil
	}

	s, err := schema()
	if err != nil {
		return fmt.Errorf("failed to compile condition schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(map[string]any(set)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConditionSet, err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidConditionSet, strings.Join(messages, "; "))
}
