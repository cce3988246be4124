// Package conditions evaluates routing condition sets against document metadata.
package conditions

import (
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/dukex/approvals/pkg/models"
)

// Operator names accepted in a condition set.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpIn          = "in"
	OpNotIn       = "not_in"
	OpRegex       = "regex"
)

// Operators lists every supported operator.
var Operators = []string{OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan, OpIn, OpNotIn, OpRegex}

// Evaluator matches document metadata against condition sets.
// It never fails: malformed conditions evaluate to false and are logged.
type Evaluator struct {
	logger   *slog.Logger
	patterns sync.Map // pattern -> *regexp.Regexp or error
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger.With("module", "conditions")}
}

// Match reports whether every condition in set holds for metadata.
// An empty set matches any document.
func (e *Evaluator) Match(metadata map[string]any, set models.ConditionSet) bool {
	for field, spec := range set {
		if !e.matchField(metadata, field, spec) {
			return false
		}
	}

	return true
}

func (e *Evaluator) matchField(metadata map[string]any, field string, spec any) bool {
	actual, present := metadata[field]
	if !present {
		return false
	}

	ops, ok := spec.(map[string]any)
	if !ok {
		return e.apply(field, OpEquals, actual, spec)
	}

	if len(ops) == 0 {
		e.logger.Warn("Condition has no operator", "field", field)

		return false
	}

	for op, expected := range ops {
		if !e.apply(field, op, actual, expected) {
			return false
		}
	}

	return true
}

func (e *Evaluator) apply(field, op string, actual, expected any) bool {
	switch op {
	case OpEquals:
		return equal(actual, expected)
	case OpNotEquals:
		return !equal(actual, expected)
	case OpContains:
		s, ok := actual.(string)
		sub, subOK := expected.(string)

		if !ok || !subOK {
			e.mismatch(field, op, actual, expected)

			return false
		}

		return strings.Contains(s, sub)
	case OpGreaterThan, OpLessThan:
		a, ok := toFloat(actual)
		b, bOK := toFloat(expected)

		if !ok || !bOK {
			e.mismatch(field, op, actual, expected)

			return false
		}

		if op == OpGreaterThan {
			return a > b
		}

		return a < b
	case OpIn, OpNotIn:
		list, ok := toList(expected)
		if !ok {
			e.mismatch(field, op, actual, expected)

			return false
		}

		found := false

		for _, candidate := range list {
			if equal(actual, candidate) {
				found = true

				break
			}
		}

		if op == OpIn {
			return found
		}

		return !found
	case OpRegex:
		s, ok := actual.(string)
		pattern, pOK := expected.(string)

		if !ok || !pOK {
			e.mismatch(field, op, actual, expected)

			return false
		}

		re, err := e.compile(pattern)
		if err != nil {
			e.logger.Warn("Invalid regex in condition", "field", field, "pattern", pattern, "error", err)

			return false
		}

		return re.MatchString(s)
	default:
		e.logger.Warn("Unknown condition operator", "field", field, "operator", op)

		return false
	}
}

func (e *Evaluator) mismatch(field, op string, actual, expected any) {
	e.logger.Warn("Condition type mismatch",
		"field", field,
		"operator", op,
		"actual_type", fmt.Sprintf("%T", actual),
		"expected_type", fmt.Sprintf("%T", expected))
}

// compile anchors the pattern so that it must match the whole value.
func (e *Evaluator) compile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := e.patterns.Load(pattern); ok {
		switch v := cached.(type) {
		case *regexp.Regexp:
			return v, nil
		case error:
			return nil, v
		}
	}

	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		e.patterns.Store(pattern, err)

		return nil, err
	}

	e.patterns.Store(pattern, re)

	return re, nil
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}

		return false
	}

	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

func toList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}

		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out, true
}
