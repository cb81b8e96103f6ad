package condition

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Supported comparison operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
	OpIn          = "in"
	OpNotIn       = "not_in"
)

// Logical combinators.
const (
	LogicalAnd = "and"
	LogicalOr  = "or"
)

// Condition is a single (field, operator, value) predicate. LogicalOperator
// joins it to the result accumulated from the conditions before it.
type Condition struct {
	Field           string      `json:"field" bson:"field"`
	Operator        string      `json:"operator" bson:"operator"`
	Value           interface{} `json:"value" bson:"value"`
	LogicalOperator string      `json:"logical_operator,omitempty" bson:"logical_operator,omitempty"`
}

var operators = map[string]bool{
	OpEquals: true, OpNotEquals: true, OpGreaterThan: true, OpLessThan: true,
	OpContains: true, OpIn: true, OpNotIn: true,
}

// Validate rejects conditions the evaluator cannot interpret.
func Validate(conditions []Condition) error {
	for i, c := range conditions {
		if strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("condition %d: field is required", i)
		}
		if !operators[c.Operator] {
			return fmt.Errorf("condition %d: unknown operator: %s", i, c.Operator)
		}
		switch strings.ToLower(c.LogicalOperator) {
		case "", LogicalAnd, LogicalOr:
		default:
			return fmt.Errorf("condition %d: unknown logical operator: %s", i, c.LogicalOperator)
		}
	}
	return nil
}

// Evaluate folds conditions left to right. There is no precedence grouping:
// "a or b and c" evaluates as "(a or b) and c". An empty list is true.
func Evaluate(conditions []Condition, data map[string]interface{}) bool {
	if len(conditions) == 0 {
		return true
	}
	result := false
	for i, c := range conditions {
		matched := Match(c, data)
		if i == 0 {
			result = matched
			continue
		}
		if strings.ToLower(c.LogicalOperator) == LogicalOr {
			result = result || matched
		} else {
			result = result && matched
		}
	}
	return result
}

// Match evaluates one condition against data.
func Match(c Condition, data map[string]interface{}) bool {
	actual, exists := lookup(data, c.Field)
	if !exists || actual == nil {
		return c.Operator == OpNotEquals || c.Operator == OpNotIn
	}

	switch c.Operator {
	case OpEquals:
		return equal(actual, c.Value)
	case OpNotEquals:
		return !equal(actual, c.Value)
	case OpGreaterThan:
		cmp, ok := compare(actual, c.Value)
		return ok && cmp > 0
	case OpLessThan:
		cmp, ok := compare(actual, c.Value)
		return ok && cmp < 0
	case OpContains:
		return contains(actual, c.Value)
	case OpIn:
		return memberOf(actual, c.Value)
	case OpNotIn:
		return !memberOf(actual, c.Value)
	default:
		return false
	}
}

// lookup resolves dotted paths ("details.days") through nested maps.
func lookup(data map[string]interface{}, field string) (interface{}, bool) {
	if data == nil {
		return nil, false
	}
	if v, ok := data[field]; ok {
		return v, true
	}
	var current interface{} = data
	for _, part := range strings.Split(field, ".") {
		rv := reflect.ValueOf(current)
		if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		next := rv.MapIndex(reflect.ValueOf(part).Convert(rv.Type().Key()))
		if !next.IsValid() {
			return nil, false
		}
		current = next.Interface()
	}
	return current, true
}

func equal(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := toBool(b); ok {
			return ba == bb
		}
	}
	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			return ta.Equal(tb)
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compare returns -1/0/1 and false when the values are not ordered.
func compare(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if ta, ok := toTime(a); ok {
		tb, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func contains(actual, value interface{}) bool {
	if s, ok := actual.(string); ok {
		return strings.Contains(strings.ToLower(s), strings.ToLower(fmt.Sprintf("%v", value)))
	}
	for _, item := range asList(actual) {
		if equal(item, value) {
			return true
		}
	}
	return false
}

func memberOf(actual, list interface{}) bool {
	items := asList(list)
	if items == nil {
		if s, ok := list.(string); ok {
			for _, part := range strings.Split(s, ",") {
				items = append(items, strings.TrimSpace(part))
			}
		}
	}
	for _, item := range items {
		if equal(actual, item) {
			return true
		}
	}
	return false
}

func asList(v interface{}) []interface{} {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
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
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	return false, false
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse("2006-01-02", t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// Clone returns a deep copy of conditions.
func Clone(conditions []Condition) []Condition {
	if conditions == nil {
		return nil
	}
	out := make([]Condition, len(conditions))
	for i, c := range conditions {
		c.Value = CloneValue(c.Value)
		out[i] = c
	}
	return out
}

// CloneValue deep-copies the maps and slices found in decoded request data.
// Other values are returned as is.
func CloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return CloneMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	}
	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Kind() == reflect.Slice && !rv.IsNil() {
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item := CloneValue(rv.Index(i).Interface())
			if item == nil {
				continue
			}
			out.Index(i).Set(reflect.ValueOf(item))
		}
		return out.Interface()
	}
	return v
}

// CloneMap deep-copies a request payload.
func CloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}
