package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	data := map[string]interface{}{
		"amount":   1500.0,
		"days":     3,
		"category": "travel",
		"tags":     []interface{}{"urgent", "hr"},
		"details":  map[string]interface{}{"region": "west"},
		"remote":   true,
	}

	tests := []struct {
		name       string
		conditions []Condition
		want       bool
	}{
		{name: "empty list passes", conditions: nil, want: true},
		{
			name:       "equals numeric across types",
			conditions: []Condition{{Field: "days", Operator: OpEquals, Value: 3.0}},
			want:       true,
		},
		{
			name:       "not equals",
			conditions: []Condition{{Field: "category", Operator: OpNotEquals, Value: "meals"}},
			want:       true,
		},
		{
			name:       "greater than",
			conditions: []Condition{{Field: "amount", Operator: OpGreaterThan, Value: 1000}},
			want:       true,
		},
		{
			name:       "less than fails",
			conditions: []Condition{{Field: "amount", Operator: OpLessThan, Value: 1000}},
			want:       false,
		},
		{
			name:       "contains in slice",
			conditions: []Condition{{Field: "tags", Operator: OpContains, Value: "hr"}},
			want:       true,
		},
		{
			name:       "contains in string is case insensitive",
			conditions: []Condition{{Field: "category", Operator: OpContains, Value: "TRAV"}},
			want:       true,
		},
		{
			name:       "in list",
			conditions: []Condition{{Field: "category", Operator: OpIn, Value: []interface{}{"travel", "meals"}}},
			want:       true,
		},
		{
			name:       "in comma separated string",
			conditions: []Condition{{Field: "category", Operator: OpIn, Value: "meals, travel"}},
			want:       true,
		},
		{
			name:       "not in list",
			conditions: []Condition{{Field: "category", Operator: OpNotIn, Value: []string{"meals"}}},
			want:       true,
		},
		{
			name:       "nested field",
			conditions: []Condition{{Field: "details.region", Operator: OpEquals, Value: "west"}},
			want:       true,
		},
		{
			name:       "bool equals string",
			conditions: []Condition{{Field: "remote", Operator: OpEquals, Value: "true"}},
			want:       true,
		},
		{
			name:       "missing field fails equals",
			conditions: []Condition{{Field: "missing", Operator: OpEquals, Value: "x"}},
			want:       false,
		},
		{
			name:       "missing field passes not_in",
			conditions: []Condition{{Field: "missing", Operator: OpNotIn, Value: []string{"x"}}},
			want:       true,
		},
		{
			name: "and combination",
			conditions: []Condition{
				{Field: "amount", Operator: OpGreaterThan, Value: 1000},
				{Field: "category", Operator: OpEquals, Value: "meals", LogicalOperator: LogicalAnd},
			},
			want: false,
		},
		{
			name: "or combination",
			conditions: []Condition{
				{Field: "amount", Operator: OpLessThan, Value: 1000},
				{Field: "category", Operator: OpEquals, Value: "travel", LogicalOperator: LogicalOr},
			},
			want: true,
		},
		{
			// (true or false) and false => false; precedence grouping would give true.
			name: "left to right without precedence",
			conditions: []Condition{
				{Field: "category", Operator: OpEquals, Value: "travel"},
				{Field: "days", Operator: OpGreaterThan, Value: 10, LogicalOperator: LogicalOr},
				{Field: "remote", Operator: OpEquals, Value: false, LogicalOperator: LogicalAnd},
			},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.conditions, data))
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate([]Condition{{Field: "a", Operator: OpIn, Value: []int{1}}}))
	assert.Error(t, Validate([]Condition{{Field: "", Operator: OpEquals}}))
	assert.Error(t, Validate([]Condition{{Field: "a", Operator: "eq"}}))
	assert.Error(t, Validate([]Condition{{Field: "a", Operator: OpEquals, LogicalOperator: "xor"}}))
}

func TestCloneMapIsDeep(t *testing.T) {
	src := map[string]interface{}{
		"amount": 120,
		"trip":   map[string]interface{}{"city": "Lyon", "nights": []interface{}{1, 2}},
		"tags":   []string{"urgent"},
	}
	dst := CloneMap(src)

	dst["trip"].(map[string]interface{})["city"] = "Paris"
	dst["trip"].(map[string]interface{})["nights"].([]interface{})[0] = 9
	dst["tags"].([]string)[0] = "late"

	assert.Equal(t, "Lyon", src["trip"].(map[string]interface{})["city"])
	assert.Equal(t, 1, src["trip"].(map[string]interface{})["nights"].([]interface{})[0])
	assert.Equal(t, "urgent", src["tags"].([]string)[0])

	conds := []Condition{{Field: "a", Operator: OpIn, Value: []interface{}{"x"}}}
	cloned := Clone(conds)
	cloned[0].Value.([]interface{})[0] = "y"
	assert.Equal(t, "x", conds[0].Value.([]interface{})[0])
}
