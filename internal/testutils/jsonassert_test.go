//go:build test

package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONAsserter_DefaultOptions(t *testing.T) {
	opts := NewJSONAsserter(t).Options()

	assert.True(t, opts.IgnoreExtraKeys)
	assert.True(t, opts.AllowPresencePlaceholder)
	assert.False(t, opts.IgnoreArrayOrder)
	assert.Empty(t, opts.IgnoredFields)
}

func TestJSONAsserter_Diff(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		actual   string
		expected string
		match    bool
	}{
		{
			name:     "identical",
			actual:   `{"name":"temperature","value":23.8}`,
			expected: `{"name":"temperature","value":23.8}`,
			match:    true,
		},
		{
			name:     "different value",
			actual:   `{"name":"temperature","value":23.8}`,
			expected: `{"name":"temperature","value":24}`,
		},
		{
			name:     "extra keys ignored by default",
			actual:   `{"name":"temperature","timestamp":7}`,
			expected: `{"name":"temperature"}`,
			match:    true,
		},
		{
			name:     "extra keys reported when strict",
			opts:     []Option{WithIgnoreExtraKeys(false)},
			actual:   `{"name":"temperature","timestamp":7}`,
			expected: `{"name":"temperature"}`,
		},
		{
			name:     "presence placeholder",
			actual:   `{"name":"humidity","notified_at":"2026-01-01T00:00:00Z"}`,
			expected: `{"name":"humidity","notified_at":"<<PRESENCE>>"}`,
			match:    true,
		},
		{
			name:     "placeholder for missing key fails",
			actual:   `{"name":"humidity"}`,
			expected: `{"name":"humidity","notified_at":"<<PRESENCE>>"}`,
		},
		{
			name:     "ignored fields at any depth",
			opts:     []Option{WithIgnoredFields("ts"), WithIgnoreExtraKeys(false)},
			actual:   `{"samples":[{"ts":1,"v":2},{"ts":9,"v":3}]}`,
			expected: `{"samples":[{"ts":5,"v":2},{"v":3}]}`,
			match:    true,
		},
		{
			name:     "root arrays",
			actual:   `[1,2,3]`,
			expected: `[1,2,3]`,
			match:    true,
		},
		{
			name:     "array order matters by default",
			actual:   `[3,2,1]`,
			expected: `[1,2,3]`,
		},
		{
			name:     "array order ignored",
			opts:     []Option{WithIgnoreArrayOrder(true)},
			actual:   `{"features":["pressure","humidity","temperature"]}`,
			expected: `{"features":["temperature","pressure","humidity"]}`,
			match:    true,
		},
		{
			name:     "invalid actual",
			actual:   `{`,
			expected: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewJSONAsserter(t).WithOptions(tt.opts...).Diff(tt.actual, tt.expected)
			if tt.match {
				assert.Empty(t, d)
			} else {
				assert.NotEmpty(t, d)
			}
		})
	}
}

func TestJSONAsserter_AssertValue(t *testing.T) {
	v := struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}{"pressure", 998.1}

	assert.True(t, NewJSONAsserter(t).AssertValue(v, `{"name":"pressure","value":998.1}`))
}
