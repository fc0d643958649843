package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeArguments(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: "{}"},
		{name: "null", input: "null", expected: "{}"},
		{name: "sorted keys", input: `{"b":1,"a":2}`, expected: `{"a":2,"b":1}`},
		{name: "nested", input: `{"z":{"y":[1,{"b":true,"a":null}]}}`, expected: `{"z":{"y":[1,{"a":null,"b":true}]}}`},
		{name: "whitespace", input: " { \"a\" : \"x y\" } ", expected: `{"a":"x y"}`},
		{name: "number literal kept", input: `{"n":1.50}`, expected: `{"n":1.50}`},
		{name: "html not escaped", input: `{"t":"<b>"}`, expected: `{"t":"<b>"}`},
		{name: "invalid json", input: "  not json ", expected: "not json"},
		{name: "trailing document", input: `{"a":1} {"b":2}`, expected: `{"a":1} {"b":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalizeArguments(tt.input))
		})
	}
}

func TestNewSignature(t *testing.T) {
	a := NewSignature("create_folder", `{"name":"Test1","parent":null}`)
	b := NewSignature("create_folder", `{"parent":null, "name":"Test1"}`)
	c := NewSignature("create_note", `{"name":"Test1","parent":null}`)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, string(a), 64)
}
