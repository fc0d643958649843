package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Signature identifies semantically identical tool calls regardless of the
// model-assigned id.
type Signature string

// NewSignature hashes the tool name together with the canonical form of the
// arguments.
func NewSignature(toolName, argumentsJSON string) Signature {
	sum := sha256.Sum256([]byte(toolName + "\x00" + CanonicalizeArguments(argumentsJSON)))
	return Signature(hex.EncodeToString(sum[:]))
}

// CanonicalizeArguments returns a stable encoding of a JSON document: object
// keys sorted, insignificant whitespace removed, number literals preserved.
// Empty input is treated as an empty object. Input that is not valid JSON is
// returned trimmed so that it still hashes deterministically.
func CanonicalizeArguments(argumentsJSON string) string {
	trimmed := strings.TrimSpace(argumentsJSON)
	if trimmed == "" || trimmed == "null" {
		return "{}"
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return trimmed
	}
	if dec.More() {
		return trimmed
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return trimmed
	}
	return strings.TrimRight(buf.String(), "\n")
}
