package tools

import (
	"context"
	"encoding/json"
)

// Tool represents an action the model can request during a turn.
// Tools are invoked through native function calling: the model names the tool
// and supplies a JSON arguments document that is validated against Schema
// before Handle runs.
//
// Example tool call emitted by the model:
//
//	{"id": "call_1", "name": "create_folder", "arguments": "{\"name\":\"Recipes\"}"}
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "create_folder")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters.
	// A nil schema accepts any arguments object.
	Schema() map[string]interface{}

	Handler
}

// Handler executes one invocation. The returned value is marshaled to JSON
// and becomes the success payload of the tool result. Handlers may be called
// concurrently and must respect ctx cancellation.
type Handler interface {
	Handle(ctx context.Context, argumentsJSON string, auth AuthContext) (interface{}, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, argumentsJSON string, auth AuthContext) (interface{}, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, argumentsJSON string, auth AuthContext) (interface{}, error) {
	return f(ctx, argumentsJSON, auth)
}

// AuthContext is the caller's credential, passed from the executor to the
// handler unchanged. The orchestration core never inspects it.
type AuthContext struct {
	// Principal identifies the end user on whose behalf tools run.
	Principal string

	// Token is an opaque bearer credential for downstream services.
	Token string

	// Attributes carries any extra host-specific claims.
	Attributes map[string]string
}

// IsZero reports whether no credential was supplied.
func (a AuthContext) IsZero() bool {
	return a.Principal == "" && a.Token == "" && len(a.Attributes) == 0
}

// Definition describes a registered tool to the model.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// funcTool is the Tool built by Registry.RegisterFunc.
type funcTool struct {
	HandlerFunc
	name        string
	description string
	schema      map[string]interface{}
}

func (t *funcTool) Name() string                   { return t.name }
func (t *funcTool) Description() string            { return t.description }
func (t *funcTool) Schema() map[string]interface{} { return t.schema }

// BaseToolSchema creates a common JSON schema structure for a tool
// with the given properties and required fields
func BaseToolSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// DecodeArguments unmarshals an arguments document into v, treating an empty
// document as an empty object.
func DecodeArguments(argumentsJSON string, v interface{}) error {
	if argumentsJSON == "" {
		argumentsJSON = "{}"
	}
	return json.Unmarshal([]byte(argumentsJSON), v)
}
