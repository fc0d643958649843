package tools

import (
	"fmt"
	"strings"
)

// ErrToolNotFound is returned when a call targets a tool that is not
// registered or is disabled by configuration.
type ErrToolNotFound struct {
	Name string
}

func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Name)
}

// SchemaError reports arguments that do not satisfy the tool schema.
type SchemaError struct {
	Tool string

	// Violations holds one human-readable entry per failed constraint.
	Violations []string

	// Err is set when the arguments could not be parsed at all.
	Err error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Violations, "; "))
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
