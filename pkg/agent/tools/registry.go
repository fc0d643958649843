package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/xeipuuv/gojsonschema"

	"github.com/entrhq/relance/pkg/logging"
)

var registryLog *logging.Logger

func init() {
	var err error
	registryLog, err = logging.NewLogger("tools")
	if err != nil {
		registryLog.Warnf("Failed to initialize tools logger, using stderr fallback: %v", err)
	}
}

type registered struct {
	tool   Tool
	schema *gojsonschema.Schema
}

// Registry maps tool names to handlers and validates arguments before
// dispatch. Registration is additive; a disabled pattern hides matching tools
// from Resolve and Definitions without unregistering them.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]registered
	disabled []glob.Glob
	patterns []string
	logger   *logging.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry) error

// WithDisabledPatterns hides tools whose names match any of the glob patterns.
func WithDisabledPatterns(patterns ...string) RegistryOption {
	return func(r *Registry) error {
		return r.addDisabled(patterns)
	}
}

// WithRegistryLogger sets the logger used for registration diagnostics.
func WithRegistryLogger(logger *logging.Logger) RegistryOption {
	return func(r *Registry) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		tools:  make(map[string]registered),
		logger: registryLog,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) addDisabled(patterns []string) error {
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid disabled tool pattern %q: %w", pattern, err)
		}
		r.disabled = append(r.disabled, g)
		r.patterns = append(r.patterns, pattern)
	}
	return nil
}

// Register adds a tool. The tool schema is compiled once here so that
// Validate only has to load the arguments document.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("cannot register tool with empty name")
	}

	var compiled *gojsonschema.Schema
	if schema := tool.Schema(); schema != nil {
		var err error
		compiled, err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
		if err != nil {
			return fmt.Errorf("tool %s has an invalid schema: %w", name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s is already registered", name)
	}
	r.tools[name] = registered{tool: tool, schema: compiled}
	r.logger.Debugf("Registered tool %s", name)
	return nil
}

// RegisterFunc registers a handler function under name.
func (r *Registry) RegisterFunc(name, description string, schema map[string]interface{}, fn HandlerFunc) error {
	if fn == nil {
		return fmt.Errorf("cannot register tool %s with nil handler", name)
	}
	return r.Register(&funcTool{
		HandlerFunc: fn,
		name:        name,
		description: description,
		schema:      schema,
	})
}

// Resolve returns the enabled tool registered under name, or *ErrToolNotFound.
func (r *Registry) Resolve(name string) (Tool, error) {
	entry, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return entry.tool, nil
}

// Validate checks argumentsJSON against the schema of the named tool.
// It returns *ErrToolNotFound for unknown tools and *SchemaError when the
// document is malformed or violates the schema.
func (r *Registry) Validate(name, argumentsJSON string) error {
	entry, err := r.lookup(name)
	if err != nil {
		return err
	}

	doc := strings.TrimSpace(argumentsJSON)
	if doc == "" {
		doc = "{}"
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return &SchemaError{Tool: name, Err: fmt.Errorf("arguments are not valid JSON: %w", err)}
	}
	if _, ok := parsed.(map[string]interface{}); !ok {
		return &SchemaError{Tool: name, Err: fmt.Errorf("arguments must be a JSON object")}
	}

	if entry.schema == nil {
		return nil
	}

	result, err := entry.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return &SchemaError{Tool: name, Err: err}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return &SchemaError{Tool: name, Violations: violations}
}

// Definitions returns every enabled tool, sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for name, entry := range r.tools {
		if r.isDisabled(name) {
			continue
		}
		params := entry.tool.Schema()
		if params == nil {
			params = BaseToolSchema(map[string]interface{}{}, nil)
		}
		defs = append(defs, Definition{
			Name:        name,
			Description: entry.tool.Description(),
			Parameters:  params,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the names of every enabled tool, sorted.
func (r *Registry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// DisabledPatterns returns the configured disabled patterns.
func (r *Registry) DisabledPatterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.patterns...)
}

func (r *Registry) lookup(name string) (registered, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.tools[name]
	if !ok || r.isDisabled(name) {
		return registered{}, &ErrToolNotFound{Name: name}
	}
	return entry, nil
}

// isDisabled must be called with r.mu held.
func (r *Registry) isDisabled(name string) bool {
	for _, g := range r.disabled {
		if g.Match(name) {
			return true
		}
	}
	return false
}
