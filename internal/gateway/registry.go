package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/vietddude/explorer/internal/core/domain"
)

// HandleFunc runs a validated request on behalf of a connection. A nil
// result with a nil error means there is nothing to answer.
type HandleFunc func(ctx context.Context, c *Conn, payload json.RawMessage) (any, error)

// Descriptor binds a request name to its payload schema and handler.
type Descriptor struct {
	Name   string
	schema *jsonschema.Schema
	handle HandleFunc
}

// Validate checks payload against the descriptor schema. A missing payload
// is validated as JSON null.
func (d *Descriptor) Validate(payload json.RawMessage) error {
	var v any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &v); err != nil {
			return &domain.ValidationError{Details: []string{"payload is not valid JSON"}}
		}
	}
	if err := d.schema.Validate(v); err != nil {
		return &domain.ValidationError{Details: validationDetails(err)}
	}
	return nil
}

// Handle invokes the handler. Callers must Validate first.
func (d *Descriptor) Handle(ctx context.Context, c *Conn, payload json.RawMessage) (any, error) {
	return d.handle(ctx, c, payload)
}

func validationDetails(err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var details []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			details = append(details, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return details
}

// Typed builds a descriptor whose handler receives the payload decoded into P.
func Typed[P any](name, schema string, h func(ctx context.Context, c *Conn, p P) (any, error)) (*Descriptor, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://explorer.local/events/%s.schema.json", name)
	if err := compiler.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("failed to load %s schema: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
	}

	return &Descriptor{
		Name:   name,
		schema: compiled,
		handle: func(ctx context.Context, c *Conn, payload json.RawMessage) (any, error) {
			var p P
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &p); err != nil {
					return nil, &domain.ValidationError{Details: []string{err.Error()}}
				}
			}
			return h(ctx, c, p)
		},
	}, nil
}

// Registry is the closed set of request descriptors a gateway serves.
type Registry struct {
	events map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{events: make(map[string]*Descriptor)}
}

// Register adds descriptors. Names must be unique.
func (r *Registry) Register(descs ...*Descriptor) error {
	for _, d := range descs {
		if _, dup := r.events[d.Name]; dup {
			return fmt.Errorf("event %q already registered", d.Name)
		}
		r.events[d.Name] = d
	}
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.events[name]
	return d, ok
}

// Names lists registered event names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.events))
	for n := range r.events {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
