// Package registry holds the static catalog of processing functions.
//
// Descriptors are registered once at startup and validated eagerly; the
// catalog is read-only afterwards. Parameter bindings for a job are checked
// against the descriptor's schema before any file is touched.
package registry

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// ParamType enumerates the supported parameter value types
type ParamType string

const (
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
	ParamString ParamType = "string"
)

// ParamSpec describes one parameter of a processing function
type ParamSpec struct {
	Type    ParamType `json:"type"`
	Default any       `json:"default"`
	// Min and Max bound numeric parameters; they are ignored when equal.
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
}

// Output is one file produced by a processing function for a single item.
// Encode streams the result; the coordinator decides where and how the
// bytes reach disk.
type Output struct {
	Path   string
	Encode func(io.Writer) error
}

// ProcessFunc applies a processing function to one source file and returns
// the outputs to persist. It must not write to any final output path
// itself.
type ProcessFunc func(ctx context.Context, sourcePath string, params Params) ([]Output, error)

// Descriptor describes one registered processing function
type Descriptor struct {
	ID           string               `json:"id"`
	DisplayName  string               `json:"display_name"`
	OutputSuffix string               `json:"output_suffix"`
	OutputExt    string               `json:"output_ext,omitempty"`
	Params       map[string]ParamSpec `json:"params,omitempty"`
	Process      ProcessFunc          `json:"-"`
}

func (d Descriptor) validate() error {
	if d.ID == "" {
		return fmt.Errorf("descriptor has empty id")
	}
	if d.DisplayName == "" {
		return fmt.Errorf("descriptor %q has empty display name", d.ID)
	}
	if d.Process == nil {
		return fmt.Errorf("descriptor %q has nil process function", d.ID)
	}
	for name, spec := range d.Params {
		switch spec.Type {
		case ParamInt, ParamFloat, ParamBool, ParamString:
		default:
			return fmt.Errorf("descriptor %q param %q has unknown type %q", d.ID, name, spec.Type)
		}
		if spec.Min != spec.Max && spec.Min > spec.Max {
			return fmt.Errorf("descriptor %q param %q has inverted range [%v, %v]", d.ID, name, spec.Min, spec.Max)
		}
		if spec.Default != nil {
			if _, err := coerce(spec, spec.Default); err != nil {
				return fmt.Errorf("descriptor %q param %q default: %w", d.ID, name, err)
			}
		}
	}
	return nil
}

// Registry is a validated catalog of processing-function descriptors
type Registry struct {
	mu    sync.RWMutex
	descs map[string]Descriptor
}

// New creates an empty registry
func New() *Registry {
	return &Registry{descs: make(map[string]Descriptor)}
}

// Register adds a descriptor to the catalog. Duplicate ids and malformed
// schemas are rejected.
func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descs[d.ID]; exists {
		return fmt.Errorf("descriptor %q is already registered", d.ID)
	}
	r.descs[d.ID] = d
	return nil
}

// MustRegister registers a descriptor and panics on error. Intended for
// static catalogs built at process start.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor for id
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descs[id]
	return d, ok
}

// List returns all descriptors sorted by id
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.descs))
	for _, d := range r.descs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Params holds validated parameter values for one job
type Params map[string]any

// Int returns the named int parameter
func (p Params) Int(name string) int {
	v, _ := p[name].(int)
	return v
}

// Float returns the named float parameter
func (p Params) Float(name string) float64 {
	v, _ := p[name].(float64)
	return v
}

// Bool returns the named bool parameter
func (p Params) Bool(name string) bool {
	v, _ := p[name].(bool)
	return v
}

// String returns the named string parameter
func (p Params) String(name string) string {
	v, _ := p[name].(string)
	return v
}

// Bind validates raw values against the descriptor schema, applies
// defaults for missing parameters and rejects unknown names and
// out-of-range values.
func Bind(d Descriptor, raw map[string]any) (Params, error) {
	params := make(Params, len(d.Params))

	for name := range raw {
		if _, known := d.Params[name]; !known {
			return nil, fmt.Errorf("function %q has no parameter %q", d.ID, name)
		}
	}

	for name, spec := range d.Params {
		value, given := raw[name]
		if !given {
			if spec.Default == nil {
				return nil, fmt.Errorf("function %q requires parameter %q", d.ID, name)
			}
			value = spec.Default
		}

		coerced, err := coerce(spec, value)
		if err != nil {
			return nil, fmt.Errorf("function %q parameter %q: %w", d.ID, name, err)
		}
		params[name] = coerced
	}

	return params, nil
}

func coerce(spec ParamSpec, value any) (any, error) {
	switch spec.Type {
	case ParamInt:
		var n int
		switch v := value.(type) {
		case int:
			n = v
		case float64:
			// JSON numbers decode as float64.
			if v != float64(int(v)) {
				return nil, fmt.Errorf("expected integer, got %v", v)
			}
			n = int(v)
		default:
			return nil, fmt.Errorf("expected integer, got %T", value)
		}
		if err := checkRange(spec, float64(n)); err != nil {
			return nil, err
		}
		return n, nil

	case ParamFloat:
		var f float64
		switch v := value.(type) {
		case float64:
			f = v
		case int:
			f = float64(v)
		default:
			return nil, fmt.Errorf("expected number, got %T", value)
		}
		if err := checkRange(spec, f); err != nil {
			return nil, err
		}
		return f, nil

	case ParamBool:
		v, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", value)
		}
		return v, nil

	case ParamString:
		v, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return v, nil
	}

	return nil, fmt.Errorf("unknown parameter type %q", spec.Type)
}

func checkRange(spec ParamSpec, v float64) error {
	if spec.Min == spec.Max {
		return nil
	}
	if v < spec.Min || v > spec.Max {
		return fmt.Errorf("value %v outside valid range [%v, %v]", v, spec.Min, spec.Max)
	}
	return nil
}
