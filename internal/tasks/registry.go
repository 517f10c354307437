package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"docbot/internal/services"
)

// Operation executes one registered job with JSON encoded arguments.
type Operation func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Definition names an operation for the Registry.
type Definition struct {
	Name string
	Run  Operation
}

// Define adapts a typed function into a Definition, handling JSON encoding of
// arguments and results.
func Define[A, R any](name string, fn func(context.Context, A) (R, error)) Definition {
	return Definition{
		Name: name,
		Run: func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
			var args A
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, services.Wrap(services.ErrValidation, "tasks", name, "decode arguments", err)
				}
			}
			result, err := fn(ctx, args)
			if err != nil {
				return nil, err
			}
			encoded, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("encode %s result: %w", name, err)
			}
			return encoded, nil
		},
	}
}

// Registry is the immutable table of operations shared by the dispatcher and
// the workers.
type Registry struct {
	ops map[string]Operation
}

// NewRegistry builds a registry, rejecting empty and duplicate names.
func NewRegistry(defs ...Definition) (*Registry, error) {
	ops := make(map[string]Operation, len(defs))
	for _, def := range defs {
		if def.Name == "" || def.Run == nil {
			return nil, fmt.Errorf("%w: operation definition requires name and function", services.ErrConfiguration)
		}
		if _, exists := ops[def.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate operation %q", services.ErrConfiguration, def.Name)
		}
		ops[def.Name] = def.Run
	}
	return &Registry{ops: ops}, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.ops[name]
	return ok
}

// Names lists registered operations in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named operation in the calling goroutine.
func (r *Registry) Run(ctx context.Context, name string, args json.RawMessage) (result json.RawMessage, err error) {
	if !r.Has(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("operation %s panicked: %v", name, recovered)
		}
	}()
	return r.ops[name](ctx, args)
}
