package operations

import (
	"errors"
	"fmt"
)

// ErrOperationNotFound is returned when a registry has no operation for a definition.
var ErrOperationNotFound = errors.New("operation not found in registry")

// OperationRegistry is a store for operations that allows retrieval based on their definitions.
type OperationRegistry struct {
	ops []*Operation[any, any]
}

// NewOperationRegistry creates a new OperationRegistry with the provided untyped operations.
func NewOperationRegistry(ops ...*Operation[any, any]) *OperationRegistry {
	return &OperationRegistry{
		ops: ops,
	}
}

// Retrieve retrieves an operation from the store based on its definition.
// It returns ErrOperationNotFound if the operation is not found.
// The definition must match the operation's ID and version.
func (s OperationRegistry) Retrieve(def Definition) (*Operation[any, any], error) {
	for _, op := range s.ops {
		if op.ID() == def.ID && op.Def().Version.Equal(def.Version) {
			return op, nil
		}
	}

	return nil, fmt.Errorf("%s@%s: %w", def.ID, def.Version, ErrOperationNotFound)
}

// Definitions returns the definitions of all registered operations in registration order.
func (s OperationRegistry) Definitions() []Definition {
	defs := make([]Definition, 0, len(s.ops))
	for _, op := range s.ops {
		defs = append(defs, op.Def())
	}

	return defs
}

// RegisterOperation registers new operations in the registry.
// To register operations with different input and output types,
// call RegisterOperation multiple times with different type parameters.
func RegisterOperation[I, O any](r *OperationRegistry, op ...*Operation[I, O]) {
	for _, o := range op {
		r.ops = append(r.ops, o.AsUntyped())
	}
}
