package dmr

import (
	"fmt"
)

// FromModelNode reads a request tree back into a Submittable. Composite trees become a
// *Composite with their steps read recursively, every other tree becomes an *Operation.
func FromModelNode(n *ModelNode) (Submittable, error) {
	if n.Type() != TypeObject {
		return nil, fmt.Errorf("request: %w", mismatch("from model node", TypeObject, n.Type()))
	}
	opNode, ok := n.Lookup(OperationKey)
	if !ok {
		return nil, fmt.Errorf("request has no %q: %w", OperationKey, ErrInvalidOperation)
	}
	name, err := opNode.AsString()
	if err != nil {
		return nil, fmt.Errorf("request %q: %w", OperationKey, err)
	}
	var address ResourceAddress
	if a, ok := n.Lookup(AddressKey); ok {
		if address, err = AddressFromModelNode(a); err != nil {
			return nil, err
		}
	}

	if name == CompositeOperation && address.IsRoot() {
		return compositeFromModelNode(n)
	}

	b := NewOperationBuilder(address, name)
	for _, p := range mustProperties(n) {
		switch p.Name {
		case OperationKey, AddressKey:
		case OperationHeaders:
			readHeaders(b, p.Value)
		default:
			b.Param(p.Name, p.Value)
		}
	}

	return b.Build()
}

func readHeaders(b *OperationBuilder, headers *ModelNode) {
	for _, h := range mustProperties(headers) {
		if h.Name != Roles {
			b.Header(h.Name, h.Value)
			continue
		}
		switch h.Value.Type() {
		case TypeList:
			for _, r := range h.Value.list {
				s, err := r.AsString()
				if err != nil {
					b.fail(fmt.Errorf("header %q: %w", Roles, err))
					return
				}
				b.RunAs(s)
			}
		default:
			s, err := h.Value.AsString()
			if err != nil {
				b.fail(fmt.Errorf("header %q: %w", Roles, err))
				return
			}
			b.RunAs(s)
		}
	}
}

// compositeFromModelNode reads a composite tree. The tree must carry a steps list and nothing
// besides the operation, address, steps and operation-headers fields.
func compositeFromModelNode(n *ModelNode) (*Composite, error) {
	for _, key := range n.Keys() {
		switch key {
		case OperationKey, AddressKey, StepsKey, OperationHeaders:
		default:
			return nil, fmt.Errorf("composite has unexpected field %q: %w", key, ErrInvalidOperation)
		}
	}
	stepsNode, ok := n.Lookup(StepsKey)
	if !ok || !stepsNode.IsDefined() {
		return nil, fmt.Errorf("composite has no %q: %w", StepsKey, ErrInvalidOperation)
	}
	steps, err := stepsNode.AsList()
	if err != nil {
		return nil, fmt.Errorf("composite %q: %w", StepsKey, err)
	}

	c := &Composite{headers: NewObject()}
	for i, s := range steps {
		step, err := FromModelNode(s)
		if err != nil {
			return nil, fmt.Errorf("composite step %d: %w", i+1, err)
		}
		c.steps = append(c.steps, step)
	}
	if h, ok := n.Lookup(OperationHeaders); ok {
		for _, p := range mustProperties(h) {
			c.headers.Get(p.Name).SetNode(p.Value)
		}
	}

	return c, nil
}
