package dmr

import (
	"fmt"
	"strings"
)

// Submittable is a request that can be dispatched to the management endpoint. Both single
// operations and composites implement it.
type Submittable interface {
	// Name is the operation name, e.g. read-resource or composite.
	Name() string
	// Address is the target resource.
	Address() ResourceAddress
	// Header returns a copy of the operation headers as an object node.
	Header() *ModelNode
	// ModelNode returns a fresh request tree owned by the caller.
	ModelNode() *ModelNode
	// AsCli renders the request in the management CLI syntax.
	AsCli() (string, error)
}

var (
	_ Submittable = (*Operation)(nil)
	_ Submittable = (*Composite)(nil)
)

// Operation is a single named call against a resource.
type Operation struct {
	name    string
	address ResourceAddress
	params  *ModelNode
	headers *ModelNode
	roles   []string
}

func (o *Operation) Name() string { return o.name }

func (o *Operation) Address() ResourceAddress { return o.address }

// Parameter returns a copy of the parameters as an object node.
func (o *Operation) Parameter() *ModelNode { return o.params.Clone() }

// Header returns a copy of the operation headers, without the run-as roles.
func (o *Operation) Header() *ModelNode { return o.headers.Clone() }

// Roles returns the roles the operation is run as.
func (o *Operation) Roles() []string { return append([]string(nil), o.roles...) }

// ModelNode returns the request tree of the operation.
func (o *Operation) ModelNode() *ModelNode {
	n := NewObject()
	n.Get(OperationKey).SetString(o.name)
	n.Get(AddressKey).SetNode(o.address.ModelNode())
	for _, p := range mustProperties(o.params) {
		n.Get(p.Name).SetNode(p.Value)
	}
	if h := o.headerNode(); h != nil {
		n.Get(OperationHeaders).SetNode(h)
	}

	return n
}

func (o *Operation) headerNode() *ModelNode {
	if o.headers.Len() == 0 && len(o.roles) == 0 {
		return nil
	}
	h := o.headers.Clone()
	if len(o.roles) > 0 {
		roles := h.Get(Roles).SetEmptyList()
		for _, r := range o.roles {
			roles.AddNode(NewString(r))
		}
	}

	return h
}

// AsCli renders the operation as /k=v:name(p=v,...){h=v;...}.
func (o *Operation) AsCli() (string, error) {
	if o.name == "" {
		return "", fmt.Errorf("cli: empty operation name: %w", ErrInvalidOperation)
	}

	var sb strings.Builder
	sb.WriteString(o.address.cliPrefix())
	sb.WriteByte(':')
	sb.WriteString(o.name)

	if params := mustProperties(o.params); len(params) > 0 {
		sb.WriteByte('(')
		if err := writeCliPairs(&sb, params, ","); err != nil {
			return "", fmt.Errorf("cli: %s: %w", o.name, err)
		}
		sb.WriteByte(')')
	}
	if h := o.headerNode(); h != nil {
		sb.WriteByte('{')
		if err := writeCliPairs(&sb, mustProperties(h), ";"); err != nil {
			return "", fmt.Errorf("cli: %s: %w", o.name, err)
		}
		sb.WriteByte('}')
	}

	return sb.String(), nil
}

func writeCliPairs(sb *strings.Builder, props []Property, sep string) error {
	for i, p := range props {
		if i > 0 {
			sb.WriteString(sep)
		}
		v, err := p.Value.CliValue()
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		sb.WriteString(p.Name)
		sb.WriteByte('=')
		sb.WriteString(v)
	}

	return nil
}

// String returns a diagnostic label.
func (o *Operation) String() string {
	return "Operation(" + o.address.String() + ":" + o.name + ")"
}

// mustProperties lists the children of an object node owned by this package.
func mustProperties(n *ModelNode) []Property {
	if n.Type() != TypeObject {
		return nil
	}
	props, _ := n.AsPropertyList()

	return props
}

// OperationBuilder assembles an Operation. Conversion errors are collected and returned by Build.
type OperationBuilder struct {
	op  *Operation
	err error
}

// NewOperationBuilder starts an operation named name against address.
func NewOperationBuilder(address ResourceAddress, name string) *OperationBuilder {
	return &OperationBuilder{op: &Operation{
		name:    name,
		address: address,
		params:  NewObject(),
		headers: NewObject(),
	}}
}

// Param sets a parameter. Setting the same name twice keeps the position of the first call and
// the value of the last.
func (b *OperationBuilder) Param(name string, value any) *OperationBuilder {
	if name == OperationKey || name == AddressKey || name == OperationHeaders {
		b.fail(fmt.Errorf("parameter %q is reserved: %w", name, ErrInvalidOperation))
		return b
	}
	b.set(b.op.params, "parameter", name, value)

	return b
}

// Header sets an operation header.
func (b *OperationBuilder) Header(name string, value any) *OperationBuilder {
	if name == Roles {
		b.fail(fmt.Errorf("header %q is set with RunAs: %w", name, ErrInvalidOperation))
		return b
	}
	b.set(b.op.headers, "header", name, value)

	return b
}

// RunAs appends roles the operation is executed with.
func (b *OperationBuilder) RunAs(roles ...string) *OperationBuilder {
	b.op.roles = append(b.op.roles, roles...)

	return b
}

func (b *OperationBuilder) set(target *ModelNode, kind, name string, value any) {
	if name == "" {
		b.fail(fmt.Errorf("empty %s name: %w", kind, ErrInvalidOperation))
		return
	}
	v, err := FromValue(value)
	if err != nil {
		b.fail(fmt.Errorf("%s %q: %w", kind, name, err))
		return
	}
	target.Get(name).SetNode(v)
}

func (b *OperationBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build returns the operation, or the first error recorded while building it.
func (b *OperationBuilder) Build() (*Operation, error) {
	if b.err != nil {
		return nil, b.err
	}
	if strings.TrimSpace(b.op.name) == "" {
		return nil, fmt.Errorf("empty operation name: %w", ErrInvalidOperation)
	}
	if b.op.name == CompositeOperation && b.op.address.IsRoot() {
		return nil, fmt.Errorf("%s on the root address is reserved for *Composite: %w", CompositeOperation, ErrInvalidOperation)
	}
	op := *b.op
	op.params = b.op.params.Clone()
	op.headers = b.op.headers.Clone()
	op.roles = b.op.Roles()

	return &op, nil
}

// MustBuild is like Build but panics on error.
func (b *OperationBuilder) MustBuild() *Operation {
	op, err := b.Build()
	if err != nil {
		panic(err)
	}

	return op
}
