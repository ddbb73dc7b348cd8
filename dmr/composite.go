package dmr

import (
	"fmt"
	"iter"
	"reflect"
	"strconv"
	"strings"
)

// Composite bundles several requests into one atomic request. Steps are executed by the server
// in the order they were added.
//
// A Composite is not safe for concurrent mutation.
type Composite struct {
	steps   []Submittable
	headers *ModelNode
}

// NewComposite returns a composite holding first followed by rest.
func NewComposite(first Submittable, rest ...Submittable) (*Composite, error) {
	if isNil(first) {
		return nil, fmt.Errorf("first step: %w", ErrNilStep)
	}

	return NewCompositeFrom(append([]Submittable{first}, rest...))
}

// NewCompositeFrom returns a composite holding the given steps in order. An empty slice yields an
// empty composite, which must receive steps before it is dispatched.
func NewCompositeFrom(steps []Submittable) (*Composite, error) {
	c := &Composite{headers: NewObject()}
	for i, s := range steps {
		if err := c.check(s); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		c.steps = append(c.steps, s)
	}

	return c, nil
}

// Add appends step and returns the composite.
//
// Add panics when step is nil, is the composite itself or is a composite containing it.
func (c *Composite) Add(step Submittable) *Composite {
	if err := c.check(step); err != nil {
		panic(fmt.Errorf("dmr: composite add: %w", err))
	}
	c.steps = append(c.steps, step)

	return c
}

func (c *Composite) check(step Submittable) error {
	if isNil(step) {
		return ErrNilStep
	}
	if nested, ok := step.(*Composite); ok && nested.contains(c) {
		return ErrCyclicComposite
	}

	return nil
}

func (c *Composite) contains(target *Composite) bool {
	if c == target {
		return true
	}
	for _, s := range c.steps {
		if nested, ok := s.(*Composite); ok && nested.contains(target) {
			return true
		}
	}

	return false
}

func isNil(s Submittable) bool {
	switch v := s.(type) {
	case nil:
		return true
	case *Operation:
		return v == nil
	case *Composite:
		return v == nil
	}

	rv := reflect.ValueOf(s)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}

	return false
}

// AddHeader sets a string header. A later call with the same name replaces the value.
func (c *Composite) AddHeader(name, value string) *Composite {
	c.headers.Get(name).SetString(value)

	return c
}

// AddBoolHeader sets a boolean header. A later call with the same name replaces the value.
func (c *Composite) AddBoolHeader(name string, value bool) *Composite {
	c.headers.Get(name).SetBool(value)

	return c
}

// Name is always "composite".
func (c *Composite) Name() string { return CompositeOperation }

// Address is always the root address.
func (c *Composite) Address() ResourceAddress { return Root() }

// Header returns a copy of the composite headers.
func (c *Composite) Header() *ModelNode { return c.headers.Clone() }

func (c *Composite) Len() int { return len(c.steps) }

func (c *Composite) IsEmpty() bool { return len(c.steps) == 0 }

// StepAt returns the step at position i.
func (c *Composite) StepAt(i int) (Submittable, error) {
	if i < 0 || i >= len(c.steps) {
		return nil, fmt.Errorf("dmr: step %d of %d: %w", i, len(c.steps), ErrIndexOutOfRange)
	}

	return c.steps[i], nil
}

// Steps returns the steps in order. The sequence is a snapshot taken when Steps is called:
// steps added afterwards are not yielded, and the sequence can be ranged over repeatedly.
func (c *Composite) Steps() iter.Seq[Submittable] {
	snapshot := append([]Submittable(nil), c.steps...)

	return func(yield func(Submittable) bool) {
		for _, s := range snapshot {
			if !yield(s) {
				return
			}
		}
	}
}

// All is like Steps but also yields the zero-based position of every step.
func (c *Composite) All() iter.Seq2[int, Submittable] {
	snapshot := append([]Submittable(nil), c.steps...)

	return func(yield func(int, Submittable) bool) {
		for i, s := range snapshot {
			if !yield(i, s) {
				return
			}
		}
	}
}

// ModelNode returns the composite request tree. The steps field is rebuilt from the steps on
// every call.
func (c *Composite) ModelNode() *ModelNode {
	n := NewObject()
	n.Get(OperationKey).SetString(CompositeOperation)
	n.Get(AddressKey).SetEmptyList()
	steps := n.Get(StepsKey).SetEmptyList()
	for _, s := range c.steps {
		steps.list = append(steps.list, s.ModelNode())
	}
	if c.headers.Len() > 0 {
		n.Get(OperationHeaders).SetNode(c.headers)
	}

	return n
}

// AsCli renders every step on its own line. The first step that cannot be rendered fails the
// whole call.
func (c *Composite) AsCli() (string, error) {
	lines := make([]string, 0, len(c.steps))
	for i, s := range c.steps {
		line, err := s.AsCli()
		if err != nil {
			return "", fmt.Errorf("step %d: %w", i+1, err)
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n"), nil
}

// String returns a diagnostic label.
func (c *Composite) String() string {
	return "Composite(" + strconv.Itoa(len(c.steps)) + ")"
}
