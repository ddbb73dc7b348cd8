package dmr

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOp(t *testing.T, attr string, value any) *Operation {
	t.Helper()

	op, err := NewOperationBuilder(eeAddress, WriteAttributeOperation).
		Param(Name, attr).
		Param(Value, value).
		Build()
	require.NoError(t, err)

	return op
}

// rawStep is a Submittable implemented outside the package types.
type rawStep struct{ name string }

func (s *rawStep) Name() string             { return s.name }
func (s *rawStep) Address() ResourceAddress { return Root() }
func (s *rawStep) Header() *ModelNode       { return NewObject() }
func (s *rawStep) AsCli() (string, error)   { return ":" + s.name, nil }

func (s *rawStep) ModelNode() *ModelNode {
	n := NewObject()
	n.Get(OperationKey).SetString(s.name)
	n.Get(AddressKey).SetEmptyList()

	return n
}

func stepNames(c *Composite) []string {
	var names []string
	for s := range c.Steps() {
		names = append(names, s.(*Operation).Parameter().Get(Name).String())
	}

	return names
}

func TestNewComposite(t *testing.T) {
	t.Parallel()

	for _, size := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("%d steps", size), func(t *testing.T) {
			t.Parallel()

			steps := make([]Submittable, size)
			want := make([]string, size)
			for i := range steps {
				attr := fmt.Sprintf("attr-%d", i)
				steps[i] = writeOp(t, attr, i)
				want[i] = `"` + attr + `"`
			}

			c, err := NewComposite(steps[0], steps[1:]...)
			require.NoError(t, err)
			assert.Equal(t, size, c.Len())
			assert.False(t, c.IsEmpty())
			assert.Equal(t, want, stepNames(c))

			fromList, err := NewCompositeFrom(steps)
			require.NoError(t, err)
			assert.Equal(t, stepNames(c), stepNames(fromList))
		})
	}
}

func TestNewComposite_NilStep(t *testing.T) {
	t.Parallel()

	op := writeOp(t, "a", 1)
	var nilOp *Operation
	var nilRaw *rawStep

	tests := []struct {
		name  string
		build func() (*Composite, error)
	}{
		{name: "nil interface first", build: func() (*Composite, error) { return NewComposite(nil) }},
		{name: "typed nil first", build: func() (*Composite, error) { return NewComposite(nilOp, op) }},
		{name: "nil in rest", build: func() (*Composite, error) { return NewComposite(op, nil) }},
		{name: "nil in list", build: func() (*Composite, error) { return NewCompositeFrom([]Submittable{op, nil}) }},
		{name: "typed nil of another type", build: func() (*Composite, error) { return NewComposite(nilRaw) }},
		{name: "typed nil of another type in list", build: func() (*Composite, error) {
			return NewCompositeFrom([]Submittable{op, nilRaw})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := tt.build()
			require.ErrorIs(t, err, ErrNilStep)
			assert.Nil(t, c)
		})
	}
}

func TestNewCompositeFrom_Empty(t *testing.T) {
	t.Parallel()

	c, err := NewCompositeFrom(nil)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, "Composite(0)", c.String())

	cli, err := c.AsCli()
	require.NoError(t, err)
	assert.Empty(t, cli)
}

func TestComposite_AddIsMonotonic(t *testing.T) {
	t.Parallel()

	a := writeOp(t, "a", 1)
	c, err := NewComposite(a)
	require.NoError(t, err)

	// Same operation twice is kept twice.
	for i, op := range []Submittable{writeOp(t, "b", 2), a, writeOp(t, "c", 3)} {
		before := slices.Collect(c.Steps())
		require.Same(t, c, c.Add(op))
		assert.Equal(t, len(before)+1, c.Len())
		assert.Equal(t, append(before, op), slices.Collect(c.Steps()), "add %d", i)
	}
	assert.Equal(t, []string{`"a"`, `"b"`, `"a"`, `"c"`}, stepNames(c))
}

func TestComposite_AddPanics(t *testing.T) {
	t.Parallel()

	c, err := NewComposite(writeOp(t, "a", 1))
	require.NoError(t, err)
	outer, err := NewComposite(c)
	require.NoError(t, err)

	assert.PanicsWithError(t, "dmr: composite add: composite step is nil", func() { c.Add(nil) })
	assert.PanicsWithError(t, "dmr: composite add: composite step is nil", func() { c.Add((*rawStep)(nil)) })
	assert.PanicsWithError(t, "dmr: composite add: composite contains itself", func() { c.Add(c) })
	assert.PanicsWithError(t, "dmr: composite add: composite contains itself", func() { c.Add(outer) })
	assert.Equal(t, 1, c.Len())

	// Nesting an independent composite is allowed.
	other, err := NewComposite(writeOp(t, "b", 2))
	require.NoError(t, err)
	assert.NotPanics(t, func() { c.Add(other) })
	assert.NotPanics(t, func() { c.Add(&rawStep{name: "reload"}) })
	assert.Equal(t, 3, c.Len())

	cli, err := c.AsCli()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(cli, "\n:reload"), cli)
}

func TestComposite_HeaderOverwrite(t *testing.T) {
	t.Parallel()

	c, err := NewComposite(writeOp(t, "a", 1))
	require.NoError(t, err)

	c.AddBoolHeader(RollbackOnRuntimeFailure, true).
		AddBoolHeader(RollbackOnRuntimeFailure, false).
		AddHeader(BlockingTimeout, "10").
		AddHeader(BlockingTimeout, "20")

	h := c.Header()
	assert.Equal(t, []string{RollbackOnRuntimeFailure, BlockingTimeout}, h.Keys())
	assert.Equal(t, `{"rollback-on-runtime-failure" => false,"blocking-timeout" => "20"}`, h.String())

	// Header returns a copy.
	h.Get("extra").SetBool(true)
	assert.Equal(t, 2, c.Header().Len())
}

func TestComposite_IterationSnapshot(t *testing.T) {
	t.Parallel()

	a, b := writeOp(t, "a", 1), writeOp(t, "b", 2)
	c, err := NewComposite(a)
	require.NoError(t, err)

	steps := c.Steps()
	all := c.All()
	c.Add(b)

	assert.Equal(t, []Submittable{a}, slices.Collect(steps))
	// Restartable.
	assert.Equal(t, []Submittable{a}, slices.Collect(steps))

	var positions []int
	for i := range all {
		positions = append(positions, i)
	}
	assert.Equal(t, []int{0}, positions)
	assert.Equal(t, []Submittable{a, b}, slices.Collect(c.Steps()))

	// Early break stops the sequence.
	count := 0
	for range c.Steps() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestComposite_StepAt(t *testing.T) {
	t.Parallel()

	a := writeOp(t, "a", 1)
	c, err := NewComposite(a)
	require.NoError(t, err)

	got, err := c.StepAt(0)
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = c.StepAt(1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = c.StepAt(-1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestComposite_AsCli(t *testing.T) {
	t.Parallel()

	s1, s2, s3 := writeOp(t, "a", 1), writeOp(t, "b", "x y"), writeOp(t, "c", true)
	c, err := NewComposite(s1, s2, s3)
	require.NoError(t, err)

	var want []string
	for _, s := range []*Operation{s1, s2, s3} {
		line, err := s.AsCli()
		require.NoError(t, err)
		want = append(want, line)
	}

	got, err := c.AsCli()
	require.NoError(t, err)
	assert.Equal(t, want[0]+"\n"+want[1]+"\n"+want[2], got)
	assert.False(t, strings.HasSuffix(got, "\n"))

	// Rendering does not change the composite.
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 0, c.Header().Len())
}

func TestComposite_AsCliPropagatesFailure(t *testing.T) {
	t.Parallel()

	c, err := NewComposite(writeOp(t, "a", 1), writeOp(t, "bad", math.NaN()), writeOp(t, "c", 3))
	require.NoError(t, err)

	got, err := c.AsCli()
	require.ErrorIs(t, err, ErrUnsupportedValue)
	assert.Contains(t, err.Error(), "step 2")
	assert.Empty(t, got)
}

func TestComposite_Scenario(t *testing.T) {
	t.Parallel()

	opA, opB := writeOp(t, "a", 1), writeOp(t, "b", 2)
	c, err := NewComposite(opA)
	require.NoError(t, err)

	c.Add(opB).AddBoolHeader(RollbackOnRuntimeFailure, true)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []Submittable{opA, opB}, slices.Collect(c.Steps()))

	tree := c.ModelNode()
	headers, ok := tree.Lookup(OperationHeaders)
	require.True(t, ok)
	assert.Equal(t, `{"rollback-on-runtime-failure" => true}`, headers.String())
	assert.Equal(t, "Composite(2)", c.String())
}

func TestComposite_ModelNode(t *testing.T) {
	t.Parallel()

	c, err := NewComposite(NewOperationBuilder(Root(), ReadResourceOperation).MustBuild())
	require.NoError(t, err)

	assert.Equal(t,
		`{"operation" => "composite","address" => [],"steps" => [{"operation" => "read-resource","address" => []}]}`,
		c.ModelNode().String())
	assert.Equal(t, CompositeOperation, c.Name())
	assert.True(t, c.Address().IsRoot())

	// The tree is derived on demand and reflects later additions.
	c.Add(writeOp(t, "a", 1))
	steps, err := c.ModelNode().Get(StepsKey).AsList()
	require.NoError(t, err)
	assert.Len(t, steps, 2)
}

func TestComposite_RoundTrip(t *testing.T) {
	t.Parallel()

	inner, err := NewComposite(writeOp(t, "inner", 0))
	require.NoError(t, err)
	c, err := NewComposite(writeOp(t, "a", 1), writeOp(t, "b", 2), inner)
	require.NoError(t, err)
	c.AddBoolHeader(RollbackOnRuntimeFailure, true)

	raw, err := c.ModelNode().MarshalJSON()
	require.NoError(t, err)
	tree, err := ParseJSON(raw)
	require.NoError(t, err)

	// The steps field lists the same operations in the same order.
	steps, err := tree.Get(StepsKey).AsList()
	require.NoError(t, err)
	var treeNames []string
	for _, s := range steps {
		name, err := s.Get(OperationKey).AsString()
		require.NoError(t, err)
		treeNames = append(treeNames, name)
	}
	var iterNames []string
	for s := range c.Steps() {
		iterNames = append(iterNames, s.Name())
	}
	assert.Equal(t, iterNames, treeNames)

	back, err := FromModelNode(tree)
	require.NoError(t, err)
	bc, ok := back.(*Composite)
	require.True(t, ok)
	require.Equal(t, c.Len(), bc.Len())
	assert.True(t, c.ModelNode().Equal(bc.ModelNode()))

	nested, err := bc.StepAt(2)
	require.NoError(t, err)
	assert.IsType(t, &Composite{}, nested)
}
