package dmr

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ModelType is the kind of value held by a ModelNode.
type ModelType int

const (
	TypeUndefined ModelType = iota
	TypeBoolean
	TypeInt
	TypeLong
	TypeDouble
	TypeBigInteger
	TypeString
	TypeExpression
	TypeList
	TypeObject
	TypeProperty
)

var modelTypeNames = [...]string{
	TypeUndefined:  "UNDEFINED",
	TypeBoolean:    "BOOLEAN",
	TypeInt:        "INT",
	TypeLong:       "LONG",
	TypeDouble:     "DOUBLE",
	TypeBigInteger: "BIG_INTEGER",
	TypeString:     "STRING",
	TypeExpression: "EXPRESSION",
	TypeList:       "LIST",
	TypeObject:     "OBJECT",
	TypeProperty:   "PROPERTY",
}

// String returns the upper-case DMR name of the type.
func (t ModelType) String() string {
	if t < 0 || int(t) >= len(modelTypeNames) {
		return "ModelType(" + strconv.Itoa(int(t)) + ")"
	}

	return modelTypeNames[t]
}

// Property is a named value. Object children and address segments are exposed as properties.
type Property struct {
	Name  string
	Value *ModelNode
}

// ModelNode is a dynamically typed value tree. The zero value is an undefined node.
//
// A ModelNode is not safe for concurrent mutation.
type ModelNode struct {
	kind ModelType

	b    bool
	i    int64 // TypeInt and TypeLong
	f    float64
	bi   *big.Int
	s    string // TypeString and TypeExpression
	list []*ModelNode
	keys []string
	obj  map[string]*ModelNode
	prop *Property
}

// New returns an undefined node.
func New() *ModelNode {
	return &ModelNode{}
}

// NewBool returns a boolean node.
func NewBool(v bool) *ModelNode { return New().SetBool(v) }

// NewInt returns an int node.
func NewInt(v int32) *ModelNode { return New().SetInt(v) }

// NewLong returns a long node.
func NewLong(v int64) *ModelNode { return New().SetLong(v) }

// NewDouble returns a double node.
func NewDouble(v float64) *ModelNode { return New().SetDouble(v) }

// NewBigInt returns a big integer node holding a copy of v.
func NewBigInt(v *big.Int) *ModelNode { return New().SetBigInt(v) }

// NewString returns a string node.
func NewString(v string) *ModelNode { return New().SetString(v) }

// NewExpression returns an expression node, e.g. ${jboss.bind.address:127.0.0.1}.
func NewExpression(v string) *ModelNode { return New().SetExpression(v) }

// NewProperty returns a property node holding a copy of value.
func NewProperty(name string, value *ModelNode) *ModelNode {
	n := New()
	n.SetProperty(name, value)

	return n
}

// NewList returns a list node holding copies of the given elements.
func NewList(elements ...*ModelNode) *ModelNode {
	n := New()
	n.SetEmptyList()
	for _, e := range elements {
		n.AddNode(e)
	}

	return n
}

// NewObject returns an empty object node.
func NewObject() *ModelNode {
	n := New()
	n.SetEmptyObject()

	return n
}

func (n *ModelNode) reset(kind ModelType) {
	*n = ModelNode{kind: kind}
	switch kind {
	case TypeList:
		n.list = []*ModelNode{}
	case TypeObject:
		n.obj = map[string]*ModelNode{}
	}
}

// Type returns the kind of value held by the node.
func (n *ModelNode) Type() ModelType {
	if n == nil {
		return TypeUndefined
	}

	return n.kind
}

// IsDefined reports whether the node holds a value.
func (n *ModelNode) IsDefined() bool {
	return n.Type() != TypeUndefined
}

// Get returns the child stored under key, creating an undefined child when it is missing.
// An undefined node is converted to an object first.
//
// Get panics with a *TypeError when the node is neither undefined nor an object.
func (n *ModelNode) Get(key string) *ModelNode {
	switch n.kind {
	case TypeUndefined:
		n.reset(TypeObject)
	case TypeObject:
	default:
		panic(mismatch("get", TypeObject, n.kind))
	}

	if child, ok := n.obj[key]; ok {
		return child
	}
	child := New()
	n.obj[key] = child
	n.keys = append(n.keys, key)

	return child
}

// Add appends a new undefined element and returns it. An undefined node is converted to a
// list first.
//
// Add panics with a *TypeError when the node is neither undefined nor a list.
func (n *ModelNode) Add() *ModelNode {
	child := New()
	n.appendChild(child)

	return child
}

// AddNode appends a copy of v and returns the receiver. A nil v appends an undefined element.
//
// AddNode panics with a *TypeError when the node is neither undefined nor a list.
func (n *ModelNode) AddNode(v *ModelNode) *ModelNode {
	n.appendChild(v.Clone())

	return n
}

// AddValue converts v with FromValue and appends it.
func (n *ModelNode) AddValue(v any) error {
	child, err := FromValue(v)
	if err != nil {
		return err
	}
	n.appendChild(child)

	return nil
}

func (n *ModelNode) appendChild(child *ModelNode) {
	switch n.kind {
	case TypeUndefined:
		n.reset(TypeList)
	case TypeList:
	default:
		panic(mismatch("add", TypeList, n.kind))
	}
	n.list = append(n.list, child)
}

// Remove deletes the child stored under key and returns it, or nil if the node is not an
// object or has no such child.
func (n *ModelNode) Remove(key string) *ModelNode {
	if n.kind != TypeObject {
		return nil
	}
	child, ok := n.obj[key]
	if !ok {
		return nil
	}
	delete(n.obj, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			break
		}
	}

	return child
}

// Set replaces the value of the node with v converted by FromValue.
func (n *ModelNode) Set(v any) error {
	converted, err := FromValue(v)
	if err != nil {
		return err
	}
	*n = *converted

	return nil
}

// SetBool sets a boolean value.
func (n *ModelNode) SetBool(v bool) *ModelNode {
	n.reset(TypeBoolean)
	n.b = v

	return n
}

// SetInt sets an int value.
func (n *ModelNode) SetInt(v int32) *ModelNode {
	n.reset(TypeInt)
	n.i = int64(v)

	return n
}

// SetLong sets a long value.
func (n *ModelNode) SetLong(v int64) *ModelNode {
	n.reset(TypeLong)
	n.i = v

	return n
}

// SetDouble sets a double value.
func (n *ModelNode) SetDouble(v float64) *ModelNode {
	n.reset(TypeDouble)
	n.f = v

	return n
}

// SetBigInt sets a big integer value. A nil v clears the node.
func (n *ModelNode) SetBigInt(v *big.Int) *ModelNode {
	if v == nil {
		return n.Clear()
	}
	n.reset(TypeBigInteger)
	n.bi = new(big.Int).Set(v)

	return n
}

// SetString sets a string value.
func (n *ModelNode) SetString(v string) *ModelNode {
	n.reset(TypeString)
	n.s = v

	return n
}

// SetExpression sets an unresolved expression value.
func (n *ModelNode) SetExpression(v string) *ModelNode {
	n.reset(TypeExpression)
	n.s = v

	return n
}

// SetProperty sets a property value holding a copy of value.
func (n *ModelNode) SetProperty(name string, value *ModelNode) *ModelNode {
	n.reset(TypeProperty)
	n.prop = &Property{Name: name, Value: value.Clone()}

	return n
}

// SetNode replaces the value of the node with a copy of v.
func (n *ModelNode) SetNode(v *ModelNode) *ModelNode {
	*n = *v.Clone()

	return n
}

// SetEmptyList sets an empty list value.
func (n *ModelNode) SetEmptyList() *ModelNode {
	n.reset(TypeList)

	return n
}

// SetEmptyObject sets an empty object value.
func (n *ModelNode) SetEmptyObject() *ModelNode {
	n.reset(TypeObject)

	return n
}

// Clear turns the node back into an undefined node.
func (n *ModelNode) Clear() *ModelNode {
	n.reset(TypeUndefined)

	return n
}

// Lookup returns the child stored under key without creating it.
func (n *ModelNode) Lookup(key string) (*ModelNode, bool) {
	if n.Type() != TypeObject {
		return nil, false
	}
	child, ok := n.obj[key]

	return child, ok
}

// Has reports whether the node is an object with a child named key.
func (n *ModelNode) Has(key string) bool {
	_, ok := n.Lookup(key)

	return ok
}

// HasDefined reports whether the node has a defined child named key.
func (n *ModelNode) HasDefined(key string) bool {
	child, ok := n.Lookup(key)

	return ok && child.IsDefined()
}

// Keys returns the child names of an object in insertion order.
func (n *ModelNode) Keys() []string {
	switch n.Type() {
	case TypeObject:
		return append([]string(nil), n.keys...)
	case TypeProperty:
		return []string{n.prop.Name}
	default:
		return nil
	}
}

// Len returns the number of elements of a list or children of an object, otherwise zero.
func (n *ModelNode) Len() int {
	switch n.Type() {
	case TypeList:
		return len(n.list)
	case TypeObject:
		return len(n.keys)
	default:
		return 0
	}
}

// Index returns the list element at position i.
func (n *ModelNode) Index(i int) (*ModelNode, error) {
	if n.Type() != TypeList {
		return nil, mismatch("index", TypeList, n.Type())
	}
	if i < 0 || i >= len(n.list) {
		return nil, fmt.Errorf("dmr: index %d of %d: %w", i, len(n.list), ErrIndexOutOfRange)
	}

	return n.list[i], nil
}

// AsBool returns the node as a boolean. Numbers convert as non-zero, strings must be "true" or
// "false" in any case.
func (n *ModelNode) AsBool() (bool, error) {
	switch n.Type() {
	case TypeBoolean:
		return n.b, nil
	case TypeInt, TypeLong:
		return n.i != 0, nil
	case TypeBigInteger:
		return n.bi.Sign() != 0, nil
	case TypeString:
		switch strings.ToLower(n.s) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}

	return false, mismatch("as bool", TypeBoolean, n.Type())
}

// AsInt returns the node as an int. Values outside the int32 range are a mismatch.
func (n *ModelNode) AsInt() (int32, error) {
	v, err := n.AsLong()
	if err != nil {
		return 0, mismatch("as int", TypeInt, n.Type())
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("dmr: %d overflows INT: %w", v, ErrTypeMismatch)
	}

	return int32(v), nil
}

// AsLong returns the node as a long. Doubles are truncated.
func (n *ModelNode) AsLong() (int64, error) {
	switch n.Type() {
	case TypeInt, TypeLong:
		return n.i, nil
	case TypeDouble:
		if math.IsNaN(n.f) || n.f < math.MinInt64 || n.f >= 1<<63 {
			return 0, fmt.Errorf("dmr: %v overflows LONG: %w", n.f, ErrTypeMismatch)
		}

		return int64(n.f), nil
	case TypeBigInteger:
		if !n.bi.IsInt64() {
			return 0, fmt.Errorf("dmr: %s overflows LONG: %w", n.bi, ErrTypeMismatch)
		}

		return n.bi.Int64(), nil
	case TypeString:
		v, err := strconv.ParseInt(strings.TrimSpace(n.s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("dmr: %q is not a LONG: %w", n.s, ErrTypeMismatch)
		}

		return v, nil
	}

	return 0, mismatch("as long", TypeLong, n.Type())
}

// AsDouble returns the node as a double.
func (n *ModelNode) AsDouble() (float64, error) {
	switch n.Type() {
	case TypeInt, TypeLong:
		return float64(n.i), nil
	case TypeDouble:
		return n.f, nil
	case TypeBigInteger:
		f, _ := new(big.Float).SetInt(n.bi).Float64()
		return f, nil
	case TypeString:
		v, err := strconv.ParseFloat(strings.TrimSpace(n.s), 64)
		if err != nil {
			return 0, fmt.Errorf("dmr: %q is not a DOUBLE: %w", n.s, ErrTypeMismatch)
		}

		return v, nil
	}

	return 0, mismatch("as double", TypeDouble, n.Type())
}

// AsBigInt returns a copy of the node as a big integer.
func (n *ModelNode) AsBigInt() (*big.Int, error) {
	switch n.Type() {
	case TypeInt, TypeLong:
		return big.NewInt(n.i), nil
	case TypeBigInteger:
		return new(big.Int).Set(n.bi), nil
	case TypeString:
		v, ok := new(big.Int).SetString(strings.TrimSpace(n.s), 10)
		if !ok {
			return nil, fmt.Errorf("dmr: %q is not a BIG_INTEGER: %w", n.s, ErrTypeMismatch)
		}

		return v, nil
	}

	return nil, mismatch("as big integer", TypeBigInteger, n.Type())
}

// AsString returns the textual form of a scalar or expression node.
func (n *ModelNode) AsString() (string, error) {
	switch n.Type() {
	case TypeBoolean:
		return strconv.FormatBool(n.b), nil
	case TypeInt, TypeLong:
		return strconv.FormatInt(n.i, 10), nil
	case TypeDouble:
		return strconv.FormatFloat(n.f, 'g', -1, 64), nil
	case TypeBigInteger:
		return n.bi.String(), nil
	case TypeString, TypeExpression:
		return n.s, nil
	}

	return "", mismatch("as string", TypeString, n.Type())
}

// AsList returns the elements of a list. The returned slice is a copy but the elements are the
// live children of the node. Objects are returned as a list of property nodes.
func (n *ModelNode) AsList() ([]*ModelNode, error) {
	switch n.Type() {
	case TypeList:
		return append([]*ModelNode(nil), n.list...), nil
	case TypeObject:
		out := make([]*ModelNode, 0, len(n.keys))
		for _, k := range n.keys {
			out = append(out, &ModelNode{kind: TypeProperty, prop: &Property{Name: k, Value: n.obj[k]}})
		}

		return out, nil
	}

	return nil, mismatch("as list", TypeList, n.Type())
}

// AsProperty returns a property node, or a single-child object, as a Property.
func (n *ModelNode) AsProperty() (Property, error) {
	switch n.Type() {
	case TypeProperty:
		return *n.prop, nil
	case TypeObject:
		if len(n.keys) == 1 {
			return Property{Name: n.keys[0], Value: n.obj[n.keys[0]]}, nil
		}
	}

	return Property{}, mismatch("as property", TypeProperty, n.Type())
}

// AsPropertyList returns the children of an object as properties in insertion order. A list is
// accepted when every element converts with AsProperty.
func (n *ModelNode) AsPropertyList() ([]Property, error) {
	switch n.Type() {
	case TypeObject:
		out := make([]Property, 0, len(n.keys))
		for _, k := range n.keys {
			out = append(out, Property{Name: k, Value: n.obj[k]})
		}

		return out, nil
	case TypeList:
		out := make([]Property, 0, len(n.list))
		for i, e := range n.list {
			p, err := e.AsProperty()
			if err != nil {
				return nil, fmt.Errorf("dmr: element %d: %w", i, err)
			}
			out = append(out, p)
		}

		return out, nil
	}

	return nil, mismatch("as property list", TypeList, n.Type())
}

// AsObject returns the children of an object keyed by name.
func (n *ModelNode) AsObject() (map[string]*ModelNode, error) {
	if n.Type() != TypeObject {
		return nil, mismatch("as object", TypeObject, n.Type())
	}
	out := make(map[string]*ModelNode, len(n.obj))
	for k, v := range n.obj {
		out[k] = v
	}

	return out, nil
}

// Clone returns a deep copy of the node. Cloning nil returns an undefined node.
func (n *ModelNode) Clone() *ModelNode {
	if n == nil {
		return New()
	}
	c := &ModelNode{kind: n.kind, b: n.b, i: n.i, f: n.f, s: n.s}
	switch n.kind {
	case TypeBigInteger:
		c.bi = new(big.Int).Set(n.bi)
	case TypeList:
		c.list = make([]*ModelNode, len(n.list))
		for i, e := range n.list {
			c.list[i] = e.Clone()
		}
	case TypeObject:
		c.keys = append([]string(nil), n.keys...)
		c.obj = make(map[string]*ModelNode, len(n.obj))
		for k, v := range n.obj {
			c.obj[k] = v.Clone()
		}
	case TypeProperty:
		c.prop = &Property{Name: n.prop.Name, Value: n.prop.Value.Clone()}
	}

	return c
}

// Equal reports whether two nodes hold the same kind and value. Object comparison ignores the
// order of children.
func (n *ModelNode) Equal(o *ModelNode) bool {
	if n.Type() != o.Type() {
		return false
	}
	switch n.Type() {
	case TypeUndefined:
		return true
	case TypeBoolean:
		return n.b == o.b
	case TypeInt, TypeLong:
		return n.i == o.i
	case TypeDouble:
		return n.f == o.f
	case TypeBigInteger:
		return n.bi.Cmp(o.bi) == 0
	case TypeString, TypeExpression:
		return n.s == o.s
	case TypeList:
		if len(n.list) != len(o.list) {
			return false
		}
		for i := range n.list {
			if !n.list[i].Equal(o.list[i]) {
				return false
			}
		}

		return true
	case TypeObject:
		if len(n.obj) != len(o.obj) {
			return false
		}
		for k, v := range n.obj {
			ov, ok := o.obj[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}

		return true
	case TypeProperty:
		return n.prop.Name == o.prop.Name && n.prop.Value.Equal(o.prop.Value)
	}

	return false
}

// FromValue converts a Go value into a node. Supported values are nil, bool, the integer and
// float kinds, *big.Int, string, Property, ModelNode, *ModelNode, []*ModelNode, []any, []string
// and map[string]any. Maps are converted in sorted key order.
func FromValue(v any) (*ModelNode, error) {
	switch x := v.(type) {
	case nil:
		return New(), nil
	case *ModelNode:
		return x.Clone(), nil
	case ModelNode:
		return x.Clone(), nil
	case Property:
		return NewProperty(x.Name, x.Value), nil
	case bool:
		return NewBool(x), nil
	case int:
		return intNode(int64(x)), nil
	case int8:
		return NewInt(int32(x)), nil
	case int16:
		return NewInt(int32(x)), nil
	case int32:
		return NewInt(x), nil
	case int64:
		return NewLong(x), nil
	case uint8:
		return NewInt(int32(x)), nil
	case uint16:
		return NewInt(int32(x)), nil
	case uint32:
		return NewLong(int64(x)), nil
	case uint:
		return uintNode(uint64(x)), nil
	case uint64:
		return uintNode(x), nil
	case float32:
		return NewDouble(float64(x)), nil
	case float64:
		return NewDouble(x), nil
	case *big.Int:
		if x == nil {
			return New(), nil
		}

		return NewBigInt(x), nil
	case string:
		return NewString(x), nil
	case []string:
		n := NewList()
		for _, e := range x {
			n.appendChild(NewString(e))
		}

		return n, nil
	case []*ModelNode:
		return NewList(x...), nil
	case []any:
		n := NewList()
		for i, e := range x {
			child, err := FromValue(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			n.appendChild(child)
		}

		return n, nil
	case map[string]any:
		n := NewObject()
		for _, k := range sortedKeys(x) {
			child, err := FromValue(x[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			*n.Get(k) = *child
		}

		return n, nil
	}

	return nil, fmt.Errorf("dmr: %T: %w", v, ErrUnsupportedValue)
}

func intNode(v int64) *ModelNode {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return NewInt(int32(v))
	}

	return NewLong(v)
}

func uintNode(v uint64) *ModelNode {
	if v <= math.MaxInt64 {
		return intNode(int64(v))
	}

	return NewBigInt(new(big.Int).SetUint64(v))
}
