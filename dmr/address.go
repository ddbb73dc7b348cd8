package dmr

import (
	"fmt"
	"strings"
)

// Segment is one key=value element of a resource address.
type Segment struct {
	Key   string
	Value string
}

// ResourceAddress identifies a resource in the management model. The zero value is the root
// address. A ResourceAddress is immutable: every method returning an address returns a new one.
type ResourceAddress struct {
	segments []Segment
}

// Root returns the root address.
func Root() ResourceAddress {
	return ResourceAddress{}
}

// NewResourceAddress builds an address from alternating keys and values.
func NewResourceAddress(pairs ...string) (ResourceAddress, error) {
	if len(pairs)%2 != 0 {
		return ResourceAddress{}, fmt.Errorf("odd number of key/value arguments (%d): %w", len(pairs), ErrInvalidAddress)
	}
	segments := make([]Segment, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		s := Segment{Key: pairs[i], Value: pairs[i+1]}
		if err := s.validate(); err != nil {
			return ResourceAddress{}, err
		}
		segments = append(segments, s)
	}

	return ResourceAddress{segments: segments}, nil
}

// MustResourceAddress is like NewResourceAddress but panics on error.
func MustResourceAddress(pairs ...string) ResourceAddress {
	a, err := NewResourceAddress(pairs...)
	if err != nil {
		panic(err)
	}

	return a
}

// ParseResourceAddress parses the CLI form of an address, e.g. /subsystem=ee/service=default.
// The empty string and "/" denote the root address.
func ParseResourceAddress(s string) (ResourceAddress, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "/" {
		return Root(), nil
	}
	if !strings.HasPrefix(trimmed, "/") {
		return ResourceAddress{}, fmt.Errorf("%q must start with '/': %w", s, ErrInvalidAddress)
	}

	parts := strings.Split(strings.TrimSuffix(trimmed[1:], "/"), "/")
	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return ResourceAddress{}, fmt.Errorf("%q: segment %q has no '=': %w", s, part, ErrInvalidAddress)
		}
		seg := Segment{Key: key, Value: value}
		if err := seg.validate(); err != nil {
			return ResourceAddress{}, fmt.Errorf("%q: %w", s, err)
		}
		segments = append(segments, seg)
	}

	return ResourceAddress{segments: segments}, nil
}

// AddressFromModelNode reads the DMR form of an address: a list of properties or single-key
// objects. An undefined node is the root address.
func AddressFromModelNode(n *ModelNode) (ResourceAddress, error) {
	if !n.IsDefined() {
		return Root(), nil
	}
	props, err := n.AsPropertyList()
	if err != nil {
		return ResourceAddress{}, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	segments := make([]Segment, 0, len(props))
	for _, p := range props {
		v, err := p.Value.AsString()
		if err != nil {
			return ResourceAddress{}, fmt.Errorf("%w: segment %s: %w", ErrInvalidAddress, p.Name, err)
		}
		seg := Segment{Key: p.Name, Value: v}
		if err := seg.validate(); err != nil {
			return ResourceAddress{}, err
		}
		segments = append(segments, seg)
	}

	return ResourceAddress{segments: segments}, nil
}

func (s Segment) validate() error {
	if s.Key == "" || s.Value == "" {
		return fmt.Errorf("empty key or value in segment %q=%q: %w", s.Key, s.Value, ErrInvalidAddress)
	}

	return nil
}

// Add returns a new address with key=value appended.
func (a ResourceAddress) Add(key, value string) ResourceAddress {
	segments := make([]Segment, len(a.segments), len(a.segments)+1)
	copy(segments, a.segments)

	return ResourceAddress{segments: append(segments, Segment{Key: key, Value: value})}
}

// Parent returns the address without its last segment. The parent of root is root.
func (a ResourceAddress) Parent() ResourceAddress {
	if len(a.segments) == 0 {
		return a
	}

	return ResourceAddress{segments: a.segments[:len(a.segments)-1:len(a.segments)-1]}
}

// LastName returns the key of the last segment, or "" for root.
func (a ResourceAddress) LastName() string {
	if len(a.segments) == 0 {
		return ""
	}

	return a.segments[len(a.segments)-1].Key
}

// LastValue returns the value of the last segment, or "" for root.
func (a ResourceAddress) LastValue() string {
	if len(a.segments) == 0 {
		return ""
	}

	return a.segments[len(a.segments)-1].Value
}

func (a ResourceAddress) IsRoot() bool { return len(a.segments) == 0 }

func (a ResourceAddress) Size() int { return len(a.segments) }

// Segments returns a copy of the address segments.
func (a ResourceAddress) Segments() []Segment {
	return append([]Segment(nil), a.segments...)
}

// Equal reports whether both addresses have the same segments.
func (a ResourceAddress) Equal(o ResourceAddress) bool {
	if len(a.segments) != len(o.segments) {
		return false
	}
	for i := range a.segments {
		if a.segments[i] != o.segments[i] {
			return false
		}
	}

	return true
}

// String renders the CLI path of the address. Root renders as "/".
func (a ResourceAddress) String() string {
	if len(a.segments) == 0 {
		return "/"
	}

	return a.cliPrefix()
}

// cliPrefix is the address as it prefixes an operation in the CLI. Root is empty.
func (a ResourceAddress) cliPrefix() string {
	var sb strings.Builder
	for _, s := range a.segments {
		sb.WriteByte('/')
		sb.WriteString(s.Key)
		sb.WriteByte('=')
		sb.WriteString(s.Value)
	}

	return sb.String()
}

// ModelNode returns the DMR form of the address: a list of property nodes.
func (a ResourceAddress) ModelNode() *ModelNode {
	n := NewList()
	for _, s := range a.segments {
		n.list = append(n.list, NewProperty(s.Key, NewString(s.Value)))
	}

	return n
}
