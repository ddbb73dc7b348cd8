package dmr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
)

// expressionKey marks an expression value in the JSON form.
const expressionKey = "EXPRESSION_VALUE"

var (
	_ json.Marshaler   = (*ModelNode)(nil)
	_ json.Unmarshaler = (*ModelNode)(nil)
)

// MarshalJSON encodes the node in the DMR JSON form. Object children keep their insertion order.
func (n *ModelNode) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// JSONIndent returns the indented DMR JSON form of the node.
func (n *ModelNode) JSONIndent(prefix, indent string) ([]byte, error) {
	raw, err := n.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, prefix, indent); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

func (n *ModelNode) writeJSON(buf *bytes.Buffer) error {
	switch n.Type() {
	case TypeUndefined:
		buf.WriteString("null")
	case TypeBoolean:
		buf.WriteString(strconv.FormatBool(n.b))
	case TypeInt, TypeLong:
		buf.WriteString(strconv.FormatInt(n.i, 10))
	case TypeDouble:
		if math.IsNaN(n.f) || math.IsInf(n.f, 0) {
			return fmt.Errorf("dmr: json: %v: %w", n.f, ErrUnsupportedValue)
		}
		buf.WriteString(formatDouble(n.f))
	case TypeBigInteger:
		buf.WriteString(n.bi.String())
	case TypeString:
		writeJSONString(buf, n.s)
	case TypeExpression:
		buf.WriteString(`{"` + expressionKey + `":`)
		writeJSONString(buf, n.s)
		buf.WriteByte('}')
	case TypeList:
		buf.WriteByte('[')
		for i, e := range n.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case TypeObject:
		buf.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, k)
			buf.WriteByte(':')
			if err := n.obj[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case TypeProperty:
		buf.WriteByte('{')
		writeJSONString(buf, n.prop.Name)
		buf.WriteByte(':')
		if err := n.prop.Value.writeJSON(buf); err != nil {
			return err
		}
		buf.WriteByte('}')
	}

	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	// Marshalling a string never fails.
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// formatDouble keeps a fractional part so the value decodes back as a double.
func formatDouble(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}

	return s
}

// UnmarshalJSON decodes the DMR JSON form into the node, replacing its value.
func (n *ModelNode) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	decoded, err := decodeNode(dec)
	if err != nil {
		return fmt.Errorf("dmr: json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("dmr: json: trailing data after value")
	}
	*n = *decoded

	return nil
}

// ParseJSON decodes a DMR JSON document.
func ParseJSON(data []byte) (*ModelNode, error) {
	n := New()
	if err := n.UnmarshalJSON(data); err != nil {
		return nil, err
	}

	return n, nil
}

func decodeNode(dec *json.Decoder) (*ModelNode, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case nil:
		return New(), nil
	case bool:
		return NewBool(t), nil
	case string:
		return NewString(t), nil
	case json.Number:
		return decodeNumber(t)
	case json.Delim:
		switch t {
		case '[':
			list := NewList()
			for dec.More() {
				e, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				list.list = append(list.list, e)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}

			return list, nil
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				child, err := decodeNode(dec)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				*obj.Get(key) = *child
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}

			return unwrapExpression(obj), nil
		}
	}

	return nil, fmt.Errorf("unexpected token %v", tok)
}

func unwrapExpression(obj *ModelNode) *ModelNode {
	if len(obj.keys) != 1 || obj.keys[0] != expressionKey {
		return obj
	}
	v := obj.obj[expressionKey]
	if v.kind != TypeString {
		return obj
	}

	return NewExpression(v.s)
}

func decodeNumber(num json.Number) (*ModelNode, error) {
	s := num.String()
	if !strings.ContainsAny(s, ".eE") {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return intNode(v), nil
		}
		if v, ok := new(big.Int).SetString(s, 10); ok {
			return NewBigInt(v), nil
		}
	}
	f, err := num.Float64()
	if err != nil {
		return nil, err
	}

	return NewDouble(f), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)

	return keys
}
