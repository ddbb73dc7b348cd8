package dmr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// String returns the compact DMR text form of the node, e.g. {"a" => 1,"b" => [true]}.
func (n *ModelNode) String() string {
	var sb strings.Builder
	n.writeDMR(&sb)

	return sb.String()
}

func (n *ModelNode) writeDMR(sb *strings.Builder) {
	switch n.Type() {
	case TypeUndefined:
		sb.WriteString("undefined")
	case TypeBoolean:
		sb.WriteString(strconv.FormatBool(n.b))
	case TypeInt:
		sb.WriteString(strconv.FormatInt(n.i, 10))
	case TypeLong:
		sb.WriteString(strconv.FormatInt(n.i, 10))
		sb.WriteByte('L')
	case TypeDouble:
		sb.WriteString(strconv.FormatFloat(n.f, 'g', -1, 64))
	case TypeBigInteger:
		sb.WriteString("big integer ")
		sb.WriteString(n.bi.String())
	case TypeString:
		writeDMRQuoted(sb, n.s)
	case TypeExpression:
		sb.WriteString("expression ")
		writeDMRQuoted(sb, n.s)
	case TypeList:
		sb.WriteByte('[')
		for i, e := range n.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.writeDMR(sb)
		}
		sb.WriteByte(']')
	case TypeObject:
		sb.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeDMRQuoted(sb, k)
			sb.WriteString(" => ")
			n.obj[k].writeDMR(sb)
		}
		sb.WriteByte('}')
	case TypeProperty:
		sb.WriteByte('(')
		writeDMRQuoted(sb, n.prop.Name)
		sb.WriteString(" => ")
		n.prop.Value.writeDMR(sb)
		sb.WriteByte(')')
	}
}

func writeDMRQuoted(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
}

// cliSeparators are the characters that force a CLI string value to be quoted.
const cliSeparators = `,=(){}[]" `

// CliValue renders the node as a value in the management CLI syntax.
func (n *ModelNode) CliValue() (string, error) {
	var sb strings.Builder
	if err := n.writeCli(&sb); err != nil {
		return "", err
	}

	return sb.String(), nil
}

func (n *ModelNode) writeCli(sb *strings.Builder) error {
	switch n.Type() {
	case TypeUndefined:
		sb.WriteString("undefined")
	case TypeBoolean:
		sb.WriteString(strconv.FormatBool(n.b))
	case TypeInt, TypeLong:
		sb.WriteString(strconv.FormatInt(n.i, 10))
	case TypeDouble:
		if math.IsNaN(n.f) || math.IsInf(n.f, 0) {
			return fmt.Errorf("dmr: cli: %v: %w", n.f, ErrUnsupportedValue)
		}
		sb.WriteString(strconv.FormatFloat(n.f, 'g', -1, 64))
	case TypeBigInteger:
		sb.WriteString(n.bi.String())
	case TypeString:
		writeCliString(sb, n.s)
	case TypeExpression:
		sb.WriteString(n.s)
	case TypeList:
		sb.WriteByte('[')
		for i, e := range n.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := e.writeCli(sb); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case TypeObject:
		sb.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCliString(sb, k)
			sb.WriteByte('=')
			if err := n.obj[k].writeCli(sb); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	case TypeProperty:
		sb.WriteByte('(')
		writeCliString(sb, n.prop.Name)
		sb.WriteString("=>")
		if err := n.prop.Value.writeCli(sb); err != nil {
			return err
		}
		sb.WriteByte(')')
	}

	return nil
}

func writeCliString(sb *strings.Builder, s string) {
	if s != "" && !needsCliQuotes(s) {
		sb.WriteString(s)
		return
	}
	sb.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
}

func needsCliQuotes(s string) bool {
	for _, r := range s {
		if strings.ContainsRune(cliSeparators, r) || unicode.IsSpace(r) {
			return true
		}
	}

	return false
}
