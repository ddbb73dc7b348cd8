package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/suzuki-shunsuke/go-convmap/convmap"
	"gopkg.in/yaml.v3"

	"github.com/hal-console/dmr-framework/dmr"
)

// normalize converts a decoded plan value into something dmr.FromValue accepts. It walks maps
// and slices in place:
//   - "${...}" strings become expression nodes
//   - integer strings that overflow uint64 become *big.Int
//   - json.Number and int64 become the smallest fitting Go integer, or a float64
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		for k, vv := range x {
			n, err := normalize(vv)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			x[k] = n
		}

		return x, nil

	case []any:
		for i := range x {
			n, err := normalize(x[i])
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			x[i] = n
		}

		return x, nil

	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			n, err := normalize(x[i])
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}

		return out, nil

	case string:
		if isExpression(x) {
			return dmr.NewExpression(x), nil
		}
		if bi, ok := bigIntIfOverflowUint64(x); ok {
			return bi, nil
		}

		return x, nil

	case int64:
		return int(x), nil

	case json.Number:
		return numberValue(string(x))

	default:
		return v, nil
	}
}

// isExpression reports whether s is an unresolved ${...} expression.
func isExpression(s string) bool {
	return strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") && len(s) > 3
}

// bigIntIfOverflowUint64 converts integer strings that fit neither int64 nor uint64. Smaller
// numeric strings stay strings: a quoted number is meant as text.
func bigIntIfOverflowUint64(s string) (*big.Int, bool) {
	if _, err := strconv.ParseInt(s, 10, 64); !isRangeError(err) {
		return nil, false
	}
	if !strings.HasPrefix(s, "-") {
		if _, err := strconv.ParseUint(s, 10, 64); !isRangeError(err) {
			return nil, false
		}
	}

	return new(big.Int).SetString(s, 10)
}

func isRangeError(err error) bool {
	var ne *strconv.NumError

	return errors.As(err, &ne) && errors.Is(ne.Err, strconv.ErrRange)
}

func numberValue(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(i), nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u, nil
	}
	if bi, ok := new(big.Int).SetString(s, 10); ok {
		return bi, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("number %q: %w", s, err)
	}

	return f, nil
}

// yamlValue decodes a YAML value node. Plain integer scalars keep full precision; mappings are
// made JSON safe with convmap, which turns map[any]any into map[string]any.
func yamlValue(node *yaml.Node) (any, error) {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		return yamlValue(node.Alias)
	}
	if node.Kind == yaml.ScalarNode && node.Style == 0 && node.Tag != "!!str" {
		if v, ok := plainInteger(node.Value); ok {
			return v, nil
		}
	}

	var v any
	if err := node.Decode(&v); err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}
	converted, err := convmap.Convert(v, nil)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}

	return normalize(converted)
}

func plainInteger(s string) (any, bool) {
	digits := strings.TrimLeft(s, "+-")
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return nil, false
	}
	v, err := numberValue(strings.TrimPrefix(s, "+"))
	if err != nil {
		return nil, false
	}

	return v, true
}
