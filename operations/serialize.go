package operations

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/hal-console/dmr-framework/pkg/logger"
)

var jsonMarshalerType = reflect.TypeFor[json.Marshaler]()

// IsSerializable reports whether v can be written to a report and read back without losing
// data. Values must marshal to JSON, and structs must not carry unexported fields unless their
// type implements json.Marshaler.
func IsSerializable(lggr logger.Logger, v any) bool {
	if !isSerializableType(reflect.ValueOf(v)) {
		lggr.Errorw("Value holds data that is lost when serialized", "type", reflect.TypeOf(v))
		return false
	}
	if _, err := json.Marshal(v); err != nil {
		lggr.Errorw("Value cannot be marshalled to JSON", "type", reflect.TypeOf(v), "error", err)
		return false
	}

	return true
}

func isSerializableType(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	if v.Type().Implements(jsonMarshalerType) || reflect.PointerTo(v.Type()).Implements(jsonMarshalerType) {
		return true
	}

	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return false
	case reflect.Pointer, reflect.Interface:
		return v.IsNil() || isSerializableType(v.Elem())
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			if !isSerializableType(v.Index(i)) {
				return false
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if !isSerializableType(iter.Value()) {
				return false
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				return false
			}
			if f.Tag.Get("json") == "-" {
				continue
			}
			if !isSerializableType(v.Field(i)) {
				return false
			}
		}
	}

	return true
}

// constructUniqueHashFrom returns a hash identifying a task and its input.
func constructUniqueHashFrom(def Definition, input any) (string, error) {
	data, err := json.Marshal(struct {
		Def   Definition `json:"definition"`
		Input any        `json:"input"`
	}{def, input})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}

// reportHash returns the hash of a stored report, computing it once per report ID.
func reportHash(cache *sync.Map, report Report[any, any]) (string, error) {
	if cache != nil {
		if h, ok := cache.Load(report.ID); ok {
			return h.(string), nil
		}
	}
	h, err := constructUniqueHashFrom(report.Def, report.Input)
	if err != nil {
		return "", err
	}
	if cache != nil {
		cache.Store(report.ID, h)
	}

	return h, nil
}
