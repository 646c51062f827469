package opts

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
)

// TypeTag names the primitive kind an option value is expected to have.
type TypeTag string

const (
	TypeBoolean  TypeTag = "boolean"
	TypeString   TypeTag = "string"
	TypeNumber   TypeTag = "number"
	TypeInteger  TypeTag = "integer"
	TypeObject   TypeTag = "object"
	TypeArray    TypeTag = "array"
	TypeFunction TypeTag = "function"
	TypeNull     TypeTag = "null"
	TypeAny      TypeTag = "any"
	// TypeUnknown is reported for kinds with no option equivalent (channels,
	// complex numbers, unsafe pointers).
	TypeUnknown TypeTag = "unknown"
)

func (t TypeTag) String() string {
	return string(t)
}

// TypeMatcher reports whether value satisfies a custom type tag.
type TypeMatcher func(value any) bool

// ParseTypeTag normalises common aliases to their canonical tag. Values it
// does not recognise are returned verbatim so custom matchers can claim them.
func ParseTypeTag(value string) TypeTag {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "boolean", "bool":
		return TypeBoolean
	case "string", "str", "text":
		return TypeString
	case "number", "float", "float32", "float64", "double", "numeric":
		return TypeNumber
	case "integer", "int", "int32", "int64":
		return TypeInteger
	case "object", "map", "struct":
		return TypeObject
	case "array", "slice", "list":
		return TypeArray
	case "function", "func":
		return TypeFunction
	case "null", "nil":
		return TypeNull
	case "any", "*":
		return TypeAny
	default:
		return TypeTag(strings.TrimSpace(value))
	}
}

// Classify returns the runtime type tag of value. Pointers and interfaces are
// followed to the value they hold.
func Classify(value any) TypeTag {
	if value == nil {
		return TypeNull
	}
	if _, ok := value.(json.Number); ok {
		return TypeNumber
	}
	return classifyValue(reflect.ValueOf(value))
}

func classifyValue(rv reflect.Value) TypeTag {
	switch rv.Kind() {
	case reflect.Invalid:
		return TypeNull
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return TypeNull
		}
		return classifyValue(rv.Elem())
	case reflect.Bool:
		return TypeBoolean
	case reflect.String:
		return TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.Map, reflect.Struct:
		return TypeObject
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Func:
		return TypeFunction
	default:
		return TypeUnknown
	}
}

// matchesType reports whether value satisfies expected, consulting custom
// matchers before the built-in rules.
func matchesType(expected TypeTag, value any, matchers map[TypeTag]TypeMatcher) bool {
	if match, ok := matchers[expected]; ok {
		return match(value)
	}
	switch expected {
	case TypeAny:
		return true
	case TypeInteger:
		return isIntegral(value)
	default:
		return Classify(value) == expected
	}
}

func isIntegral(value any) bool {
	if number, ok := value.(json.Number); ok {
		_, err := number.Int64()
		return err == nil
	}
	if Classify(value) != TypeNumber {
		return false
	}
	rv := reflect.Indirect(reflect.ValueOf(value))
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
	default:
		return true
	}
}
