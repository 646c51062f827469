package opts

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Transform adapts an infallible function to a Validator.
func Transform(fn func(value any) any) Validator {
	return func(value any) (any, error) {
		if fn == nil {
			return value, nil
		}
		return fn(value), nil
	}
}

// Chain runs validators left to right, feeding each result into the next.
// The first error stops the chain.
func Chain(validators ...Validator) Validator {
	return func(value any) (any, error) {
		current := value
		for _, validator := range validators {
			if validator == nil {
				continue
			}
			next, err := validator(current)
			if err != nil {
				return nil, err
			}
			current = next
		}
		return current, nil
	}
}

// OneOf accepts only values equal to one of allowed.
func OneOf(allowed ...any) Validator {
	choices := slices.Clone(allowed)
	return func(value any) (any, error) {
		for _, choice := range choices {
			if reflect.DeepEqual(choice, value) {
				return value, nil
			}
		}
		return nil, fmt.Errorf("opts: value %v is not one of %v", value, choices)
	}
}

// Clamp bounds numeric values to [lower, upper] keeping their Go type.
// json.Number and pointers to numbers are clamped too; a clamped pointer is
// replaced by a new pointer, the pointee is never written. Non-numeric values
// pass through for the type check to judge.
func Clamp(lower, upper float64) Validator {
	return func(value any) (any, error) {
		if lower > upper {
			return nil, fmt.Errorf("opts: clamp bounds inverted: %v > %v", lower, upper)
		}
		if number, ok := value.(json.Number); ok {
			current, err := number.Float64()
			if err != nil {
				return value, nil
			}
			bound, clamped := clampBound(current, lower, upper)
			if !clamped {
				return value, nil
			}
			return json.Number(strconv.FormatFloat(bound, 'f', -1, 64)), nil
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return value, nil
			}
			current, ok := numericValue(rv.Elem())
			if !ok {
				return value, nil
			}
			bound, clamped := clampBound(current, lower, upper)
			if !clamped {
				return value, nil
			}
			ptr := reflect.New(rv.Type().Elem())
			ptr.Elem().Set(reflect.ValueOf(bound).Convert(rv.Type().Elem()))
			return ptr.Interface(), nil
		}
		current, ok := numericValue(rv)
		if !ok {
			return value, nil
		}
		bound, clamped := clampBound(current, lower, upper)
		if !clamped {
			return value, nil
		}
		return convertNumber(bound, rv.Type()), nil
	}
}

func clampBound(current, lower, upper float64) (float64, bool) {
	switch {
	case current < lower:
		return lower, true
	case current > upper:
		return upper, true
	default:
		return current, false
	}
}

// NumberFromString parses string values into int64 when integral, float64
// otherwise. Other values pass through unchanged.
func NumberFromString() Validator {
	return func(value any) (any, error) {
		text, ok := value.(string)
		if !ok {
			return value, nil
		}
		text = strings.TrimSpace(text)
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("opts: %q is not a number: %w", text, err)
		}
		return f, nil
	}
}

// TrimString removes surrounding whitespace from string values.
func TrimString() Validator {
	return Transform(func(value any) any {
		if text, ok := value.(string); ok {
			return strings.TrimSpace(text)
		}
		return value
	})
}

func numericValue(rv reflect.Value) (float64, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func convertNumber(value float64, target reflect.Type) any {
	return reflect.ValueOf(value).Convert(target).Interface()
}
