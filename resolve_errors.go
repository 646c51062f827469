package opts

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownOption matches errors raised for keys a strict schema does not declare.
	ErrUnknownOption = errors.New("opts: unknown option")
	// ErrInvalidType matches errors raised when a value has the wrong type.
	ErrInvalidType = errors.New("opts: invalid option type")
	// ErrMissingRequired matches errors raised for required keys without a value.
	ErrMissingRequired = errors.New("opts: required option missing")
)

// UnknownOptionError reports an input key that a strict schema does not know.
type UnknownOptionError struct {
	Key string
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("opts: unknown option %q", e.Key)
}

func (e *UnknownOptionError) Is(target error) bool {
	return target == ErrUnknownOption
}

// InvalidTypeError reports a value whose runtime type differs from the
// declared one after validators ran.
type InvalidTypeError struct {
	Key      string
	Expected TypeTag
	Actual   TypeTag
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("opts: wrong value for option %q: expected type %q but got %q", e.Key, e.Expected, e.Actual)
}

func (e *InvalidTypeError) Is(target error) bool {
	return target == ErrInvalidType
}

// MissingRequiredError reports a required key that has no value after merge.
type MissingRequiredError struct {
	Key string
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("opts: option %q is required", e.Key)
}

func (e *MissingRequiredError) Is(target error) bool {
	return target == ErrMissingRequired
}
