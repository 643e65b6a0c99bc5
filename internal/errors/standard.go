// Package errors provides standardized error messaging for the minic backend
package errors

import (
	"fmt"
	"runtime"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryParse      ErrorCategory = "PARSE"
	CategorySelection  ErrorCategory = "SELECTION"
	CategoryAllocation ErrorCategory = "ALLOCATION"
	CategoryLayout     ErrorCategory = "LAYOUT"
	CategoryIO         ErrorCategory = "IO"
)

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// Is matches another StandardError with the same category and code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	return ok && t.Category == e.Category && t.Code == e.Code
}

// NewStandardError creates a new standardized error
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	pc, _, _, ok := runtime.Caller(1)
	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// Common error constructors
func UnsupportedOpcode(fn string, index int, op string) *StandardError {
	return NewStandardError(CategorySelection, "UNSUPPORTED_OPCODE",
		fmt.Sprintf("Unsupported opcode %s at %s#%d", op, fn, index),
		map[string]interface{}{"function": fn, "index": index, "opcode": op})
}

func MalformedInstruction(fn string, index int, details string) *StandardError {
	return NewStandardError(CategorySelection, "MALFORMED_INSTRUCTION",
		fmt.Sprintf("Malformed instruction at %s#%d: %s", fn, index, details),
		map[string]interface{}{"function": fn, "index": index, "details": details})
}

func PointerAlias(fn string, index int, ptr, value string) *StandardError {
	return NewStandardError(CategorySelection, "POINTER_ALIAS",
		fmt.Sprintf("Pointer %s and stored value %s share storage at %s#%d", ptr, value, fn, index),
		map[string]interface{}{"function": fn, "index": index, "pointer": ptr, "value": value})
}

func ArgCountMismatch(fn string, index int, callee string, staged, passed int) *StandardError {
	return NewStandardError(CategorySelection, "ARG_COUNT_MISMATCH",
		fmt.Sprintf("Call to %s at %s#%d staged %d arguments but passes %d", callee, fn, index, staged, passed),
		map[string]interface{}{"function": fn, "index": index, "callee": callee, "staged": staged, "passed": passed})
}

func RegistersExhausted(fn string, index int, value string) *StandardError {
	return NewStandardError(CategoryAllocation, "REGISTERS_EXHAUSTED",
		fmt.Sprintf("No register for %s at %s#%d, using scratch", value, fn, index),
		map[string]interface{}{"function": fn, "index": index, "value": value})
}

func LayoutConflict(fn string, details string) *StandardError {
	return NewStandardError(CategoryLayout, "LAYOUT_CONFLICT",
		fmt.Sprintf("Frame layout of %s repaired: %s", fn, details),
		map[string]interface{}{"function": fn, "details": details})
}

func FileError(path string, err error) *StandardError {
	return NewStandardError(CategoryIO, "FILE_ERROR",
		fmt.Sprintf("%s: %v", path, err),
		map[string]interface{}{"path": path, "cause": err})
}
