package errors

import (
	"errors"
	"fmt"
)

// Error represents a typed engine error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones and wrapped
// copies of a predefined error still match it.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrSlotOccupied      = New("SLOT_OCCUPIED", "slot is already occupied")
	ErrTeacherConflict   = New("TEACHER_CONFLICT", "teacher is already busy at that time")
	ErrOutOfBounds       = New("OUT_OF_BOUNDS", "day or hour outside the grid")
	ErrUnknownClass      = New("UNKNOWN_CLASS", "class is not part of the grid")
	ErrEmptySlot         = New("EMPTY_SLOT", "slot is empty")
	ErrManualLock        = New("MANUAL_LOCK", "slot is manually locked")
	ErrBlockRule         = New("BLOCK_RULE", "block rule violated")
	ErrHardViolation     = New("HARD_VIOLATION", "placement violates a hard constraint")
	ErrPlacementFailed   = New("PLACEMENT_FAILED", "no legal slot found")
	ErrStageFailed       = New("STAGE_FAILED", "pipeline stage failed")
	ErrValidation        = New("VALIDATION_ERROR", "validation failed")
	ErrNotRegistered     = New("NOT_REGISTERED", "capability is not registered")
	ErrCancelled         = New("CANCELLED", "run cancelled")
	ErrOptimizerRejected = New("OPTIMIZER_REJECTED", "optimizer result rejected")
	ErrInternal          = New("INTERNAL_ERROR", "internal error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Clonef is Clone with a formatted message.
func Clonef(err *Error, format string, args ...any) *Error {
	return Clone(err, fmt.Sprintf(format, args...))
}
