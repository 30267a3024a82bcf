// Package errors provides the unified error type and factory functions for
// TransitLedger. Every layer of the application (domain, application,
// infrastructure, interfaces) returns AppError so that HTTP responses, logs and
// metrics classify failures the same way.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack returns a formatted call-stack string starting two frames above
// the caller (skipping captureStack itself and New/Wrap).
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// AppError
// ─────────────────────────────────────────────────────────────────────────────

// AppError is the single structured error type used throughout TransitLedger.
// It supports errors.Is / errors.As / errors.Unwrap across layers.
//
// Usage:
//
//	return errors.New(errors.ErrCodeMissionNotFound, "mission introuvable")
//	return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load contract")
//	return errors.Validation("contrat invalide").WithField("caution", "max 50%")
type AppError struct {
	// Code identifies the failure category.
	Code ErrorCode

	// Message is the user-facing description.
	Message string

	// Detail carries debugging context that is not shown to end users.
	Detail string

	// Fields maps an input field to the rule it broke. Only validation errors set it.
	Fields map[string]string

	// Meta carries structured values a caller may act on, e.g. the lateness
	// figures of a refused mission termination.
	Meta map[string]interface{}

	// Cause is the underlying error.
	Cause error

	// Stack is the call-stack captured at creation. Not part of Error().
	Stack string
}

// Error implements the standard error interface.
// Format: "[<code>] <message>: <detail>"
func (e *AppError) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		msg = msg + " (" + e.fieldSummary() + ")"
	}
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code.String(), msg, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code.String(), msg)
}

func (e *AppError) fieldSummary() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// Unwrap returns the underlying cause error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ─────────────────────────────────────────────────────────────────────────────
// Fluent builder methods
// ─────────────────────────────────────────────────────────────────────────────

// WithDetail returns a shallow copy of the receiver with Detail set.
// It is safe to call on a nil pointer (returns nil).
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of the receiver with Cause set to err.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// WithField returns a copy of the receiver with one more field violation.
func (e *AppError) WithField(field, message string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Fields = make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		clone.Fields[k] = v
	}
	clone.Fields[field] = message
	return &clone
}

// WithMeta returns a copy of the receiver with key set in Meta.
func (e *AppError) WithMeta(key string, value interface{}) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Meta = make(map[string]interface{}, len(e.Meta)+1)
	for k, v := range e.Meta {
		clone.Meta[k] = v
	}
	clone.Meta[key] = value
	return &clone
}

// ─────────────────────────────────────────────────────────────────────────────
// Primary factory functions
// ─────────────────────────────────────────────────────────────────────────────

// New constructs a fresh AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Wrap constructs an AppError that wraps an existing error.
// If err is nil, Wrap returns nil. When code is CodeUnknown and err is already
// an *AppError the original code is kept.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == CodeUnknown {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		}
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error-chain inspection helpers
// ─────────────────────────────────────────────────────────────────────────────

// IsCode reports whether any error in err's chain is an *AppError with code.
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

func isAnyCode(err error, codes ...ErrorCode) bool {
	for _, c := range codes {
		if IsCode(err, c) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err's chain carries any not-found code.
func IsNotFound(err error) bool {
	return isAnyCode(err, ErrCodeNotFound, ErrCodeContractNotFound, ErrCodeMissionNotFound,
		ErrCodeCautionNotFound, ErrCodePaymentNotFound, ErrCodeUserNotFound)
}

// IsValidation reports whether err's chain carries a validation code.
func IsValidation(err error) bool {
	return isAnyCode(err, ErrCodeValidation, ErrCodeSettlementValidation, ErrCodeBadRequest, ErrCodeWeakPassword)
}

// IsConflict reports whether err's chain carries a conflict code.
func IsConflict(err error) bool {
	return isAnyCode(err, ErrCodeConflict, ErrCodeResourceConflict, ErrCodeDuplicateBL,
		ErrCodeInvalidTransition, ErrCodeLockNotAcquired)
}

// IsUnauthorized reports whether err's chain carries an authentication failure.
func IsUnauthorized(err error) bool {
	return isAnyCode(err, ErrCodeUnauthorized, ErrCodeInvalidCredentials)
}

// GetCode extracts the ErrorCode from the first *AppError in err's chain.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// AsAppError returns the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// ─────────────────────────────────────────────────────────────────────────────
// Convenience factories
// ─────────────────────────────────────────────────────────────────────────────

// Validation constructs a settlement validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeSettlementValidation,
		Message: message,
		Stack:   captureStack(1),
	}
}

// ValidationFields constructs a settlement validation error with a field map.
// It returns nil when fields is empty so callers can write
// `return errors.ValidationFields(msg, errs)` unconditionally.
func ValidationFields(message string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &AppError{
		Code:    ErrCodeSettlementValidation,
		Message: message,
		Fields:  fields,
		Stack:   captureStack(1),
	}
}

// NotFound constructs a CodeNotFound AppError.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
		Stack:   captureStack(1),
	}
}

// InvalidParam constructs a CodeInvalidParam AppError.
func InvalidParam(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidParam,
		Message: message,
		Stack:   captureStack(1),
	}
}

// InvalidTransition constructs an ErrCodeInvalidTransition AppError.
func InvalidTransition(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidTransition,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Unauthorized constructs a CodeUnauthorized AppError.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Stack:   captureStack(1),
	}
}

// RateLimit constructs a CodeRateLimit AppError.
func RateLimit(message string) *AppError {
	return &AppError{
		Code:    CodeRateLimit,
		Message: message,
		Stack:   captureStack(1),
	}
}
