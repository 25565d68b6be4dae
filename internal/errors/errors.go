// Copyright (c) 2024-2026 Carsen Klock under MIT License
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing failures.
const (
	ErrStartup  = "STARTUP"
	ErrTerminal = "TERMINAL"
	ErrConfig   = "CONFIG"
	ErrRead     = "READ"
	ErrFormat   = "FORMAT"
)

// Error is a structured error with a code, message, suggestion and optional cause.
//
//	✗ <What failed>
//
//	  <Why it failed>
//
//	  <How to fix it>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates an Error without a cause.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps err as a transient read failure.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrRead,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps err under an explicit code.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Summary is the single-line form used for stderr and log output.
func (e *Error) Summary() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode reports whether err is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var ibErr *Error
	if errors.As(err, &ibErr) {
		return ibErr.Code == code
	}
	return false
}

// OneLine reduces any error to a single line for fatal exit messages.
func OneLine(err error) string {
	if err == nil {
		return ""
	}
	var ibErr *Error
	if errors.As(err, &ibErr) {
		return ibErr.Summary()
	}
	line, _, _ := strings.Cut(err.Error(), "\n")
	return line
}
