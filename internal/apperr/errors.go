// Package apperr defines the error taxonomy shared by the client layers.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNetwork       = errors.New("network error")
	ErrServer        = errors.New("server error")
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrConfig        = errors.New("invalid configuration")
	ErrSubmitting    = errors.New("submission already in progress")
	ErrDeletePending = errors.New("delete already in progress")
	ErrNoDraft       = errors.New("no open draft")
	ErrClosed        = errors.New("closed")
)

// NetworkError reports a transport failure or timeout.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ServerError reports a 5xx or unexpected 4xx response.
type ServerError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: server returned %d", e.Op, e.Status)
}

func (e *ServerError) Is(target error) bool { return target == ErrServer }

// ValidationError carries per-field messages. Fields may be empty when the
// server rejected a payload without saying which field was wrong.
type ValidationError struct {
	Fields  map[string]string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Message != "" {
			return "validation failed: " + e.Message
		}
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError collects per-field errors, such as those produced by
// ozzo-validation, into a ValidationError.
func NewValidationError(fields map[string]error) *ValidationError {
	out := make(map[string]string, len(fields))
	for name, err := range fields {
		out[name] = err.Error()
	}
	return &ValidationError{Fields: out}
}

// Field returns the message recorded for name, if any.
func (e *ValidationError) Field(name string) string {
	return e.Fields[name]
}

// NotFoundError reports a missing delete target.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("note %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConfigError reports missing or invalid startup configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }
