package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Problem is one rule violation on one field.
type Problem struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError is detected before any store call and never reaches the
// database.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "validation error"
	}
	fields := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		fields = append(fields, p.Field)
	}
	return "validation error: " + strings.Join(fields, ", ")
}

// HasField reports whether a problem was recorded for field.
func (e *ValidationError) HasField(field string) bool {
	if e == nil {
		return false
	}
	for _, p := range e.Problems {
		if p.Field == field {
			return true
		}
	}
	return false
}

type StoreErrorCode string

const (
	CodePermissionDenied StoreErrorCode = "permission-denied"
	CodeUnavailable      StoreErrorCode = "unavailable"
	CodeNotFound         StoreErrorCode = "not-found"
	CodeUnknown          StoreErrorCode = "unknown"
)

// StoreError reports a failed store call with the provider classification.
type StoreError struct {
	Code StoreErrorCode
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// RenderError marks a value that could not be displayed; renderers log it
// and show a placeholder instead.
type RenderError struct {
	Field string
	Value any
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("cannot render %s value %v (%T)", e.Field, e.Value, e.Value)
}

// StoreErrorCodeOf returns the code of a wrapped StoreError, or "" when err
// is not a store failure.
func StoreErrorCodeOf(err error) StoreErrorCode {
	var storeErr *StoreError
	if errors.As(err, &storeErr) && storeErr != nil {
		return storeErr.Code
	}
	return ""
}

func AsValidationError(err error) *ValidationError {
	var vErr *ValidationError
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}
