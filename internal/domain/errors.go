package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrUpstreamGeneration = errors.New("upstream generation failed")
	ErrSchemaValidation   = errors.New("schema validation failed")
	ErrPersistence        = errors.New("persistence failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
)

// ErrorKind is the machine-readable failure class reported to callers.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindUpstreamGeneration ErrorKind = "upstream_generation"
	KindSchemaValidation   ErrorKind = "schema_validation"
	KindPersistence        ErrorKind = "persistence"
	KindNotFound           ErrorKind = "not_found"
	KindConflict           ErrorKind = "conflict"
	KindInternal           ErrorKind = "internal"
)

// KindOf classifies err against the domain sentinels.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUpstreamGeneration):
		return KindUpstreamGeneration
	case errors.Is(err, ErrSchemaValidation):
		return KindSchemaValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindInternal
	}
}

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add records a message for field. The first message per field wins.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// OrNil returns nil when no field failed.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StageError ties a failure to the pipeline stage that produced it.
type StageError struct {
	Stage string
	Kind  error
	Err   error
}

// NewUpstreamError reports a failed or unusable generative call in stage.
func NewUpstreamError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Kind: ErrUpstreamGeneration, Err: err}
}

// NewSchemaError reports a reconciliation result that still violates the plan shape.
func NewSchemaError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Kind: ErrSchemaValidation, Err: err}
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
