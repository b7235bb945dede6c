package refuel

import (
	"errors"
	"sort"
	"strings"
)

// Kind classifies errors surfaced to API callers
type Kind string

const (
	KindValidation       Kind = "validation"
	KindInsufficientData Kind = "insufficient_data"
	KindMissingHistory   Kind = "missing_history"
	KindNotFound         Kind = "not_found"
)

// RejectionError is returned when a refuel cannot be accepted as submitted.
// The message is meant to be shown to the user as is.
type RejectionError struct {
	Kind    Kind
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// Is matches any RejectionError of the same kind
func (e *RejectionError) Is(target error) bool {
	var t *RejectionError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInsufficientData = &RejectionError{Kind: KindInsufficientData, Message: "insufficient data"}
	ErrMissingHistory   = &RejectionError{Kind: KindMissingHistory, Message: "missing history"}
	ErrNotFound         = &RejectionError{Kind: KindNotFound, Message: "not found"}
)

func reject(kind Kind, message string) *RejectionError {
	return &RejectionError{Kind: kind, Message: message}
}

// ValidationError collects per-field input problems
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, " | ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// KindOf reports the kind of err, or "" when it is not a domain error
func KindOf(err error) Kind {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Kind
	}
	var val *ValidationError
	if errors.As(err, &val) {
		return KindValidation
	}
	return ""
}
