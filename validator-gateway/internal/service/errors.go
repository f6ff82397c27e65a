package service

import (
	"errors"
	"fmt"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/audit"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/auth"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/imaging"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/validator"
)

// Kind classifies failures so the transport can pick a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUpstreamUnreachable
	KindUpstreamMalformed
	KindUnauthorized
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstreamUnreachable:
		return "upstream_unreachable"
	case KindUpstreamMalformed:
		return "upstream_malformed"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Violation describes one invalid request field.
type Violation struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// Error is the error type returned by Service operations.
type Error struct {
	Kind       Kind
	Op         string
	Err        error
	Violations []Violation
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ValidationError builds a validation failure for a single field.
func ValidationError(op string, field, msg, typ string) *Error {
	return &Error{
		Kind:       KindValidation,
		Op:         op,
		Err:        errors.New(msg),
		Violations: []Violation{{Loc: []string{"body", field}, Msg: msg, Type: typ}},
	}
}

// KindOf classifies err. Service errors carry their kind; known sentinels from
// the lower packages are mapped; anything else is internal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, validator.ErrMalformed):
		return KindUpstreamMalformed
	case errors.Is(err, validator.ErrUnreachable):
		return KindUpstreamUnreachable
	case errors.Is(err, imaging.ErrUnsupportedImage):
		return KindValidation
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return KindUnauthorized
	case errors.Is(err, audit.ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
