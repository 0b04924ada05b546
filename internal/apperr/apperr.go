// Package apperr defines the error taxonomy shared by all client components.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation policy decisions.
type Kind int

const (
	KindValidation Kind = iota
	KindForbidden
	KindConflict
	KindNotFound
	KindDecode
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindDecode:
		return "decode"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Error carries a kind plus a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err. The second return is false when err does
// not carry one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// FromStatus maps a gateway HTTP status to a taxonomy error. Statuses without
// a specific mapping become network errors so read paths keep prior data.
func FromStatus(status int, message string) *Error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return New(KindValidation, message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return New(KindForbidden, message)
	case http.StatusNotFound:
		return New(KindNotFound, message)
	case http.StatusConflict:
		return New(KindConflict, message)
	default:
		return New(KindNetwork, message)
	}
}
