package model

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure so the edge layer can render a
// specific message and status code.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindExpired             Kind = "expired"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindCapExceeded         Kind = "cap_exceeded"
	KindAlreadyProcessed    Kind = "already_processed"
	KindUnauthorized        Kind = "unauthorized"
	KindValidation          Kind = "validation"
	KindInternal            Kind = "internal"
)

// Error carries the failure kind, the offending entity id and a
// human-readable reason. No caller should ever see a fields-less failure.
type Error struct {
	Kind     Kind   `json:"kind"`
	EntityID string `json:"entity_id,omitempty"`
	Reason   string `json:"reason"`
}

func (e *Error) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.EntityID, e.Reason)
}

// E builds a domain error.
func E(kind Kind, entityID, reason string) *Error {
	return &Error{Kind: kind, EntityID: entityID, Reason: reason}
}

// KindOf extracts the kind from any error chain, defaulting to internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// AsError returns the domain error in the chain, wrapping unknown errors
// as internal so the edge always has structure to render.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return &Error{Kind: KindInternal, Reason: err.Error()}
}
