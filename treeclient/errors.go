// ABOUTME: Classified failures of the tree service boundary.
// ABOUTME: Maps HTTP status codes onto the five conflict kinds the mutation engine reacts to.

package treeclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed request.
type Kind string

const (
	VersionConflict  Kind = "VersionConflict"
	Trashed          Kind = "Trashed"
	FailedDependency Kind = "FailedDependency"
	PermissionDenied Kind = "PermissionDenied"
	NetworkFailure   Kind = "NetworkFailure"
)

// Error is a failed tree service call. Status is zero when no response arrived.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Status != 0 {
		msg = http.StatusText(e.Status)
	}
	if e.Cause != nil {
		if msg == "" {
			return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
		}
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindFromStatus maps a response status to its failure kind.
func KindFromStatus(status int) Kind {
	switch status {
	case http.StatusConflict:
		return VersionConflict
	case http.StatusGone:
		return Trashed
	case http.StatusFailedDependency:
		return FailedDependency
	case http.StatusForbidden:
		return PermissionDenied
	default:
		return NetworkFailure
	}
}

// KindOf classifies any error returned by the client. Errors that did not come
// from the tree service count as network failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return NetworkFailure
}

// IsNotFound reports whether err is a 404 from the tree service.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == http.StatusNotFound
}
