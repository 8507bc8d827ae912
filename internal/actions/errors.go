package actions

import (
	"errors"
	"time"

	"github.com/keithlinneman/ephemera/internal/validate"
)

// ErrorKind classifies an action failure.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindRateLimited     ErrorKind = "ratelimit"
	KindUnauthenticated ErrorKind = "auth"
	KindConflict        ErrorKind = "conflict"
	KindNotFound        ErrorKind = "not_found"
	KindUpstream        ErrorKind = "upstream"
)

const (
	MsgNotAuthenticated = "Not authenticated"
	MsgSignInToCreate   = "You must be signed in to create a page."
	MsgInvalidPageID    = "Invalid page ID"
	MsgInvalidTimeline  = "Invalid timeline ID"
	MsgInvalidMarker    = "Invalid marker or page ID"
	MsgImageRequired    = "Image is required"
	MsgImageType        = "Invalid image type. Allowed: JPEG, PNG, GIF, WebP"
	MsgPageNotFound     = "Page not found"
	MsgMarkerNotFound   = "Marker not found"
	MsgTimelineNotFound = "Timeline not found"
	MsgUserNotFound     = "User not found"
	MsgUpstream         = "Something went wrong. Please try again."
)

// Error is the failure returned by every action. Message is user facing;
// Err, when set, carries the internal cause and is never shown.
type Error struct {
	Kind    ErrorKind
	Message string

	// Issues holds every validation issue for KindValidation, in schema order.
	Issues validate.Issues

	// RetryAfter is set for KindRateLimited.
	RetryAfter time.Duration

	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func invalid(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func notFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func upstream(err error) *Error {
	return &Error{Kind: KindUpstream, Message: MsgUpstream, Err: err}
}
