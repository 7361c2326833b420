// Package apperr defines the error taxonomy shared by the context store, the
// pipeline store and the backend client.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField reports an empty required identifier or argument.
	ErrMissingField = errors.New("missing field")
	// ErrEmptyContent reports an empty content object on save.
	ErrEmptyContent = errors.New("content is empty")
	// ErrInvalidPayload reports a backend or user payload of the wrong shape.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrEmptyName and ErrNameTooLong are project-name validation failures.
	ErrEmptyName   = errors.New("project name is required")
	ErrNameTooLong = errors.New("project name is too long")
	// ErrMissingRoot and ErrMissingStructure are anchor-generation preconditions.
	ErrMissingRoot      = errors.New("root_id is required for anchors")
	ErrMissingStructure = errors.New("root is required for anchors")
	// ErrNetwork wraps every transport or backend failure.
	ErrNetwork = errors.New("network failure")
	// ErrSuperseded is returned when a response arrives after the working
	// context it was issued under has changed. The response is discarded.
	ErrSuperseded = errors.New("working context changed while request was in flight")
)

// TimeoutMessage is the failure message the transport uses for timeouts.
const TimeoutMessage = "timeout"

// FieldError names the required field that was empty.
type FieldError struct {
	Field string
	Kind  error
}

// Missing returns a FieldError for field.
func Missing(field string) error {
	return &FieldError{Field: field}
}

// EmptyContent returns the FieldError used when a content object has no keys.
func EmptyContent() error {
	return &FieldError{Field: "content", Kind: ErrEmptyContent}
}

func (e *FieldError) Error() string {
	return e.Field + " is required"
}

// Unwrap lets errors.Is match ErrMissingField and, when set, Kind.
func (e *FieldError) Unwrap() []error {
	if e.Kind != nil {
		return []error{ErrMissingField, e.Kind}
	}
	return []error{ErrMissingField}
}

// Invalid returns an ErrInvalidPayload error describing what was expected.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

// NetworkError is a transport or backend failure. Message is the
// human-readable text shown to the user; for timeouts it is TimeoutMessage.
type NetworkError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	return e.Message
}

func (e *NetworkError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrNetwork, e.Err}
	}
	return []error{ErrNetwork}
}

// Timeout reports whether the failure message is the timeout marker.
func (e *NetworkError) Timeout() bool {
	return e.Message == TimeoutMessage
}

// Message extracts the display message of err. NetworkError contributes its
// own message; everything else uses Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Message
	}
	return err.Error()
}

// IsTimeout reports whether err carries the timeout marker message.
func IsTimeout(err error) bool {
	return Message(err) == TimeoutMessage
}
