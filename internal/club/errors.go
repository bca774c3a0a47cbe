package club

import (
	"errors"
	"fmt"
)

// ErrorKind classifies service failures for callers that map them onto a transport.
type ErrorKind string

const (
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindValidation      ErrorKind = "validation"
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindUpstream        ErrorKind = "upstream"
)

var (
	ErrUnauthenticated = errors.New("club: not authenticated")
	ErrTitleRequired   = errors.New("club: title is required")
	ErrScoreOutOfRange = errors.New("club: score must be between 0 and 10")
	ErrMovieNotFound   = errors.New("club: movie not found")
	ErrMovieIsCurrent  = errors.New("club: movie is currently being watched")
	ErrMovieHasReviews = errors.New("club: movie has reviews")
)

// ServiceError carries an operation scoped code, a kind and a message safe to show to members.
type ServiceError struct {
	code    string
	kind    ErrorKind
	message string
	err     error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func (e *ServiceError) Kind() ErrorKind {
	return e.kind
}

// Message returns the human readable description shown inline to the member.
func (e *ServiceError) Message() string {
	if e.message == "" {
		return "Something went wrong"
	}
	return e.message
}

// NewServiceError builds a ServiceError coded "<operation>.<reason>".
func NewServiceError(operation, reason string, kind ErrorKind, message string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, kind: kind, message: message, err: cause}
}

func newServiceError(operation, reason string, kind ErrorKind, message string, cause error) error {
	return NewServiceError(operation, reason, kind, message, cause)
}

// KindOf reports the kind of a service error, or KindUpstream for anything else.
func KindOf(err error) ErrorKind {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.kind
	}
	return KindUpstream
}
