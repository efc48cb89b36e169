package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "validation failed"
	}
	return err.Err.Error()
}

// NotFoundError is returned by repositories when a lookup matches nothing.
type NotFoundError struct {
	Resource string
}

func NewNotFoundError(resource string) error {
	return &NotFoundError{Resource: resource}
}

func (err NotFoundError) Error() string {
	return err.Resource + " not found"
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// ExternalError wraps a failure reported by a third-party service (content host, mail provider...).
type ExternalError struct {
	Service string
	Message string
	Err     error
}

func NewExternalError(service, msg string, err error) error {
	return &ExternalError{Service: service, Message: msg, Err: err}
}

func (err ExternalError) Error() string {
	msg := err.Service + ": " + err.Message
	if err.Err != nil && err.Err.Error() != err.Message {
		msg += ": " + err.Err.Error()
	}
	return msg
}

func (err ExternalError) Unwrap() error { return err.Err }

// IsExternal reports whether an ExternalError sits anywhere in err's chain.
func IsExternal(err error) bool {
	return AsExternal(err) != nil
}

// AsExternal returns the first ExternalError of err's chain, if any.
func AsExternal(err error) *ExternalError {
	var extErr *ExternalError
	if errors.As(err, &extErr) {
		return extErr
	}
	return nil
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
