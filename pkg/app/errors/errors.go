// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
)

// Category defines error category
type Category int

const (
	// CategoryNoError is used when an operation completed without error.
	CategoryNoError Category = iota
	// CategoryDataError The input record carries invalid or missing data.
	// Records failing with this category are excluded, never retried.
	CategoryDataError
	// CategoryNotSupported The requested functionality is not supported,
	// for example a chain with no configured endpoint
	CategoryNotSupported
	// CategoryDependencyFailure A dependent service is throwing errors
	CategoryDependencyFailure
	// CategoryGeneralError The service failed in an unexpected way
	CategoryGeneralError
	// CategoryConnectionTimeout Connection to a dependent service timing out
	CategoryConnectionTimeout
)

func (c Category) String() string {
	switch c {
	case CategoryNoError:
		return "CategoryNoError"
	case CategoryDataError:
		return "CategoryDataError"
	case CategoryNotSupported:
		return "CategoryNotSupported"
	case CategoryDependencyFailure:
		return "CategoryDependencyFailure"
	case CategoryConnectionTimeout:
		return "CategoryConnectionTimeout"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError represents service specific type that
// is used all over the services.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is implements the custom condition to check an error is equal to a service error
func (err ServiceError) Is(target error) bool {
	return err.Message == target.Error()
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category == cat {
		return true
	}
	return false
}

// CategoryOf returns the category of err. Errors that are not a ServiceError
// are reported as CategoryGeneralError, nil as CategoryNoError.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNoError
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Category
	}
	return CategoryGeneralError
}

// IsRetryable reports whether another attempt may succeed.
// Dependency failures, timeouts and errors of unknown origin are retryable;
// data errors and unsupported requests are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch CategoryOf(err) {
	case CategoryDataError, CategoryNotSupported:
		return false
	default:
		return true
	}
}

// GeneralError returns a general service error
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal error")
	}
	return &ServiceError{
		Category: CategoryGeneralError,
		Message:  "Internal Error",
		Err:      err,
	}
}

// BadRequestError returns an error with category DataError
// the message names the rejected input, the err object carries the details
func BadRequestError(err error, message string) error {
	if err == nil {
		err = errors.New("bad request:" + message)
	}
	return &ServiceError{
		Category: CategoryDataError,
		Message:  message,
		Err:      err,
	}
}

// NotSupportedError returns an error with category NotSupported
func NotSupportedError(err error, message string) error {
	if err == nil {
		err = errors.New("not supported:" + message)
	}
	return &ServiceError{
		Category: CategoryNotSupported,
		Message:  message,
		Err:      err,
	}
}

// DependencyError returns an error with category DependencyFailure
func DependencyError(err error, message string) error {
	if err == nil {
		err = errors.New("dependency failure:" + message)
	}
	return &ServiceError{
		Category: CategoryDependencyFailure,
		Message:  message,
		Err:      err,
	}
}

// TimeoutError returns an error with category ConnectionTimeout
func TimeoutError(err error, message string) error {
	if err == nil {
		err = errors.New("timeout:" + message)
	}
	return &ServiceError{
		Category: CategoryConnectionTimeout,
		Message:  message,
		Err:      err,
	}
}
