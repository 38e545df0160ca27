// Package errors defines the service error categories shared by the registry
// API and its clients. A category maps one-to-one onto an HTTP status, so a
// client can rebuild the category from a response.
package errors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryGeneralError is an unexpected failure inside the service.
	CategoryGeneralError Category = iota
	// CategoryDataError covers invalid input, including failed validation.
	CategoryDataError
	// CategoryUnauthorized means no valid service token was presented.
	CategoryUnauthorized
	// CategoryForbidden means the token's role may not call the endpoint.
	CategoryForbidden
	// CategoryResourceNotFound is returned for unknown orders.
	CategoryResourceNotFound
	// CategoryNotSupported is returned for unsupported operations.
	CategoryNotSupported
	// CategoryDataConflict means the request conflicts with stored state,
	// e.g. a duplicate order or an illegal status transition.
	CategoryDataConflict
	// CategoryDependencyFailure means a downstream dependency failed.
	CategoryDependencyFailure
	// CategoryRecovering means the service is temporarily unavailable.
	CategoryRecovering
)

type categoryInfo struct {
	name   string
	status int
}

var categories = map[Category]categoryInfo{
	CategoryGeneralError:      {"general_error", http.StatusInternalServerError},
	CategoryDataError:         {"data_error", http.StatusBadRequest},
	CategoryUnauthorized:      {"unauthorized", http.StatusUnauthorized},
	CategoryForbidden:         {"forbidden", http.StatusForbidden},
	CategoryResourceNotFound:  {"not_found", http.StatusNotFound},
	CategoryNotSupported:      {"not_supported", http.StatusMethodNotAllowed},
	CategoryDataConflict:      {"conflict", http.StatusConflict},
	CategoryDependencyFailure: {"dependency_failure", http.StatusBadGateway},
	CategoryRecovering:        {"recovering", http.StatusServiceUnavailable},
}

var byStatus = func() map[int]Category {
	m := make(map[int]Category, len(categories))
	for c, info := range categories {
		m[info.status] = c
	}
	return m
}()

func (c Category) String() string {
	if info, ok := categories[c]; ok {
		return info.name
	}
	return categories[CategoryGeneralError].name
}

// StatusCode returns the HTTP status the category renders as.
func (c Category) StatusCode() int {
	if info, ok := categories[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// CategoryFromStatus maps an HTTP status code back to its error category.
// Unknown codes are general errors.
func CategoryFromStatus(code int) Category {
	if c, ok := byStatus[code]; ok {
		return c
	}
	return CategoryGeneralError
}

// ServiceError is an error with a category. Message is safe to return to
// the client; Err is only logged.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
	// Details carries per-field validation messages returned to the client.
	Details map[string]string
}

func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is matches a target with the same message, so sentinel errors survive a
// round trip through the registry client.
func (err ServiceError) Is(target error) bool {
	return err.Message == target.Error()
}

// StatusCode returns the HTTP status code for the error category
func (err ServiceError) StatusCode() int {
	return err.Category.StatusCode()
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

// Permanent reports whether err is a client-side rejection that retrying the
// same request cannot fix.
func Permanent(err error) bool {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return false
	}
	switch svcErr.Category {
	case CategoryDataError, CategoryNotSupported, CategoryForbidden:
		return true
	default:
		return false
	}
}

func newError(cat Category, err error, message, fallback string) error {
	if err == nil {
		err = errors.New(fallback)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// ResourceNotFoundError returns an error with category ResourceNotFound
func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message, "resource not found: "+message)
}

// BadRequestError returns an error with category DataError
func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message, "bad request: "+message)
}

// ValidationError returns an error with category DataError that carries
// per-field details for the client
func ValidationError(err error, message string, details map[string]string) error {
	if err == nil {
		err = errors.New("validation failed: " + message)
	}
	return &ServiceError{
		Category: CategoryDataError,
		Message:  message,
		Err:      err,
		Details:  details,
	}
}

// ForbiddenError returns an error with category Forbidden
func ForbiddenError(err error, message string) error {
	return newError(CategoryForbidden, err, message, "request forbidden")
}

// UnAuthorizedError returns an error with category Unauthorized
func UnAuthorizedError(err error, message string) error {
	return newError(CategoryUnauthorized, err, message, "unauthorized")
}

// ConflictError returns an error with category DataConflict
func ConflictError(err error, message string) error {
	return newError(CategoryDataConflict, err, message, "conflict")
}

// GeneralError hides err behind "Internal Server Error"
func GeneralError(err error) error {
	return newError(CategoryGeneralError, err, "Internal Server Error", "internal server error")
}
