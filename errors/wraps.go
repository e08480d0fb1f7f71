package errors

import (
	stderrors "errors"
	"net/http"
)

// WrapWithStatus wraps a standard error with given status, keyed errors
// pass through untouched
func WrapWithStatus(ae Error, err error, status int) error {
	if err == nil {
		return nil
	}

	if e, ok := err.(Error); ok {
		return e
	}

	n := ae.NewError(err)
	n.Status = status
	return n
}

// Wrap wraps an error
func Wrap(ae Error, err error) error {
	if err == nil {
		return nil
	}

	return ae.NewError(err)
}

func WrapInvalidFields(err error) error {
	return Wrap(ErrorInvalidFields, err)
}

func WrapNotFound(err error) error {
	return WrapWithStatus(ErrorRecordNotFound, err, http.StatusNotFound)
}

func WrapForbidden(err error) error {
	return Wrap(ErrorForbidden, err)
}

func WrapUnprocessable(err error) error {
	return WrapWithStatus(ErrorUnprocessable, err, http.StatusUnprocessableEntity)
}

func WrapGeneric(err error) error {
	return WrapWithStatus(ErrorGeneric, err, http.StatusInternalServerError)
}

// Unwrap attempts to unwind the error all the way back to the innermost keyed error
func Unwrap(err error) Error {
	var ae Error
	if !stderrors.As(err, &ae) {
		return ErrorGeneric.NewError(err)
	}

	if inner, ok := ae.Err.(Error); ok {
		return Unwrap(inner)
	}

	return ae
}

// StatusOf returns the http status of err, 500 when it carries none
func StatusOf(err error) int {
	var ae Error
	if stderrors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}
