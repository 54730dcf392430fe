package services

import (
	"errors"
	"fmt"
	"net/http"

	"lms-dashboard-go/internal/remote"
)

type ServiceError struct {
	Status  int
	Message string
}

func (e ServiceError) Error() string {
	return e.Message
}

func ErrNotFound(msg string) error {
	return ServiceError{Status: http.StatusNotFound, Message: msg}
}

func ErrBadRequest(msg string) error {
	return ServiceError{Status: http.StatusBadRequest, Message: msg}
}

func ErrForbidden(msg string) error {
	return ServiceError{Status: http.StatusForbidden, Message: msg}
}

func ErrUnauthorized(msg string) error {
	return ServiceError{Status: http.StatusUnauthorized, Message: msg}
}

func ErrConflict(msg string) error {
	return ServiceError{Status: http.StatusConflict, Message: msg}
}

func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// AsServiceError unwraps err to a ServiceError when it carries one.
func AsServiceError(err error) (ServiceError, bool) {
	var svcErr ServiceError
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return ServiceError{}, false
}

// IsPermanent reports errors a retry cannot fix.
func IsPermanent(err error) bool {
	if _, ok := AsServiceError(err); ok {
		return true
	}
	return errors.Is(err, remote.ErrNotFound) || errors.Is(err, remote.ErrInvalidQuery) || errors.Is(err, remote.ErrDuplicate)
}

// notFoundAs maps a missed single-row read to a ServiceError with msg.
func notFoundAs(err error, msg string) error {
	if errors.Is(err, remote.ErrNotFound) {
		return ErrNotFound(msg)
	}
	return err
}
