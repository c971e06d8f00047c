package domain

import (
	"errors"
	"fmt"
)

// Error classes surfaced by remote calls. Callers test with errors.Is.
var (
	ErrAuth          = errors.New("authentication failed")
	ErrValidation    = errors.New("request rejected")
	ErrNetwork       = errors.New("remote unavailable")
	ErrNotFound      = errors.New("not found")
	ErrMissingConfig = errors.New("missing configuration")
)

// APIError describes a failed remote call.
type APIError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Status > 0:
		return fmt.Sprintf("%s: status %d: %v: %s", e.Op, e.Status, e.Err, e.Body)
	case e.Body != "":
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Body)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status code to one of the error classes.
func ClassifyStatus(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 404:
		return ErrNotFound
	case status == 400 || status == 422:
		return ErrValidation
	default:
		return ErrNetwork
	}
}
