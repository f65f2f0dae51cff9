// Package apperr holds the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrAuthentication            = errors.New("authentication required")
	ErrInsufficientBalance       = errors.New("insufficient word balance")
	ErrPaymentNotCompleted       = errors.New("payment not completed")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrTooManyAttempts           = errors.New("too many attempts, please try again later")
	ErrInvalidInput              = errors.New("invalid input")
	ErrUpstreamService           = errors.New("upstream service error")
	ErrNotFound                  = errors.New("not found")
	ErrConflict                  = errors.New("conflict")
)

// Status maps an error to the HTTP status code handlers respond with.
func Status(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, ErrAuthentication):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrPaymentNotCompleted):
		return fiber.StatusPaymentRequired
	case errors.Is(err, ErrPaymentVerificationFailed),
		errors.Is(err, ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrTooManyAttempts):
		return fiber.StatusTooManyRequests
	case errors.Is(err, ErrUpstreamService):
		return fiber.StatusBadGateway
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// New returns an error carrying msg that matches base under errors.Is.
func New(base error, msg string) error {
	return &detailed{base: base, msg: msg}
}

// Invalid wraps ErrInvalidInput with a field-level message.
func Invalid(msg string) error {
	return New(ErrInvalidInput, msg)
}

// Upstream wraps ErrUpstreamService with the failing collaborator's error.
func Upstream(service string, cause error) error {
	return &detailed{base: ErrUpstreamService, msg: service + ": " + cause.Error(), cause: cause}
}

type detailed struct {
	base  error
	msg   string
	cause error
}

func (e *detailed) Error() string { return e.msg }

func (e *detailed) Is(target error) bool { return target == e.base }

func (e *detailed) Unwrap() error { return e.cause }
