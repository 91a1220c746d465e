// Package apperr maps service errors onto HTTP responses.
//
// Handlers return an *AppError (or any error); the Fiber error handler
// writes a JSON body with a machine-readable code. Causes are logged and
// never sent to clients.
package apperr

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// AppError is the error type returned by HTTP handlers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"error"`
	HTTPStatus int    `json:"-"`
	Cause      error  `json:"-"`
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Unwrap() error { return e.Cause }

// BadRequest is a 400 for malformed input.
func BadRequest(msg string, cause error) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: msg, HTTPStatus: http.StatusBadRequest, Cause: cause}
}

// Unprocessable is a 422 for well-formed but unusable input.
func Unprocessable(msg string, cause error) *AppError {
	return &AppError{Code: "UNPROCESSABLE", Message: msg, HTTPStatus: http.StatusUnprocessableEntity, Cause: cause}
}

// Canceled is returned when the client went away mid-generation.
func Canceled(cause error) *AppError {
	return &AppError{Code: "CANCELED", Message: "Request canceled", HTTPStatus: 499, Cause: cause}
}

// Internal wraps an unexpected server-side error.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// As extracts the *AppError from err's chain, or nil.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// From classifies any error: AppErrors pass through, Fiber errors keep
// their status, context errors become Canceled, the rest Internal.
func From(err error) *AppError {
	if ae := As(err); ae != nil {
		return ae
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return &AppError{Code: http.StatusText(fe.Code), Message: fe.Message, HTTPStatus: fe.Code, Cause: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled(err)
	}
	return Internal(err)
}

// ErrorHandler is a fiber.Config ErrorHandler writing AppErrors as JSON.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(c *fiber.Ctx, err error) error {
		ae := From(err)
		attrs := []any{
			"status", ae.HTTPStatus,
			"code", ae.Code,
			"method", c.Method(),
			"path", c.Path(),
			"request_id", c.Locals("requestid"),
		}
		if ae.Cause != nil {
			attrs = append(attrs, "error", ae.Cause)
		}
		if ae.HTTPStatus >= http.StatusInternalServerError {
			log.Error("request failed", attrs...)
		} else {
			log.Warn("request rejected", attrs...)
		}
		return c.Status(ae.HTTPStatus).JSON(ae)
	}
}
