package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/circle/backend/internal/apperrors"
	"github.com/anonto42/circle/backend/pkg/logging"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}

// MessageResponse is the body of mutations that return no resource.
type MessageResponse struct {
	Message string `json:"message"`
}

// HTTPErrorHandler renders application errors as {"message": ...} with the
// status of their kind. Internal causes are logged, never returned.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Server error"

	var appErr *apperrors.Error
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		status = apperrors.StatusCode(appErr.Kind)
		message = appErr.Message
		if appErr.Kind == apperrors.KindInternal || appErr.Kind == apperrors.KindUnavailable {
			logging.Ctx(c.Request().Context()).Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("request failed")
		}
	case errors.As(err, &httpErr):
		status = httpErr.Code
		if status >= http.StatusInternalServerError {
			logging.Ctx(c.Request().Context()).Error().Err(err).Msg("request failed")
		} else if s, ok := httpErr.Message.(string); ok {
			message = s
		} else {
			message = fmt.Sprint(httpErr.Message)
		}
		if status == http.StatusRequestEntityTooLarge {
			message = "Request body too large"
		}
	default:
		logging.Ctx(c.Request().Context()).Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("unhandled error")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Message: message})
	}
	if err != nil {
		logging.Error().Err(err).Msg("failed to write error response")
	}
}

// bindError is returned when a request body cannot be decoded.
func bindError(err error) error {
	return &apperrors.Error{Kind: apperrors.KindValidation, Message: "Invalid request body", Err: err}
}
