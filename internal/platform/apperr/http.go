package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HTTPStatus maps an error to its response status.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		if e.Code == CodeSlotConflict {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case KindInsufficientResource:
		return http.StatusUnprocessableEntity
	case KindImmutableState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON payload rendered for engine errors.
type Body struct {
	Kind    Kind   `json:"kind"`
	Code    Code   `json:"code,omitempty"`
	Message string `json:"message"`
}

// ToHTTP converts an engine error into an echo HTTP error. Storage failures
// are rendered without their underlying cause.
func ToHTTP(err error) *echo.HTTPError {
	status := HTTPStatus(err)
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindStorageFailure {
		return echo.NewHTTPError(status, Body{Kind: KindStorageFailure, Message: "internal server error"}).SetInternal(err)
	}
	return echo.NewHTTPError(status, Body{Kind: e.Kind, Code: e.Code, Message: e.Message}).SetInternal(err)
}
