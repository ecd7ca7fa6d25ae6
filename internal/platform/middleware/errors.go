package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/platform/apperr"
)

// ErrorHandler renders every error as {kind, code, message}. Domain errors
// that escape a handler unconverted are mapped here as well.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var ae *apperr.Error
		if errors.As(err, &ae) {
			err = apperr.ToHTTP(err)
		}

		he, ok := err.(*echo.HTTPError)
		if !ok {
			he = echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
		}

		body, ok := he.Message.(apperr.Body)
		if !ok {
			msg, _ := he.Message.(string)
			if msg == "" {
				msg = http.StatusText(he.Code)
			}
			body = apperr.Body{Kind: kindForStatus(he.Code), Message: msg}
		}

		if he.Code >= 500 {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(he.Internal).Str("request_id", rid).Int("status", he.Code).Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(he.Code)
		} else {
			werr = c.JSON(he.Code, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}

func kindForStatus(code int) apperr.Kind {
	switch {
	case code == http.StatusNotFound:
		return apperr.KindNotFound
	case code == http.StatusConflict:
		return apperr.KindConflict
	case code >= 500:
		return apperr.KindStorageFailure
	default:
		return apperr.KindValidation
	}
}
