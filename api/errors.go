package api

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-user-cache/users"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Problem is the JSON body of every error response.
type Problem struct {
	Detail string            `json:"detail"`
	Errors map[string]string `json:"errors,omitempty"`
}

// invalid builds a 422 for request input that never reached the service.
func invalid(field, msg string) error {
	return &users.ValidationError{Fields: validation.Errors{field: errors.New(msg)}}
}

// StatusFor maps an error to its response status and body.
func StatusFor(err error) (int, Problem) {
	var ve *users.ValidationError
	var he *echo.HTTPError

	switch {
	case errors.As(err, &ve):
		p := Problem{Detail: "validation failed", Errors: map[string]string{}}
		for field, ferr := range ve.Fields {
			if ferr != nil {
				p.Errors[field] = ferr.Error()
			}
		}
		return http.StatusUnprocessableEntity, p
	case errors.Is(err, users.ErrNotFound):
		return http.StatusNotFound, Problem{Detail: "user not found"}
	case errors.Is(err, users.ErrConflict):
		return http.StatusConflict, Problem{Detail: "email already exists"}
	case users.IsUnavailable(err):
		return http.StatusServiceUnavailable, Problem{Detail: "service unavailable"}
	case errors.As(err, &he):
		return he.Code, Problem{Detail: fmt.Sprint(he.Message)}
	}
	return http.StatusInternalServerError, Problem{Detail: "internal server error"}
}

// ErrorHandler writes Problem bodies for handler errors. Server side
// failures are logged with their full chain.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := StatusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.Int("status", status),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error("failed to send error response", zap.Error(werr))
		}
	}
}
