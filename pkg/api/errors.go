package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/kringz/sidebyside/pkg/comparator"
	"github.com/kringz/sidebyside/pkg/scraper"
	"github.com/kringz/sidebyside/pkg/version"
)

// HTTPErrorMessage is the body of every error response.
type HTTPErrorMessage struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

var statusByCode = map[string]int{
	version.CodeInvalidVersion:   http.StatusBadRequest,
	comparator.CodeRangeTooLarge: http.StatusBadRequest,
	scraper.CodeNotFound:         http.StatusNotFound,
	scraper.CodeFetchFailed:      http.StatusBadGateway,
}

// statusFor maps an error to the HTTP status it is reported with.
func statusFor(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	if status, ok := statusByCode[comparator.ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := statusFor(err)
	body := HTTPErrorMessage{
		Error:   comparator.ErrorCode(err),
		Message: errorMessage(err),
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("Request error", zap.String("path", c.Path()), zap.Error(err))
		if oe, ok := oops.AsOops(err); ok {
			s.log.Debug("Request error context", zap.Any("context", oe.Context()))
		}
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.log.Error("Failed to write error response", zap.Error(err))
	}
}

func errorMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return msg
		}
		return http.StatusText(he.Code)
	}
	return err.Error()
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}
