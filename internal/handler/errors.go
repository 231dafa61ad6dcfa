package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

// classify maps a service error to its HTTP status and API code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, service.ErrAlreadyCompleted):
		return http.StatusConflict, response.ErrAlreadyCompleted
	case errors.Is(err, service.ErrExamNotOpen):
		return http.StatusForbidden, response.ErrExamNotOpen
	case errors.Is(err, service.ErrNotEnrolled):
		return http.StatusForbidden, response.ErrNotEnrolled
	case errors.Is(err, service.ErrSessionNotActive):
		return http.StatusConflict, response.ErrSessionNotActive
	case errors.Is(err, service.ErrInvariant):
		return http.StatusUnprocessableEntity, response.ErrQuestionInvalid
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrTransient):
		return http.StatusServiceUnavailable, response.ErrServiceUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failFromErr writes the error response for err. Server-side failures are
// logged with the request's logger; client errors are not.
func failFromErr(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		response.Logger(c).Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		if status == http.StatusServiceUnavailable {
			c.Header("Retry-After", "1")
		}
	}
	response.Fail(c, status, code)
}
