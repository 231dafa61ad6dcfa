package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

// CheckSingleDeviceSession validates the JWT's JTI against the active login
// in Redis. A mismatch means the student logged in elsewhere or was reset.
func CheckSingleDeviceSession(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		err := auth.ValidateStudentSession(c.Request.Context(), claims.UserID, claims.ID)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrNoActiveLogin), errors.Is(err, service.ErrLoginInvalidated):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
		default:
			response.Logger(c).Error().Err(err).Int("student_id", claims.UserID).Msg("Login check failed")
			response.AbortFail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
		}
	}
}
