package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leofalp/chatkeeper/core/chaterr"
)

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch chaterr.KindOf(err) {
	case chaterr.KindValidation:
		return http.StatusBadRequest
	case chaterr.KindNotFound:
		return http.StatusNotFound
	case chaterr.KindPersistence:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), "request failed",
			"request_id", c.GetString(requestIDKey),
			"error", err.Error(),
		)
	}
	c.JSON(status, errorBody(err.Error()))
}

func errorBody(message string) gin.H {
	return gin.H{"status": "error", "message": message}
}
