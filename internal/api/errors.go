package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/sched"
)

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, record.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, record.ErrNoGoal):
		return http.StatusPreconditionFailed
	case errors.Is(err, record.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, record.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, record.ErrDeviceAccess):
		return http.StatusForbidden
	case errors.Is(err, record.ErrTranscriptionService):
		return http.StatusBadGateway
	case errors.Is(err, record.ErrStorage), errors.Is(err, sched.ErrLoopStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
}
