package httpapi

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"classroll/internal/attendance"
)

var statusByKind = map[string]int{
	"not_found":            http.StatusNotFound,
	"already_active":       http.StatusConflict,
	"already_recorded":     http.StatusConflict,
	"owner_cannot_enroll":  http.StatusConflict,
	"already_exists":       http.StatusConflict,
	"no_active_session":    http.StatusUnprocessableEntity,
	"code_mismatch":        http.StatusUnprocessableEntity,
	"not_enrolled":         http.StatusForbidden,
	"forbidden":            http.StatusForbidden,
	"invalid_argument":     http.StatusBadRequest,
	"generation_exhausted": http.StatusServiceUnavailable,
	"storage_unavailable":  http.StatusServiceUnavailable,
}

// writeError maps a domain error onto a status code and a stable kind.
func writeError(c *gin.Context, err error) {
	kind := attendance.Kind(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "kind": kind})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": "invalid_argument"})
}
