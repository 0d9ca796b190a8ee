package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"classroll/internal/attendance"
	"classroll/internal/auth"
)

func (h *handlers) register(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
		Name   string `json:"name" binding:"required"`
		Role   string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	user, err := h.Service.RegisterUser(c.Request.Context(), req.UserID, req.Name, req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	h.issueTokens(c, http.StatusCreated, user)
}

func (h *handlers) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	user, err := h.Service.RedeemRefreshToken(c.Request.Context(), req.RefreshToken)
	if errors.Is(err, attendance.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token", "kind": "unauthorized"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	h.issueTokens(c, http.StatusOK, user)
}

func (h *handlers) issueTokens(c *gin.Context, status int, user attendance.User) {
	tokens, err := h.Issuer.Issue(user.ID, user.Role)
	if err != nil {
		log.Printf("token issue failed for %s: %v", user.ID, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issue failed", "kind": "internal"})
		return
	}
	if err := h.Service.RememberRefreshToken(c.Request.Context(), user.ID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, gin.H{"user": user, "tokens": tokens})
}

func claimsOf(c *gin.Context) auth.Claims {
	claims, _ := auth.FromContext(c)
	return claims
}

func (h *handlers) instructor(c *gin.Context) attendance.InstructorActions {
	return h.Service.ForInstructor(claimsOf(c).Subject)
}

func (h *handlers) student(c *gin.Context) attendance.StudentActions {
	return h.Service.ForStudent(claimsOf(c).Subject)
}

func (h *handlers) listCourses(c *gin.Context) {
	var (
		courses []attendance.Course
		err     error
	)
	ctx := c.Request.Context()
	if claimsOf(c).Role == attendance.RoleInstructor {
		courses, err = h.instructor(c).Courses(ctx)
	} else {
		courses, err = h.student(c).Courses(ctx)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (h *handlers) sessionStatus(c *gin.Context) {
	var (
		status attendance.Status
		err    error
	)
	ctx := c.Request.Context()
	if claimsOf(c).Role == attendance.RoleInstructor {
		status, err = h.instructor(c).Status(ctx, c.Param("id"))
	} else {
		status, err = h.student(c).Status(ctx, c.Param("id"))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *handlers) createCourse(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	course, err := h.instructor(c).CreateCourse(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

func (h *handlers) deleteCourse(c *gin.Context) {
	if err := h.instructor(c).DeleteCourse(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// startSession accepts a Go duration string ("45m") or a number of seconds; omitted means default.
func (h *handlers) startSession(c *gin.Context) {
	var req struct {
		Duration        string `json:"duration"`
		DurationSeconds int    `json:"duration_seconds"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	var d time.Duration
	switch {
	case req.Duration != "":
		parsed, err := time.ParseDuration(req.Duration)
		if err != nil {
			badRequest(c, "duration: "+err.Error())
			return
		}
		if parsed <= 0 {
			badRequest(c, "duration must be positive")
			return
		}
		d = parsed
	case req.DurationSeconds < 0:
		badRequest(c, "duration_seconds must be positive")
		return
	case req.DurationSeconds > int(h.Service.MaxDuration()/time.Second):
		// compared in seconds so the conversion below cannot overflow
		badRequest(c, "duration_seconds exceeds the maximum session length")
		return
	case req.DurationSeconds > 0:
		d = time.Duration(req.DurationSeconds) * time.Second
	}

	sess, err := h.instructor(c).StartSession(c.Request.Context(), c.Param("id"), d)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *handlers) stopSession(c *gin.Context) {
	sess, err := h.instructor(c).StopSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *handlers) listSessions(c *gin.Context) {
	sessions, err := h.instructor(c).Sessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// sessionQR streams the active session's QR code as PNG. With ?hosted=1 the image is
// uploaded instead and its URL returned.
func (h *handlers) sessionQR(c *gin.Context) {
	ctx := c.Request.Context()
	payload, sess, err := h.instructor(c).QRPayload(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	size := h.QRSize
	if v := c.Query("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 2048 {
			size = parsed
		}
	}
	img, err := h.QR.Render(payload, size)
	if err != nil {
		log.Printf("qr render failed for session %s: %v", sess.ID, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "qr render failed", "kind": "internal"})
		return
	}

	if hosted, _ := strconv.ParseBool(c.Query("hosted")); hosted {
		if h.Uploader == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "image hosting not configured", "kind": "unavailable"})
			return
		}
		res, err := h.Uploader.UploadPNG(ctx, img, "session-"+sess.ID)
		if err != nil {
			log.Printf("qr upload failed for session %s: %v", sess.ID, err)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "qr upload failed", "kind": "upstream"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"url":        res.SecureURL,
			"payload":    payload,
			"session_id": sess.ID,
			"expires_at": sess.EndTime,
		})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, h.QR.ContentType(), img)
}

func (h *handlers) courseReport(c *gin.Context) {
	report, err := h.instructor(c).Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": report})
}

func (h *handlers) sessionRoster(c *gin.Context) {
	records, err := h.instructor(c).Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *handlers) joinCourse(c *gin.Context) {
	var req struct {
		JoinCode string `json:"join_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	course, err := h.student(c).JoinCourse(c.Request.Context(), req.JoinCode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *handlers) submitAttendance(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := h.student(c).SubmitAttendance(c.Request.Context(), c.Param("id"), req.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *handlers) attendanceRatio(c *gin.Context) {
	ratio, err := h.student(c).Ratio(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ratio)
}
