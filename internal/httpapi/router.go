package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classroll/internal/attendance"
	"classroll/internal/auth"
	"classroll/internal/cloudinary"
	"classroll/internal/httpmiddleware"
	"classroll/internal/qr"
)

// QRUploader hosts rendered QR images somewhere students' devices can reach.
type QRUploader interface {
	UploadPNG(ctx context.Context, data []byte, publicID string) (*cloudinary.UploadResult, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps is everything the router needs. Limiter, Uploader and Checks are optional.
type Deps struct {
	Service     *attendance.Service
	Issuer      *auth.Issuer
	Limiter     httpmiddleware.Limiter
	QR          qr.Renderer
	QRSize      int
	Uploader    QRUploader
	CORSOrigins []string
	Checks      map[string]HealthCheck
}

type handlers struct {
	Deps
}

// NewRouter builds the gin engine serving the public API.
func NewRouter(d Deps) *gin.Engine {
	if d.QR == nil {
		d.QR = qr.NewPNG()
	}
	h := &handlers{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(d.CORSOrigins)))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.healthz)

	public := r.Group("/v1/auth")
	if d.Limiter != nil {
		public.Use(httpmiddleware.Middleware(d.Limiter))
	}
	public.POST("/register", h.register)
	public.POST("/refresh", h.refresh)

	v1 := r.Group("/v1", auth.Bearer(d.Issuer))
	if d.Limiter != nil {
		v1.Use(httpmiddleware.Middleware(d.Limiter))
	}
	v1.GET("/courses", h.listCourses)
	v1.GET("/courses/:id/session", h.sessionStatus)

	teach := v1.Group("", auth.RequireRole(attendance.RoleInstructor))
	teach.POST("/courses", h.createCourse)
	teach.DELETE("/courses/:id", h.deleteCourse)
	teach.POST("/courses/:id/sessions", h.startSession)
	teach.POST("/courses/:id/sessions/stop", h.stopSession)
	teach.GET("/courses/:id/sessions", h.listSessions)
	teach.GET("/courses/:id/session/qr", h.sessionQR)
	teach.GET("/courses/:id/report", h.courseReport)
	teach.GET("/sessions/:id/attendance", h.sessionRoster)

	learn := v1.Group("", auth.RequireRole(attendance.RoleStudent))
	learn.POST("/courses/join", h.joinCourse)
	learn.POST("/courses/:id/attendance", h.submitAttendance)
	learn.GET("/courses/:id/ratio", h.attendanceRatio)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func (h *handlers) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.Checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
