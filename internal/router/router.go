package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/handler"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	WS            *handler.WSHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// autosaveLimiter is shared with the WebSocket handler.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	autosaveLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware(log))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── Student Group (JWT + Single Device) ───────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(auth),
		middleware.CheckSingleDeviceSession(auth),
		middleware.NoStore(),
	)
	{
		studentAPI.POST("/exams/:exam_id/session", handlers.StudentPortal.BeginOrResume)
		studentAPI.PUT("/exams/:exam_id/answers/:question_id", autosaveLimiter.PerStudent(), handlers.StudentPortal.SaveAnswer)
		studentAPI.PUT("/sessions/:session_id/time", handlers.StudentPortal.PersistTime)
		studentAPI.POST("/exams/:exam_id/submit", handlers.StudentPortal.Submit)
		studentAPI.GET("/exams/:exam_id/result", handlers.StudentPortal.GetResult)
	}

	// ─── WebSocket Group (token via query) ─────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireStudentJWT(auth),
		middleware.CheckSingleDeviceSession(auth),
	)
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.ExamWebSocketStream)
	}

	return router
}
