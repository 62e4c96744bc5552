package api

import (
	"net/http"

	"github.com/Conceptual-Machines/melodia-api/internal/api/handlers"
	apimiddleware "github.com/Conceptual-Machines/melodia-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melodia-api/internal/config"
	"github.com/Conceptual-Machines/melodia-api/internal/session"
	webhandlers "github.com/Conceptual-Machines/melodia-api/internal/web/handlers"
	"github.com/Conceptual-Machines/melodia-api/pkg/embedded"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// Deps are the long-lived services the router wires into handlers
type Deps struct {
	Registry *session.Registry
	Store    sessions.Store
	Recorder apimiddleware.RequestRecorder
}

func SetupRouter(cfg *config.Config, deps Deps, version string) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	router.Use(apimiddleware.RequestTracking(deps.Recorder))

	// CORS middleware
	router.Use(apimiddleware.CORS(cfg.AllowedOrigins...))

	// Serve static files (stylesheet)
	router.StaticFS("/static", http.FS(embedded.Static()))

	// Health check
	healthHandler := handlers.NewHealthHandler(cfg.GeneratorURL, deps.Registry)
	router.GET("/health", healthHandler.HealthCheck)

	// Metrics endpoint
	metricsHandler := handlers.NewMetricsHandler(version, cfg.GeneratorURL, deps.Registry)
	router.GET("/api/metrics", metricsHandler.GetMetrics)

	store := deps.Store
	if store == nil {
		store = apimiddleware.NewCookieStore(cfg.SessionSecret, cfg.IsProduction())
	}
	withSession := apimiddleware.Sessions(store, deps.Registry)

	// Web page and HTMX fragments
	webHandler := webhandlers.NewWebHandler(cfg)
	router.GET("/", withSession, webHandler.Home)
	htmx := router.Group("/htmx", withSession)
	{
		htmx.POST("/generate", webHandler.Generate)
		htmx.GET("/tunes/:index", webHandler.TuneCard)
		htmx.POST("/tunes/:index/:action", webHandler.TuneAction)
	}

	// JSON API v1
	v1 := router.Group("/api/v1", withSession)
	{
		generationHandler := handlers.NewGenerationHandler(cfg)
		v1.POST("/generations", generationHandler.Generate)

		tunesHandler := handlers.NewTunesHandler()
		v1.GET("/tunes", tunesHandler.List)
		v1.POST("/tunes/:index/play", tunesHandler.Play)
		v1.POST("/tunes/:index/pause", tunesHandler.Pause)
		v1.POST("/tunes/:index/stop", tunesHandler.Stop)
		v1.GET("/tunes/:index/download", tunesHandler.Download)
	}

	return router
}
