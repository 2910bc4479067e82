// routes.go - Route registration helpers
// This file provides a clean way to register all routes
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ai-playground/backend/internal/analyzer"
	"github.com/ai-playground/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store    storage.Store
	Sessions SessionManager
	Runner   Submitter
	Renderer PageRenderer
	Service  analyzer.Service
	Upstream UpstreamChecker
	Hub      *Hub
	Page     PageOptions
	Version  string
	// WebSocketMaxMessageSize is in bytes
	WebSocketMaxMessageSize int64
	Logger                  *slog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Page      PageHandler
	Proxy     ProxyHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Sessions, deps.Upstream),
		Page:      NewPageHandler(deps.Sessions, deps.Store, deps.Runner, deps.Renderer, deps.Page),
		Proxy:     NewProxyHandler(deps.Service),
		WebSocket: NewWebSocketHandler(deps.Hub, deps.Sessions, deps.WebSocketMaxMessageSize, deps.Logger),
	}
}

// RegisterRoutes registers all routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers, secureCookies bool) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Stateless passthrough to the remote service
	proxyGroup := e.Group("/api")
	proxyGroup.POST("/analyze", handlers.Proxy.HandleAnalyze)
	proxyGroup.POST("/summarize", handlers.Proxy.HandleSummarize)

	// Server-rendered forms, keyed by the session cookie
	sessions := SessionMiddleware(secureCookies)
	e.GET("/", handlers.Page.HandleIndex, sessions)

	uiGroup := e.Group("/ui", sessions)
	uiGroup.POST("/image/select", handlers.Page.HandleSelectImage)
	uiGroup.GET("/image/preview", handlers.Page.HandleImagePreview)
	uiGroup.POST("/image/analyze", handlers.Page.HandleAnalyze)
	uiGroup.POST("/summary/select", handlers.Page.HandleSelectDocument)
	uiGroup.POST("/summary/url", handlers.Page.HandleSetURL)
	uiGroup.POST("/summary/submit", handlers.Page.HandleSubmitSummary)
	uiGroup.GET("/state", handlers.Page.HandleState)
	uiGroup.POST("/reset", handlers.Page.HandleReset)

	RegisterWebSocketRoutes(e, handlers, sessions)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers, sessions echo.MiddlewareFunc) {
	e.GET("/ui/ws", handlers.WebSocket.HandleWebSocket, sessions)
}

// MiddlewareOptions configures SetupMiddleware
type MiddlewareOptions struct {
	EnableCORS           bool
	AllowOrigins         string
	BodyLimit            string
	EnableRequestLogging bool
	ExposeErrorDetails   bool
	Logger               *slog.Logger
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	e.HTTPErrorHandler = NewErrorHandler(log, opts.ExposeErrorDetails)

	if opts.EnableRequestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogStatus:   true,
			LogURI:      true,
			LogMethod:   true,
			LogLatency:  true,
			LogError:    true,
			HandleError: true,
			Skipper: func(c echo.Context) bool {
				p := c.Path()
				return p == "/api/health" || p == "/ui/ws" || strings.HasPrefix(p, "/static/")
			},
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				attrs := []any{
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency", v.Latency,
				}
				if v.Error != nil {
					log.Warn("request", append(attrs, "error", v.Error)...)
					return nil
				}
				log.Info("request", attrs...)
				return nil
			},
		}))
	}

	e.Use(middleware.Recover())

	if opts.EnableCORS {
		origins := []string{"*"}
		if opts.AllowOrigins != "" && opts.AllowOrigins != "*" {
			origins = strings.Split(opts.AllowOrigins, ",")
			for i := range origins {
				origins[i] = strings.TrimSpace(origins[i])
			}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}
}
