// routes.go - Route registration helpers
package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Registry       Registry
	Workflow       WorkflowRunner
	Logger         *slog.Logger
	Version        string
	AllowedOrigins []string // cross-origin browser clients of the websocket feed
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Upload    UploadHandler
	Workflow  WorkflowHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Registry),
		Upload:    NewUploadHandler(deps.Registry),
		Workflow:  NewWorkflowHandler(deps.Registry, deps.Workflow, deps.Logger),
		WebSocket: NewWebSocketHandler(deps.Registry, deps.Logger, deps.AllowedOrigins),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/ws/uploads", handlers.WebSocket.HandleWebSocket)

	uploadGroup := apiGroup.Group("/uploads")
	uploadGroup.POST("", handlers.Upload.HandleCacheUploads)
	uploadGroup.POST("/inline", handlers.Upload.HandleIngestInline)
	uploadGroup.POST("/encode", handlers.Upload.HandleEncodeSelection)
	uploadGroup.GET("", handlers.Upload.HandleListUploads)
	uploadGroup.DELETE("", handlers.Upload.HandleClearUploads)
	uploadGroup.GET("/:id", handlers.Upload.HandleGetUpload)
	uploadGroup.DELETE("/:id", handlers.Upload.HandleRemoveUpload)
	uploadGroup.POST("/:id/error", handlers.Upload.HandleReportError)

	apiGroup.POST("/workflow/run", handlers.Workflow.HandleRunWorkflow)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
