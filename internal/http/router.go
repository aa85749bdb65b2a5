package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/agentinbox/mcp-connect/internal/config"
	"github.com/agentinbox/mcp-connect/internal/http/handler"
	"github.com/agentinbox/mcp-connect/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, connectHandler *handler.ConnectHandler, healthHandler *handler.HealthHandler, auth *middleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	connect := r.Group("/connect")
	{
		connect.POST("/initiate", auth.RequireUser, connectHandler.InitiateGlobal)
		connect.POST("/agents/:agent_id/initiate", auth.RequireUser, connectHandler.InitiateAgent)

		// Callback routes are hit by a browser redirect from the authorization
		// server; the pending flow is authenticated by its state token.
		connect.GET("/callback", connectHandler.CallbackGlobal)
		connect.GET("/agents/callback", connectHandler.CallbackAgent)
	}

	r.GET("/healthz", healthHandler.Healthz)

	return r
}
