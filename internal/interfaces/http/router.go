// Package http wires the gin engine and routes.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	subApp "github.com/proxypulse/proxypulse/internal/application/subscription"
	subHandler "github.com/proxypulse/proxypulse/internal/interfaces/http/handlers/subscription"
	"github.com/proxypulse/proxypulse/internal/shared/logger"
)

type Router struct {
	engine  *gin.Engine
	handler *subHandler.Handler
}

func NewRouter(service *subApp.Service, log logger.Interface) *Router {
	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware())

	return &Router{
		engine:  engine,
		handler: subHandler.NewHandler(service, log),
	}
}

// SetupRoutes registers all endpoints.
func (r *Router) SetupRoutes() {
	r.engine.GET("/health", r.handler.Health)
	r.engine.GET("/servers/live", r.handler.Live)
	r.engine.GET("/cache", r.handler.Cache)
	r.engine.GET("/cache/raw", r.handler.CacheRaw)
	r.engine.GET("/cache/base64", r.handler.CacheBase64)
	r.engine.GET("/cache/all/base64", r.handler.CacheAllBase64)
	r.engine.GET("/cache/clash", r.handler.CacheClash)
	r.engine.GET("/subscription/site-specific", r.handler.SiteSpecific)
}

// GetEngine exposes the underlying gin engine for the HTTP server.
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// corsMiddleware allows read-only cross-origin access to the subscription
// views.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
