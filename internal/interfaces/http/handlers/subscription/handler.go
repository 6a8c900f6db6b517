// Package subscription exposes the cached and live server views over HTTP.
package subscription

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	subApp "github.com/proxypulse/proxypulse/internal/application/subscription"
	"github.com/proxypulse/proxypulse/internal/domain/server"
	"github.com/proxypulse/proxypulse/internal/shared/errors"
	"github.com/proxypulse/proxypulse/internal/shared/logger"
	"github.com/proxypulse/proxypulse/internal/shared/utils"
)

// ServerResponse is the JSON body for server list endpoints.
type ServerResponse struct {
	Count   int              `json:"count"`
	Servers []*server.Server `json:"servers"`
}

type Handler struct {
	service *subApp.Service
	log     logger.Interface
}

func NewHandler(service *subApp.Service, log logger.Interface) *Handler {
	return &Handler{service: service, log: log.Named("http")}
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Live handles GET /servers/live: a fresh evaluation that bypasses and does
// not touch the caches.
func (h *Handler) Live(c *gin.Context) {
	servers, err := h.service.Live(c.Request.Context())
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	if len(servers) == 0 {
		utils.ErrorResponseWithError(c,
			errors.NewUnavailableError("no servers available or all tests failed"))
		return
	}
	c.JSON(http.StatusOK, ServerResponse{Count: len(servers), Servers: servers})
}

// Cache handles GET /cache
func (h *Handler) Cache(c *gin.Context) {
	servers, ok := h.cachedTop25(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ServerResponse{Count: len(servers), Servers: servers})
}

// CacheRaw handles GET /cache/raw
func (h *Handler) CacheRaw(c *gin.Context) {
	servers, ok := h.cachedTop25(c)
	if !ok {
		return
	}
	c.String(http.StatusOK, subApp.JoinRawURIs(servers))
}

// CacheBase64 handles GET /cache/base64
func (h *Handler) CacheBase64(c *gin.Context) {
	servers, ok := h.cachedTop25(c)
	if !ok {
		return
	}
	c.String(http.StatusOK, base64.StdEncoding.EncodeToString([]byte(subApp.JoinRawURIs(servers))))
}

// CacheAllBase64 handles GET /cache/all/base64
func (h *Handler) CacheAllBase64(c *gin.Context) {
	servers := h.service.AllCached()
	if servers == nil {
		utils.ErrorResponseWithError(c, errors.NewUnavailableError("cache not initialized"))
		return
	}
	c.String(http.StatusOK, base64.StdEncoding.EncodeToString([]byte(subApp.JoinRawURIs(servers))))
}

// CacheClash handles GET /cache/clash
func (h *Handler) CacheClash(c *gin.Context) {
	servers, ok := h.cachedTop25(c)
	if !ok {
		return
	}
	content, err := subApp.FormatClash(servers)
	if err != nil {
		h.log.Errorw("failed to render clash config", "error", err)
		utils.ErrorResponseWithError(c, errors.NewInternalError("failed to render clash config"))
		return
	}
	c.Header("Content-Disposition", "attachment; filename=clash.yaml")
	c.Data(http.StatusOK, "application/yaml; charset=utf-8", []byte(content))
}

// SiteSpecific handles GET /subscription/site-specific?url=...: a Base64
// subscription of the cached servers that can reach the target.
func (h *Handler) SiteSpecific(c *gin.Context) {
	target := c.Query("url")
	if target == "" {
		utils.ErrorResponseWithError(c, errors.NewValidationError("query parameter url is required"))
		return
	}

	servers, err := h.service.SiteServers(c.Request.Context(), target)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	if len(servers) == 0 {
		utils.ErrorResponseWithError(c,
			errors.NewNotFoundError("no servers could access the target", target))
		return
	}

	h.log.Infow("serving site-specific subscription", "site", target, "servers", len(servers))
	c.String(http.StatusOK, base64.StdEncoding.EncodeToString([]byte(subApp.JoinRawURIs(servers))))
}

func (h *Handler) cachedTop25(c *gin.Context) ([]*server.Server, bool) {
	servers := h.service.Top25()
	if servers == nil {
		utils.ErrorResponseWithError(c,
			errors.NewUnavailableError("cache not initialized, wait or try /servers/live"))
		return nil, false
	}
	return servers, true
}

