package router

import (
	"github.com/gin-gonic/gin"

	"github.com/careloop/backend/internal/interfaces/http/handler"
)

// UsageRoutes mounts the subscription-facing usage endpoints.
type UsageRoutes struct {
	handler *handler.UsageHandler
}

// NewUsageRoutes creates the usage route registrar.
func NewUsageRoutes(h *handler.UsageHandler) *UsageRoutes {
	return &UsageRoutes{handler: h}
}

// RegisterRoutes implements RouteRegistrar.
func (r *UsageRoutes) RegisterRoutes(api *gin.RouterGroup) {
	privileges := api.Group("/subscriptions/:id/privileges/:name")
	{
		privileges.GET("/remaining", r.handler.GetRemaining)
		privileges.POST("/check", r.handler.Check)
		privileges.POST("/use", r.handler.Use)
		privileges.GET("/history", r.handler.GetHistory)
	}
}

// AdminRoutes mounts the catalog administration endpoints behind
// the supplied auth middleware chain.
type AdminRoutes struct {
	handler    *handler.CatalogHandler
	middleware []gin.HandlerFunc
}

// NewAdminRoutes creates the admin route registrar. The middleware chain
// (typically JWT auth plus an admin role check) guards every admin route.
func NewAdminRoutes(h *handler.CatalogHandler, middleware ...gin.HandlerFunc) *AdminRoutes {
	return &AdminRoutes{handler: h, middleware: middleware}
}

// RegisterRoutes implements RouteRegistrar.
func (r *AdminRoutes) RegisterRoutes(api *gin.RouterGroup) {
	admin := api.Group("/admin")
	admin.Use(r.middleware...)

	privileges := admin.Group("/privileges")
	{
		privileges.GET("", r.handler.ListDefinitions)
		privileges.POST("", r.handler.CreateDefinition)
		privileges.GET("/:id", r.handler.GetDefinition)
		privileges.PUT("/:id", r.handler.UpdateDefinition)
		privileges.DELETE("/:id", r.handler.ArchiveDefinition)
		privileges.POST("/:id/restore", r.handler.RestoreDefinition)
	}

	plans := admin.Group("/plans/:planId/privileges")
	{
		plans.GET("", r.handler.ListGrants)
		plans.PUT("/:name", r.handler.UpsertGrant)
		plans.DELETE("/:name", r.handler.DeleteGrant)
	}
}
