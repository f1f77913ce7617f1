package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the service banner
const Version = "1.0.0"

// NewRouter builds a gin engine with recovery, access logging and every route
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.RequestLogger())
	Register(r, h)
	return r
}

// Register mounts the public, admin and tenant API routes
func Register(r *gin.Engine, h *Handler) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Turni Allocation API",
			"version": Version,
		})
	})
	r.GET("/healthz", h.Health)
	r.POST("/admin/login", h.Login)

	// Admin Endpoints
	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware(), h.CrossTenantOnly())
	{
		admin.POST("/keys", h.GenerateKey)
		admin.GET("/keys", h.ListKeys)
		admin.PUT("/keys/:id", h.UpdateKeyLimit)
		admin.DELETE("/keys/:id", h.RevokeKey)
		admin.GET("/usage/:tenant_id", h.GetUsage)
	}

	// Allocation Endpoints
	api := r.Group("/api")
	api.Use(h.CallerMiddleware())
	{
		api.POST("/allocations", h.RunAllocation)
		api.POST("/allocations/reset", h.ResetAllocation)
		api.GET("/coverage", h.Coverage)
		api.GET("/assignments", h.ListAssignments)
		api.DELETE("/assignments/:id/volunteers/:volunteer_id", h.Unassign)
		api.GET("/usage", h.GetMyUsage)
	}
}
