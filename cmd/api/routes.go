package main

import (
	"survey-platform/internal/auth"
	"survey-platform/internal/httpapi"
	"survey-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Development token issuance; the handler refuses when AllowLogin is off.
	r.POST("/auth/token", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW, rbac.RequireIdentity())
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "role": role})
		})

		// SURVEY routes
		// Role checks here are coarse; the lifecycle enforces the exact role per
		// transition and customer ownership.
		surveys := v1.Group("/surveys")
		surveys.Use(rbac.RequireAnyRole(rbac.RoleLeadManager, rbac.RoleCoE, rbac.RoleCustomer))
		{
			surveys.GET("", h.ListSurveys)
			surveys.GET("/:id", h.GetSurvey)

			surveys.POST("", rbac.RequireAnyRole(rbac.RoleLeadManager), h.CreateSurvey)
			surveys.POST("/:id/submit", rbac.RequireAnyRole(rbac.RoleLeadManager), h.SubmitForReview)

			surveys.POST("/:id/review", rbac.RequireAnyRole(rbac.RoleCoE), h.Review)
			surveys.POST("/:id/publish", rbac.RequireAnyRole(rbac.RoleCoE), h.Publish)

			surveys.PUT("/:id/responses", rbac.RequireAnyRole(rbac.RoleCustomer), h.RecordResponses)
			surveys.POST("/:id/complete", rbac.RequireAnyRole(rbac.RoleCustomer), h.Complete)
		}

		// REPORT routes
		reports := v1.Group("/reports")
		reports.Use(rbac.RequireAnyRole(rbac.RoleLeadManager, rbac.RoleCoE))
		{
			reports.GET("/summary", h.StatusSummary)
			reports.GET("/surveys.csv", h.ExportCSV)
		}
	}
}
