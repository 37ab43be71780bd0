package httpapi

import (
	"callwave/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register wires the control API onto the router.
// Keep this file free of business logic; handlers delegate to internal modules.
func Register(r *gin.Engine, h Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.POST("/v1/auth/token", h.IssueToken)

	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		campaigns := v1.Group("/campaigns")
		{
			control := campaigns.Group("")
			control.Use(rbac.RequireAnyRole(rbac.RoleSupervisor))
			{
				control.POST("", h.CreateCampaign)
				control.POST("/:id/launch", h.LaunchCampaign)
				control.POST("/:id/pause", h.PauseCampaign)
				control.POST("/:id/resume", h.ResumeCampaign)
				control.POST("/:id/stop", h.StopCampaign)
				control.POST("/:id/contacts", h.EnqueueContacts)
			}

			read := campaigns.Group("")
			read.Use(rbac.RequireAnyRole(rbac.RoleSupervisor, rbac.RoleViewer))
			{
				read.GET("/:id", h.GetCampaign)
				read.GET("/:id/stats", h.CampaignStats)
			}
		}

		calls := v1.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleSupervisor, rbac.RoleViewer))
		{
			calls.GET("/:call_id/interactions", h.CallInteractions)
		}

		scenarios := v1.Group("/scenarios")
		scenarios.Use(rbac.RequireAnyRole(rbac.RoleSupervisor, rbac.RoleViewer))
		{
			scenarios.GET("", h.ListScenarios)
		}
	}
}
