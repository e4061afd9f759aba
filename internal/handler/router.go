package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/event-reward-api/internal/middleware"
	"github.com/noah-isme/event-reward-api/internal/models"
)

// Routes groups the handlers and middleware mounted under the API prefix.
type Routes struct {
	Auth          gin.HandlerFunc
	SweepAudit    gin.HandlerFunc
	Identity      *AuthHandler
	Events        *EventHandler
	Rewards       *RewardHandler
	RewardRequest *RewardRequestHandler
}

// Register mounts every API route on group. Event routes share the :eventId wildcard
// because gin requires one name per path segment.
func (r Routes) Register(group *gin.RouterGroup) {
	reviewers := middleware.RequireRoles(models.RoleOperator, models.RoleAuditor, models.RoleAdmin)
	operators := middleware.RequireRoles(models.RoleOperator, models.RoleAdmin)
	admins := middleware.RequireRoles(models.RoleAdmin)
	users := middleware.RequireRoles(models.RoleUser)

	api := group.Group("")
	api.Use(r.Auth)

	if r.Identity != nil {
		api.GET("/auth/me", r.Identity.Me)
	}

	if r.Events != nil {
		api.GET("/events", r.Events.List)
		api.GET("/events/:eventId", r.Events.Get)
		api.POST("/events", operators, r.Events.Create)
		api.PUT("/events/:eventId", operators, r.Events.Update)
		api.PATCH("/events/:eventId/status", operators, r.Events.UpdateStatus)
	}

	if r.Rewards != nil {
		api.GET("/events/:eventId/rewards", r.Rewards.ListForEvent)
		api.POST("/events/:eventId/rewards", operators, r.Rewards.Create)
		api.GET("/rewards/:id", r.Rewards.Get)
		api.PUT("/rewards/:id", operators, r.Rewards.Update)
		api.DELETE("/rewards/:id", operators, r.Rewards.Delete)
	}

	if r.RewardRequest != nil {
		sweep := []gin.HandlerFunc{admins}
		if r.SweepAudit != nil {
			sweep = append(sweep, r.SweepAudit)
		}
		sweep = append(sweep, r.RewardRequest.EnqueueRedistribution)

		api.POST("/events/:eventId/request", users, r.RewardRequest.Submit)
		api.GET("/requests/me", users, r.RewardRequest.ListMine)
		api.GET("/requests", reviewers, r.RewardRequest.List)
		api.GET("/requests/export", reviewers, r.RewardRequest.Export)
		api.POST("/requests/redistribute", sweep...)
		api.GET("/requests/:id", r.RewardRequest.Get)
		api.PATCH("/requests/:id/status", operators, r.RewardRequest.UpdateStatus)
		api.POST("/requests/:id/redistribute", operators, r.RewardRequest.Redistribute)
	}
}
