package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voicecall-platform/internal/httpapi"
	"voicecall-platform/internal/rbac"
)

// registerRoutes wires HTTP routes to handlers. No business logic here.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, gatherer prometheus.Gatherer) {
	// public
	r.GET("/healthz", h.Health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}

	protected := v1.Group("")
	protected.Use(authMW)

	// CALLS routes
	callsGroup := protected.Group("/calls")
	{
		callsGroup.POST("", rbac.RequireAnyRole(rbac.Dispatchers...), h.SubmitCall)
		callsGroup.POST("/preview", rbac.RequireAnyRole(rbac.Dispatchers...), h.PreviewCall)
		callsGroup.GET("", rbac.RequireAnyRole(rbac.Readers...), h.ListCalls)
		callsGroup.GET("/:batch_id", rbac.RequireAnyRole(rbac.Readers...), h.GetCall)
		callsGroup.GET("/:batch_id/status", rbac.RequireAnyRole(rbac.Readers...), h.CallStatus)
		callsGroup.GET("/:batch_id/poll", rbac.RequireAnyRole(rbac.Readers...), h.PollState)
		callsGroup.DELETE("/:batch_id/poll", rbac.RequireAnyRole(rbac.Dispatchers...), h.CancelPoll)
	}

	// REPORTING routes
	reads := protected.Group("")
	reads.Use(rbac.RequireAnyRole(rbac.Readers...))
	{
		reads.GET("/stats", h.Stats)
		reads.GET("/stats/export.xlsx", h.ExportStats)
		reads.GET("/conversations/:id", h.GetConversation)
	}

	// ADMIN routes; admin passes every role check, so an empty list admits only admin.
	admin := protected.Group("/agents")
	admin.Use(rbac.RequireAnyRole())
	{
		admin.GET("/:id/verify", h.VerifyAgent)
	}
}
