// Package server assembles the HTTP router.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"lims/internal/auth/revocation"
	_ "lims/internal/docs" // Import swagger docs
	"lims/internal/handlers"
	"lims/internal/middleware"
	"lims/internal/models"
	"lims/internal/services"
)

// Services are the business services the router exposes.
type Services struct {
	Users       services.UserServicer
	Reports     services.ReportServicer
	Audits      services.AuditServicer
	Revocations revocation.List
}

// NewRouter builds the gin engine with middleware and every API route.
func NewRouter(svc Services) *gin.Engine {
	authHandler := handlers.NewAuthHandler(svc.Users)
	userHandler := handlers.NewUserHandler(svc.Users)
	reportHandler := handlers.NewReportHandler(svc.Reports)
	auditHandler := handlers.NewAuditHandler(svc.Audits)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.RequestContext())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Change-Reason, X-ESign-Password")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(svc.Revocations))

	protected.POST("/auth/logout", authHandler.Logout)
	protected.POST("/auth/change-password", authHandler.ChangePassword)
	protected.GET("/profile", authHandler.GetProfile)

	reviewers := middleware.RequireRole(models.RoleSupervisor, models.RoleAdmin)
	admins := middleware.RequireRole(models.RoleAdmin)

	users := protected.Group("/users", admins)
	users.POST("", userHandler.CreateUser)
	users.GET("/:id", userHandler.GetUser)

	reports := protected.Group("/reports/:kind")
	reports.POST("", reportHandler.CreateReport)
	reports.GET("", reportHandler.GetReports)
	reports.POST("/import", reportHandler.ImportReports)
	reports.POST("/bulk-status", reportHandler.BulkUpdateStatus)
	reports.POST("/purge", admins, reportHandler.PurgeDrafts)
	reports.GET("/:id", reportHandler.GetReport)
	reports.PATCH("/:id", reportHandler.UpdateReport)
	reports.PUT("/:id", reportHandler.PutReport)
	reports.DELETE("/:id", reportHandler.DeleteReport)
	reports.POST("/:id/status", reportHandler.ChangeStatus)

	auditLogs := protected.Group("/audit-logs", reviewers)
	auditLogs.GET("", auditHandler.GetAuditLogs)
	auditLogs.GET("/:entity/:id", auditHandler.GetHistory)

	return router
}
