package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ethosengine/elohim-recovery/internal/middleware"
	"github.com/ethosengine/elohim-recovery/internal/services"
)

// NewRouter assembles the doorway recovery API. Claimant endpoints are
// public; interviewer endpoints require a bearer token.
func NewRouter(recoveryService *services.RecoveryService, interviewService *services.InterviewService, jwtSecret string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	recoveryHandler := NewRecoveryHandler(recoveryService)
	interviewHandler := NewInterviewHandler(recoveryService, interviewService)

	api := router.Group("/api/recovery")
	{
		api.POST("/initiate", recoveryHandler.Initiate)
		api.GET("/:id/status", recoveryHandler.Status)
		api.GET("/:id/credential", recoveryHandler.Credential)
		api.POST("/:id/cancel", recoveryHandler.Cancel)
		api.POST("/:id/complete", recoveryHandler.Complete)

		authed := api.Group("")
		authed.Use(middleware.JWTMiddleware(jwtSecret))
		{
			authed.GET("/queue", interviewHandler.Queue)
			authed.POST("/:id/interview/start", interviewHandler.Start)
			authed.POST("/:id/interview/questions", interviewHandler.Questions)
			authed.POST("/:id/interview/response", interviewHandler.Response)
			authed.POST("/:id/interview/attestation", interviewHandler.Attestation)
		}
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
