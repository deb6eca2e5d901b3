package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/missland/tryon-service/internal/handler"
	"github.com/missland/tryon-service/pkg/constants"
)

// New builds the HTTP router.
func New(
	sessionHandler *handler.SessionHandler,
	feedHandler *handler.FeedHandler,
	tryOnWS *handler.TryOnWSHandler,
	health *handler.HealthHandler,
	mediaDir string,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	api := r.Group("/api")
	{
		sessions := api.Group("/try-on/sessions")
		{
			sessions.POST("", sessionHandler.CreateSession)
			sessions.GET("", sessionHandler.ListSessions)
			sessions.GET("/:token", sessionHandler.GetSession)
			sessions.POST("/:token/extend", sessionHandler.ExtendSession)
			sessions.DELETE("/:token", sessionHandler.DeleteSession)
		}

		results := api.Group("/try-on/results")
		{
			results.POST("", sessionHandler.CaptureResult)
			results.GET("", sessionHandler.ListResults)
			results.GET("/:id", sessionHandler.GetResult)
			results.DELETE("/:id", sessionHandler.DeleteResult)
		}

		api.GET("/feed", feedHandler.Feed)
		api.GET("/feed/collaborative", feedHandler.Collaborative)
		api.GET("/posts/trending", feedHandler.Trending)
		api.GET("/posts/:id/similar", feedHandler.SimilarPosts)
		api.POST("/interactions", feedHandler.TrackInteraction)
	}

	// Uploaded references and captured results
	r.Static(constants.PathMedia, mediaDir)

	// WebSocket: /ws/try-on/:session_token
	r.GET("/ws/try-on/:session_token", tryOnWS.ServeWS)

	return r
}
