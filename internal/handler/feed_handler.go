package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/missland/tryon-service/internal/errs"
	"github.com/missland/tryon-service/internal/model"
	"github.com/missland/tryon-service/internal/service"
)

// FeedHandler serves the personalized feed, similar posts and interaction
// tracking.
type FeedHandler struct {
	recs      *service.RecommendationService
	interests *service.InterestService
	logger    *zap.Logger
}

// NewFeedHandler creates a feed handler.
func NewFeedHandler(recs *service.RecommendationService, interests *service.InterestService, logger *zap.Logger) *FeedHandler {
	return &FeedHandler{recs: recs, interests: interests, logger: logger}
}

func limitParam(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// Feed godoc
// GET /api/feed?limit=
// Anonymous requesters get the trending feed.
func (h *FeedHandler) Feed(c *gin.Context) {
	limit := limitParam(c, 100, 500)
	userID := requesterID(c)

	var (
		posts []model.Post
		err   error
	)
	if userID == "" {
		posts, err = h.recs.Trending(limit)
	} else {
		posts, err = h.recs.PersonalizedFeed(userID, limit)
	}
	if err != nil {
		h.logger.Error("feed generation failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build feed"})
		return
	}
	c.JSON(http.StatusOK, postViews(posts))
}

// Trending godoc
// GET /api/posts/trending?limit=
func (h *FeedHandler) Trending(c *gin.Context) {
	posts, err := h.recs.Trending(limitParam(c, 100, 500))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trending posts"})
		return
	}
	c.JSON(http.StatusOK, postViews(posts))
}

// SimilarPosts godoc
// GET /api/posts/:id/similar?limit=
func (h *FeedHandler) SimilarPosts(c *gin.Context) {
	posts, err := h.recs.SimilarPosts(c.Param("id"), limitParam(c, 48, 200))
	if err != nil {
		if errors.Is(err, errs.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to find similar posts"})
		return
	}
	c.JSON(http.StatusOK, postViews(posts))
}

// Collaborative godoc
// GET /api/feed/collaborative?limit=
func (h *FeedHandler) Collaborative(c *gin.Context) {
	userID := requesterID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	posts, err := h.recs.Collaborative(userID, limitParam(c, 50, 200))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build recommendations"})
		return
	}
	c.JSON(http.StatusOK, postViews(posts))
}

// TrackInteraction godoc
// POST /api/interactions
func (h *FeedHandler) TrackInteraction(c *gin.Context) {
	userID := requesterID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req model.TrackInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if err := h.interests.TrackInteraction(userID, req.PostID, req.Type); err != nil {
		if errors.Is(err, errs.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to track interaction"})
		return
	}
	c.Status(http.StatusNoContent)
}

func postViews(posts []model.Post) []model.PostView {
	views := make([]model.PostView, len(posts))
	for i := range posts {
		views[i] = model.PostToView(&posts[i])
	}
	return views
}
