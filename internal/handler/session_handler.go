package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/missland/tryon-service/internal/errs"
	"github.com/missland/tryon-service/internal/model"
	"github.com/missland/tryon-service/internal/service"
	"github.com/missland/tryon-service/internal/storage"
)

// requesterID returns the authenticated user id resolved by the auth gateway,
// empty for anonymous requests.
func requesterID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

// SessionHandler handles REST API for try-on sessions and captured results.
type SessionHandler struct {
	svc     service.SessionServicer
	results *service.ResultService
	images  storage.ImageStore
	ws      *service.WSConfig
}

// NewSessionHandler creates a session handler (D: принимает SessionServicer).
func NewSessionHandler(svc service.SessionServicer, results *service.ResultService, images storage.ImageStore, wsBaseURL string) *SessionHandler {
	return &SessionHandler{
		svc:     svc,
		results: results,
		images:  images,
		ws:      &service.WSConfig{BaseURL: wsBaseURL},
	}
}

// CreateSession godoc
// POST /api/try-on/sessions
// Explore mode references a catalog post; upload mode carries a multipart
// nail reference image and optionally a source hand image.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}

	var userID *string
	if id := requesterID(c); id != "" {
		userID = &id
	}

	var postID, nailImageURL, sourceImageURL *string
	switch req.Mode {
	case model.SessionModeExplore:
		if req.PostID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "post_id required for explore mode"})
			return
		}
		postID = &req.PostID
	case model.SessionModeUpload:
		url, err := h.saveUpload(c, "nail_reference_image", "references")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "nail_reference_image required", "message": err.Error()})
			return
		}
		nailImageURL = &url
		if src, err := h.saveUpload(c, "source_image", "sources"); err == nil {
			sourceImageURL = &src
		}
	}

	sess, err := h.svc.Create(userID, postID, nailImageURL, sourceImageURL)
	if err != nil {
		if errors.Is(err, errs.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, h.svc.View(sess, h.ws.WSURL(sess.Token)))
}

// GetSession godoc
// GET /api/try-on/sessions/:token
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.View(sess, h.ws.WSURL(sess.Token)))
}

// ListSessions godoc
// GET /api/try-on/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID := requesterID(c)
	if userID == "" {
		c.JSON(http.StatusOK, []model.SessionView{})
		return
	}
	sessions, err := h.svc.ListByUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	views := make([]model.SessionView, len(sessions))
	for i := range sessions {
		views[i] = h.svc.View(&sessions[i], h.ws.WSURL(sessions[i].Token))
	}
	c.JSON(http.StatusOK, views)
}

// ExtendSession godoc
// POST /api/try-on/sessions/:token/extend
func (h *SessionHandler) ExtendSession(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	sess, err := h.svc.Extend(sess.Token)
	if err != nil {
		if errors.Is(err, errs.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to extend session"})
		return
	}
	c.JSON(http.StatusOK, h.svc.View(sess, h.ws.WSURL(sess.Token)))
}

// DeleteSession godoc
// DELETE /api/try-on/sessions/:token
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	userID := requesterID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	if err := h.svc.Delete(c.Param("token"), userID); err != nil {
		if errors.Is(err, errs.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
		return
	}
	c.Status(http.StatusNoContent)
}

// CaptureResult godoc
// POST /api/try-on/results
// Persists one captured output frame. Ownership resolves to the authenticated
// requester or, for anonymous requests, the session's stored owner.
func (h *SessionHandler) CaptureResult(c *gin.Context) {
	var req model.CaptureResultRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}

	sess, err := h.svc.Get(req.SessionID)
	if err != nil {
		if errors.Is(err, errs.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	userID := requesterID(c)
	if userID == "" {
		if sess.UserID == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}
		userID = *sess.UserID
	}

	processedURL, err := h.saveUpload(c, "processed_image", "results")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "processed_image required", "message": err.Error()})
		return
	}
	var thumbURL *string
	if url, err := h.saveUpload(c, "thumbnail", "thumbnails"); err == nil {
		thumbURL = &url
	}

	result, err := h.results.Capture(userID, sess, processedURL, thumbURL, req.ConfidenceScore, []byte(req.Metadata))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save result"})
		return
	}
	c.JSON(http.StatusCreated, h.results.View(result))
}

// ListResults godoc
// GET /api/try-on/results
func (h *SessionHandler) ListResults(c *gin.Context) {
	userID := requesterID(c)
	if userID == "" {
		c.JSON(http.StatusOK, []model.ResultView{})
		return
	}
	results, err := h.results.ListByUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list results"})
		return
	}
	views := make([]model.ResultView, len(results))
	for i := range results {
		views[i] = h.results.View(&results[i])
	}
	c.JSON(http.StatusOK, views)
}

// GetResult godoc
// GET /api/try-on/results/:id
func (h *SessionHandler) GetResult(c *gin.Context) {
	userID := requesterID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	result, err := h.results.Get(c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, errs.ErrResultNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get result"})
		return
	}
	c.JSON(http.StatusOK, h.results.View(result))
}

// DeleteResult godoc
// DELETE /api/try-on/results/:id
func (h *SessionHandler) DeleteResult(c *gin.Context) {
	userID := requesterID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	if err := h.results.Delete(c.Param("id"), userID); err != nil {
		if errors.Is(err, errs.ErrResultNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete result"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ownedSession loads the path session and checks the requester may read it:
// the owner, or anyone holding the token of an anonymous session.
func (h *SessionHandler) ownedSession(c *gin.Context) (*model.TryOnSession, bool) {
	sess, err := h.svc.Get(c.Param("token"))
	if err != nil {
		if errors.Is(err, errs.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return nil, false
	}
	if sess.UserID != nil && *sess.UserID != requesterID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return sess, true
}

// saveUpload reads one multipart file field and stores it in the image store.
func (h *SessionHandler) saveUpload(c *gin.Context, field, category string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return "", err
	}
	data, err := readMultipartFile(fh)
	if err != nil {
		return "", err
	}
	return h.images.Save(category, data, filepath.Ext(fh.Filename))
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
