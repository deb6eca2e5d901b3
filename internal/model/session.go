package model

import "time"

// SessionStats is the statistics blob persisted at relay teardown.
type SessionStats struct {
	TotalFramesSent     int     `json:"total_frames_sent"`
	TotalFramesReceived int     `json:"total_frames_received"`
	DurationSeconds     float64 `json:"duration_seconds"`
	AvgFPS              float64 `json:"avg_fps"`
}

// SessionView is the API view of a try-on session (not GORM entity).
type SessionView struct {
	SessionID    string        `json:"session_id"`
	Status       SessionStatus `json:"status"`
	NailPostID   *string       `json:"nail_reference_post_id,omitempty"`
	NailImageURL *string       `json:"nail_reference_image_url,omitempty"`
	SourceURL    *string       `json:"source_image_url,omitempty"`
	WSURL        string        `json:"ws_url"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	Stats        *SessionStats `json:"stats,omitempty"`
}

// Session creation modes.
const (
	SessionModeExplore = "explore"
	SessionModeUpload  = "upload"
)

// CreateSessionRequest is the body for POST /api/try-on/sessions. Explore mode
// names a catalog post; upload mode carries a multipart nail reference image
// (and optionally a source hand image) handled outside this struct.
type CreateSessionRequest struct {
	Mode   string `form:"mode" json:"mode" binding:"required,oneof=explore upload"`
	PostID string `form:"post_id" json:"post_id"`
}

// CaptureResultRequest is the body for POST /api/try-on/results (multipart;
// the processed image file itself is read from the form).
type CaptureResultRequest struct {
	SessionID       string   `form:"session_id" binding:"required"`
	ConfidenceScore *float64 `form:"confidence_score"`
	Metadata        string   `form:"metadata"`
}

// ResultView is the API view of a captured try-on result.
type ResultView struct {
	ID                string         `json:"id"`
	SessionID         string         `json:"session_id"`
	NailPostID        *string        `json:"nail_reference_post_id,omitempty"`
	ProcessedImageURL string         `json:"processed_image_url"`
	ThumbnailURL      *string        `json:"thumbnail_url,omitempty"`
	ConfidenceScore   *float64       `json:"confidence_score,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// PostView is the API view of a catalog post.
type PostView struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	ImageURL      string    `json:"image_url"`
	TryOnImageURL string    `json:"try_on_image_url,omitempty"`
	Shape         string    `json:"shape,omitempty"`
	Pattern       string    `json:"pattern,omitempty"`
	Size          string    `json:"size,omitempty"`
	Colors        []string  `json:"colors"`
	ViewsCount    int64     `json:"views_count"`
	SavesCount    int64     `json:"saves_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// TrackInteractionRequest is the body for POST /api/interactions.
type TrackInteractionRequest struct {
	PostID string `json:"post_id" binding:"required"`
	Type   string `json:"type" binding:"required,oneof=view save try_on search"`
}

// PostToView converts a Post entity to its API view.
func PostToView(p *Post) PostView {
	colors := p.Colors
	if colors == nil {
		colors = []string{}
	}
	return PostView{
		ID:            p.ID,
		Title:         p.Title,
		ImageURL:      p.ImageURL,
		TryOnImageURL: p.TryOnImageURL,
		Shape:         p.Shape,
		Pattern:       p.Pattern,
		Size:          p.Size,
		Colors:        colors,
		ViewsCount:    p.ViewsCount,
		SavesCount:    p.SavesCount,
		CreatedAt:     p.CreatedAt,
	}
}
