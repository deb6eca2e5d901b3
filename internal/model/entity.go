package model

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Session status values; transitions are monotonic per the relay state machine.
type SessionStatus string

const (
	SessionStatusInitializing SessionStatus = "initializing"
	SessionStatusActive       SessionStatus = "active"
	SessionStatusPaused       SessionStatus = "paused"
	SessionStatusCompleted    SessionStatus = "completed"
	SessionStatusError        SessionStatus = "error"
)

// Interaction types tracked against a user's interest profile.
const (
	InteractionView   = "view"
	InteractionSave   = "save"
	InteractionTryOn  = "try_on"
	InteractionSearch = "search"
)

// TryOnSession — сущность try-on сессии (GORM). Token is the opaque identifier
// carried in the WebSocket path.
type TryOnSession struct {
	Token                 string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID                *string        `gorm:"type:uuid;index"`
	NailReferencePostID   *string        `gorm:"type:uuid;index"`
	NailReferenceImageURL *string        `gorm:"size:512"`
	SourceImageURL        *string        `gorm:"size:512"`
	Status                string         `gorm:"size:20;not null;default:initializing;index"`
	CreatedAt             time.Time      `gorm:"autoCreateTime;index"`
	UpdatedAt             time.Time      `gorm:"autoUpdateTime"`
	ExpiresAt             time.Time      `gorm:"not null;index"`
	Stats                 datatypes.JSON `gorm:"type:jsonb"`

	NailReferencePost *Post `gorm:"foreignKey:NailReferencePostID"`
}

func (TryOnSession) TableName() string { return "try_on_sessions" }

// IsExpired reports whether the session has passed its expiry. Expiry is
// advisory; it is checked lazily at connect time.
func (s *TryOnSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// NailReferenceURL resolves the nail reference image: catalog post first, then
// the uploaded reference. Empty string means the session cannot enter active.
func (s *TryOnSession) NailReferenceURL() string {
	if s.NailReferencePost != nil && s.NailReferencePost.ImageURL != "" {
		return s.NailReferencePost.ImageURL
	}
	if s.NailReferenceImageURL != nil {
		return *s.NailReferenceImageURL
	}
	return ""
}

// TryOnResult — сохранённый кадр (capture) из сессии (GORM).
type TryOnResult struct {
	ID                  string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID              string         `gorm:"type:uuid;not null;index"`
	SessionToken        string         `gorm:"type:uuid;not null;index"`
	NailReferencePostID *string        `gorm:"type:uuid"`
	ProcessedImageURL   string         `gorm:"size:512;not null"`
	ThumbnailURL        *string        `gorm:"size:512"`
	ConfidenceScore     *float64       `gorm:"type:double precision"`
	Metadata            datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt           time.Time      `gorm:"autoCreateTime;index"`
}

func (TryOnResult) TableName() string { return "try_on_results" }

// Post — пост каталога дизайнов (GORM). The relay and recommendation engine
// only read these fields, except the view/save counters.
type Post struct {
	ID            string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Title         string         `gorm:"size:255;not null"`
	ImageURL      string         `gorm:"size:512;not null"`
	TryOnImageURL string         `gorm:"size:512"`
	Width         int            `gorm:"not null;default:0"`
	Height        int            `gorm:"not null;default:0"`
	Shape         string         `gorm:"size:64;index"`
	Pattern       string         `gorm:"size:64;index"`
	Size          string         `gorm:"size:64;index"`
	Colors        pq.StringArray `gorm:"type:text[]"`
	ViewsCount    int64          `gorm:"not null;default:0"`
	SavesCount    int64          `gorm:"not null;default:0"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index"`
}

func (Post) TableName() string { return "posts" }

// Tags returns the post's scoring tags: shape, pattern, size and the first
// three colors. Colors past the third never participate in scoring.
func (p *Post) Tags() []string {
	colors := p.Colors
	if len(colors) > 3 {
		colors = colors[:3]
	}
	tags := make([]string, 0, 3+len(colors))
	if p.Shape != "" {
		tags = append(tags, p.Shape)
	}
	if p.Pattern != "" {
		tags = append(tags, p.Pattern)
	}
	if p.Size != "" {
		tags = append(tags, p.Size)
	}
	tags = append(tags, colors...)
	return tags
}

// InterestProfile — аддитивный tag→score профиль пользователя (GORM). Scores
// are never decayed in storage; decay is a read-time transform.
type InterestProfile struct {
	UserID    string         `gorm:"type:uuid;primaryKey"`
	TagScores datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (InterestProfile) TableName() string { return "interest_profiles" }

// PostSave — сохранение поста пользователем; backs saves_count and
// collaborative recommendations.
type PostSave struct {
	ID        string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID    string    `gorm:"type:uuid;not null;index:idx_post_saves_user_post,unique"`
	PostID    string    `gorm:"type:uuid;not null;index:idx_post_saves_user_post,unique;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (PostSave) TableName() string { return "post_saves" }
