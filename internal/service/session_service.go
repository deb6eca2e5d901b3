package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/missland/tryon-service/internal/config"
	"github.com/missland/tryon-service/internal/errs"
	"github.com/missland/tryon-service/internal/model"
)

// SessionServicer — интерфейс для handlers (D: зависимость от абстракции).
type SessionServicer interface {
	Create(userID, postID, nailImageURL, sourceImageURL *string) (*model.TryOnSession, error)
	Get(token string) (*model.TryOnSession, error)
	Extend(token string) (*model.TryOnSession, error)
	ListByUser(userID string) ([]model.TryOnSession, error)
	Delete(token, userID string) error
	View(ent *model.TryOnSession, wsURL string) model.SessionView
}

// SessionService manages try-on session lifecycle and persistence.
type SessionService struct {
	db  *gorm.DB
	cfg *config.Config
	now func() time.Time
}

// NewSessionService creates a session service.
func NewSessionService(db *gorm.DB, cfg *config.Config) *SessionService {
	return &SessionService{db: db, cfg: cfg, now: time.Now}
}

// Create creates a new try-on session. Exactly one of postID and nailImageURL
// must be supplied; expiry is now + the configured TTL.
func (s *SessionService) Create(userID, postID, nailImageURL, sourceImageURL *string) (*model.TryOnSession, error) {
	if (postID == nil) == (nailImageURL == nil) {
		return nil, fmt.Errorf("session create: exactly one of post id and reference image required")
	}
	if postID != nil {
		var post model.Post
		if err := s.db.Where("id = ?", *postID).First(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errs.ErrPostNotFound
			}
			return nil, err
		}
	}
	ent := &model.TryOnSession{
		Token:                 uuid.New().String(),
		UserID:                userID,
		NailReferencePostID:   postID,
		NailReferenceImageURL: nailImageURL,
		SourceImageURL:        sourceImageURL,
		Status:                string(model.SessionStatusInitializing),
		ExpiresAt:             s.now().Add(s.cfg.SessionTTL),
	}
	if err := s.db.Create(ent).Error; err != nil {
		return nil, err
	}
	return s.Get(ent.Token)
}

// Get returns a session by token with its reference post preloaded.
func (s *SessionService) Get(token string) (*model.TryOnSession, error) {
	var ent model.TryOnSession
	if err := s.db.Preload("NailReferencePost").Where("token = ?", token).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}
	return &ent, nil
}

// Extend resets expiry to now + the configured extension TTL, independent of
// the previous expiry (it may shorten a longer remaining window).
func (s *SessionService) Extend(token string) (*model.TryOnSession, error) {
	res := s.db.Model(&model.TryOnSession{}).Where("token = ?", token).
		Update("expires_at", s.now().Add(s.cfg.SessionExtendTTL))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errs.ErrSessionNotFound
	}
	return s.Get(token)
}

// UpdateStatus writes the session status.
func (s *SessionService) UpdateStatus(token string, status model.SessionStatus) error {
	res := s.db.Model(&model.TryOnSession{}).Where("token = ?", token).
		Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrSessionNotFound
	}
	return nil
}

// UpdateStats writes the session statistics blob.
func (s *SessionService) UpdateStats(token string, stats model.SessionStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	res := s.db.Model(&model.TryOnSession{}).Where("token = ?", token).
		Update("stats", datatypes.JSON(raw))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrSessionNotFound
	}
	return nil
}

// ListByUser returns the user's sessions, newest first.
func (s *SessionService) ListByUser(userID string) ([]model.TryOnSession, error) {
	var out []model.TryOnSession
	err := s.db.Preload("NailReferencePost").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// Delete removes a session owned by userID.
func (s *SessionService) Delete(token, userID string) error {
	res := s.db.Where("token = ? AND user_id = ?", token, userID).Delete(&model.TryOnSession{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrSessionNotFound
	}
	return nil
}

// View converts a session entity to its API view.
func (s *SessionService) View(ent *model.TryOnSession, wsURL string) model.SessionView {
	view := model.SessionView{
		SessionID:    ent.Token,
		Status:       model.SessionStatus(ent.Status),
		NailPostID:   ent.NailReferencePostID,
		NailImageURL: ent.NailReferenceImageURL,
		SourceURL:    ent.SourceImageURL,
		WSURL:        wsURL,
		CreatedAt:    ent.CreatedAt,
		ExpiresAt:    ent.ExpiresAt,
	}
	if len(ent.Stats) > 0 {
		var stats model.SessionStats
		if err := json.Unmarshal(ent.Stats, &stats); err == nil {
			view.Stats = &stats
		}
	}
	return view
}
