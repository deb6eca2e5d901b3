package service

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/missland/tryon-service/internal/errs"
	"github.com/missland/tryon-service/internal/model"
)

// ResultService persists captured try-on results.
type ResultService struct {
	db *gorm.DB
}

// NewResultService creates a result service.
func NewResultService(db *gorm.DB) *ResultService {
	return &ResultService{db: db}
}

// Capture saves one captured output frame for a session. The owner must
// already be resolved (authenticated requester or the session's stored owner).
func (s *ResultService) Capture(userID string, sess *model.TryOnSession, processedImageURL string, thumbnailURL *string, confidence *float64, metadata []byte) (*model.TryOnResult, error) {
	ent := &model.TryOnResult{
		ID:                  uuid.New().String(),
		UserID:              userID,
		SessionToken:        sess.Token,
		NailReferencePostID: sess.NailReferencePostID,
		ProcessedImageURL:   processedImageURL,
		ThumbnailURL:        thumbnailURL,
		ConfidenceScore:     confidence,
	}
	if len(metadata) > 0 {
		ent.Metadata = datatypes.JSON(metadata)
	}
	if err := s.db.Create(ent).Error; err != nil {
		return nil, err
	}
	return ent, nil
}

// Get returns a result owned by userID.
func (s *ResultService) Get(id, userID string) (*model.TryOnResult, error) {
	var ent model.TryOnResult
	if err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrResultNotFound
		}
		return nil, err
	}
	return &ent, nil
}

// ListByUser returns the user's captured results, newest first.
func (s *ResultService) ListByUser(userID string) ([]model.TryOnResult, error) {
	var out []model.TryOnResult
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error
	return out, err
}

// Delete removes a result owned by userID.
func (s *ResultService) Delete(id, userID string) error {
	res := s.db.Where("id = ? AND user_id = ?", id, userID).Delete(&model.TryOnResult{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrResultNotFound
	}
	return nil
}

// View converts a result entity to its API view.
func (s *ResultService) View(ent *model.TryOnResult) model.ResultView {
	view := model.ResultView{
		ID:                ent.ID,
		SessionID:         ent.SessionToken,
		NailPostID:        ent.NailReferencePostID,
		ProcessedImageURL: ent.ProcessedImageURL,
		ThumbnailURL:      ent.ThumbnailURL,
		ConfidenceScore:   ent.ConfidenceScore,
		CreatedAt:         ent.CreatedAt,
	}
	if len(ent.Metadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(ent.Metadata, &meta); err == nil {
			view.Metadata = meta
		}
	}
	return view
}
