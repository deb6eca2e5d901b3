package service

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/missland/tryon-service/internal/model"
)

// InterestSource supplies decayed interest scores to the recommendation
// engine.
type InterestSource interface {
	DecayedScores(userID string) (map[string]float64, error)
}

// InterestService maintains per-user additive tag-score profiles and applies
// interaction tracking. Safe for concurrent use across sessions and HTTP
// requests (all state lives in the database).
type InterestService struct {
	db    *gorm.DB
	posts *PostStore
	cache *TTLCache
	log   *zap.Logger
}

// NewInterestService creates an interest service. cache is the shared feed
// cache, invalidated best-effort on interest updates.
func NewInterestService(db *gorm.DB, posts *PostStore, cache *TTLCache, log *zap.Logger) *InterestService {
	return &InterestService{db: db, posts: posts, cache: cache, log: log}
}

// TrackInteraction records one interaction: bumps engagement counters and
// additively updates the user's interest profile.
func (s *InterestService) TrackInteraction(userID, postID, interactionType string) error {
	post, err := s.posts.ByID(postID)
	if err != nil {
		return err
	}

	switch interactionType {
	case model.InteractionView:
		if err := s.posts.IncrementViews(postID); err != nil {
			s.log.Warn("view counter update failed", zap.String("post_id", postID), zap.Error(err))
		}
	case model.InteractionSave:
		if err := s.posts.RecordSave(userID, postID); err != nil {
			s.log.Warn("save record failed", zap.String("post_id", postID), zap.Error(err))
		}
	}

	return s.UpdateInterests(userID, post, interactionType)
}

// UpdateInterests applies one interaction's additive deltas to the user's
// profile, creating the profile on first interaction.
func (s *InterestService) UpdateInterests(userID string, post *model.Post, interactionType string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var profile model.InterestProfile
		err := tx.Where("user_id = ?", userID).First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			profile = model.InterestProfile{UserID: userID, TagScores: datatypes.JSON("{}")}
			if err := tx.Create(&profile).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		scores, err := unmarshalScores(profile.TagScores)
		if err != nil {
			return err
		}
		ApplyInteraction(scores, post, interactionType)

		raw, err := json.Marshal(scores)
		if err != nil {
			return err
		}
		return tx.Model(&model.InterestProfile{}).Where("user_id = ?", userID).
			Update("tag_scores", datatypes.JSON(raw)).Error
	})
	if err != nil {
		return fmt.Errorf("update interests: %w", err)
	}

	s.cache.DeletePrefix("feed:user:" + userID)
	s.cache.DeletePrefix("collaborative:user:" + userID)
	return nil
}

// DecayedScores returns the user's tag scores with read-time decay applied.
// A missing profile yields an empty map, not an error. Storage is never
// mutated by decay.
func (s *InterestService) DecayedScores(userID string) (map[string]float64, error) {
	var profile model.InterestProfile
	err := s.db.Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, err
	}
	scores, err := unmarshalScores(profile.TagScores)
	if err != nil {
		return nil, err
	}
	return DecayInterestScores(scores), nil
}

func unmarshalScores(raw datatypes.JSON) (map[string]float64, error) {
	scores := make(map[string]float64)
	if len(raw) == 0 {
		return scores, nil
	}
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, fmt.Errorf("tag scores: %w", err)
	}
	return scores, nil
}
