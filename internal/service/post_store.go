package service

import (
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/missland/tryon-service/internal/errs"
	"github.com/missland/tryon-service/internal/model"
)

// PostSource supplies candidate posts to the recommendation engine.
type PostSource interface {
	All() ([]model.Post, error)
	ByID(id string) (*model.Post, error)
	TrendingSince(cutoff time.Time, limit int) ([]model.Post, error)
	SimilarCandidates(ref *model.Post, limit int) ([]model.Post, error)
	SavedPostIDs(userID string) ([]string, error)
	CoSavedPosts(userID string, savedIDs []string, limit int) ([]model.Post, error)
}

// PostStore is the GORM-backed PostSource; it also owns the engagement
// counters mutated by interaction tracking.
type PostStore struct {
	db *gorm.DB
}

// NewPostStore creates a post store.
func NewPostStore(db *gorm.DB) *PostStore {
	return &PostStore{db: db}
}

// All returns every catalog post with the fields scoring needs.
func (s *PostStore) All() ([]model.Post, error) {
	var posts []model.Post
	err := s.db.Select("id", "title", "image_url", "try_on_image_url", "shape", "pattern",
		"size", "colors", "views_count", "saves_count", "created_at").
		Find(&posts).Error
	return posts, err
}

// ByID returns one post.
func (s *PostStore) ByID(id string) (*model.Post, error) {
	var post model.Post
	if err := s.db.Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// TrendingSince returns posts created after cutoff ranked by engagement
// (views + 3*saves).
func (s *PostStore) TrendingSince(cutoff time.Time, limit int) ([]model.Post, error) {
	var posts []model.Post
	err := s.db.Where("created_at >= ?", cutoff).
		Order("views_count + saves_count * 3 DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// SimilarCandidates returns posts sharing shape, pattern, size or any color
// with ref, excluding ref itself, pre-ranked by views + 2*saves.
func (s *PostStore) SimilarCandidates(ref *model.Post, limit int) ([]model.Post, error) {
	q := s.db.Where("id <> ?", ref.ID)

	cond := s.db.Where("1 = 0")
	if ref.Shape != "" {
		cond = cond.Or("shape = ?", ref.Shape)
	}
	if ref.Pattern != "" {
		cond = cond.Or("pattern = ?", ref.Pattern)
	}
	if ref.Size != "" {
		cond = cond.Or("size = ?", ref.Size)
	}
	if len(ref.Colors) > 0 {
		cond = cond.Or("colors && ?", pq.StringArray(ref.Colors))
	}

	var posts []model.Post
	err := q.Where(cond).
		Order("views_count + saves_count * 2 DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// SavedPostIDs returns the ids of posts the user has saved.
func (s *PostStore) SavedPostIDs(userID string) ([]string, error) {
	var ids []string
	err := s.db.Model(&model.PostSave{}).
		Where("user_id = ?", userID).
		Pluck("post_id", &ids).Error
	return ids, err
}

// CoSavedPosts returns posts saved by users who share at least two saves with
// userID, excluding posts the user already saved, ranked by 2*saves + views.
func (s *PostStore) CoSavedPosts(userID string, savedIDs []string, limit int) ([]model.Post, error) {
	if len(savedIDs) == 0 {
		return nil, nil
	}

	var similarUsers []string
	err := s.db.Model(&model.PostSave{}).
		Where("post_id IN ? AND user_id <> ?", savedIDs, userID).
		Group("user_id").
		Having("COUNT(*) >= 2").
		Order("COUNT(*) DESC").
		Limit(20).
		Pluck("user_id", &similarUsers).Error
	if err != nil || len(similarUsers) == 0 {
		return nil, err
	}

	var posts []model.Post
	err = s.db.
		Joins("JOIN post_saves ON post_saves.post_id = posts.id").
		Where("post_saves.user_id IN ? AND posts.id NOT IN ?", similarUsers, savedIDs).
		Group("posts.id").
		Order("posts.saves_count * 2 + posts.views_count DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// IncrementViews bumps the view counter.
func (s *PostStore) IncrementViews(postID string) error {
	return s.db.Model(&model.Post{}).Where("id = ?", postID).
		Update("views_count", gorm.Expr("views_count + 1")).Error
}

// RecordSave writes a PostSave row and bumps the save counter. Saving the
// same post twice is a no-op.
func (s *PostStore) RecordSave(userID, postID string) error {
	res := s.db.Exec(
		"INSERT INTO post_saves (user_id, post_id, created_at) VALUES (?, ?, NOW()) ON CONFLICT (user_id, post_id) DO NOTHING",
		userID, postID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	return s.db.Model(&model.Post{}).Where("id = ?", postID).
		Update("saves_count", gorm.Expr("saves_count + 1")).Error
}
