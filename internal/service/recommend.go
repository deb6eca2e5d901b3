package service

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/missland/tryon-service/internal/config"
	"github.com/missland/tryon-service/internal/model"
)

// trendingWindow bounds the candidate set for trending/fallback feeds.
const trendingWindow = 30 * 24 * time.Hour

// RecommendationService produces personalized feeds, similar-post sets and
// collaborative recommendations. Independent of the relay; consumed by the
// HTTP read paths.
type RecommendationService struct {
	posts      PostSource
	interests  InterestSource
	cache      *TTLCache
	feedTTL    time.Duration
	similarTTL time.Duration
	log        *zap.Logger
	now        func() time.Time
}

// NewRecommendationService creates a recommendation service sharing cache
// with the interest service so interest updates invalidate feeds.
func NewRecommendationService(posts PostSource, interests InterestSource, cache *TTLCache, cfg *config.Config, log *zap.Logger) *RecommendationService {
	return &RecommendationService{
		posts:      posts,
		interests:  interests,
		cache:      cache,
		feedTTL:    cfg.FeedCacheTTL,
		similarTTL: cfg.SimilarCacheTTL,
		log:        log,
		now:        time.Now,
	}
}

type scoredPost struct {
	post  model.Post
	score float64
}

// PersonalizedFeed scores every candidate post against the user's decayed
// interest vector. Users with no profile (or no surviving decayed scores)
// fall back to trending posts.
func (s *RecommendationService) PersonalizedFeed(userID string, limit int) ([]model.Post, error) {
	key := fmt.Sprintf("feed:user:%s:limit:%d", userID, limit)
	if v, ok := s.cache.Get(key); ok {
		return v.([]model.Post), nil
	}

	tagScores, err := s.interests.DecayedScores(userID)
	if err != nil {
		return nil, err
	}
	if len(tagScores) == 0 {
		trending, err := s.Trending(limit)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, trending, s.feedTTL)
		return trending, nil
	}

	candidates, err := s.posts.All()
	if err != nil {
		return nil, err
	}

	now := s.now()
	scored := make([]scoredPost, 0, len(candidates))
	for i := range candidates {
		score := ScorePost(&candidates[i], tagScores, now)
		if score > 0 {
			scored = append(scored, scoredPost{post: candidates[i], score: score})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	result := make([]model.Post, len(scored))
	for i, sp := range scored {
		result[i] = sp.post
	}

	s.cache.Set(key, result, s.feedTTL)
	return result, nil
}

// Trending returns posts from the last 30 days ranked by views + 3*saves.
func (s *RecommendationService) Trending(limit int) ([]model.Post, error) {
	return s.posts.TrendingSince(s.now().Add(-trendingWindow), limit)
}

// SimilarPosts returns posts similar to the given post: candidates sharing
// any attribute, pre-ranked by engagement and capped at twice the limit, then
// re-ranked by attribute overlap.
func (s *RecommendationService) SimilarPosts(postID string, limit int) ([]model.Post, error) {
	key := fmt.Sprintf("similar:post:%s:limit:%d", postID, limit)
	if v, ok := s.cache.Get(key); ok {
		return v.([]model.Post), nil
	}

	ref, err := s.posts.ByID(postID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.posts.SimilarCandidates(ref, limit*2)
	if err != nil {
		return nil, err
	}

	scored := make([]scoredPost, len(candidates))
	for i := range candidates {
		scored[i] = scoredPost{post: candidates[i], score: SimilarityScore(ref, &candidates[i])}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	result := make([]model.Post, len(scored))
	for i, sp := range scored {
		result[i] = sp.post
	}

	s.cache.Set(key, result, s.similarTTL)
	return result, nil
}

// Collaborative recommends posts saved by users with overlapping taste (at
// least two common saves). Users with no saves get an empty set.
func (s *RecommendationService) Collaborative(userID string, limit int) ([]model.Post, error) {
	key := fmt.Sprintf("collaborative:user:%s:limit:%d", userID, limit)
	if v, ok := s.cache.Get(key); ok {
		return v.([]model.Post), nil
	}

	savedIDs, err := s.posts.SavedPostIDs(userID)
	if err != nil {
		return nil, err
	}
	if len(savedIDs) == 0 {
		return []model.Post{}, nil
	}
	result, err := s.posts.CoSavedPosts(userID, savedIDs, limit)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []model.Post{}
	}

	s.cache.Set(key, result, s.similarTTL)
	return result, nil
}
