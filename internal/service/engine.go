package service

import (
	"math"
	"time"

	"github.com/missland/tryon-service/internal/model"
)

// Interest decay applied at read time; storage is never decayed.
const (
	decayRate  = 0.95
	decayFloor = 0.5
)

// Per-tag multipliers: shape carries the most signal, colors the least.
const (
	shapeWeight   = 2.0
	patternWeight = 1.5
	sizeWeight    = 1.0
	colorWeight   = 0.8
)

// interactionWeights map interaction types to interest deltas.
var interactionWeights = map[string]float64{
	model.InteractionView:   0.1,
	model.InteractionSave:   1.5,
	model.InteractionTryOn:  2.0,
	model.InteractionSearch: 0.5,
}

// DecayInterestScores returns a decayed copy of tag scores: entries at or
// below the floor are dropped, the rest are multiplied by the decay rate.
func DecayInterestScores(scores map[string]float64) map[string]float64 {
	decayed := make(map[string]float64, len(scores))
	for tag, score := range scores {
		if score > decayFloor {
			decayed[tag] = score * decayRate
		}
	}
	return decayed
}

// ApplyInteraction additively updates tag scores for one interaction with a
// post. Unknown interaction types fall back to the view weight.
func ApplyInteraction(scores map[string]float64, post *model.Post, interactionType string) {
	weight, ok := interactionWeights[interactionType]
	if !ok {
		weight = interactionWeights[model.InteractionView]
	}
	if post.Shape != "" {
		scores[post.Shape] += weight * shapeWeight
	}
	if post.Pattern != "" {
		scores[post.Pattern] += weight * patternWeight
	}
	if post.Size != "" {
		scores[post.Size] += weight * sizeWeight
	}
	for _, color := range post.Colors {
		scores[color] += weight * colorWeight
	}
}

// ScorePost computes the hybrid relevance score of a post against decayed tag
// scores: 40% interest match, 30% popularity, 20% freshness, 10% diversity.
func ScorePost(post *model.Post, tagScores map[string]float64, now time.Time) float64 {
	score := 0.0

	interest := 0.0
	if post.Shape != "" {
		interest += tagScores[post.Shape] * shapeWeight
	}
	if post.Pattern != "" {
		interest += tagScores[post.Pattern] * patternWeight
	}
	if post.Size != "" {
		interest += tagScores[post.Size] * sizeWeight
	}
	colors := post.Colors
	if len(colors) > 3 {
		colors = colors[:3]
	}
	for _, color := range colors {
		interest += tagScores[color] * colorWeight
	}
	score += interest * 0.4

	popularity := math.Log1p(float64(post.ViewsCount))*0.3 + math.Log1p(float64(post.SavesCount))*0.7
	score += popularity * 0.3

	ageDays := now.Sub(post.CreatedAt).Hours() / 24
	freshness := math.Max(0, 10-0.1*math.Floor(ageDays))
	score += freshness * 0.2

	// Diversity: a small boost for tags outside the user's usual preferences.
	uncommon := 0
	for _, tag := range post.Tags() {
		if tagScores[tag] < 2 {
			uncommon++
		}
	}
	score += float64(uncommon) * 0.5 * 0.1

	return score
}

// SimilarityScore measures attribute overlap between two posts.
func SimilarityScore(a, b *model.Post) float64 {
	score := 0.0
	if a.Shape != "" && a.Shape == b.Shape {
		score += 3.0
	}
	if a.Pattern != "" && a.Pattern == b.Pattern {
		score += 2.5
	}
	if a.Size != "" && a.Size == b.Size {
		score += 1.5
	}
	if len(a.Colors) > 0 && len(b.Colors) > 0 {
		set := make(map[string]struct{}, len(a.Colors))
		for _, c := range a.Colors {
			set[c] = struct{}{}
		}
		for _, c := range b.Colors {
			if _, ok := set[c]; ok {
				delete(set, c)
				score += 1.0
			}
		}
	}
	return score
}
