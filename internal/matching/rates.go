package matching

import "github.com/sweeply/sweeply/internal/db/models"

// RecalculateRates recomputes a provider's acceptance and punctuality rates
// from its lifecycle counters. Pure recomputation, no I/O; callers persist
// the provider in the same transaction as the triggering write.
func RecalculateRates(p *models.Provider) {
	if p.OffersReceived > 0 {
		p.AcceptanceRate = clamp01(float64(p.OffersAccepted) / float64(p.OffersReceived))
	} else {
		p.AcceptanceRate = 0
	}

	total := p.OnTimeArrivals + p.LateArrivals
	if total > 0 {
		p.PunctualityRate = clamp01(float64(p.OnTimeArrivals) / float64(total))
	}
}

// ApplyPunctualityPenalty decrements the punctuality rate by a fixed
// penalty and records the late arrival. Used when a claimed provider never
// showed up, where no arrival event exists to recompute from.
func ApplyPunctualityPenalty(p *models.Provider, penalty float64) {
	p.LateArrivals++
	p.PunctualityRate = clamp01(p.PunctualityRate - penalty)
}

// FoldRating folds one customer rating in [1,5] into the provider's running
// average rating.
func FoldRating(p *models.Provider, rating float64) {
	if rating < 1 {
		rating = 1
	}
	if rating > 5 {
		rating = 5
	}
	total := p.Rating*float64(p.RatingCount) + rating
	p.RatingCount++
	p.Rating = total / float64(p.RatingCount)
}

// qualityFoldWeight is the weight of a single new observation against the
// accumulated quality score.
const qualityFoldWeight = 0.2

// FoldQuality folds one normalized quality observation in [0,1] into the
// provider's quality score as an exponentially weighted average, so recent
// work counts more than ancient history.
func FoldQuality(p *models.Provider, observation float64) {
	p.QualityScore = clamp01((1-qualityFoldWeight)*p.QualityScore + qualityFoldWeight*clamp01(observation))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
