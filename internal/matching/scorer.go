package matching

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/sweeply/sweeply/internal/db/models"
)

// Candidate is an eligible provider paired with its distance to the job.
type Candidate struct {
	Provider   models.Provider
	DistanceKm float64
}

// ScoredCandidate is a candidate with its computed suitability score.
type ScoredCandidate struct {
	Provider   models.Provider
	Score      float64
	DistanceKm float64
}

// Scorer computes weighted suitability scores for (job, provider) pairs and
// returns candidates ranked best first.
type Scorer struct {
	weights  Weights
	conflict *ConflictChecker
}

// NewScorer creates a scorer with the given weights over the given database
// handle.
func NewScorer(db *gorm.DB, weights Weights) *Scorer {
	return &Scorer{weights: weights, conflict: NewConflictChecker(db)}
}

// Rank scores the candidate pool for a job and returns eligible candidates
// in rank order. Candidates with a conflicting claimed commitment are
// excluded before scoring. An empty result is a valid outcome, not an
// error; the dispatcher decides what to do about it.
func (s *Scorer) Rank(ctx context.Context, job *models.Job, pool []Candidate) ([]ScoredCandidate, error) {
	startMin, endMin, err := job.Window()
	if err != nil {
		return nil, err
	}

	out := make([]ScoredCandidate, 0, len(pool))
	for _, cand := range pool {
		p := cand.Provider
		if !p.Eligible() {
			continue
		}
		if cand.DistanceKm > p.ServiceRadiusKm {
			continue
		}
		conflicted, err := s.conflict.HasConflict(ctx, p.ID, job.ScheduledDate, startMin, endMin)
		if err != nil {
			return nil, err
		}
		if conflicted {
			continue
		}
		out = append(out, ScoredCandidate{
			Provider:   p,
			Score:      s.score(p, cand.DistanceKm),
			DistanceKm: cand.DistanceKm,
		})
	}

	// Deterministic order: score, then rating, then distance, then id.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Provider.Rating != out[j].Provider.Rating {
			return out[i].Provider.Rating > out[j].Provider.Rating
		}
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Provider.ID < out[j].Provider.ID
	})
	return out, nil
}

// sortForRedistribution reorders candidates for replacement selection after
// a lateness drop: punctuality first, then quality, then id for determinism.
func sortForRedistribution(ranked []ScoredCandidate) {
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i].Provider, ranked[j].Provider
		if a.PunctualityRate != b.PunctualityRate {
			return a.PunctualityRate > b.PunctualityRate
		}
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		return a.ID < b.ID
	})
}

// score blends the normalized factors. Each factor lives in [0,1]; distance
// is normalized against the provider's own service radius and inverted so
// closer is better.
func (s *Scorer) score(p models.Provider, distanceKm float64) float64 {
	ratingNorm := clamp01(p.Rating / 5.0)
	distanceNorm := 0.0
	if p.ServiceRadiusKm > 0 {
		distanceNorm = clamp01(distanceKm / p.ServiceRadiusKm)
	}
	return s.weights.Rating*ratingNorm +
		s.weights.Distance*(1-distanceNorm) +
		s.weights.Acceptance*clamp01(p.AcceptanceRate) +
		s.weights.Punctuality*clamp01(p.PunctualityRate)
}
