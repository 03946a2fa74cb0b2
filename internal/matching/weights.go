package matching

import (
	"fmt"
	"math"
)

// WeightSumTolerance is the allowed deviation of the weight sum from 1.0.
const WeightSumTolerance = 0.01

// Weights is a validated set of scoring weights. Construct with NewWeights;
// a zero Weights value scores everything as zero.
type Weights struct {
	Rating      float64
	Distance    float64
	Acceptance  float64
	Punctuality float64
}

// NewWeights validates and returns a weight set. Weights must be
// non-negative and sum to 1.0 within tolerance; invalid input is rejected,
// not clamped.
func NewWeights(rating, distance, acceptance, punctuality float64) (Weights, error) {
	w := Weights{Rating: rating, Distance: distance, Acceptance: acceptance, Punctuality: punctuality}
	for name, v := range map[string]float64{
		"rating":      rating,
		"distance":    distance,
		"acceptance":  acceptance,
		"punctuality": punctuality,
	} {
		if v < 0 {
			return Weights{}, fmt.Errorf("scoring weight %s must be non-negative, got %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > WeightSumTolerance {
		return Weights{}, fmt.Errorf("scoring weights must sum to 1.0 (±%v), got %v", WeightSumTolerance, sum)
	}
	return w, nil
}

// DefaultWeights returns the platform default weight set.
func DefaultWeights() Weights {
	return Weights{Rating: 0.4, Distance: 0.2, Acceptance: 0.2, Punctuality: 0.2}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Rating + w.Distance + w.Acceptance + w.Punctuality
}
