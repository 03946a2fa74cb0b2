// Package observability exposes prometheus metrics for the engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchesTotal counts dispatch runs that created at least one offer.
	DispatchesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "sweeply", Name: "dispatches_total", Help: "Total dispatch runs that produced offers"})
	// OffersCreatedTotal counts individual assignment offers created.
	OffersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "sweeply", Name: "offers_created_total", Help: "Total assignment offers created"})
	// NoCandidatesTotal counts dispatch runs that found nobody eligible.
	NoCandidatesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "sweeply", Name: "no_candidates_total", Help: "Dispatch runs with zero eligible candidates"})
	// ClaimsTotal counts successful claims.
	ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "sweeply", Name: "claims_total", Help: "Total successful claims"})
	// ClaimConflictsTotal counts claims lost to a race or expiry.
	ClaimConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "sweeply", Name: "claim_conflicts_total", Help: "Claim attempts rejected as conflicts"})
	// RedistributionsTotal counts late-provider redistributions.
	RedistributionsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "sweeply", Name: "redistributions_total", Help: "Jobs redistributed after a late provider"})
	// ArrivalWarningsTotal counts arrival warnings sent.
	ArrivalWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "sweeply", Name: "arrival_warnings_total", Help: "Arrival warnings sent to providers"})
	// SweepsTotal counts monitor sweeps that ran to completion.
	SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "sweeply", Name: "sweeps_total", Help: "Arrival monitor sweeps completed"})
	// SweepDuration observes sweep latency.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "sweeply", Name: "sweep_duration_seconds", Help: "Arrival monitor sweep latency"})
)
