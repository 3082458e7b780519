// package triage contains the priority scoring and queue-ordering engine:
// the pure scorer, the capacity tracker, the scoring configuration store,
// the queue ordering engine and the recompute scheduler.
package triage

import (
	"math"
	"time"

	"github.com/triageai/backend/internal/models"
)

// ScoringConfig holds the weighting parameters for the priority formula.
// The four weights are expected to sum to 1.0 but are not forced to; the
// settings store warns on drift and only rejects values that would break the
// math (see Validate).
type ScoringConfig struct {
	RiskWeight                 float64 `json:"risk_level_weight"`
	WaitingTimeWeight          float64 `json:"waiting_time_weight"`
	ResourceAvailabilityWeight float64 `json:"resource_availability_weight"`
	StaffAvailabilityWeight    float64 `json:"staff_availability_weight"`

	// WaitingTimeExponentBase (> 1) controls how steeply the waiting-time
	// factor approaches 1; WaitingTimeConstant (> 0, minutes) is its scale.
	WaitingTimeExponentBase float64 `json:"waiting_time_exponent_base"`
	WaitingTimeConstant     float64 `json:"waiting_time_constant"`

	// RiskGatesOrdering makes risk level a hard primary sort key ahead of the
	// blended score. Turning it off is an explicit policy choice to let the
	// blended score alone govern ordering.
	RiskGatesOrdering bool `json:"risk_gates_ordering"`
}

// DefaultScoringConfig returns the stock weights.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		RiskWeight:                 0.5,
		WaitingTimeWeight:          0.3,
		ResourceAvailabilityWeight: 0.1,
		StaffAvailabilityWeight:    0.1,
		WaitingTimeExponentBase:    1.05,
		WaitingTimeConstant:        30,
		RiskGatesOrdering:          true,
	}
}

// CapacitySnapshot is an ephemeral view of operational capacity taken once
// per scoring pass. Ratios are in [0,1]; 1 means fully available.
type CapacitySnapshot struct {
	StaffAvailableRatio    float64 `json:"staffAvailableRatio"`
	ResourceAvailableRatio float64 `json:"resourceAvailableRatio"`
}

// NeutralCapacity is the snapshot used when capacity data is unavailable:
// full availability, so the capacity terms contribute nothing.
func NeutralCapacity() CapacitySnapshot {
	return CapacitySnapshot{StaffAvailableRatio: 1, ResourceAvailableRatio: 1}
}

// maxRiskLevel pins the risk normalization scale: low=1, medium=2, high=3,
// divided by 3. Not configurable.
const maxRiskLevel = float64(models.RiskHigh)

// NormalizedRisk maps the ordinal risk level onto [0,1]. Unknown levels map
// to 0, matching the upstream classifier contract where absence means no
// assessed risk.
func NormalizedRisk(r models.RiskLevel) float64 {
	if !r.Valid() {
		return 0
	}
	return float64(r) / maxRiskLevel
}

// WaitingTimeFactor is 1 - base^(-waitMinutes/timeConstant), clamped to
// [0, 1). It grows exponentially toward 1 so long waits eventually outweigh
// any risk-based gap.
func WaitingTimeFactor(wait time.Duration, cfg ScoringConfig) float64 {
	if cfg.WaitingTimeExponentBase <= 1 || cfg.WaitingTimeConstant <= 0 {
		// invalid parameters are rejected at the settings boundary; treat a
		// bad config reaching this far as zero wait pressure rather than NaN
		return 0
	}
	minutes := wait.Minutes()
	if minutes < 0 {
		minutes = 0
	}
	f := 1 - math.Pow(cfg.WaitingTimeExponentBase, -minutes/cfg.WaitingTimeConstant)
	if f < 0 {
		f = 0
	}
	if f >= 1 {
		f = math.Nextafter(1, 0)
	}
	return f
}

// Score computes the blended priority score for one patient. Pure: identical
// inputs always produce identical output, and the only clock is the passed
// now.
//
// Scarcity raises urgency: both capacity terms are (1 - ratio), so full
// availability contributes 0 and zero availability contributes the full
// configured weight.
func Score(risk models.RiskLevel, arrival, now time.Time, snap CapacitySnapshot, cfg ScoringConfig) float64 {
	return cfg.RiskWeight*NormalizedRisk(risk) +
		cfg.WaitingTimeWeight*WaitingTimeFactor(now.Sub(arrival), cfg) +
		cfg.ResourceAvailabilityWeight*(1-snap.ResourceAvailableRatio) +
		cfg.StaffAvailabilityWeight*(1-snap.StaffAvailableRatio)
}

// ScoreComponent is one weighted term of the blended score.
type ScoreComponent struct {
	Value    float64 `json:"value"`
	Weighted float64 `json:"weighted"`
}

// ScoreBreakdown is the per-term decomposition returned by the manual
// calculate endpoint.
type ScoreBreakdown struct {
	Total          float64        `json:"total"`
	WaitingMinutes int            `json:"waitingMinutes"`
	Risk           ScoreComponent `json:"risk"`
	WaitingTime    ScoreComponent `json:"waitingTime"`
	Resource       ScoreComponent `json:"resource"`
	Staff          ScoreComponent `json:"staff"`
}

// Breakdown computes the score together with its per-term decomposition.
func Breakdown(risk models.RiskLevel, arrival, now time.Time, snap CapacitySnapshot, cfg ScoringConfig) ScoreBreakdown {
	riskVal := NormalizedRisk(risk)
	waitVal := WaitingTimeFactor(now.Sub(arrival), cfg)
	resVal := 1 - snap.ResourceAvailableRatio
	staffVal := 1 - snap.StaffAvailableRatio

	b := ScoreBreakdown{
		WaitingMinutes: int(now.Sub(arrival).Minutes()),
		Risk:           ScoreComponent{Value: riskVal, Weighted: cfg.RiskWeight * riskVal},
		WaitingTime:    ScoreComponent{Value: waitVal, Weighted: cfg.WaitingTimeWeight * waitVal},
		Resource:       ScoreComponent{Value: resVal, Weighted: cfg.ResourceAvailabilityWeight * resVal},
		Staff:          ScoreComponent{Value: staffVal, Weighted: cfg.StaffAvailabilityWeight * staffVal},
	}
	b.Total = b.Risk.Weighted + b.WaitingTime.Weighted + b.Resource.Weighted + b.Staff.Weighted
	return b
}
