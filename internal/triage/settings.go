package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/triageai/backend/internal/store"
)

// SettingsKey is the system_settings row holding the scoring parameters.
const SettingsKey = "priority_calculation"

// weightSumTolerance is how far the four weights may drift from 1.0 before
// the settings store logs a warning. Drift is never normalized away.
const weightSumTolerance = 0.01

// SettingsStore is the configuration store for ScoringConfig: it validates
// updates at the boundary, keeps the last-known-good value when an update is
// rejected, persists accepted values, and hands out atomic versioned
// snapshots to the scoring pass.
type SettingsStore struct {
	st store.Store

	mu      sync.RWMutex
	current ScoringConfig
	version int64
}

// NewSettingsStore loads the persisted configuration, falling back to
// defaults when none is stored or the stored value fails validation.
func NewSettingsStore(ctx context.Context, st store.Store) *SettingsStore {
	s := &SettingsStore{st: st, current: DefaultScoringConfig(), version: 1}

	raw, err := st.GetSetting(ctx, SettingsKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[triage.settings] load persisted settings: %v (using defaults)", err)
		}
		return s
	}
	cfg := DefaultScoringConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		log.Printf("[triage.settings] persisted settings unreadable: %v (using defaults)", err)
		return s
	}
	if err := Validate(cfg); err != nil {
		log.Printf("[triage.settings] persisted settings invalid: %v (using defaults)", err)
		return s
	}
	s.current = cfg
	return s
}

// Validate rejects parameters that would break the scoring math: negative
// weights, an exponent base <= 1, or a non-positive time constant. Weight-sum
// drift is a warning, not an error.
func Validate(cfg ScoringConfig) error {
	for name, w := range map[string]float64{
		"risk_level_weight":            cfg.RiskWeight,
		"waiting_time_weight":          cfg.WaitingTimeWeight,
		"resource_availability_weight": cfg.ResourceAvailabilityWeight,
		"staff_availability_weight":    cfg.StaffAvailabilityWeight,
	} {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%s must be a non-negative finite number", name)
		}
	}
	if cfg.WaitingTimeExponentBase <= 1 || math.IsNaN(cfg.WaitingTimeExponentBase) || math.IsInf(cfg.WaitingTimeExponentBase, 0) {
		return fmt.Errorf("waiting_time_exponent_base must be > 1")
	}
	if cfg.WaitingTimeConstant <= 0 || math.IsNaN(cfg.WaitingTimeConstant) || math.IsInf(cfg.WaitingTimeConstant, 0) {
		return fmt.Errorf("waiting_time_constant must be > 0")
	}
	return nil
}

// Snapshot returns the current configuration and its version. The returned
// value is a copy; a recompute cycle reads it once and never mixes versions.
func (s *SettingsStore) Snapshot() (ScoringConfig, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.version
}

// Update validates, persists and installs a new configuration. On validation
// failure the last-known-good configuration stays in effect and the error is
// returned to the caller.
func (s *SettingsStore) Update(ctx context.Context, cfg ScoringConfig) (ScoringConfig, int64, error) {
	if err := Validate(cfg); err != nil {
		log.Printf("[triage.settings] update rejected, keeping last-known-good: %v", err)
		return ScoringConfig{}, 0, err
	}
	sum := cfg.RiskWeight + cfg.WaitingTimeWeight + cfg.ResourceAvailabilityWeight + cfg.StaffAvailabilityWeight
	if math.Abs(sum-1.0) > weightSumTolerance {
		log.Printf("[triage.settings] weights sum to %.4f, expected 1.0 (accepted as configured)", sum)
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return ScoringConfig{}, 0, fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.st.PutSetting(ctx, SettingsKey, raw); err != nil {
		// keep serving the new value even if persistence failed: the engine
		// must keep scoring, and the operator asked for these weights
		log.Printf("[triage.settings] persist settings: %v", err)
	}

	s.mu.Lock()
	s.current = cfg
	s.version++
	version := s.version
	s.mu.Unlock()
	return cfg, version, nil
}
