package triage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triageai/backend/internal/store"
)

func TestSettingsStoreDefaults(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(ctx, store.NewMemoryStore())

	cfg, version := s.Snapshot()
	assert.Equal(t, DefaultScoringConfig(), cfg)
	assert.Equal(t, int64(1), version)
}

func TestSettingsStoreLoadsPersisted(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	cfg := DefaultScoringConfig()
	cfg.RiskWeight = 0.6
	cfg.WaitingTimeWeight = 0.2
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, st.PutSetting(ctx, SettingsKey, raw))

	s := NewSettingsStore(ctx, st)
	got, _ := s.Snapshot()
	assert.Equal(t, cfg, got)
}

func TestSettingsStoreIgnoresCorruptPersisted(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.PutSetting(ctx, SettingsKey, []byte("{not json")))

	s := NewSettingsStore(ctx, st)
	got, _ := s.Snapshot()
	assert.Equal(t, DefaultScoringConfig(), got)
}

func TestValidateRejectsBrokenParameters(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ScoringConfig)
	}{
		{"negative weight", func(c *ScoringConfig) { c.RiskWeight = -0.1 }},
		{"base at one", func(c *ScoringConfig) { c.WaitingTimeExponentBase = 1 }},
		{"base below one", func(c *ScoringConfig) { c.WaitingTimeExponentBase = 0.9 }},
		{"zero time constant", func(c *ScoringConfig) { c.WaitingTimeConstant = 0 }},
		{"negative time constant", func(c *ScoringConfig) { c.WaitingTimeConstant = -30 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultScoringConfig()
			tc.mutate(&cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestUpdateKeepsLastKnownGoodOnRejection(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(ctx, store.NewMemoryStore())

	good := DefaultScoringConfig()
	good.RiskWeight = 0.55
	good.WaitingTimeWeight = 0.25
	_, v, err := s.Update(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	bad := good
	bad.WaitingTimeExponentBase = 0.5
	_, _, err = s.Update(ctx, bad)
	require.Error(t, err)

	got, version := s.Snapshot()
	assert.Equal(t, good, got)
	assert.Equal(t, int64(2), version)
}

func TestUpdatePersistsAcceptedConfig(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s := NewSettingsStore(ctx, st)

	cfg := DefaultScoringConfig()
	cfg.WaitingTimeConstant = 45
	_, _, err := s.Update(ctx, cfg)
	require.NoError(t, err)

	raw, err := st.GetSetting(ctx, SettingsKey)
	require.NoError(t, err)
	var stored ScoringConfig
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, cfg, stored)
}

// Weights drifting off 1.0 are accepted as configured, never normalized.
func TestUpdateAcceptsWeightDrift(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(ctx, store.NewMemoryStore())

	cfg := DefaultScoringConfig()
	cfg.RiskWeight = 0.7 // sum now 1.2
	got, _, err := s.Update(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0.7, got.RiskWeight)

	current, _ := s.Snapshot()
	assert.Equal(t, cfg, current)
}
