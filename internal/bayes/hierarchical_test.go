package bayes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celltx-risk-engine/internal/domain"
)

func TestPoolRandomEffects_HomogeneousSources(t *testing.T) {
	engine := testEngine()
	prior := domain.PriorSpec{Alpha: 1, Beta: 9, Provenance: "shared prior"}

	report, err := engine.PoolRandomEffects(prior, []SourceObservation{
		{Source: "trial-a", Events: 10, N: 100},
		{Source: "trial-b", Events: 11, N: 100},
		{Source: "trial-c", Events: 9, N: 100},
	})
	require.NoError(t, err)

	// Near-identical rates: heterogeneity collapses.
	assert.InDelta(t, 0, report.Tau, 0.1)
	assert.Less(t, report.ISquared, 0.25)
	assert.InDelta(t, 0.10, report.PooledMean, 0.02)
	assert.Less(t, report.PooledCILow, report.PooledMean)
	assert.Greater(t, report.PooledCIHigh, report.PooledMean)
	assert.Equal(t, 3, report.Sources)
	require.Len(t, report.PerSource, 3)
	assert.Equal(t, "DerSimonian-Laird (logit scale)", report.Method)
}

func TestPoolRandomEffects_HeterogeneousSources(t *testing.T) {
	engine := testEngine()
	prior := domain.PriorSpec{Alpha: 1, Beta: 9}

	homogeneous, err := engine.PoolRandomEffects(prior, []SourceObservation{
		{Source: "a", Events: 10, N: 100},
		{Source: "b", Events: 10, N: 100},
	})
	require.NoError(t, err)

	divergent, err := engine.PoolRandomEffects(prior, []SourceObservation{
		{Source: "a", Events: 3, N: 100},
		{Source: "b", Events: 35, N: 100},
	})
	require.NoError(t, err)

	// Real between-source variation shows up as tau and a wider interval,
	// instead of vanishing into a falsely confident pooled point.
	assert.Greater(t, divergent.Tau, homogeneous.Tau)
	assert.Greater(t, divergent.ISquared, 0.5)
	assert.Greater(t,
		divergent.PooledCIHigh-divergent.PooledCILow,
		homogeneous.PooledCIHigh-homogeneous.PooledCILow)
}

func TestPoolRandomEffects_PerSourceIntervalsExact(t *testing.T) {
	engine := testEngine()
	prior := domain.PriorSpec{Alpha: 1, Beta: 9}

	report, err := engine.PoolRandomEffects(prior, []SourceObservation{
		{Source: "a", Events: 1, N: 40},
		{Source: "b", Events: 2, N: 60},
	})
	require.NoError(t, err)

	for _, src := range report.PerSource {
		assert.Greater(t, src.CILow, 0.0)
		assert.Less(t, src.CILow, src.Mean)
		assert.Greater(t, src.CIHigh, src.Mean)
	}
}

func TestPoolRandomEffects_Validation(t *testing.T) {
	engine := testEngine()

	_, err := engine.PoolRandomEffects(domain.PriorSpec{Alpha: 1, Beta: 9}, []SourceObservation{
		{Source: "only", Events: 1, N: 10},
	})
	assert.Error(t, err)

	_, err = engine.PoolRandomEffects(domain.PriorSpec{Alpha: 0, Beta: 9}, []SourceObservation{
		{Source: "a", Events: 1, N: 10},
		{Source: "b", Events: 2, N: 10},
	})
	assert.Error(t, err)

	_, err = engine.PoolRandomEffects(domain.PriorSpec{Alpha: 1, Beta: 9}, []SourceObservation{
		{Source: "a", Events: 1, N: 10},
		{Source: "bad", Events: 20, N: 10},
	})
	assert.Error(t, err)
}

func TestConditionRegistry_Defaults(t *testing.T) {
	registry, err := NewConditionRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{"carhlh", "crs_grade3plus", "icans_grade3plus"}, registry.IDs())

	crs, err := registry.Get("crs_grade3plus")
	require.NoError(t, err)
	assert.InDelta(t, 0.21, crs.Prior.Alpha, 1e-9)
	assert.InDelta(t, 1.29, crs.Prior.Beta, 1e-9)
	assert.Equal(t, 0.10, crs.MonitorThreshold)
	assert.Equal(t, 0.80, crs.StoppingBoundary)
	assert.Equal(t, 0.14, crs.BaseRate)
	assert.Equal(t, 1.5, crs.EffectiveN)
	assert.Contains(t, crs.Prior.Provenance, "discount")

	// The rarer syndrome carries a deeper discount and a stricter boundary.
	hlh, err := registry.Get("carhlh")
	require.NoError(t, err)
	assert.Equal(t, 0.05, hlh.MonitorThreshold)
	assert.Equal(t, 0.90, hlh.StoppingBoundary)

	_, err = registry.Get("nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownCondition)
}
