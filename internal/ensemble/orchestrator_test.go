package ensemble

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celltx-risk-engine/internal/domain"
	"github.com/celltx-risk-engine/internal/scoring"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func lab(value float64, unit string) domain.LabValue {
	return domain.LabValue{Value: value, Unit: unit}
}

// stubCalculator returns a fixed result regardless of input.
func stubCalculator(id string, tier domain.Tier, level domain.RiskLevel, score, confidence float64) *scoring.Calculator {
	thresholds := domain.Thresholds{Moderate: 0.4, High: 0.7}
	return &scoring.Calculator{
		ID:         id,
		Name:       id,
		Version:    "test.1",
		Citation:   "citation for " + id,
		Tier:       tier,
		Thresholds: thresholds,
		Compute: func(labs domain.LabSnapshot) (*domain.ScoringResult, *domain.SkippedResult, error) {
			return &domain.ScoringResult{
				ModelID:    id,
				Version:    "test.1",
				Score:      score,
				RiskLevel:  level,
				Confidence: confidence,
				Citation:   "citation for " + id,
				Thresholds: thresholds,
			}, nil, nil
		},
	}
}

func TestOrchestrator_RoutineOnlySnapshot(t *testing.T) {
	o := New(testLogger(), scoring.NewRegistry(testLogger()))

	labs := domain.LabSnapshot{
		domain.LDH:        lab(280, "U/L"),
		domain.Creatinine: lab(0.8, "mg/dL"),
		domain.Platelets:  lab(185, "1e9/L"),
	}

	result, err := o.Score(labs)
	require.NoError(t, err)

	// EASIX and s-EASIX run fully; CAR-HEMATOTOX runs as a partial lower
	// bound on platelets alone. Everything else skips but is still reported.
	assert.Equal(t, 3, result.ModelsRun)
	assert.Equal(t, 4, result.ModelsSkipped)
	assert.Equal(t, 0, result.ModelsFailed)
	assert.Equal(t, domain.RiskLow, result.OverallRiskLevel)
	assert.False(t, result.DiscordanceFlag)

	require.Len(t, result.Layers, 3)
	assert.Equal(t, domain.TierRoutine, result.Layers[0].Tier)
	assert.Len(t, result.Layers[0].ModelsRun, 3)
	assert.Len(t, result.Layers[2].ModelsRun, 0)

	// Citations cover skipped models too, and come back sorted.
	assert.NotEmpty(t, result.Citations)
	assert.IsIncreasing(t, result.Citations)
}

func TestOrchestrator_Deterministic(t *testing.T) {
	o := New(testLogger(), scoring.NewRegistry(testLogger()))

	labs := domain.LabSnapshot{
		domain.LDH:        lab(520, "U/L"),
		domain.Creatinine: lab(1.4, "mg/dL"),
		domain.Platelets:  lab(90, "1e9/L"),
		domain.CRP:        lab(45, "mg/L"),
		domain.Ferritin:   lab(2100, "ng/mL"),
	}

	first, err := o.Score(labs)
	require.NoError(t, err)
	second, err := o.Score(labs)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestOrchestrator_InvalidSnapshotRejected(t *testing.T) {
	o := New(testLogger(), scoring.NewRegistry(testLogger()))

	_, err := o.Score(domain.LabSnapshot{
		"not_a_biomarker": lab(1, "U/L"),
	})
	assert.Error(t, err)

	_, err = o.Score(domain.LabSnapshot{
		domain.LDH: lab(280, "ukat/L"),
	})
	assert.Error(t, err)
}

func TestOrchestrator_SafetyBiasedOverallLevel(t *testing.T) {
	registry := scoring.NewEmptyRegistry(testLogger())
	registry.Register(stubCalculator("a", domain.TierRoutine, domain.RiskLow, 0.1, 1.0))
	registry.Register(stubCalculator("b", domain.TierRoutine, domain.RiskModerate, 0.5, 1.0))
	registry.Register(stubCalculator("c", domain.TierInflammatory, domain.RiskHigh, 0.9, 0.4))

	o := New(testLogger(), registry)
	result, err := o.Score(domain.LabSnapshot{})
	require.NoError(t, err)

	// One HIGH model dominates regardless of its confidence.
	assert.Equal(t, domain.RiskHigh, result.OverallRiskLevel)
	assert.Equal(t, 1, result.TierCounts[domain.RiskLow])
	assert.Equal(t, 1, result.TierCounts[domain.RiskModerate])
	assert.Equal(t, 1, result.TierCounts[domain.RiskHigh])
}

func TestOrchestrator_DiscordanceFlag(t *testing.T) {
	registry := scoring.NewEmptyRegistry(testLogger())
	registry.Register(stubCalculator("low1", domain.TierRoutine, domain.RiskLow, 0.1, 1.0))
	registry.Register(stubCalculator("low2", domain.TierRoutine, domain.RiskLow, 0.1, 1.0))
	registry.Register(stubCalculator("outlier", domain.TierCytokine, domain.RiskHigh, 0.9, 0.3))

	o := New(testLogger(), registry)
	result, err := o.Score(domain.LabSnapshot{})
	require.NoError(t, err)

	// Overall reads HIGH while the confidence-weighted majority reads LOW.
	assert.Equal(t, domain.RiskHigh, result.OverallRiskLevel)
	assert.True(t, result.DiscordanceFlag)
	assert.Equal(t, []string{"outlier"}, result.DiscordantModels)
}

func TestOrchestrator_NoDiscordanceWhenHighDominates(t *testing.T) {
	registry := scoring.NewEmptyRegistry(testLogger())
	registry.Register(stubCalculator("high1", domain.TierRoutine, domain.RiskHigh, 0.9, 1.0))
	registry.Register(stubCalculator("low1", domain.TierRoutine, domain.RiskLow, 0.1, 0.5))

	o := New(testLogger(), registry)
	result, err := o.Score(domain.LabSnapshot{})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskHigh, result.OverallRiskLevel)
	assert.False(t, result.DiscordanceFlag)
}

func TestOrchestrator_PanicIsolatedToModel(t *testing.T) {
	registry := scoring.NewEmptyRegistry(testLogger())
	registry.Register(stubCalculator("healthy", domain.TierRoutine, domain.RiskModerate, 0.5, 1.0))
	registry.Register(&scoring.Calculator{
		ID:      "broken",
		Version: "test.1",
		Tier:    domain.TierRoutine,
		Compute: func(labs domain.LabSnapshot) (*domain.ScoringResult, *domain.SkippedResult, error) {
			panic("internal fault")
		},
	})

	o := New(testLogger(), registry)
	result, err := o.Score(domain.LabSnapshot{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ModelsRun)
	assert.Equal(t, 1, result.ModelsFailed)
	require.Len(t, result.Layers[0].ModelsFailed, 1)
	assert.Equal(t, "broken", result.Layers[0].ModelsFailed[0].ModelID)
	assert.Contains(t, result.Layers[0].ModelsFailed[0].Error, "panic")
	assert.Equal(t, domain.RiskModerate, result.OverallRiskLevel)
}

func TestOrchestrator_EmptyEnsemble(t *testing.T) {
	o := New(testLogger(), scoring.NewRegistry(testLogger()))

	result, err := o.Score(domain.LabSnapshot{})
	require.NoError(t, err)

	assert.Equal(t, 0, result.ModelsRun)
	assert.Equal(t, 7, result.ModelsSkipped)
	assert.Empty(t, result.OverallRiskLevel)
	assert.Zero(t, result.CompositeScore)
}

func TestOrchestrator_CompositeIsConfidenceWeighted(t *testing.T) {
	registry := scoring.NewEmptyRegistry(testLogger())
	// Scores sit exactly on the stub thresholds: 0.4 -> 0.50, 0.7 -> 0.75.
	registry.Register(stubCalculator("m", domain.TierRoutine, domain.RiskModerate, 0.4, 3.0))
	registry.Register(stubCalculator("h", domain.TierRoutine, domain.RiskHigh, 0.7, 1.0))

	o := New(testLogger(), registry)
	result, err := o.Score(domain.LabSnapshot{})
	require.NoError(t, err)

	expected := (3.0*0.50 + 1.0*0.75) / 4.0
	assert.InDelta(t, expected, result.CompositeScore, 1e-9)
}
