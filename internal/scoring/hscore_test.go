package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celltx-risk-engine/internal/domain"
)

func fullHScoreSnapshot() domain.LabSnapshot {
	return domain.LabSnapshot{
		domain.Temperature:      lab(39.6, "degC"),  // 49
		domain.Organomegaly:     lab(2, "count"),    // 38
		domain.CytopeniaLines:   lab(3, "count"),    // 34
		domain.Ferritin:         lab(6500, "ng/mL"), // 50
		domain.Triglycerides:    lab(4.5, "mmol/L"), // 64
		domain.Fibrinogen:       lab(2.0, "g/L"),    // 30
		domain.AST:              lab(95, "U/L"),     // 19
		domain.Hemophagocytosis: lab(1, "flag"),     // 35
		domain.Immunosuppressed: lab(1, "flag"),     // 18
	}
}

func TestHScore_MaximumScore(t *testing.T) {
	calc := newHScore()

	result, skipped, err := calc.Compute(fullHScoreSnapshot())

	require.NoError(t, err)
	require.Nil(t, skipped)
	assert.Equal(t, 337.0, result.Score)
	assert.Equal(t, domain.RiskHigh, result.RiskLevel)
	assert.Equal(t, 1.0, result.Confidence)
	assert.False(t, result.Partial)
}

func TestHScore_BenignSnapshot(t *testing.T) {
	calc := newHScore()

	labs := domain.LabSnapshot{
		domain.Temperature:      lab(37.0, "degC"),
		domain.Organomegaly:     lab(0, "count"),
		domain.CytopeniaLines:   lab(0, "count"),
		domain.Ferritin:         lab(300, "ng/mL"),
		domain.Triglycerides:    lab(1.0, "mmol/L"),
		domain.Fibrinogen:       lab(3.5, "g/L"),
		domain.AST:              lab(20, "U/L"),
		domain.Hemophagocytosis: lab(0, "flag"),
		domain.Immunosuppressed: lab(0, "flag"),
	}

	result, skipped, err := calc.Compute(labs)

	require.NoError(t, err)
	require.Nil(t, skipped)
	assert.Equal(t, 0.0, result.Score)
	assert.Equal(t, domain.RiskLow, result.RiskLevel)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestHScore_PartialIsLowerBound(t *testing.T) {
	calc := newHScore()

	labs := fullHScoreSnapshot()
	delete(labs, domain.Triglycerides) // drops 64 of the 337 attainable points

	result, skipped, err := calc.Compute(labs)

	require.NoError(t, err)
	require.Nil(t, skipped)
	assert.True(t, result.Partial)
	assert.Equal(t, 273.0, result.Score)
	// Confidence is the weight fraction of observed components.
	assert.InDelta(t, (337.0-64.0)/337.0, result.Confidence, 1e-9)
}

func TestHScore_ConfidenceTracksComponentWeight(t *testing.T) {
	calc := newHScore()

	// Ferritin carries 50 attainable points, AST only 19: dropping ferritin
	// must cost strictly more confidence than dropping AST.
	withoutFerritin := fullHScoreSnapshot()
	delete(withoutFerritin, domain.Ferritin)

	withoutAST := fullHScoreSnapshot()
	delete(withoutAST, domain.AST)

	rFerritin, _, err := calc.Compute(withoutFerritin)
	require.NoError(t, err)
	rAST, _, err := calc.Compute(withoutAST)
	require.NoError(t, err)

	assert.Less(t, rFerritin.Confidence, rAST.Confidence)
}

func TestHScore_AllComponentsMissingSkips(t *testing.T) {
	calc := newHScore()

	result, skipped, err := calc.Compute(domain.LabSnapshot{})

	require.NoError(t, err)
	require.Nil(t, result)
	require.NotNil(t, skipped)
	assert.Len(t, skipped.MissingFields, 9)
}

func TestHScore_WrongUnitSkips(t *testing.T) {
	calc := newHScore()

	labs := fullHScoreSnapshot()
	labs[domain.Triglycerides] = lab(400, "mg/dL")

	result, skipped, err := calc.Compute(labs)

	require.NoError(t, err)
	require.Nil(t, result)
	require.NotNil(t, skipped)
	assert.Contains(t, skipped.Reason, "canonical unit")
}
