package ensemble

import (
	"github.com/celltx-risk-engine/internal/domain"
)

// Normalizer maps one model's raw score onto [0,1] for the composite.
// It is a pluggable strategy: mixing heterogeneous score scales is a known
// design smell, so the transform is explicit and swappable rather than a
// set of magic constants inside the aggregator.
type Normalizer interface {
	Name() string
	Normalize(result domain.ScoringResult) float64
}

// Composite anchor positions. Every formula's own published cut-points land
// at the same composite positions, so a model sitting exactly at its HIGH
// threshold contributes 0.75 regardless of its native scale.
const (
	anchorModerate = 0.50
	anchorHigh     = 0.75
)

// ThresholdAnchored is the default normalizer: piecewise linear through
// (0, 0), (moderate cut, 0.50), (high cut, 0.75), then a rational
// saturation toward 1 above the high cut.
type ThresholdAnchored struct{}

// Name identifies the transform in diagnostics.
func (ThresholdAnchored) Name() string { return "threshold_anchored" }

// Normalize maps a raw score through the formula's own thresholds.
func (ThresholdAnchored) Normalize(result domain.ScoringResult) float64 {
	score := result.Score
	th := result.Thresholds

	if score <= 0 || th.Moderate <= 0 || th.High <= th.Moderate {
		if score <= 0 {
			return 0
		}
		// Degenerate thresholds should not occur for registered formulas;
		// fall back to a saturating map so the composite stays in [0,1].
		return score / (score + 1)
	}

	switch {
	case score <= th.Moderate:
		return anchorModerate * score / th.Moderate
	case score <= th.High:
		return anchorModerate + (anchorHigh-anchorModerate)*(score-th.Moderate)/(th.High-th.Moderate)
	default:
		excess := score - th.High
		return anchorHigh + (1-anchorHigh)*excess/(excess+th.High)
	}
}
