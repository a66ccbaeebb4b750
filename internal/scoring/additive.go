package scoring

import (
	"fmt"

	"github.com/celltx-risk-engine/internal/domain"
)

// additiveComponent is one weighted component of a point-system formula.
type additiveComponent struct {
	Marker domain.Biomarker

	// MaxPoints is the component's highest attainable contribution; it is
	// the weight used for confidence: a missing high-weight component
	// reduces confidence more than a missing low-weight one.
	MaxPoints float64

	Points func(value float64) float64
}

// computeAdditive evaluates a point-system formula over whichever
// components are observed. With a complete snapshot the result is the full
// published score. With a partial snapshot the result is a lower bound
// (every component can only add points), flagged Partial, with confidence
// equal to the point-weight-weighted fraction of observed components — not
// a naive field count.
func computeAdditive(meta modelMeta, thresholds domain.Thresholds, components []additiveComponent, labs domain.LabSnapshot) (*domain.ScoringResult, *domain.SkippedResult, error) {
	var (
		score         float64
		weightTotal   float64
		weightPresent float64
		present       int
		breakdown     = make(map[string]float64)
	)

	for _, comp := range components {
		weightTotal += comp.MaxPoints

		lv, ok := labs.Get(comp.Marker)
		if !ok {
			continue
		}
		if canonical := domain.CanonicalUnits[comp.Marker]; lv.Unit != canonical {
			return nil, meta.skip(
				fmt.Sprintf("%s reported in %q, expected canonical unit %q (caller must pre-normalize)", comp.Marker, lv.Unit, canonical),
				nil), nil
		}
		if lv.Value < 0 {
			err := &domain.InvalidRangeError{
				ModelID: meta.ID,
				Field:   string(comp.Marker),
				Reason:  fmt.Sprintf("negative value %g: physiologically impossible", lv.Value),
			}
			return nil, meta.skip(err.Error(), nil), nil
		}

		points := comp.Points(lv.Value)
		breakdown[string(comp.Marker)] = points
		score += points
		weightPresent += comp.MaxPoints
		present++
	}

	if present == 0 {
		allMarkers := make([]domain.Biomarker, len(components))
		for i, comp := range components {
			allMarkers[i] = comp.Marker
		}
		missing := labs.Missing(allMarkers...)
		err := &domain.MissingInputError{ModelID: meta.ID, Fields: missing}
		return nil, meta.skip(err.Error(), missing), nil
	}

	return &domain.ScoringResult{
		ModelID:    meta.ID,
		Version:    meta.Version,
		Score:      score,
		RiskLevel:  thresholds.Classify(score),
		Confidence: weightPresent / weightTotal,
		Citation:   meta.Citation,
		Thresholds: thresholds,
		Components: breakdown,
		Partial:    present < len(components),
	}, nil, nil
}
