package scoring

import (
	"github.com/celltx-risk-engine/internal/domain"
)

const citationHematotox = "Rejeski K, et al. CAR-HEMATOTOX: a model for CAR T-cell-related hematologic toxicity in relapsed/refractory large B-cell lymphoma. Blood. 2021;138(24):2499-2513."

// newCARHematotox builds the CAR-HEMATOTOX calculator: a five-component
// pre-lymphodepletion point system (maximum 7). The published model is
// binary (score >= 2 is high risk); a single point is surfaced here as
// MODERATE to preserve the ordinal contract.
func newCARHematotox() *Calculator {
	meta := modelMeta{ID: "car_hematotox", Version: "2021.1", Citation: citationHematotox}
	thresholds := domain.Thresholds{Moderate: 1, High: 2}

	components := []additiveComponent{
		{
			Marker:    domain.Platelets,
			MaxPoints: 2,
			Points: func(v float64) float64 {
				switch {
				case v < 75:
					return 2
				case v <= 175:
					return 1
				default:
					return 0
				}
			},
		},
		{
			Marker:    domain.ANC,
			MaxPoints: 1,
			Points: func(v float64) float64 {
				if v <= 1.2 {
					return 1
				}
				return 0
			},
		},
		{
			Marker:    domain.Hemoglobin,
			MaxPoints: 1,
			Points: func(v float64) float64 {
				if v <= 9.0 {
					return 1
				}
				return 0
			},
		},
		{
			// Paper cut-point is 3.0 mg/dL; canonical unit here is mg/L.
			Marker:    domain.CRP,
			MaxPoints: 1,
			Points: func(v float64) float64 {
				if v >= 30 {
					return 1
				}
				return 0
			},
		},
		{
			Marker:    domain.Ferritin,
			MaxPoints: 2,
			Points: func(v float64) float64 {
				switch {
				case v > 2000:
					return 2
				case v >= 650:
					return 1
				default:
					return 0
				}
			},
		},
	}

	required := make([]domain.Biomarker, len(components))
	for i, comp := range components {
		required[i] = comp.Marker
	}

	return &Calculator{
		ID:         meta.ID,
		Name:       "CAR-HEMATOTOX",
		Version:    meta.Version,
		Citation:   meta.Citation,
		Tier:       domain.TierRoutine,
		Required:   required,
		Thresholds: thresholds,
		Compute: func(labs domain.LabSnapshot) (*domain.ScoringResult, *domain.SkippedResult, error) {
			return computeAdditive(meta, thresholds, components, labs)
		},
	}
}
