package scoring

import (
	"github.com/celltx-risk-engine/internal/domain"
)

const citationHScore = "Fardet L, et al. Development and validation of the HScore, a score for the diagnosis of reactive hemophagocytic syndrome. Arthritis Rheumatol. 2014;66(9):2613-2620."

// newHScore builds the HScore calculator for reactive hemophagocytic
// syndrome: nine weighted components, maximum 337 points. A total of 169
// carried 93% sensitivity / 86% specificity in the derivation cohort, and
// scores above ~250 imply >99% probability of the syndrome.
func newHScore() *Calculator {
	meta := modelMeta{ID: "hscore", Version: "2014.1", Citation: citationHScore}
	thresholds := domain.Thresholds{Moderate: 90, High: 169}

	components := []additiveComponent{
		{
			Marker:    domain.Temperature,
			MaxPoints: 49,
			Points: func(v float64) float64 {
				switch {
				case v > 39.4:
					return 49
				case v >= 38.4:
					return 33
				default:
					return 0
				}
			},
		},
		{
			// 0 = none, 1 = hepatomegaly or splenomegaly, 2 = both.
			Marker:    domain.Organomegaly,
			MaxPoints: 38,
			Points: func(v float64) float64 {
				switch {
				case v >= 2:
					return 38
				case v >= 1:
					return 23
				default:
					return 0
				}
			},
		},
		{
			// Number of cytopenic lineages (0-3).
			Marker:    domain.CytopeniaLines,
			MaxPoints: 34,
			Points: func(v float64) float64 {
				switch {
				case v >= 3:
					return 34
				case v >= 2:
					return 24
				default:
					return 0
				}
			},
		},
		{
			Marker:    domain.Ferritin,
			MaxPoints: 50,
			Points: func(v float64) float64 {
				switch {
				case v > 6000:
					return 50
				case v >= 2000:
					return 35
				default:
					return 0
				}
			},
		},
		{
			Marker:    domain.Triglycerides,
			MaxPoints: 64,
			Points: func(v float64) float64 {
				switch {
				case v > 4:
					return 64
				case v >= 1.5:
					return 44
				default:
					return 0
				}
			},
		},
		{
			Marker:    domain.Fibrinogen,
			MaxPoints: 30,
			Points: func(v float64) float64 {
				if v <= 2.5 {
					return 30
				}
				return 0
			},
		},
		{
			Marker:    domain.AST,
			MaxPoints: 19,
			Points: func(v float64) float64 {
				if v >= 30 {
					return 19
				}
				return 0
			},
		},
		{
			// Hemophagocytosis on marrow aspirate, 0/1.
			Marker:    domain.Hemophagocytosis,
			MaxPoints: 35,
			Points: func(v float64) float64 {
				if v >= 1 {
					return 35
				}
				return 0
			},
		},
		{
			// Known underlying immunosuppression, 0/1.
			Marker:    domain.Immunosuppressed,
			MaxPoints: 18,
			Points: func(v float64) float64 {
				if v >= 1 {
					return 18
				}
				return 0
			},
		},
	}

	required := make([]domain.Biomarker, len(components))
	for i, comp := range components {
		required[i] = comp.Marker
	}

	return &Calculator{
		ID:         meta.ID,
		Name:       "HScore (reactive hemophagocytic syndrome)",
		Version:    meta.Version,
		Citation:   meta.Citation,
		Tier:       domain.TierInflammatory,
		Required:   required,
		Thresholds: thresholds,
		Compute: func(labs domain.LabSnapshot) (*domain.ScoringResult, *domain.SkippedResult, error) {
			return computeAdditive(meta, thresholds, components, labs)
		},
	}
}
