package scoring

import (
	"github.com/celltx-risk-engine/internal/domain"
)

// The EASIX family: ratio formulas built from routine labs, originally
// derived as endothelial activation markers and since validated as
// pre-infusion predictors of severe CRS and ICANS after CAR-T therapy.

const (
	citationEASIX   = "Luft T, et al. EASIX in patients with acute graft-versus-host disease: a retrospective cohort analysis. Lancet Haematol. 2017;4(9):e414-e423."
	citationPennisi = "Pennisi M, et al. Modified EASIX predicts severe cytokine release syndrome and neurotoxicity after chimeric antigen receptor (CAR) T cells. Blood Adv. 2021;5(17):3397-3406."
)

// newEASIX builds the Endothelial Activation and Stress Index calculator:
// LDH [U/L] x creatinine [mg/dL] / platelets [1e9/L].
func newEASIX() *Calculator {
	meta := modelMeta{ID: "easix", Version: "2017.1", Citation: citationEASIX}
	required := []domain.Biomarker{domain.LDH, domain.Creatinine, domain.Platelets}
	thresholds := domain.Thresholds{Moderate: 1.6, High: 3.2}

	return &Calculator{
		ID:         meta.ID,
		Name:       "Endothelial Activation and Stress Index",
		Version:    meta.Version,
		Citation:   meta.Citation,
		Tier:       domain.TierRoutine,
		Required:   required,
		Thresholds: thresholds,
		Compute: func(labs domain.LabSnapshot) (*domain.ScoringResult, *domain.SkippedResult, error) {
			values, skipped := collect(meta, labs, required)
			if skipped != nil {
				return nil, skipped, nil
			}
			if skipped := guardDenominator(meta, domain.Platelets, values[domain.Platelets], minPlateletDenominator); skipped != nil {
				return nil, skipped, nil
			}

			score := values[domain.LDH] * values[domain.Creatinine] / values[domain.Platelets]
			return &domain.ScoringResult{
				ModelID:    meta.ID,
				Version:    meta.Version,
				Score:      score,
				RiskLevel:  thresholds.Classify(score),
				Confidence: 1.0,
				Citation:   meta.Citation,
				Thresholds: thresholds,
				Components: map[string]float64{
					"ldh":        values[domain.LDH],
					"creatinine": values[domain.Creatinine],
					"platelets":  values[domain.Platelets],
				},
			}, nil, nil
		},
	}
}

// newSimplifiedEASIX builds s-EASIX, the creatinine-free variant:
// LDH [U/L] / platelets [1e9/L].
func newSimplifiedEASIX() *Calculator {
	meta := modelMeta{ID: "seasix", Version: "2021.1", Citation: citationPennisi}
	required := []domain.Biomarker{domain.LDH, domain.Platelets}
	thresholds := domain.Thresholds{Moderate: 1.3, High: 2.6}

	return &Calculator{
		ID:         meta.ID,
		Name:       "Simplified EASIX",
		Version:    meta.Version,
		Citation:   meta.Citation,
		Tier:       domain.TierRoutine,
		Required:   required,
		Thresholds: thresholds,
		Compute: func(labs domain.LabSnapshot) (*domain.ScoringResult, *domain.SkippedResult, error) {
			values, skipped := collect(meta, labs, required)
			if skipped != nil {
				return nil, skipped, nil
			}
			if skipped := guardDenominator(meta, domain.Platelets, values[domain.Platelets], minPlateletDenominator); skipped != nil {
				return nil, skipped, nil
			}

			score := values[domain.LDH] / values[domain.Platelets]
			return &domain.ScoringResult{
				ModelID:    meta.ID,
				Version:    meta.Version,
				Score:      score,
				RiskLevel:  thresholds.Classify(score),
				Confidence: 1.0,
				Citation:   meta.Citation,
				Thresholds: thresholds,
				Components: map[string]float64{
					"ldh":       values[domain.LDH],
					"platelets": values[domain.Platelets],
				},
			}, nil, nil
		},
	}
}

// newModifiedEASIX builds m-EASIX, which swaps creatinine for CRP to weight
// systemic inflammation: LDH [U/L] x CRP [mg/L] / platelets [1e9/L].
// Requires an inflammatory panel, so it sits one tier above EASIX.
func newModifiedEASIX() *Calculator {
	meta := modelMeta{ID: "measix", Version: "2021.1", Citation: citationPennisi}
	required := []domain.Biomarker{domain.LDH, domain.CRP, domain.Platelets}
	thresholds := domain.Thresholds{Moderate: 3.5, High: 7.3}

	return &Calculator{
		ID:         meta.ID,
		Name:       "Modified EASIX",
		Version:    meta.Version,
		Citation:   meta.Citation,
		Tier:       domain.TierInflammatory,
		Required:   required,
		Thresholds: thresholds,
		Compute: func(labs domain.LabSnapshot) (*domain.ScoringResult, *domain.SkippedResult, error) {
			values, skipped := collect(meta, labs, required)
			if skipped != nil {
				return nil, skipped, nil
			}
			if skipped := guardDenominator(meta, domain.Platelets, values[domain.Platelets], minPlateletDenominator); skipped != nil {
				return nil, skipped, nil
			}

			score := values[domain.LDH] * values[domain.CRP] / values[domain.Platelets]
			return &domain.ScoringResult{
				ModelID:    meta.ID,
				Version:    meta.Version,
				Score:      score,
				RiskLevel:  thresholds.Classify(score),
				Confidence: 1.0,
				Citation:   meta.Citation,
				Thresholds: thresholds,
				Components: map[string]float64{
					"ldh":       values[domain.LDH],
					"crp":       values[domain.CRP],
					"platelets": values[domain.Platelets],
				},
			}, nil, nil
		},
	}
}
