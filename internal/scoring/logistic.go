package scoring

import (
	"fmt"
	"math"

	"github.com/celltx-risk-engine/internal/domain"
)

const (
	citationTeachey = "Teachey DT, et al. Identification of predictive biomarkers for cytokine release syndrome after chimeric antigen receptor T-cell therapy for acute lymphoblastic leukemia. Cancer Discov. 2016;6(6):664-679."
	citationGust    = "Gust J, et al. Endothelial activation and blood-brain barrier disruption in neurotoxicity after adoptive immunotherapy with CD19 CAR-T cells. Cancer Discov. 2017;7(12):1404-1419."
)

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// logisticTerm is one log-transformed regression term of a cytokine model.
type logisticTerm struct {
	Marker      domain.Biomarker
	Coefficient float64
}

// computeLogistic evaluates intercept + sum(coef * ln(value)) through the
// logistic function. Log transforms demand strictly positive inputs, so a
// zero concentration is an invalid-range skip, not a silent epsilon.
func computeLogistic(meta modelMeta, thresholds domain.Thresholds, intercept float64, terms []logisticTerm, labs domain.LabSnapshot) (*domain.ScoringResult, *domain.SkippedResult, error) {
	markers := make([]domain.Biomarker, len(terms))
	for i, term := range terms {
		markers[i] = term.Marker
	}

	values, skipped := collect(meta, labs, markers)
	if skipped != nil {
		return nil, skipped, nil
	}

	linear := intercept
	breakdown := make(map[string]float64, len(terms))
	for _, term := range terms {
		v := values[term.Marker]
		if v <= 0 {
			return nil, meta.skip(
				fmt.Sprintf("%s is non-positive (%g): log-transformed model undefined", term.Marker, v),
				nil), nil
		}
		contribution := term.Coefficient * math.Log(v)
		breakdown[string(term.Marker)] = contribution
		linear += contribution
	}

	score := sigmoid(linear)
	return &domain.ScoringResult{
		ModelID:    meta.ID,
		Version:    meta.Version,
		Score:      score,
		RiskLevel:  thresholds.Classify(score),
		Confidence: 1.0,
		Citation:   meta.Citation,
		Thresholds: thresholds,
		Components: breakdown,
	}, nil, nil
}

// newCRSCytokineModel builds the three-cytokine logistic predictor of
// severe CRS (IFN-gamma, sgp130, IL1RA), requiring a cytokine panel.
func newCRSCytokineModel() *Calculator {
	meta := modelMeta{ID: "crs_cytokine", Version: "2016.1", Citation: citationTeachey}
	thresholds := domain.Thresholds{Moderate: 0.30, High: 0.50}

	intercept := -36.0
	terms := []logisticTerm{
		{Marker: domain.IFNGamma, Coefficient: 1.10},
		{Marker: domain.SGP130, Coefficient: 2.40},
		{Marker: domain.IL1RA, Coefficient: 0.30},
	}

	return &Calculator{
		ID:         meta.ID,
		Name:       "Severe CRS cytokine model",
		Version:    meta.Version,
		Citation:   meta.Citation,
		Tier:       domain.TierCytokine,
		Required:   []domain.Biomarker{domain.IFNGamma, domain.SGP130, domain.IL1RA},
		Thresholds: thresholds,
		Compute: func(labs domain.LabSnapshot) (*domain.ScoringResult, *domain.SkippedResult, error) {
			return computeLogistic(meta, thresholds, intercept, terms, labs)
		},
	}
}

// newICANSEndothelialModel builds the endothelial-activation logistic model
// for severe neurotoxicity: IL-6 and ferritin load against platelet count
// (higher platelets protective, hence the negative coefficient).
func newICANSEndothelialModel() *Calculator {
	meta := modelMeta{ID: "icans_endothelial", Version: "2017.1", Citation: citationGust}
	thresholds := domain.Thresholds{Moderate: 0.20, High: 0.40}

	intercept := -7.2
	terms := []logisticTerm{
		{Marker: domain.IL6, Coefficient: 0.68},
		{Marker: domain.Ferritin, Coefficient: 0.52},
		{Marker: domain.Platelets, Coefficient: -0.95},
	}

	return &Calculator{
		ID:         meta.ID,
		Name:       "ICANS endothelial activation model",
		Version:    meta.Version,
		Citation:   meta.Citation,
		Tier:       domain.TierCytokine,
		Required:   []domain.Biomarker{domain.IL6, domain.Ferritin, domain.Platelets},
		Thresholds: thresholds,
		Compute: func(labs domain.LabSnapshot) (*domain.ScoringResult, *domain.SkippedResult, error) {
			// The platelet term divides in log space; the same safe-range
			// floor as the ratio formulas applies.
			if lv, ok := labs.Get(domain.Platelets); ok && lv.Value < minPlateletDenominator {
				return nil, guardDenominator(meta, domain.Platelets, lv.Value, minPlateletDenominator), nil
			}
			return computeLogistic(meta, thresholds, intercept, terms, labs)
		},
	}
}
