// Package scoring implements the biomarker scoring library: independent,
// stateless calculators, each encoding one published clinical formula for
// cell-therapy adverse-event risk (CRS, ICANS, hemophagocytic syndromes).
//
// Each calculator is a self-describing registry entry: id, version,
// citation, required/optional fields, literature-defined thresholds, and a
// pure compute function. Calculators validate their own inputs: a missing
// required field or an out-of-range value yields a SkippedResult naming the
// cause, never a silent default.
package scoring

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/celltx-risk-engine/internal/domain"
)

// Calculator is one self-describing clinical formula.
type Calculator struct {
	ID       string
	Name     string
	Version  string
	Citation string
	Tier     domain.Tier

	Required []domain.Biomarker
	Optional []domain.Biomarker

	// Thresholds are the formula's published cut-points, fixed per version.
	Thresholds domain.Thresholds

	// Compute is a pure function of the snapshot. Expected conditions
	// (missing inputs, invalid ranges) come back as a SkippedResult; the
	// error return is reserved for unexpected internal faults, which the
	// orchestrator records under models_failed.
	Compute func(labs domain.LabSnapshot) (*domain.ScoringResult, *domain.SkippedResult, error)
}

// Registry holds all calculators in deterministic registration order.
type Registry struct {
	logger      *logrus.Logger
	calculators map[string]*Calculator
	order       []string
}

// NewRegistry creates a registry pre-loaded with the full scoring library.
func NewRegistry(logger *logrus.Logger) *Registry {
	r := &Registry{
		logger:      logger,
		calculators: make(map[string]*Calculator),
	}

	r.Register(newEASIX())
	r.Register(newSimplifiedEASIX())
	r.Register(newCARHematotox())
	r.Register(newModifiedEASIX())
	r.Register(newHScore())
	r.Register(newCRSCytokineModel())
	r.Register(newICANSEndothelialModel())

	logger.WithField("calculators", len(r.order)).Info("Scoring registry initialized")
	return r
}

// NewEmptyRegistry creates a registry with no calculators, for callers that
// compose their own model set.
func NewEmptyRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		logger:      logger,
		calculators: make(map[string]*Calculator),
	}
}

// Register adds a calculator. Re-registering an ID replaces the entry but
// keeps its original position, so iteration order stays stable.
func (r *Registry) Register(c *Calculator) {
	if _, exists := r.calculators[c.ID]; !exists {
		r.order = append(r.order, c.ID)
	}
	r.calculators[c.ID] = c
}

// Get returns the calculator with the given ID.
func (r *Registry) Get(id string) (*Calculator, error) {
	c, ok := r.calculators[id]
	if !ok {
		return nil, fmt.Errorf("unknown scoring model: %s", id)
	}
	return c, nil
}

// All returns every calculator in registration order.
func (r *Registry) All() []*Calculator {
	out := make([]*Calculator, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.calculators[id])
	}
	return out
}

// ByTier returns the calculators of one tier, in registration order.
func (r *Registry) ByTier(tier domain.Tier) []*Calculator {
	var out []*Calculator
	for _, id := range r.order {
		if c := r.calculators[id]; c.Tier == tier {
			out = append(out, c)
		}
	}
	return out
}

// modelMeta carries the identity stamped onto every result of one formula.
type modelMeta struct {
	ID       string
	Version  string
	Citation string
}

func (m modelMeta) skip(reason string, missing []string) *domain.SkippedResult {
	return &domain.SkippedResult{
		ModelID:       m.ID,
		Version:       m.Version,
		Citation:      m.Citation,
		MissingFields: missing,
		Reason:        reason,
	}
}

// collect gathers the required biomarkers, or explains why it cannot.
// It enforces the input contract shared by all calculators: every required
// field present, every value in its canonical unit, no negative values.
func collect(meta modelMeta, labs domain.LabSnapshot, required []domain.Biomarker) (map[domain.Biomarker]float64, *domain.SkippedResult) {
	if missing := labs.Missing(required...); len(missing) > 0 {
		err := &domain.MissingInputError{ModelID: meta.ID, Fields: missing}
		return nil, meta.skip(err.Error(), missing)
	}

	values := make(map[domain.Biomarker]float64, len(required))
	for _, marker := range required {
		lv, _ := labs.Get(marker)
		if canonical := domain.CanonicalUnits[marker]; lv.Unit != canonical {
			return nil, meta.skip(
				fmt.Sprintf("%s reported in %q, expected canonical unit %q (caller must pre-normalize)", marker, lv.Unit, canonical),
				nil)
		}
		if lv.Value < 0 {
			err := &domain.InvalidRangeError{
				ModelID: meta.ID,
				Field:   string(marker),
				Reason:  fmt.Sprintf("negative value %g: physiologically impossible", lv.Value),
			}
			return nil, meta.skip(err.Error(), nil)
		}
		values[marker] = lv.Value
	}
	return values, nil
}

// minPlateletDenominator is the floor (1e9/L) below which ratio formulas
// refuse to divide: the ratio is numerically meaningless and the patient
// state is outside the formulas' validated range.
const minPlateletDenominator = 1.0

// guardDenominator rejects zero/near-zero denominators instead of
// propagating infinity.
func guardDenominator(meta modelMeta, marker domain.Biomarker, value, floor float64) *domain.SkippedResult {
	if value < floor {
		err := &domain.InvalidRangeError{
			ModelID: meta.ID,
			Field:   string(marker),
			Reason:  fmt.Sprintf("denominator out of safe range: %g below floor %g", value, floor),
		}
		return meta.skip(err.Error(), nil)
	}
	return nil
}
