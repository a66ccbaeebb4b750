package bayes

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/celltx-risk-engine/internal/domain"
)

// Engine performs sequential evidence accrual. It is stateless: the accrual
// history is an externally-owned append-only log passed into every call, so
// persistence and lifecycle stay with the storage layer and the engine
// remains trivially testable.
type Engine struct {
	logger *logrus.Logger
}

// NewEngine creates a new accrual engine.
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{logger: logger}
}

// Accrue computes the posterior for one new cohort. The prior is the most
// recent estimate in the history when one exists, otherwise the base prior;
// each new posterior becomes the prior for the next cohort.
func (e *Engine) Accrue(base domain.PriorSpec, history []domain.PosteriorEstimate, cohort domain.Cohort) (*domain.PosteriorEstimate, error) {
	prior := base
	if n := len(history); n > 0 {
		prior = history[n-1].AsPrior()
	}

	estimate, err := ComputePosterior(prior, cohort)
	if err != nil {
		return nil, err
	}
	// Provenance of the base prior carries through the whole chain.
	estimate.Provenance = base.Provenance

	e.logger.WithFields(logrus.Fields{
		"cohort_id": cohort.ID,
		"events":    cohort.Events,
		"n":         cohort.N,
		"mean":      estimate.Mean,
		"ci_low":    estimate.CILow,
		"ci_high":   estimate.CIHigh,
	}).Info("Completed posterior accrual step")

	return estimate, nil
}

// Replay runs the full accrual sequence from a base prior. Cohorts are
// applied in order; the returned history has one estimate per cohort.
func (e *Engine) Replay(base domain.PriorSpec, cohorts []domain.Cohort) ([]domain.PosteriorEstimate, error) {
	history := make([]domain.PosteriorEstimate, 0, len(cohorts))
	for _, cohort := range cohorts {
		estimate, err := e.Accrue(base, history, cohort)
		if err != nil {
			return nil, fmt.Errorf("accruing cohort %s: %w", cohort.ID, err)
		}
		history = append(history, *estimate)
	}
	return history, nil
}

// SensitivityPoint is the final estimate of one accrual replay under a
// specific prior discount factor.
type SensitivityPoint struct {
	Discount float64                  `json:"discount"`
	Final    domain.PosteriorEstimate `json:"final"`
}

// SweepDiscounts produces an evenly spaced discount grid for sensitivity
// analysis.
func SweepDiscounts(min, max float64, steps int) ([]float64, error) {
	if steps < 2 {
		return nil, fmt.Errorf("discount sweep needs at least 2 steps, got %d", steps)
	}
	if min <= 0 || max > 1 || min >= max {
		return nil, fmt.Errorf("discount sweep range must satisfy 0 < min < max <= 1, got [%g, %g]", min, max)
	}
	grid := make([]float64, steps)
	for i := range grid {
		grid[i] = min + (max-min)*float64(i)/float64(steps-1)
	}
	return grid, nil
}

// SensitivityBand reruns the full accrual sequence under each discount in
// the grid, producing the band of final estimates. A conclusion that holds
// across the band does not hinge on the chosen prior weight.
func (e *Engine) SensitivityBand(baseRate, effectiveN float64, discounts []float64, cohorts []domain.Cohort) ([]SensitivityPoint, error) {
	if len(cohorts) == 0 {
		return nil, fmt.Errorf("sensitivity band requires at least one cohort")
	}

	band := make([]SensitivityPoint, 0, len(discounts))
	for _, discount := range discounts {
		prior, err := DiscountedPrior(baseRate, discount, effectiveN)
		if err != nil {
			return nil, err
		}
		history, err := e.Replay(prior, cohorts)
		if err != nil {
			return nil, err
		}
		band = append(band, SensitivityPoint{
			Discount: discount,
			Final:    history[len(history)-1],
		})
	}
	return band, nil
}

// MonitorResult answers one sequential-monitoring query against a
// pre-specified stopping boundary. Interim looks go through this query
// rather than being treated as fresh, uncorrected significance claims.
type MonitorResult struct {
	Threshold             float64 `json:"threshold"`
	StoppingBoundary      float64 `json:"stopping_boundary"`
	ExceedanceProbability float64 `json:"exceedance_probability"`
	BoundaryCrossed       bool    `json:"boundary_crossed"`
	Alpha                 float64 `json:"alpha"`
	Beta                  float64 `json:"beta"`
	Provenance            string  `json:"provenance"`
}

// Monitor evaluates whether the posterior probability that the rate exceeds
// the clinical threshold has crossed the stopping boundary.
func (e *Engine) Monitor(estimate domain.PosteriorEstimate, threshold, boundary float64) (*MonitorResult, error) {
	if boundary <= 0 || boundary >= 1 {
		return nil, fmt.Errorf("stopping boundary must be in (0,1), got %g", boundary)
	}

	exceedance, err := ExceedanceProbability(estimate.Alpha, estimate.Beta, threshold)
	if err != nil {
		return nil, err
	}

	result := &MonitorResult{
		Threshold:             threshold,
		StoppingBoundary:      boundary,
		ExceedanceProbability: exceedance,
		BoundaryCrossed:       exceedance >= boundary,
		Alpha:                 estimate.Alpha,
		Beta:                  estimate.Beta,
		Provenance:            estimate.Provenance,
	}

	if result.BoundaryCrossed {
		e.logger.WithFields(logrus.Fields{
			"threshold":  threshold,
			"boundary":   boundary,
			"exceedance": exceedance,
		}).Warn("Posterior exceedance probability crossed stopping boundary")
	}

	return result, nil
}
