// Package bayes implements Beta-Binomial conjugate inference over
// population adverse-event rates: informative discounted priors, sequential
// re-estimation as new trial cohorts accrue, exact-quantile credible
// intervals, random-effects pooling across heterogeneous sources, and
// boundary-aware sequential monitoring queries.
package bayes

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/celltx-risk-engine/internal/domain"
)

// Credible interval bounds. Intervals are always computed from the exact
// Beta inverse CDF: the normal approximation is invalid whenever either
// shape parameter is small, which is the norm in rare-event clinical data.
const (
	lowerQuantile = 0.025
	upperQuantile = 0.975
)

// ComputePosterior combines a prior with one observed cohort:
// alpha' = alpha + events, beta' = beta + (n - events).
func ComputePosterior(prior domain.PriorSpec, cohort domain.Cohort) (*domain.PosteriorEstimate, error) {
	if err := prior.Validate(); err != nil {
		return nil, err
	}
	if err := cohort.Validate(); err != nil {
		return nil, err
	}

	alpha := prior.Alpha + float64(cohort.Events)
	beta := prior.Beta + float64(cohort.N-cohort.Events)

	dist := distuv.Beta{Alpha: alpha, Beta: beta}
	return &domain.PosteriorEstimate{
		Alpha:      alpha,
		Beta:       beta,
		Mean:       alpha / (alpha + beta),
		CILow:      dist.Quantile(lowerQuantile),
		CIHigh:     dist.Quantile(upperQuantile),
		CohortID:   cohort.ID,
		Events:     cohort.Events,
		N:          cohort.N,
		Provenance: prior.Provenance,
	}, nil
}

// PriorEstimate expresses a bare prior as an estimate, for monitoring
// queries issued before any evidence has accrued.
func PriorEstimate(prior domain.PriorSpec) (*domain.PosteriorEstimate, error) {
	if err := prior.Validate(); err != nil {
		return nil, err
	}
	dist := distuv.Beta{Alpha: prior.Alpha, Beta: prior.Beta}
	return &domain.PosteriorEstimate{
		Alpha:      prior.Alpha,
		Beta:       prior.Beta,
		Mean:       prior.Alpha / (prior.Alpha + prior.Beta),
		CILow:      dist.Quantile(lowerQuantile),
		CIHigh:     dist.Quantile(upperQuantile),
		Provenance: prior.Provenance,
	}, nil
}

// CredibleInterval returns the exact central interval of Beta(alpha, beta)
// at the given level (e.g. 0.95).
func CredibleInterval(alpha, beta, level float64) (low, high float64, err error) {
	if err := (domain.PriorSpec{Alpha: alpha, Beta: beta}).Validate(); err != nil {
		return 0, 0, err
	}
	if level <= 0 || level >= 1 {
		return 0, 0, fmt.Errorf("credible level must be in (0,1), got %g", level)
	}
	tail := (1 - level) / 2
	dist := distuv.Beta{Alpha: alpha, Beta: beta}
	return dist.Quantile(tail), dist.Quantile(1 - tail), nil
}

// ExceedanceProbability returns P(rate > threshold) under Beta(alpha, beta),
// from the exact CDF.
func ExceedanceProbability(alpha, beta, threshold float64) (float64, error) {
	if err := (domain.PriorSpec{Alpha: alpha, Beta: beta}).Validate(); err != nil {
		return 0, err
	}
	if threshold < 0 || threshold > 1 {
		return 0, fmt.Errorf("threshold must be in [0,1], got %g", threshold)
	}
	dist := distuv.Beta{Alpha: alpha, Beta: beta}
	return 1 - dist.CDF(threshold), nil
}

// DiscountedPrior builds an informative prior by discounting an external
// empirical rate. The discount factor is an explicit parameter so it can be
// swept in sensitivity analysis; it is never baked into a formula.
//
//	alpha = rate x discount x effectiveN
//	beta  = effectiveN - alpha
//
// effectiveN is the prior's weight expressed as pseudo-observations.
func DiscountedPrior(baseRate, discount, effectiveN float64) (domain.PriorSpec, error) {
	if baseRate <= 0 || baseRate >= 1 {
		return domain.PriorSpec{}, &domain.PriorSpecificationError{
			Reason: fmt.Sprintf("base rate must be in (0,1), got %g", baseRate),
		}
	}
	if discount <= 0 || discount > 1 {
		return domain.PriorSpec{}, &domain.PriorSpecificationError{
			Reason: fmt.Sprintf("discount factor must be in (0,1], got %g", discount),
		}
	}
	if effectiveN <= 0 {
		return domain.PriorSpec{}, &domain.PriorSpecificationError{
			Reason: fmt.Sprintf("effective sample size must be positive, got %g", effectiveN),
		}
	}

	alpha := baseRate * discount * effectiveN
	spec := domain.PriorSpec{
		Alpha: alpha,
		Beta:  effectiveN - alpha,
		Provenance: fmt.Sprintf("external rate %.3f x discount %.2f, effective n %.1f",
			baseRate, discount, effectiveN),
	}
	if err := spec.Validate(); err != nil {
		return domain.PriorSpec{}, err
	}
	return spec, nil
}
