package domain

import (
	"fmt"
	"math"
	"sort"
)

// PriorSpec holds the Beta shape parameters representing prior belief about
// a population event rate, annotated with its provenance. A PriorSpec is
// fixed at model-definition time and never mutated; new evidence only
// produces new posteriors.
type PriorSpec struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`

	// Provenance documents how the prior was built (e.g. "oncology CRS rate
	// 0.140 x discount 1.00, effective n 1.5"). Carried verbatim into every
	// downstream estimate.
	Provenance string `json:"provenance"`
}

// Validate rejects malformed shape parameters before any inference occurs.
func (p PriorSpec) Validate() error {
	if p.Alpha <= 0 || p.Beta <= 0 {
		return &PriorSpecificationError{
			Reason: fmt.Sprintf("beta shape parameters must be positive, got alpha=%g beta=%g", p.Alpha, p.Beta),
		}
	}
	if math.IsNaN(p.Alpha) || math.IsNaN(p.Beta) || math.IsInf(p.Alpha, 0) || math.IsInf(p.Beta, 0) {
		return &PriorSpecificationError{Reason: "beta shape parameters must be finite"}
	}
	return nil
}

// Cohort is one newly observed batch of trial evidence.
type Cohort struct {
	ID     string `json:"id"`
	Events int    `json:"events"`
	N      int    `json:"n"`
	Source string `json:"source,omitempty"`
}

// Validate checks the cohort counts are coherent.
func (c Cohort) Validate() error {
	if c.N <= 0 {
		return fmt.Errorf("cohort validation: n must be positive, got %d", c.N)
	}
	if c.Events < 0 || c.Events > c.N {
		return fmt.Errorf("cohort validation: events must be in [0, n], got %d of %d", c.Events, c.N)
	}
	return nil
}

// PosteriorEstimate is the result of combining a prior with one observed
// cohort. The credible interval is always computed from the exact Beta
// quantile function, never a normal approximation. Estimates are recomputed
// fresh at each accrual step; the sequence over time forms an append-only
// history that is never edited retroactively.
type PosteriorEstimate struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Mean  float64 `json:"mean"`

	// Exact two-sided 95% credible interval.
	CILow  float64 `json:"ci_low"`
	CIHigh float64 `json:"ci_high"`

	CohortID string `json:"cohort_id,omitempty"`
	Events   int    `json:"events"`
	N        int    `json:"n"`

	Provenance string `json:"provenance"`
}

// AsPrior re-expresses the posterior as the prior for the next accrual step.
func (p PosteriorEstimate) AsPrior() PriorSpec {
	return PriorSpec{Alpha: p.Alpha, Beta: p.Beta, Provenance: p.Provenance}
}

// MitigationSpec describes one candidate risk-reducing intervention with a
// lognormal-distributed relative risk and its mechanistic overlap with
// other interventions.
type MitigationSpec struct {
	ID              string  `json:"id"`
	TargetCondition string  `json:"target_condition"`
	RRMedian        float64 `json:"rr_median"`
	CILow           float64 `json:"ci_low"`
	CIHigh          float64 `json:"ci_high"`

	// Correlation holds pairwise mechanistic-overlap coefficients in [0,1]
	// keyed by the other intervention's ID. Absent pairs default to 0
	// (independence).
	Correlation map[string]float64 `json:"correlation,omitempty"`

	Citation string `json:"citation,omitempty"`
}

// Validate rejects a spec whose parameters leave the combination domain.
func (m MitigationSpec) Validate() error {
	if m.ID == "" {
		return &CombinationDomainError{Reason: "mitigation spec requires an id"}
	}
	if m.RRMedian <= 0 {
		return &CombinationDomainError{Reason: fmt.Sprintf("%s: relative risk must be positive, got %g", m.ID, m.RRMedian)}
	}
	if m.CILow <= 0 || m.CIHigh <= 0 || m.CILow > m.CIHigh {
		return &CombinationDomainError{Reason: fmt.Sprintf("%s: confidence interval [%g, %g] is not a valid positive interval", m.ID, m.CILow, m.CIHigh)}
	}
	if m.RRMedian < m.CILow || m.RRMedian > m.CIHigh {
		return &CombinationDomainError{Reason: fmt.Sprintf("%s: rr_median %g lies outside its interval [%g, %g]", m.ID, m.RRMedian, m.CILow, m.CIHigh)}
	}
	for other, rho := range m.Correlation {
		if rho < 0 || rho > 1 {
			return &CombinationDomainError{Reason: fmt.Sprintf("%s: correlation with %s must be in [0,1], got %g", m.ID, other, rho)}
		}
	}
	return nil
}

// LogSE derives the lognormal standard error from the published 95% CI.
func (m MitigationSpec) LogSE() float64 {
	return (math.Log(m.CIHigh) - math.Log(m.CILow)) / 3.92
}

// TailProbability is one decision-relevant exceedance probability of the
// mitigated-risk distribution.
type TailProbability struct {
	Threshold   float64 `json:"threshold"`
	Probability float64 `json:"probability"`
}

// OrderingRange is the spread of the combined RR point estimate across
// pairwise merge orderings. Greedy combination is order-sensitive, so for
// 3+ interventions the range is reported rather than hidden.
type OrderingRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MitigationResult is the mitigated-risk projection for one or more
// combined interventions applied to a baseline posterior.
type MitigationResult struct {
	ConditionID string `json:"condition_id"`

	// Combined relative risk distribution (empirical, from Monte Carlo).
	CombinedRRMedian float64 `json:"combined_rr_median"`
	CombinedRRLow    float64 `json:"combined_rr_ci_low"`
	CombinedRRHigh   float64 `json:"combined_rr_ci_high"`

	// Mitigated absolute risk distribution.
	MitigatedMedian float64 `json:"mitigated_median"`
	MitigatedLow    float64 `json:"mitigated_ci_low"`
	MitigatedHigh   float64 `json:"mitigated_ci_high"`

	TailProbabilities []TailProbability `json:"tail_probabilities,omitempty"`

	// OrderingSensitivity is present whenever 3+ interventions combine.
	OrderingSensitivity *OrderingRange `json:"ordering_sensitivity,omitempty"`

	Samples int    `json:"samples"`
	Seed    uint64 `json:"seed"`

	// Method names the interpolation rule used; Disclaimer flags it as a
	// heuristic pending combination-trial validation. Both are part of the
	// response contract.
	Method     string `json:"method"`
	Disclaimer string `json:"disclaimer"`

	BaselineProvenance string   `json:"baseline_provenance"`
	MitigationIDs      []string `json:"mitigation_ids"`
}

// SortedTailThresholds returns the caller-supplied thresholds in ascending
// order so reported tails are deterministic.
func SortedTailThresholds(thresholds []float64) []float64 {
	out := append([]float64(nil), thresholds...)
	sort.Float64s(out)
	return out
}
