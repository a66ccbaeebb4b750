package mitigation

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/celltx-risk-engine/internal/domain"
)

// Combiner projects mitigated-risk distributions. It holds no per-request
// state; every projection is deterministic given the request and its seed.
type Combiner struct {
	logger         *logrus.Logger
	minSamples     int
	defaultSamples int
	defaultSeed    uint64
	defaultMethod  string
}

// NewCombiner creates a combiner with the configured Monte Carlo floor.
func NewCombiner(logger *logrus.Logger, cfg domain.MitigationConfig) *Combiner {
	return &Combiner{
		logger:         logger,
		minSamples:     cfg.MinSamples,
		defaultSamples: cfg.DefaultSamples,
		defaultSeed:    cfg.DefaultSeed,
		defaultMethod:  cfg.DefaultMethod,
	}
}

// Request is one mitigation projection.
type Request struct {
	ConditionID string
	Baseline    domain.PosteriorEstimate
	Mitigations []domain.MitigationSpec

	// Samples defaults to the configured count; requests below the
	// configured minimum are rejected, not silently padded.
	Samples int
	Seed    uint64

	// Method selects the interpolation rule ("geometric" by default).
	Method string

	TailThresholds []float64
}

// Project draws the mitigated-risk distribution: exact Beta samples of the
// baseline, lognormal samples of each relative risk, per-sample correlated
// combination, and empirical summaries of the result.
func (c *Combiner) Project(req Request) (*domain.MitigationResult, error) {
	method := req.Method
	if method == "" {
		method = c.defaultMethod
	}
	rule, err := RuleByName(method)
	if err != nil {
		return nil, &domain.CombinationDomainError{Reason: err.Error()}
	}

	baselinePrior := domain.PriorSpec{Alpha: req.Baseline.Alpha, Beta: req.Baseline.Beta}
	if err := baselinePrior.Validate(); err != nil {
		return nil, err
	}

	if len(req.Mitigations) == 0 {
		return nil, &domain.CombinationDomainError{Reason: "at least one mitigation spec is required"}
	}
	for _, spec := range req.Mitigations {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}

	samples := req.Samples
	if samples == 0 {
		samples = c.defaultSamples
	}
	if samples < c.minSamples {
		return nil, &domain.CombinationDomainError{
			Reason: fmt.Sprintf("sample count %d below configured minimum %d", samples, c.minSamples),
		}
	}

	seed := req.Seed
	if seed == 0 {
		seed = c.defaultSeed
	}

	// Sort specs by ID so draw order, and therefore the whole projection,
	// is deterministic regardless of request ordering.
	specs := append([]domain.MitigationSpec(nil), req.Mitigations...)
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	for i := 1; i < len(specs); i++ {
		if specs[i].ID == specs[i-1].ID {
			return nil, &domain.CombinationDomainError{Reason: "duplicate mitigation id: " + specs[i].ID}
		}
	}

	rho := correlationMatrix(specs)
	plan := greedyPlan(specs, rho)

	rng := rand.New(rand.NewSource(seed))
	baselineDist := distuv.Beta{Alpha: req.Baseline.Alpha, Beta: req.Baseline.Beta, Src: rng}
	rrDists := make([]distuv.LogNormal, len(specs))
	for i, spec := range specs {
		rrDists[i] = distuv.LogNormal{Mu: math.Log(spec.RRMedian), Sigma: spec.LogSE(), Src: rng}
	}

	combinedSamples := make([]float64, samples)
	mitigatedSamples := make([]float64, samples)
	draws := make([]float64, len(specs))

	for s := 0; s < samples; s++ {
		baseline := baselineDist.Rand()
		for i := range rrDists {
			draws[i] = rrDists[i].Rand()
		}
		combined := plan.apply(rule, draws)
		combinedSamples[s] = combined
		mitigatedSamples[s] = math.Min(1, baseline*combined)
	}

	sort.Float64s(combinedSamples)
	sort.Float64s(mitigatedSamples)

	result := &domain.MitigationResult{
		ConditionID:        req.ConditionID,
		CombinedRRMedian:   stat.Quantile(0.5, stat.Empirical, combinedSamples, nil),
		CombinedRRLow:      stat.Quantile(0.025, stat.Empirical, combinedSamples, nil),
		CombinedRRHigh:     stat.Quantile(0.975, stat.Empirical, combinedSamples, nil),
		MitigatedMedian:    stat.Quantile(0.5, stat.Empirical, mitigatedSamples, nil),
		MitigatedLow:       stat.Quantile(0.025, stat.Empirical, mitigatedSamples, nil),
		MitigatedHigh:      stat.Quantile(0.975, stat.Empirical, mitigatedSamples, nil),
		Samples:            samples,
		Seed:               seed,
		Method:             rule.Name(),
		Disclaimer:         HeuristicDisclaimer,
		BaselineProvenance: req.Baseline.Provenance,
	}

	for _, spec := range specs {
		result.MitigationIDs = append(result.MitigationIDs, spec.ID)
	}

	for _, threshold := range domain.SortedTailThresholds(req.TailThresholds) {
		result.TailProbabilities = append(result.TailProbabilities, domain.TailProbability{
			Threshold:   threshold,
			Probability: exceedanceFraction(mitigatedSamples, threshold),
		})
	}

	// Greedy pairwise folding is order-sensitive: for 3+ interventions the
	// spread across merge orderings is a first-class output.
	if len(specs) >= 3 {
		r := orderingRange(specs, rho, rule)
		result.OrderingSensitivity = &r
	}

	c.logger.WithFields(logrus.Fields{
		"condition":   req.ConditionID,
		"mitigations": len(specs),
		"samples":     samples,
		"method":      rule.Name(),
		"median":      result.MitigatedMedian,
	}).Info("Completed mitigation projection")

	return result, nil
}

// exceedanceFraction computes P(x > threshold) over sorted samples.
func exceedanceFraction(sorted []float64, threshold float64) float64 {
	idx := sort.SearchFloat64s(sorted, threshold)
	// Skip ties so the probability is strictly "greater than".
	for idx < len(sorted) && sorted[idx] == threshold {
		idx++
	}
	return float64(len(sorted)-idx) / float64(len(sorted))
}

// correlationMatrix builds the symmetric pairwise overlap matrix, taking
// the max when both specs declare the pair and defaulting absent pairs to 0.
func correlationMatrix(specs []domain.MitigationSpec) [][]float64 {
	n := len(specs)
	rho := make([][]float64, n)
	for i := range rho {
		rho[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := specs[i].Correlation[specs[j].ID]
			if back := specs[j].Correlation[specs[i].ID]; back > r {
				r = back
			}
			rho[i][j] = r
			rho[j][i] = r
		}
	}
	return rho
}

// mergeStep combines two active nodes under a fixed rho.
type mergeStep struct {
	a, b int
	rho  float64
}

// mergePlan is the fixed fold sequence applied to every Monte Carlo sample.
type mergePlan struct {
	n     int
	steps []mergeStep
}

// apply folds the drawn RR values through the plan. Node values live in a
// scratch slice indexed by original position; each step writes the merged
// value into slot a.
func (p mergePlan) apply(rule CombinationRule, draws []float64) float64 {
	if p.n == 1 {
		return draws[0]
	}
	values := append([]float64(nil), draws...)
	last := 0
	for _, step := range p.steps {
		values[step.a] = rule.Combine(values[step.a], values[step.b], step.rho)
		last = step.a
	}
	return values[last]
}

// greedyPlan merges the most-correlated pair first, replaces it with a
// synthetic combined node, and repeats (O(n^2) pairs per round). The
// synthetic node's correlation with each remaining node is the max of its
// constituents' correlations: merging never shrinks declared overlap.
func greedyPlan(specs []domain.MitigationSpec, rho [][]float64) mergePlan {
	n := len(specs)
	plan := mergePlan{n: n}
	if n < 2 {
		return plan
	}

	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = append([]float64(nil), rho[i]...)
	}
	active := make([]bool, n)
	for i := range active {
		active[i] = true
	}

	for remaining := n; remaining > 1; remaining-- {
		bestA, bestB, bestRho := -1, -1, -1.0
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if corr[i][j] > bestRho {
					bestA, bestB, bestRho = i, j, corr[i][j]
				}
			}
		}

		plan.steps = append(plan.steps, mergeStep{a: bestA, b: bestB, rho: bestRho})
		active[bestB] = false
		for k := 0; k < n; k++ {
			if k == bestA || !active[k] {
				continue
			}
			merged := math.Max(corr[bestA][k], corr[bestB][k])
			corr[bestA][k] = merged
			corr[k][bestA] = merged
		}
	}
	return plan
}

// orderingRange reports the spread of the combined RR point estimate (from
// the published medians) across merge orderings. Up to six interventions
// every pairwise merge tree is enumerated; beyond that the spread covers
// the greedy, reverse-greedy, and strongest-first heuristics only.
func orderingRange(specs []domain.MitigationSpec, rho [][]float64, rule CombinationRule) domain.OrderingRange {
	medians := make([]float64, len(specs))
	for i, spec := range specs {
		medians[i] = spec.RRMedian
	}

	if len(specs) > 6 {
		return heuristicOrderingRange(specs, rho, rule, medians)
	}

	min, max := math.Inf(1), math.Inf(-1)
	var recurse func(values []float64, corr [][]float64)
	recurse = func(values []float64, corr [][]float64) {
		n := len(values)
		if n == 1 {
			if values[0] < min {
				min = values[0]
			}
			if values[0] > max {
				max = values[0]
			}
			return
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				nextValues := make([]float64, 0, n-1)
				nextCorr := make([][]float64, 0, n-1)
				keep := make([]int, 0, n-1)
				for k := 0; k < n; k++ {
					if k != i && k != j {
						keep = append(keep, k)
					}
				}
				merged := rule.Combine(values[i], values[j], corr[i][j])
				nextValues = append(nextValues, merged)
				for _, k := range keep {
					nextValues = append(nextValues, values[k])
				}
				for a := 0; a < n-1; a++ {
					nextCorr = append(nextCorr, make([]float64, n-1))
				}
				for ai, a := range keep {
					nextCorr[0][ai+1] = math.Max(corr[i][a], corr[j][a])
					nextCorr[ai+1][0] = nextCorr[0][ai+1]
					for bi, b := range keep {
						nextCorr[ai+1][bi+1] = corr[a][b]
					}
				}
				recurse(nextValues, nextCorr)
			}
		}
	}
	recurse(medians, rho)
	return domain.OrderingRange{Min: min, Max: max}
}

// heuristicOrderingRange evaluates a fixed set of fold orders when full
// enumeration is too costly.
func heuristicOrderingRange(specs []domain.MitigationSpec, rho [][]float64, rule CombinationRule, medians []float64) domain.OrderingRange {
	greedy := greedyPlan(specs, rho).apply(rule, medians)

	min, max := greedy, greedy
	consider := func(v float64) {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}

	// Least-correlated-first: invert the matrix ordering.
	inverted := make([][]float64, len(rho))
	for i := range rho {
		inverted[i] = make([]float64, len(rho))
		for j := range rho[i] {
			if i != j {
				inverted[i][j] = 1 - rho[i][j]
			}
		}
	}
	invPlan := greedyPlan(specs, inverted)
	// Re-run with the true rho values along the inverted order.
	for s := range invPlan.steps {
		invPlan.steps[s].rho = rho[invPlan.steps[s].a][invPlan.steps[s].b]
	}
	consider(invPlan.apply(rule, medians))

	// Strongest-first: fold in ascending RR order.
	order := make([]int, len(specs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return medians[order[i]] < medians[order[j]] })
	sequential := mergePlan{n: len(specs)}
	for i := 1; i < len(order); i++ {
		sequential.steps = append(sequential.steps, mergeStep{
			a:   order[0],
			b:   order[i],
			rho: rho[order[0]][order[i]],
		})
	}
	consider(sequential.apply(rule, medians))

	return domain.OrderingRange{Min: min, Max: max}
}
