// Package ensemble runs the full scoring library against one lab snapshot
// and aggregates the outcomes into a single graceful-degradation response:
// with only routine labs some models run, with specialized panels more run,
// and the batch never requires all-or-nothing.
package ensemble

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/celltx-risk-engine/internal/domain"
	"github.com/celltx-risk-engine/internal/scoring"
)

// tierOrder fixes the layer sequence in the output. Tiers never gate each
// other; the order only structures the response.
var tierOrder = []domain.Tier{domain.TierRoutine, domain.TierInflammatory, domain.TierCytokine}

// Orchestrator runs every applicable calculator and reduces the results.
type Orchestrator struct {
	logger     *logrus.Logger
	registry   *scoring.Registry
	normalizer Normalizer
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithNormalizer swaps the composite normalization strategy.
func WithNormalizer(n Normalizer) Option {
	return func(o *Orchestrator) { o.normalizer = n }
}

// New creates an orchestrator over the given registry.
func New(logger *logrus.Logger, registry *scoring.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:     logger,
		registry:   registry,
		normalizer: ThresholdAnchored{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Score evaluates one snapshot. Given the same snapshot, repeated
// invocations return identical results: there is no randomness and no
// wall-clock dependence anywhere in the scoring path.
func (o *Orchestrator) Score(labs domain.LabSnapshot) (*domain.EnsembleResult, error) {
	if err := labs.Validate(); err != nil {
		return nil, err
	}

	result := &domain.EnsembleResult{
		TierCounts: map[domain.RiskLevel]int{},
	}

	var succeeded []domain.ScoringResult
	citations := map[string]struct{}{}

	for _, tier := range tierOrder {
		layer := domain.LayerResult{
			Tier:          tier,
			ModelsRun:     []domain.ScoringResult{},
			ModelsSkipped: []domain.SkippedResult{},
			ModelsFailed:  []domain.ModelFailure{},
		}

		for _, calc := range o.registry.ByTier(tier) {
			scored, skipped, err := o.runCalculator(calc, labs)
			switch {
			case err != nil:
				o.logger.WithError(err).WithField("model", calc.ID).Warn("Calculator failed, continuing batch")
				layer.ModelsFailed = append(layer.ModelsFailed, domain.ModelFailure{
					ModelID: calc.ID,
					Error:   err.Error(),
				})
			case skipped != nil:
				layer.ModelsSkipped = append(layer.ModelsSkipped, *skipped)
				citations[skipped.Citation] = struct{}{}
			default:
				layer.ModelsRun = append(layer.ModelsRun, *scored)
				succeeded = append(succeeded, *scored)
				citations[scored.Citation] = struct{}{}
			}
		}

		result.Layers = append(result.Layers, layer)
		result.ModelsRun += len(layer.ModelsRun)
		result.ModelsSkipped += len(layer.ModelsSkipped)
		result.ModelsFailed += len(layer.ModelsFailed)
	}

	o.aggregate(result, succeeded)

	result.Citations = make([]string, 0, len(citations))
	for c := range citations {
		result.Citations = append(result.Citations, c)
	}
	sort.Strings(result.Citations)

	o.logger.WithFields(logrus.Fields{
		"models_run":     result.ModelsRun,
		"models_skipped": result.ModelsSkipped,
		"models_failed":  result.ModelsFailed,
		"overall_risk":   result.OverallRiskLevel,
		"discordance":    result.DiscordanceFlag,
	}).Info("Completed ensemble scoring")

	return result, nil
}

// runCalculator isolates one model execution: an unexpected panic becomes a
// ModelExecutionError instead of corrupting the ensemble response.
func (o *Orchestrator) runCalculator(calc *scoring.Calculator, labs domain.LabSnapshot) (scored *domain.ScoringResult, skipped *domain.SkippedResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			scored, skipped = nil, nil
			err = &domain.ModelExecutionError{ModelID: calc.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	scored, skipped, err = calc.Compute(labs)
	if err != nil {
		err = &domain.ModelExecutionError{ModelID: calc.ID, Err: err}
	}
	return scored, skipped, err
}

// aggregate reduces the succeeded models into the overall level, the
// confidence-weighted composite, the ordinal tier counts, and the
// discordance flag.
func (o *Orchestrator) aggregate(result *domain.EnsembleResult, succeeded []domain.ScoringResult) {
	if len(succeeded) == 0 {
		result.OverallRiskLevel = ""
		return
	}

	var (
		weightedSum float64
		confSum     float64
		lowConf     float64
		levels      []domain.RiskLevel
	)

	for _, s := range succeeded {
		levels = append(levels, s.RiskLevel)
		result.TierCounts[s.RiskLevel]++

		weightedSum += s.Confidence * o.normalizer.Normalize(s)
		confSum += s.Confidence
		if s.RiskLevel == domain.RiskLow {
			lowConf += s.Confidence
		}
	}

	// Safety-biased reduction: one HIGH model dominates the overall level.
	result.OverallRiskLevel = domain.MaxRiskLevel(levels...)

	if confSum > 0 {
		result.CompositeScore = weightedSum / confSum
	}

	// Discordance: the batch reads HIGH while the confidence-weighted
	// majority of models read LOW. Surface which models drive the call.
	if result.OverallRiskLevel == domain.RiskHigh && lowConf > confSum/2 {
		result.DiscordanceFlag = true
		for _, s := range succeeded {
			if s.RiskLevel == domain.RiskHigh {
				result.DiscordantModels = append(result.DiscordantModels, s.ModelID)
			}
		}
		sort.Strings(result.DiscordantModels)
	}
}
