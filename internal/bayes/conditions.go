package bayes

import (
	"fmt"
	"sort"

	"github.com/celltx-risk-engine/internal/domain"
)

// Condition is one monitored adverse-event rate with its base prior and
// pre-specified monitoring parameters. Boundaries are fixed at definition
// time so interim looks are evaluated against a declared rule, not an ad
// hoc per-look significance claim.
type Condition struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Prior       domain.PriorSpec `json:"prior"`

	// BaseRate and EffectiveN are the external registry rate and prior
	// weight the default prior was built from; sensitivity sweeps rebuild
	// alternative priors from them across a discount grid.
	BaseRate   float64 `json:"base_rate"`
	EffectiveN float64 `json:"effective_n"`

	// MonitorThreshold is the clinically meaningful rate; StoppingBoundary
	// is the posterior exceedance probability that triggers review.
	MonitorThreshold float64 `json:"monitor_threshold"`
	StoppingBoundary float64 `json:"stopping_boundary"`
}

// ConditionRegistry holds the monitored conditions in deterministic order.
type ConditionRegistry struct {
	conditions map[string]Condition
}

// NewConditionRegistry creates a registry pre-loaded with the default
// monitored toxicities. Priors discount external oncology registry rates;
// the discount and effective n are visible in each prior's provenance.
func NewConditionRegistry() (*ConditionRegistry, error) {
	r := &ConditionRegistry{conditions: make(map[string]Condition)}

	defaults := []struct {
		id, description string
		baseRate        float64
		discount        float64
		effectiveN      float64
		threshold       float64
		boundary        float64
	}{
		{"crs_grade3plus", "Grade >=3 cytokine release syndrome", 0.14, 1.0, 1.5, 0.10, 0.80},
		{"icans_grade3plus", "Grade >=3 neurotoxicity (ICANS)", 0.12, 1.0, 1.5, 0.10, 0.80},
		{"carhlh", "CAR-T-associated hemophagocytic syndrome", 0.035, 0.5, 2.0, 0.05, 0.90},
	}

	for _, d := range defaults {
		prior, err := DiscountedPrior(d.baseRate, d.discount, d.effectiveN)
		if err != nil {
			return nil, fmt.Errorf("building prior for %s: %w", d.id, err)
		}
		r.Register(Condition{
			ID:               d.id,
			Description:      d.description,
			Prior:            prior,
			BaseRate:         d.baseRate,
			EffectiveN:       d.effectiveN,
			MonitorThreshold: d.threshold,
			StoppingBoundary: d.boundary,
		})
	}
	return r, nil
}

// Register adds or replaces a monitored condition.
func (r *ConditionRegistry) Register(c Condition) {
	r.conditions[c.ID] = c
}

// Get returns the condition with the given ID.
func (r *ConditionRegistry) Get(id string) (Condition, error) {
	c, ok := r.conditions[id]
	if !ok {
		return Condition{}, fmt.Errorf("%w: %s", domain.ErrUnknownCondition, id)
	}
	return c, nil
}

// IDs returns all condition identifiers in sorted order.
func (r *ConditionRegistry) IDs() []string {
	ids := make([]string, 0, len(r.conditions))
	for id := range r.conditions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
