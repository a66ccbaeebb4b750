// Package mitigation combines correlated risk-reducing interventions into a
// mitigated-risk distribution via Monte Carlo propagation.
//
// The correlation-adjusted pairwise combination is a documented heuristic
// interpolation between independent multiplication and full redundancy; no
// single functional form is empirically validated without combination-trial
// data, so the rule is a swappable strategy and every output carries a
// disclaimer.
package mitigation

import (
	"fmt"
	"math"
)

// HeuristicDisclaimer is attached verbatim to every combined result.
const HeuristicDisclaimer = "combined relative risk uses a heuristic correlation interpolation pending combination-trial validation; do not present as an empirically validated estimate"

// CombinationRule interpolates two relative risks under a mechanistic
// overlap coefficient rho in [0,1]. Every rule must satisfy the boundary
// laws: rho=0 yields independent multiplication RRa*RRb, rho=1 yields
// min(RRa, RRb) (only the stronger intervention counts).
type CombinationRule interface {
	Name() string
	Combine(rrA, rrB, rho float64) float64
}

// GeometricRule is the default: (RRa*RRb)^(1-rho) * min(RRa,RRb)^rho.
type GeometricRule struct{}

func (GeometricRule) Name() string { return "geometric" }

func (GeometricRule) Combine(rrA, rrB, rho float64) float64 {
	independent := rrA * rrB
	redundant := math.Min(rrA, rrB)
	return math.Pow(independent, 1-rho) * math.Pow(redundant, rho)
}

// LinearRule interpolates arithmetically between the two endpoints.
type LinearRule struct{}

func (LinearRule) Name() string { return "linear" }

func (LinearRule) Combine(rrA, rrB, rho float64) float64 {
	independent := rrA * rrB
	redundant := math.Min(rrA, rrB)
	return (1-rho)*independent + rho*redundant
}

// HarmonicRule interpolates harmonically, weighting toward the smaller
// (stronger) combined effect.
type HarmonicRule struct{}

func (HarmonicRule) Name() string { return "harmonic" }

func (HarmonicRule) Combine(rrA, rrB, rho float64) float64 {
	independent := rrA * rrB
	redundant := math.Min(rrA, rrB)
	if rho == 0 {
		return independent
	}
	if rho == 1 {
		return redundant
	}
	return 1 / ((1-rho)/independent + rho/redundant)
}

// RuleByName resolves an interpolation strategy by its wire name.
func RuleByName(name string) (CombinationRule, error) {
	switch name {
	case "", "geometric":
		return GeometricRule{}, nil
	case "linear":
		return LinearRule{}, nil
	case "harmonic":
		return HarmonicRule{}, nil
	default:
		return nil, fmt.Errorf("unknown combination rule: %s", name)
	}
}
