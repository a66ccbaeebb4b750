// Package domain contains core business entities and types for cell-therapy
// adverse-event risk assessment (cytokine release syndrome, ICANS,
// hemophagocytic syndromes).
//
// Every score produced by this engine traces to a named, versioned, published
// clinical formula with a citation; there are no trained models and no silent
// heuristics in the scoring path.
package domain

import (
	"errors"
	"fmt"
	"sort"
)

// RiskLevel is the ordinal risk classification shared by all calculators.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
)

// Validation errors for clinical data integrity
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidRiskLevel = errors.New("invalid risk level")
	ErrUnknownBiomarker = errors.New("unknown biomarker")
	ErrUnknownCondition = errors.New("unknown monitored condition")
)

// IsValid validates the risk level. Only valid levels may enter clinical
// decision-making outputs.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskModerate, RiskHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation of the risk level.
func (r RiskLevel) String() string {
	return string(r)
}

// Rank returns the ordinal position of the risk level, with higher values
// meaning higher risk. Unknown levels rank below LOW.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskModerate:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// MaxRiskLevel returns the highest of the given levels. The ensemble uses
// this as its safety-biased reduction: a single HIGH model dominates.
func MaxRiskLevel(levels ...RiskLevel) RiskLevel {
	max := RiskLevel("")
	for _, l := range levels {
		if l.Rank() > max.Rank() {
			max = l
		}
	}
	return max
}

// Biomarker identifies one input field of a lab snapshot.
type Biomarker string

// Canonical biomarker names. Each accepts exactly one canonical unit
// (see CanonicalUnits); callers must pre-normalize regional conventions.
const (
	LDH              Biomarker = "ldh"
	Creatinine       Biomarker = "creatinine"
	Platelets        Biomarker = "platelets"
	CRP              Biomarker = "crp"
	Ferritin         Biomarker = "ferritin"
	Fibrinogen       Biomarker = "fibrinogen"
	Triglycerides    Biomarker = "triglycerides"
	AST              Biomarker = "ast"
	ANC              Biomarker = "anc"
	Hemoglobin       Biomarker = "hemoglobin"
	Temperature      Biomarker = "temperature"
	Organomegaly     Biomarker = "organomegaly"
	CytopeniaLines   Biomarker = "cytopenia_lines"
	Hemophagocytosis Biomarker = "hemophagocytosis"
	Immunosuppressed Biomarker = "immunosuppressed"
	IL6              Biomarker = "il6"
	IFNGamma         Biomarker = "ifn_gamma"
	SGP130           Biomarker = "sgp130"
	IL1RA            Biomarker = "il1ra"
)

// CanonicalUnits maps each biomarker to the single unit this engine accepts.
// The calculators never convert units; a snapshot value carrying any other
// unit is rejected as out of contract.
var CanonicalUnits = map[Biomarker]string{
	LDH:              "U/L",
	Creatinine:       "mg/dL",
	Platelets:        "1e9/L",
	CRP:              "mg/L",
	Ferritin:         "ng/mL",
	Fibrinogen:       "g/L",
	Triglycerides:    "mmol/L",
	AST:              "U/L",
	ANC:              "1e9/L",
	Hemoglobin:       "g/dL",
	Temperature:      "degC",
	Organomegaly:     "count",
	CytopeniaLines:   "count",
	Hemophagocytosis: "flag",
	Immunosuppressed: "flag",
	IL6:              "pg/mL",
	IFNGamma:         "pg/mL",
	SGP130:           "pg/mL",
	IL1RA:            "pg/mL",
}

// LabValue is one observed biomarker value with its explicit unit.
type LabValue struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// LabSnapshot is an immutable point-in-time mapping from biomarker to value.
// Optional fields may be absent; the snapshot is owned transiently by the
// caller and never persisted by the engine.
type LabSnapshot map[Biomarker]LabValue

// Get returns the value for a biomarker and whether it was observed.
func (s LabSnapshot) Get(b Biomarker) (LabValue, bool) {
	v, ok := s[b]
	return v, ok
}

// Has reports whether every listed biomarker is present in the snapshot.
func (s LabSnapshot) Has(markers ...Biomarker) bool {
	for _, m := range markers {
		if _, ok := s[m]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the subset of the given biomarkers absent from the
// snapshot, in stable (sorted) order so skip reports are deterministic.
func (s LabSnapshot) Missing(markers ...Biomarker) []string {
	var missing []string
	for _, m := range markers {
		if _, ok := s[m]; !ok {
			missing = append(missing, string(m))
		}
	}
	sort.Strings(missing)
	return missing
}

// Validate checks that every value in the snapshot names a known biomarker
// and carries its canonical unit.
func (s LabSnapshot) Validate() error {
	for marker, value := range s {
		canonical, ok := CanonicalUnits[marker]
		if !ok {
			return fmt.Errorf("lab snapshot validation: %w: %s", ErrUnknownBiomarker, marker)
		}
		if value.Unit != canonical {
			return fmt.Errorf("lab snapshot validation: %s reported in %q, expected canonical unit %q (caller must pre-normalize)",
				marker, value.Unit, canonical)
		}
	}
	return nil
}

// Tier groups calculators by the data availability they need. Tiers never
// gate each other; they only structure the ensemble output.
type Tier string

const (
	TierRoutine      Tier = "routine"
	TierInflammatory Tier = "inflammatory"
	TierCytokine     Tier = "cytokine"
)

// Thresholds are the literature-defined cut-points of one formula version.
// They are hardcoded per formula and exposed alongside every result.
type Thresholds struct {
	Moderate float64 `json:"moderate"`
	High     float64 `json:"high"`
}

// Classify maps a raw formula score onto the formula's own cut-points.
func (t Thresholds) Classify(score float64) RiskLevel {
	switch {
	case score >= t.High:
		return RiskHigh
	case score >= t.Moderate:
		return RiskModerate
	default:
		return RiskLow
	}
}

// ScoringResult is the output of one calculator run. It is created fresh per
// invocation and never mutated after construction.
type ScoringResult struct {
	ModelID    string             `json:"model_id"`
	Version    string             `json:"version"`
	Score      float64            `json:"score"`
	RiskLevel  RiskLevel          `json:"risk_level"`
	Confidence float64            `json:"confidence"`
	Citation   string             `json:"citation"`
	Thresholds Thresholds         `json:"thresholds"`
	Components map[string]float64 `json:"components,omitempty"`

	// Partial marks an additive score computed from an incomplete component
	// set; the score is then a lower bound, and Confidence reflects the
	// point-weight coverage of the observed components.
	Partial bool `json:"partial,omitempty"`
}

// SkippedResult reports that a calculator declined to run, naming exactly
// why. A calculator never silently defaults a missing field.
type SkippedResult struct {
	ModelID       string   `json:"model_id"`
	Version       string   `json:"version"`
	Citation      string   `json:"citation"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Reason        string   `json:"reason"`
}

// ModelFailure records an unexpected internal fault in one calculator.
// Failures are isolated per model; the ensemble batch always continues.
type ModelFailure struct {
	ModelID string `json:"model_id"`
	Error   string `json:"error"`
}

// LayerResult groups the outcomes of all calculators in one tier.
type LayerResult struct {
	Tier          Tier            `json:"tier"`
	ModelsRun     []ScoringResult `json:"models_run"`
	ModelsSkipped []SkippedResult `json:"models_skipped"`
	ModelsFailed  []ModelFailure  `json:"models_failed"`
}

// EnsembleResult is the top-level per-snapshot output. One is produced per
// request; repeated invocation on the same snapshot yields an identical
// result (no hidden randomness, no wall-clock dependence).
type EnsembleResult struct {
	Layers []LayerResult `json:"layers"`

	// CompositeScore is a confidence-weighted blend in [0,1]. It is
	// explicitly not a calibrated probability.
	CompositeScore float64 `json:"composite_score"`

	// OverallRiskLevel is the maximum level across all succeeded models.
	OverallRiskLevel RiskLevel `json:"overall_risk_level"`

	// TierCounts is the ordinal alternative to the composite: how many
	// succeeded models landed at each risk level.
	TierCounts map[RiskLevel]int `json:"tier_counts"`

	DiscordanceFlag  bool     `json:"discordance_flag"`
	DiscordantModels []string `json:"discordant_models,omitempty"`

	// Citations lists, verbatim, the formula citations of every model that
	// produced or skipped a result. Part of the response contract: the
	// consuming layer must disclose these are published deterministic
	// formulas, not trained ML models.
	Citations []string `json:"citations"`

	ModelsRun     int `json:"models_run"`
	ModelsSkipped int `json:"models_skipped"`
	ModelsFailed  int `json:"models_failed"`
}
