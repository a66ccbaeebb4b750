// Package accrual persists the append-only posterior history per monitored
// condition. Records are immutable once written: corrections arrive as new
// cohorts, never as edits to past estimates.
package accrual

import (
	"context"
	"io"
	"time"

	"github.com/celltx-risk-engine/internal/domain"
)

// Record is one accrual step: the cohort that arrived and the posterior it
// produced.
type Record struct {
	ID          int64  `json:"id"`
	ConditionID string `json:"condition_id"`
	CohortID    string `json:"cohort_id"`
	Source      string `json:"source,omitempty"`

	Events int `json:"events"`
	N      int `json:"n"`

	Alpha  float64 `json:"alpha"`
	Beta   float64 `json:"beta"`
	Mean   float64 `json:"mean"`
	CILow  float64 `json:"ci_low"`
	CIHigh float64 `json:"ci_high"`

	Provenance string    `json:"provenance"`
	CreatedAt  time.Time `json:"created_at"`
}

// Estimate re-expresses the stored row as a posterior estimate.
func (r *Record) Estimate() domain.PosteriorEstimate {
	return domain.PosteriorEstimate{
		Alpha:      r.Alpha,
		Beta:       r.Beta,
		Mean:       r.Mean,
		CILow:      r.CILow,
		CIHigh:     r.CIHigh,
		CohortID:   r.CohortID,
		Events:     r.Events,
		N:          r.N,
		Provenance: r.Provenance,
	}
}

// NewRecord builds the row for one accrual step.
func NewRecord(conditionID string, cohort domain.Cohort, estimate domain.PosteriorEstimate) *Record {
	return &Record{
		ConditionID: conditionID,
		CohortID:    cohort.ID,
		Source:      cohort.Source,
		Events:      cohort.Events,
		N:           cohort.N,
		Alpha:       estimate.Alpha,
		Beta:        estimate.Beta,
		Mean:        estimate.Mean,
		CILow:       estimate.CILow,
		CIHigh:      estimate.CIHigh,
		Provenance:  estimate.Provenance,
	}
}

// Store is the append-only accrual history. There is deliberately no update
// or delete operation.
type Store interface {
	// Append persists one new accrual record and assigns its ID and
	// creation time.
	Append(ctx context.Context, record *Record) error

	// History returns all records for a condition in accrual order.
	History(ctx context.Context, conditionID string) ([]*Record, error)

	// Latest returns the most recent record for a condition, or nil when
	// no evidence has accrued yet.
	Latest(ctx context.Context, conditionID string) (*Record, error)

	// Conditions lists the condition IDs with at least one record.
	Conditions(ctx context.Context) ([]string, error)

	// Count returns the total number of accrual records.
	Count(ctx context.Context) (int64, error)

	// ExportJSON writes the full history as JSON for audit handoff.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Export is the JSON audit-export envelope.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Records    []*Record `json:"records"`
}

// Histories converts stored rows to the posterior history the accrual
// engine consumes.
func Histories(records []*Record) []domain.PosteriorEstimate {
	history := make([]domain.PosteriorEstimate, 0, len(records))
	for _, r := range records {
		history = append(history, r.Estimate())
	}
	return history
}

// Cohorts rebuilds the observed cohort sequence from stored rows, for
// replays under alternative priors.
func Cohorts(records []*Record) []domain.Cohort {
	cohorts := make([]domain.Cohort, 0, len(records))
	for _, r := range records {
		cohorts = append(cohorts, domain.Cohort{
			ID:     r.CohortID,
			Events: r.Events,
			N:      r.N,
			Source: r.Source,
		})
	}
	return cohorts
}
