// Package cache memoizes ensemble scoring results. Scoring is deterministic
// for a given lab snapshot and engine version, so identical snapshots can be
// served from cache without recomputation.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/celltx-risk-engine/internal/domain"
)

// ResultCache is the memoization interface for ensemble results. Get returns
// (nil, false, nil) on a miss; cache failures degrade to recomputation, they
// never fail a scoring request.
type ResultCache interface {
	Get(ctx context.Context, key string) (*domain.EnsembleResult, bool, error)
	Set(ctx context.Context, key string, result *domain.EnsembleResult) error
	Ping(ctx context.Context) error
	Close() error
}

// SnapshotKey derives the cache key from the full lab snapshot plus the
// engine version. Any value, unit, or version change produces a new key.
func SnapshotKey(labs domain.LabSnapshot, engineVersion string) string {
	markers := make([]string, 0, len(labs))
	for marker := range labs {
		markers = append(markers, string(marker))
	}
	sort.Strings(markers)

	var b strings.Builder
	b.WriteString(engineVersion)
	for _, marker := range markers {
		lab := labs[domain.Biomarker(marker)]
		fmt.Fprintf(&b, "|%s=%g:%s", marker, lab.Value, lab.Unit)
	}

	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("score:snapshot:%x", hash[:16])
}
