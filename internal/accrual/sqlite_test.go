package accrual

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celltx-risk-engine/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "accrual-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	return store
}

func testRecord(conditionID, cohortID string, events, n int) *Record {
	return NewRecord(conditionID,
		domain.Cohort{ID: cohortID, Events: events, N: n, Source: "trial-a"},
		domain.PosteriorEstimate{
			Alpha:      1.21,
			Beta:       47.29,
			Mean:       0.0249,
			CILow:      0.0011,
			CIHigh:     0.0874,
			CohortID:   cohortID,
			Events:     events,
			N:          n,
			Provenance: "external rate 0.140 x discount 1.00, effective n 1.5",
		})
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "accrual-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_Append(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := testRecord("crs_grade3plus", "c1", 1, 47)

	err := store.Append(ctx, record)

	require.NoError(t, err)
	assert.NotZero(t, record.ID, "ID should be assigned")
	assert.False(t, record.CreatedAt.IsZero(), "CreatedAt should be set")
}

func TestSQLiteStore_Append_DuplicateCohortRejected(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testRecord("crs_grade3plus", "c1", 1, 47)))

	// Re-submitting the same cohort for the same condition is an error,
	// never a silent overwrite.
	err := store.Append(ctx, testRecord("crs_grade3plus", "c1", 2, 47))
	assert.Error(t, err)

	// The same cohort ID under a different condition is fine.
	assert.NoError(t, store.Append(ctx, testRecord("icans_grade3plus", "c1", 0, 47)))
}

func TestSQLiteStore_HistoryInAccrualOrder(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testRecord("crs_grade3plus", "c1", 1, 47)))
	require.NoError(t, store.Append(ctx, testRecord("crs_grade3plus", "c2", 2, 53)))
	require.NoError(t, store.Append(ctx, testRecord("icans_grade3plus", "n1", 0, 30)))

	history, err := store.History(ctx, "crs_grade3plus")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "c1", history[0].CohortID)
	assert.Equal(t, "c2", history[1].CohortID)
	assert.Equal(t, "trial-a", history[0].Source)
	assert.InDelta(t, 1.21, history[0].Alpha, 1e-9)
	assert.Contains(t, history[0].Provenance, "discount")

	empty, err := store.History(ctx, "carhlh")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStore_Latest(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	latest, err := store.Latest(ctx, "crs_grade3plus")
	require.NoError(t, err)
	assert.Nil(t, latest, "no evidence yet")

	require.NoError(t, store.Append(ctx, testRecord("crs_grade3plus", "c1", 1, 47)))
	require.NoError(t, store.Append(ctx, testRecord("crs_grade3plus", "c2", 2, 53)))

	latest, err = store.Latest(ctx, "crs_grade3plus")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "c2", latest.CohortID)

	estimate := latest.Estimate()
	assert.Equal(t, latest.Alpha, estimate.Alpha)
	assert.Equal(t, latest.CohortID, estimate.CohortID)
}

func TestSQLiteStore_ConditionsAndCount(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testRecord("icans_grade3plus", "c1", 0, 30)))
	require.NoError(t, store.Append(ctx, testRecord("crs_grade3plus", "c1", 1, 47)))
	require.NoError(t, store.Append(ctx, testRecord("crs_grade3plus", "c2", 2, 53)))

	conditions, err := store.Conditions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"crs_grade3plus", "icans_grade3plus"}, conditions)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSQLiteStore_ExportJSON(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, testRecord("crs_grade3plus", "c1", 1, 47)))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	var export Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 1, export.Count)
	require.Len(t, export.Records, 1)
	assert.Equal(t, "c1", export.Records[0].CohortID)
}

func TestSQLiteStore_Ping(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	assert.NoError(t, store.Ping(context.Background()))
}
