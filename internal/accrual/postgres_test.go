package accrual

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)

	mock.ExpectPing()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func recordColumns() []string {
	return []string{
		"id", "condition_id", "cohort_id", "source", "events", "n",
		"alpha", "beta", "mean", "ci_low", "ci_high",
		"provenance", "created_at",
	}
}

func TestPostgresStore_RequiresConnection(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Append(t *testing.T) {
	store, mock := createMockStore(t)
	defer store.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO accrual_records").
		WithArgs("crs_grade3plus", "c1", "trial-a", 1, 47,
			1.21, 47.29, 0.0249, 0.0011, 0.0874,
			"external rate 0.140 x discount 1.00, effective n 1.5",
			sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))

	record := testRecord("crs_grade3plus", "c1", 1, 47)
	err := store.Append(context.Background(), record)

	require.NoError(t, err)
	assert.Equal(t, int64(7), record.ID)
	assert.Equal(t, now, record.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Append_DuplicateSurfacesError(t *testing.T) {
	store, mock := createMockStore(t)
	defer store.Close()

	mock.ExpectQuery("INSERT INTO accrual_records").
		WillReturnError(assert.AnError)

	err := store.Append(context.Background(), testRecord("crs_grade3plus", "c1", 1, 47))
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_History(t *testing.T) {
	store, mock := createMockStore(t)
	defer store.Close()

	now := time.Now()
	rows := sqlmock.NewRows(recordColumns()).
		AddRow(int64(1), "crs_grade3plus", "c1", "trial-a", 1, 47,
			1.21, 47.29, 0.0249, 0.0011, 0.0874, "prov", now).
		AddRow(int64(2), "crs_grade3plus", "c2", "trial-a", 2, 53,
			3.21, 98.29, 0.0316, 0.0066, 0.0721, "prov", now)

	mock.ExpectQuery("SELECT (.+) FROM accrual_records").
		WithArgs("crs_grade3plus").
		WillReturnRows(rows)

	history, err := store.History(context.Background(), "crs_grade3plus")

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "c1", history[0].CohortID)
	assert.Equal(t, "c2", history[1].CohortID)
	assert.InDelta(t, 3.21, history[1].Alpha, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Latest_NoRows(t *testing.T) {
	store, mock := createMockStore(t)
	defer store.Close()

	mock.ExpectQuery("SELECT (.+) FROM accrual_records").
		WithArgs("carhlh").
		WillReturnRows(sqlmock.NewRows(recordColumns()))

	latest, err := store.Latest(context.Background(), "carhlh")

	require.NoError(t, err)
	assert.Nil(t, latest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Conditions(t *testing.T) {
	store, mock := createMockStore(t)
	defer store.Close()

	mock.ExpectQuery("SELECT DISTINCT condition_id FROM accrual_records").
		WillReturnRows(sqlmock.NewRows([]string{"condition_id"}).
			AddRow("carhlh").
			AddRow("crs_grade3plus"))

	conditions, err := store.Conditions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"carhlh", "crs_grade3plus"}, conditions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count(t *testing.T) {
	store, mock := createMockStore(t)
	defer store.Close()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM accrual_records").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))

	count, err := store.Count(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
