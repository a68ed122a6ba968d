package feedback

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maternal-guard-server/internal/domain"
)

var feedbackColumns = []string{
	"id", "assessment_id", "suggested_level", "clinician_level",
	"agreed", "downgraded", "confidence", "model_version",
	"notes", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO risk_feedback")).
		WithArgs("a-1", "Mid", "High", false, true, 0.79, "1.0.0", "escalated", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(7), created, created))

	fb := &Feedback{
		AssessmentID:   "a-1",
		SuggestedLevel: domain.RiskMid,
		ClinicianLevel: domain.RiskHigh,
		Downgraded:     true,
		Confidence:     0.79,
		ModelVersion:   "1.0.0",
		Notes:          "escalated",
	}
	require.NoError(t, store.Save(context.Background(), fb))

	assert.Equal(t, int64(7), fb.ID)
	assert.Equal(t, created, fb.CreatedAt)
	assert.False(t, fb.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_KeepsImportedTimestamps(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 1, 5, 8, 30, 0, 0, time.UTC)
	updated := created.Add(2 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO risk_feedback")).
		WithArgs("a-2", "Low", "Low", true, false, 0.9, "", "", created, updated, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(8), created, updated))

	fb := &Feedback{
		AssessmentID:   "a-2",
		SuggestedLevel: domain.RiskLow,
		ClinicianLevel: domain.RiskLow,
		Agreed:         true,
		Confidence:     0.9,
		CreatedAt:      created,
		UpdatedAt:      updated,
	}
	require.NoError(t, store.Save(context.Background(), fb))

	assert.Equal(t, created, fb.CreatedAt)
	assert.Equal(t, updated, fb.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_InvalidSkipsDatabase(t *testing.T) {
	store, mock := newMockStore(t)

	err := store.Save(context.Background(), &Feedback{AssessmentID: "a-1", SuggestedLevel: "Severe", ClinicianLevel: domain.RiskLow})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_DatabaseError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO risk_feedback")).
		WillReturnError(errors.New("connection reset"))

	err := store.Save(context.Background(), &Feedback{AssessmentID: "a-1", SuggestedLevel: domain.RiskLow, ClinicianLevel: domain.RiskLow})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save feedback")
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE assessment_id = $1")).
		WithArgs("a-2").
		WillReturnRows(sqlmock.NewRows(feedbackColumns).
			AddRow(int64(3), "a-2", "High", "High", true, false, 0.92, "1.0.0", "", now, now))

	fb, err := store.Get(context.Background(), "a-2")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, fb.SuggestedLevel)
	assert.True(t, fb.Agreed)
	assert.InDelta(t, 0.92, fb.Confidence, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE assessment_id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	fb, err := store.Get(context.Background(), "missing")
	assert.Nil(t, fb)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2")).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(feedbackColumns).
			AddRow(int64(2), "a-2", "Mid", "High", false, true, 0.8, "", "", now, now).
			AddRow(int64(1), "a-1", "Low", "Low", true, false, 0.7, "", "", now, now))

	list, err := store.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a-2", list[0].AssessmentID)
	assert.True(t, list[0].Downgraded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountAndDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM risk_feedback")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM risk_feedback WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)

	require.NoError(t, store.Delete(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Summary(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(CASE WHEN agreed")).
		WillReturnRows(sqlmock.NewRows([]string{"total", "agreed", "downgraded", "overruled"}).
			AddRow(int64(10), int64(8), int64(3), int64(2)))
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY clinician_level")).
		WillReturnRows(sqlmock.NewRows([]string{"clinician_level", "count"}).
			AddRow("Low", int64(4)).
			AddRow("Mid", int64(3)).
			AddRow("High", int64(3)))

	summary, err := store.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), summary.Total)
	assert.Equal(t, int64(2), summary.Disagreed)
	assert.InDelta(t, 0.8, summary.Agreement, 1e-9)
	assert.Equal(t, int64(2), summary.DowngradedOverruled)
	assert.Equal(t, int64(3), summary.ByClinicianLevel[domain.RiskHigh])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExportJSON(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM risk_feedback")).
		WillReturnRows(sqlmock.NewRows(feedbackColumns).
			AddRow(int64(1), "a-1", "Low", "Low", true, false, 0.7, "", "", now, now))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(context.Background(), &buf))
	assert.Contains(t, buf.String(), `"assessment_id": "a-1"`)
	assert.Contains(t, buf.String(), `"count": 1`)
}

// TestPostgresStore_Integration runs against a real database when
// TEST_DATABASE_URL is set and the migrations have been applied.
func TestPostgresStore_Integration(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	store, err := NewPostgresStoreFromURL(dbURL)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.db.ExecContext(ctx, "DELETE FROM risk_feedback")
	require.NoError(t, err)

	fb := &Feedback{AssessmentID: "it-1", SuggestedLevel: domain.RiskMid, ClinicianLevel: domain.RiskHigh, Downgraded: true, Confidence: 0.8}
	require.NoError(t, store.Save(ctx, fb))
	firstID := fb.ID

	fb.ClinicianLevel = domain.RiskMid
	require.NoError(t, store.Save(ctx, fb))
	assert.Equal(t, firstID, fb.ID)

	got, err := store.Get(ctx, "it-1")
	require.NoError(t, err)
	assert.True(t, got.Agreed)
}
