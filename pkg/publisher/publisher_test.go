package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

func college(id, name string) model.College {
	return model.College{
		IPEDSID: id,
		Name:    &name,
		Diversity: model.Diversity{
			RaceEthnicityPct: map[string]float64{},
			GenderPct:        map[string]float64{},
		},
		Override:     map[string]interface{}{},
		StaticSource: "IPEDS_2022_revised",
	}
}

func TestBuildDocuments(t *testing.T) {
	runID := uuid.NewString()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	bad := college("100706", "Broken")
	bad.Override["callback"] = func() {}

	records := []model.College{
		college("100654", "Alabama A & M University"),
		bad,
		college("100663", "University of Alabama at Birmingham"),
		college("100654", "Duplicate"),
	}

	rows, failed := BuildDocuments(runID, records, now)
	require.Len(t, rows, 2)
	require.Len(t, failed, 2)

	assert.Equal(t, model.CategoryPublish, failed[0].Category)
	assert.Equal(t, "100706", failed[0].InstitutionID)
	assert.Equal(t, "Broken", failed[0].Name)
	assert.Contains(t, failed[1].Message, "duplicate")

	row := rows[0]
	require.Len(t, row, len(documentColumns))
	_, err := uuid.Parse(row[0].(string))
	assert.NoError(t, err)
	assert.Equal(t, "100654", row[1])
	assert.Equal(t, runID, row[2])
	assert.Equal(t, now, row[4])

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(row[3].(string)), &doc))
	assert.Equal(t, "Alabama A & M University", doc["name"])
	assert.Equal(t, "100654", doc["ipedsId"])
}

func TestFinalStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, FinalStatus(10, 0))
	assert.Equal(t, StatusCompleted, FinalStatus(0, 0))
	assert.Equal(t, StatusPartial, FinalStatus(10, 3))
	assert.Equal(t, StatusFailed, FinalStatus(3, 3))
}

func newMockPublisher(t *testing.T) (*Publisher, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	xdb := sqlx.NewDb(db, "postgres")
	return &Publisher{
		db: xdb,
		begin: func(ctx context.Context) (*sqlx.Tx, error) {
			return xdb.BeginTxx(ctx, nil)
		},
		cfg:    Config{CollectionTable: "colleges", SyncTable: "ipeds_sync", BatchSize: 500},
		logger: zap.NewNop(),
	}, mock
}

// expectReplace queues the statements of a replace up to the in-transaction
// status row
func expectReplace(mock sqlmock.Sqlmock, runID string, inserted int, status string) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "colleges"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "ipeds_sync"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "colleges"`)).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "colleges"`)).
		WillReturnResult(sqlmock.NewResult(0, int64(inserted)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ipeds_sync"`)).
		WithArgs(runID, sqlmock.AnyArg(), 2, inserted, 0, status, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestReplaceColleges(t *testing.T) {
	runID := uuid.NewString()
	records := []model.College{
		college("100654", "Alabama A & M University"),
		college("100663", "University of Alabama at Birmingham"),
	}

	t.Run("committed", func(t *testing.T) {
		p, mock := newMockPublisher(t)
		expectReplace(mock, runID, 2, StatusCompleted)
		mock.ExpectCommit()

		status, failed, err := p.ReplaceColleges(context.Background(), runID, records)
		require.NoError(t, err)
		assert.Empty(t, failed)
		assert.Equal(t, StatusCompleted, status.Status)
		assert.Equal(t, 2, status.Inserted)
		assert.Equal(t, 2, status.TotalRecords)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit failure is recorded as failed", func(t *testing.T) {
		p, mock := newMockPublisher(t)
		expectReplace(mock, runID, 2, StatusCompleted)
		mock.ExpectCommit().WillReturnError(errors.New("connection reset"))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ipeds_sync"`)).
			WithArgs(runID, sqlmock.AnyArg(), 2, 0, 0, StatusFailed, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		status, _, err := p.ReplaceColleges(context.Background(), runID, records)
		require.Error(t, err)
		assert.ErrorContains(t, err, "connection reset")
		assert.Equal(t, StatusFailed, status.Status)
		assert.Equal(t, 0, status.Inserted)
		assert.Contains(t, status.Error, "commit")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status row failure rolls back", func(t *testing.T) {
		p, mock := newMockPublisher(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "colleges"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "ipeds_sync"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "colleges"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "colleges"`)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ipeds_sync"`)).
			WillReturnError(errors.New("permission denied"))
		mock.ExpectRollback()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ipeds_sync"`)).
			WithArgs(runID, sqlmock.AnyArg(), 2, 0, 0, StatusFailed, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		status, _, err := p.ReplaceColleges(context.Background(), runID, records)
		require.Error(t, err)
		assert.Equal(t, StatusFailed, status.Status)
		assert.Equal(t, 0, status.Inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
