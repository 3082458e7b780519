package audit

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triageai/backend/internal/models"
)

var auditColumns = []string{
	"id", "patient_id", "previous_score", "new_score", "risk_level",
	"waiting_minutes", "resource_ratio", "staff_ratio", "reason", "created_at",
}

func TestPGStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewPGStore(db)
	rec := sampleRecord()

	mock.ExpectExec("INSERT INTO priority_audit").
		WithArgs(rec.ID, rec.PatientID, sqlmock.AnyArg(), rec.NewScore, rec.RiskLevel,
			rec.WaitingMinutes, rec.ResourceRatio, rec.StaffRatio, rec.Reason, rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, st.Append(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreAppendAssignsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewPGStore(db)
	rec := sampleRecord()
	rec.ID = uuid.Nil
	rec.CreatedAt = time.Time{}

	mock.ExpectExec("INSERT INTO priority_audit").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, st.Append(context.Background(), rec))
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestPGStoreQueryRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewPGStore(db)
	patientID := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows(auditColumns).
		AddRow(uuid.New().String(), patientID.String(), 0.3, 0.45, int(models.RiskMedium), 22, 0.5, 0.8, ReasonScheduled, now).
		AddRow(uuid.New().String(), patientID.String(), nil, 0.3, int(models.RiskMedium), 10, 1.0, 1.0, ReasonStatusChange, now.Add(-time.Hour))

	mock.ExpectQuery("(?s)SELECT .+ FROM priority_audit").
		WithArgs(patientID, 10).
		WillReturnRows(rows)

	recs, err := st.QueryRecords(context.Background(), Query{PatientID: &patientID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0].PreviousScore)
	assert.Equal(t, 0.3, *recs[0].PreviousScore)
	assert.Nil(t, recs[1].PreviousScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreFetchPendingRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewPGStore(db)
	recID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("(?s)SELECT .+ FOR UPDATE SKIP LOCKED").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(auditColumns).
			AddRow(recID.String(), uuid.New().String(), nil, 0.6, int(models.RiskHigh), 40, 0.25, 0.5, ReasonScheduled, time.Now().UTC()))
	mock.ExpectExec("UPDATE priority_audit SET stream_status='in_progress'").
		WithArgs(recID).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	recs, err := st.FetchPendingRecords(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, recID, recs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
