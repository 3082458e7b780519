package store

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triageai/backend/internal/models"
)

var patientCols = []string{
	"id", "first_name", "last_name", "date_of_birth", "chief_complaint", "risk_level",
	"shock_index", "early_warning_score", "status", "arrival_time", "treatment_start_time",
	"priority_score", "last_priority_update", "required_resource_types", "required_specialties",
	"created_at", "updated_at",
}

func patientRow(id uuid.UUID, now time.Time) []driver.Value {
	return []driver.Value{
		id.String(), "Ana", "Diaz", "1990-01-01", "chest pain", int(models.RiskHigh),
		1.1, 5, models.PatientWaiting, now, nil,
		nil, nil, "{bed}", "{trauma}",
		now, now,
	}
}

func TestPGStoreGetPatient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewPGStore(db)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .+ FROM patients WHERE id=").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(patientCols).AddRow(patientRow(id, now)...))

	p, err := st.GetPatient(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, models.RiskHigh, p.RiskLevel)
	assert.Equal(t, []string{"bed"}, p.RequiredResourceTypes)
	assert.Nil(t, p.PriorityScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreGetPatientNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewPGStore(db)
	id := uuid.New()

	mock.ExpectQuery("(?s)SELECT .+ FROM patients WHERE id=").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(patientCols))

	_, err = st.GetPatient(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPGStoreListPatientsByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewPGStore(db)
	now := time.Now().UTC()

	mock.ExpectQuery("(?s)SELECT .+ FROM patients WHERE status=.+ ORDER BY arrival_time ASC").
		WithArgs(models.PatientWaiting).
		WillReturnRows(sqlmock.NewRows(patientCols).
			AddRow(patientRow(uuid.New(), now.Add(-time.Hour))...).
			AddRow(patientRow(uuid.New(), now)...))

	out, err := st.ListPatients(context.Background(), PatientFilter{Status: models.PatientWaiting})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreUpdatePatientScore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewPGStore(db)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE patients SET priority_score=").
		WithArgs(id, 0.42, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, st.UpdatePatientScore(context.Background(), id, 0.42, at))

	mock.ExpectExec("UPDATE patients SET priority_score=").
		WithArgs(id, 0.42, at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, st.UpdatePatientScore(context.Background(), id, 0.42, at), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStorePutSettingUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewPGStore(db)

	mock.ExpectExec("(?s)INSERT INTO system_settings.+ON CONFLICT \\(key\\) DO UPDATE").
		WithArgs("priority_calculation", []byte(`{"x":1}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, st.PutSetting(context.Background(), "priority_calculation", []byte(`{"x":1}`)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreGetSettingNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewPGStore(db)

	mock.ExpectQuery("SELECT value FROM system_settings").
		WithArgs("priority_calculation").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, err = st.GetSetting(context.Background(), "priority_calculation")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPGStoreUpdateResourceStatusAppliesCapacity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewPGStore(db)
	id := uuid.New()
	now := time.Now().UTC()

	resourceCols := []string{"id", "name", "type", "status", "capacity", "available_capacity", "current_patient_id", "created_at", "updated_at"}

	// current state: available with 2 of 2 units
	mock.ExpectQuery("(?s)SELECT .+ FROM resources WHERE id=").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(resourceCols).
			AddRow(id.String(), "Ward", "bed", models.ResourceAvailable, 2, 2, nil, now, now))
	// transition decrements available capacity
	mock.ExpectExec("UPDATE resources SET status=").
		WithArgs(id, models.ResourceInUse, 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// read-back
	mock.ExpectQuery("(?s)SELECT .+ FROM resources WHERE id=").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(resourceCols).
			AddRow(id.String(), "Ward", "bed", models.ResourceInUse, 2, 1, nil, now, now))

	r, err := st.UpdateResourceStatus(context.Background(), id, models.ResourceInUse, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.AvailableCapacity)
	require.NoError(t, mock.ExpectationsWereMet())
}
