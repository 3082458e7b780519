package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triageai/backend/internal/models"
)

func TestMemoryStorePatientLifecycle(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	p, err := st.CreatePatient(ctx, PatientInput{
		FirstName: "Ana", LastName: "Diaz", RiskLevel: models.RiskHigh,
		RequiredResourceTypes: []string{"bed"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PatientWaiting, p.Status)
	assert.False(t, p.ArrivalTime.IsZero())

	got, err := st.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	newName := "Anabel"
	updated, err := st.UpdatePatient(ctx, p.ID, PatientUpdate{FirstName: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Anabel", updated.FirstName)
	assert.Equal(t, models.RiskHigh, updated.RiskLevel)

	now := time.Now().UTC()
	require.NoError(t, st.UpdatePatientScore(ctx, p.ID, 0.5, now))
	got, err = st.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PriorityScore)
	assert.Equal(t, 0.5, *got.PriorityScore)

	start := now
	moved, err := st.UpdatePatientStatus(ctx, p.ID, models.PatientInTreatment, &start)
	require.NoError(t, err)
	assert.Equal(t, models.PatientInTreatment, moved.Status)
	require.NotNil(t, moved.TreatmentStartTime)

	require.NoError(t, st.DeletePatient(ctx, p.ID))
	_, err = st.GetPatient(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.DeletePatient(ctx, p.ID), ErrNotFound)
}

func TestMemoryStoreListPatientsOrderedByArrival(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for _, ago := range []time.Duration{10 * time.Minute, 90 * time.Minute, 30 * time.Minute} {
		_, err := st.CreatePatient(ctx, PatientInput{
			FirstName: "P", LastName: "T", RiskLevel: models.RiskLow,
			ArrivalTime: base.Add(-ago),
		})
		require.NoError(t, err)
	}

	out, err := st.ListPatients(ctx, PatientFilter{})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		if out[i].ArrivalTime.Before(out[i-1].ArrivalTime) {
			t.Fatalf("patients not sorted by arrival time")
		}
	}
}

func TestMemoryStoreResourceCapacityTransitions(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	r, err := st.CreateResource(ctx, ResourceInput{Name: "Ward", Type: "bed", Capacity: 2, AvailableCapacity: 2})
	require.NoError(t, err)

	pid := r.ID // any uuid works as a patient ref here
	r, err = st.UpdateResourceStatus(ctx, r.ID, models.ResourceInUse, &pid)
	require.NoError(t, err)
	assert.Equal(t, 1, r.AvailableCapacity)
	require.NotNil(t, r.CurrentPatientID)

	r, err = st.UpdateResourceStatus(ctx, r.ID, models.ResourceAvailable, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, r.AvailableCapacity)
	assert.Nil(t, r.CurrentPatientID)

	// release never exceeds capacity
	r, err = st.UpdateResourceStatus(ctx, r.ID, models.ResourceAvailable, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, r.AvailableCapacity)
}

func TestMemoryStoreStaffFilter(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.CreateStaff(ctx, StaffInput{Name: "Dr. Osei", Specialty: "trauma", Status: models.StaffAvailable})
	require.NoError(t, err)
	_, err = st.CreateStaff(ctx, StaffInput{Name: "Dr. Morel", Specialty: "cardiology", Status: models.StaffBusy})
	require.NoError(t, err)

	out, err := st.ListStaff(ctx, StaffFilter{Specialty: "trauma"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Dr. Osei", out[0].Name)

	out, err = st.ListStaff(ctx, StaffFilter{Status: models.StaffBusy})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Dr. Morel", out[0].Name)
}

func TestMemoryStoreSettings(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.GetSetting(ctx, "priority_calculation")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.PutSetting(ctx, "priority_calculation", []byte(`{"a":1}`)))
	v, err := st.GetSetting(ctx, "priority_calculation")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), v)

	// returned value is a copy
	v[0] = 'X'
	v2, err := st.GetSetting(ctx, "priority_calculation")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), v2)
}
