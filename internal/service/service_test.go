package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triageai/backend/internal/audit"
	"github.com/triageai/backend/internal/models"
	"github.com/triageai/backend/internal/store"
)

type recordingNotifier struct {
	mu      sync.Mutex
	reasons []string
}

func (n *recordingNotifier) Notify(ctx context.Context, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, reason)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.reasons...)
}

func newTestService() (*Service, *store.MemoryStore, *recordingNotifier) {
	st := store.NewMemoryStore()
	n := &recordingNotifier{}
	return New(st, n), st, n
}

func TestCreatePatientValidation(t *testing.T) {
	svc, _, n := newTestService()
	ctx := context.Background()

	_, err := svc.CreatePatient(ctx, store.PatientInput{LastName: "Diaz", RiskLevel: models.RiskLow})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreatePatient(ctx, store.PatientInput{FirstName: "Ana", LastName: "Diaz", RiskLevel: 7})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreatePatient(ctx, store.PatientInput{FirstName: "Ana", LastName: "Diaz", RiskLevel: models.RiskLow, Status: "lost"})
	require.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, n.all())

	p, err := svc.CreatePatient(ctx, store.PatientInput{FirstName: "Ana", LastName: "Diaz", RiskLevel: models.RiskMedium})
	require.NoError(t, err)
	assert.Equal(t, models.PatientWaiting, p.Status)
	assert.Equal(t, []string{audit.ReasonStatusChange}, n.all())
}

func TestUpdatePatientStatusStampsTreatmentStart(t *testing.T) {
	svc, st, n := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePatient(ctx, store.PatientInput{FirstName: "Ana", LastName: "Diaz", RiskLevel: models.RiskHigh})
	require.NoError(t, err)

	_, err = svc.UpdatePatientStatus(ctx, p.ID, "discharged_to_mars")
	require.ErrorIs(t, err, ErrInvalidInput)

	updated, err := svc.UpdatePatientStatus(ctx, p.ID, models.PatientInTreatment)
	require.NoError(t, err)
	require.NotNil(t, updated.TreatmentStartTime)
	assert.WithinDuration(t, time.Now().UTC(), *updated.TreatmentStartTime, 5*time.Second)

	stored, err := st.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PatientInTreatment, stored.Status)

	assert.Equal(t, []string{audit.ReasonStatusChange, audit.ReasonStatusChange}, n.all())
}

func TestUpdatePatientNotifiesOnlyOnScoringInputs(t *testing.T) {
	svc, _, n := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePatient(ctx, store.PatientInput{FirstName: "Ana", LastName: "Diaz", RiskLevel: models.RiskLow})
	require.NoError(t, err)
	base := len(n.all())

	name := "Anabel"
	_, err = svc.UpdatePatient(ctx, p.ID, store.PatientUpdate{FirstName: &name})
	require.NoError(t, err)
	assert.Len(t, n.all(), base)

	risk := models.RiskHigh
	_, err = svc.UpdatePatient(ctx, p.ID, store.PatientUpdate{RiskLevel: &risk})
	require.NoError(t, err)
	assert.Len(t, n.all(), base+1)
}

func TestStaffAndResourceChangesNotifyCapacity(t *testing.T) {
	svc, _, n := newTestService()
	ctx := context.Background()

	m, err := svc.CreateStaff(ctx, store.StaffInput{Name: "Dr. Osei", Specialty: "trauma"})
	require.NoError(t, err)
	assert.Equal(t, models.StaffAvailable, m.Status)

	_, err = svc.UpdateStaffStatus(ctx, m.ID, models.StaffBusy)
	require.NoError(t, err)

	r, err := svc.CreateResource(ctx, store.ResourceInput{Name: "CT-1", Type: "ct_scanner", Capacity: 1, AvailableCapacity: 1})
	require.NoError(t, err)

	_, err = svc.UpdateResourceStatus(ctx, r.ID, models.ResourceInUse, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		audit.ReasonCapacity, audit.ReasonCapacity, audit.ReasonCapacity, audit.ReasonCapacity,
	}, n.all())
}

func TestCreateResourceValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateResource(ctx, store.ResourceInput{Name: "CT-1"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateResource(ctx, store.ResourceInput{Name: "CT-1", Type: "ct_scanner", Capacity: 1, AvailableCapacity: 3})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetStatistics(t *testing.T) {
	svc, st, _ := newTestService()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.CreatePatient(ctx, store.PatientInput{
		FirstName: "A", LastName: "A", RiskLevel: models.RiskHigh,
		Status: models.PatientWaiting, ArrivalTime: now.Add(-60 * time.Minute),
	})
	require.NoError(t, err)
	_, err = st.CreatePatient(ctx, store.PatientInput{
		FirstName: "B", LastName: "B", RiskLevel: models.RiskLow,
		Status: models.PatientWaiting, ArrivalTime: now.Add(-20 * time.Minute),
	})
	require.NoError(t, err)
	treated, err := st.CreatePatient(ctx, store.PatientInput{
		FirstName: "C", LastName: "C", RiskLevel: models.RiskMedium,
		Status: models.PatientWaiting, ArrivalTime: now.Add(-90 * time.Minute),
	})
	require.NoError(t, err)
	start := now.Add(-30 * time.Minute)
	_, err = st.UpdatePatientStatus(ctx, treated.ID, models.PatientInTreatment, &start)
	require.NoError(t, err)

	_, err = st.CreateStaff(ctx, store.StaffInput{Name: "Dr. Osei", Status: models.StaffAvailable})
	require.NoError(t, err)
	_, err = st.CreateStaff(ctx, store.StaffInput{Name: "Dr. Morel", Status: models.StaffBusy})
	require.NoError(t, err)
	_, err = st.CreateResource(ctx, store.ResourceInput{Name: "Ward", Type: "bed", Capacity: 4, AvailableCapacity: 1})
	require.NoError(t, err)

	stats, err := svc.GetStatistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.PatientsByStatus[models.PatientWaiting])
	assert.Equal(t, 1, stats.PatientsByStatus[models.PatientInTreatment])
	assert.Equal(t, 1, stats.WaitingByRiskLevel["high"])
	assert.Equal(t, 1, stats.WaitingByRiskLevel["low"])
	assert.InDelta(t, 40, stats.AverageWaitMinutes, 1)
	assert.Equal(t, 60, stats.LongestWaitMinutes)
	assert.Equal(t, 1, stats.StaffAvailable)
	assert.Equal(t, 2, stats.StaffTotal)
	assert.Equal(t, 1, stats.ResourceUnitsFree)
	assert.Equal(t, 4, stats.ResourceUnitsTotal)
	assert.InDelta(t, 60, stats.AverageTreatWaitMins, 1)
}
