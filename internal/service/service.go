// package service holds the application layer between the HTTP surface and
// the store: input validation, status-transition side effects, and recompute
// notifications toward the scheduler.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/triageai/backend/internal/audit"
	"github.com/triageai/backend/internal/models"
	"github.com/triageai/backend/internal/store"
)

// ErrInvalidInput marks validation failures; handlers map it to 400.
var ErrInvalidInput = errors.New("invalid input")

// Notifier receives recompute triggers. Satisfied by the triage scheduler.
type Notifier interface {
	Notify(ctx context.Context, reason string)
}

// Service wraps the store with validation and scoring-input change
// notifications.
type Service struct {
	st       store.Store
	notifier Notifier
}

// New constructs the service. notifier may be nil (no recompute wiring).
func New(st store.Store, notifier Notifier) *Service {
	return &Service{st: st, notifier: notifier}
}

func (s *Service) notify(ctx context.Context, reason string) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, reason)
	}
}

// --- patients ---

func (s *Service) CreatePatient(ctx context.Context, in store.PatientInput) (models.Patient, error) {
	if in.FirstName == "" || in.LastName == "" {
		return models.Patient{}, fmt.Errorf("%w: first and last name required", ErrInvalidInput)
	}
	if !in.RiskLevel.Valid() {
		return models.Patient{}, fmt.Errorf("%w: risk level must be 1 (low), 2 (medium) or 3 (high)", ErrInvalidInput)
	}
	if in.Status == "" {
		in.Status = models.PatientWaiting
	}
	if !models.ValidPatientStatus(in.Status) {
		return models.Patient{}, fmt.Errorf("%w: unknown patient status %q", ErrInvalidInput, in.Status)
	}
	p, err := s.st.CreatePatient(ctx, in)
	if err != nil {
		return models.Patient{}, fmt.Errorf("create patient: %w", err)
	}
	s.notify(ctx, audit.ReasonStatusChange)
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (models.Patient, error) {
	return s.st.GetPatient(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, filter store.PatientFilter) ([]models.Patient, error) {
	if filter.Status != "" && !models.ValidPatientStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown patient status %q", ErrInvalidInput, filter.Status)
	}
	return s.st.ListPatients(ctx, filter)
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, in store.PatientUpdate) (models.Patient, error) {
	if in.RiskLevel != nil && !in.RiskLevel.Valid() {
		return models.Patient{}, fmt.Errorf("%w: risk level must be 1 (low), 2 (medium) or 3 (high)", ErrInvalidInput)
	}
	p, err := s.st.UpdatePatient(ctx, id, in)
	if err != nil {
		return models.Patient{}, err
	}
	// risk or requirement edits move the patient in the queue
	if in.RiskLevel != nil || in.RequiredResourceTypes != nil || in.RequiredSpecialties != nil {
		s.notify(ctx, audit.ReasonStatusChange)
	}
	return p, nil
}

// UpdatePatientStatus applies a status transition. Entering treatment stamps
// the treatment start time; leaving the waiting state drops the patient from
// the queue on the next recompute.
func (s *Service) UpdatePatientStatus(ctx context.Context, id uuid.UUID, status string) (models.Patient, error) {
	if !models.ValidPatientStatus(status) {
		return models.Patient{}, fmt.Errorf("%w: unknown patient status %q", ErrInvalidInput, status)
	}
	var treatmentStart *time.Time
	if status == models.PatientInTreatment {
		now := time.Now().UTC()
		treatmentStart = &now
	}
	p, err := s.st.UpdatePatientStatus(ctx, id, status, treatmentStart)
	if err != nil {
		return models.Patient{}, err
	}
	s.notify(ctx, audit.ReasonStatusChange)
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if err := s.st.DeletePatient(ctx, id); err != nil {
		return err
	}
	s.notify(ctx, audit.ReasonStatusChange)
	return nil
}

// --- staff ---

func (s *Service) CreateStaff(ctx context.Context, in store.StaffInput) (models.StaffMember, error) {
	if in.Name == "" {
		return models.StaffMember{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if in.Status == "" {
		in.Status = models.StaffAvailable
	}
	if !models.ValidStaffStatus(in.Status) {
		return models.StaffMember{}, fmt.Errorf("%w: unknown staff status %q", ErrInvalidInput, in.Status)
	}
	m, err := s.st.CreateStaff(ctx, in)
	if err != nil {
		return models.StaffMember{}, fmt.Errorf("create staff: %w", err)
	}
	s.notify(ctx, audit.ReasonCapacity)
	return m, nil
}

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (models.StaffMember, error) {
	return s.st.GetStaff(ctx, id)
}

func (s *Service) ListStaff(ctx context.Context, filter store.StaffFilter) ([]models.StaffMember, error) {
	return s.st.ListStaff(ctx, filter)
}

func (s *Service) UpdateStaffStatus(ctx context.Context, id uuid.UUID, status string) (models.StaffMember, error) {
	if !models.ValidStaffStatus(status) {
		return models.StaffMember{}, fmt.Errorf("%w: unknown staff status %q", ErrInvalidInput, status)
	}
	m, err := s.st.UpdateStaffStatus(ctx, id, status)
	if err != nil {
		return models.StaffMember{}, err
	}
	s.notify(ctx, audit.ReasonCapacity)
	return m, nil
}

func (s *Service) DeleteStaff(ctx context.Context, id uuid.UUID) error {
	if err := s.st.DeleteStaff(ctx, id); err != nil {
		return err
	}
	s.notify(ctx, audit.ReasonCapacity)
	return nil
}

// --- resources ---

func (s *Service) CreateResource(ctx context.Context, in store.ResourceInput) (models.Resource, error) {
	if in.Name == "" || in.Type == "" {
		return models.Resource{}, fmt.Errorf("%w: name and type required", ErrInvalidInput)
	}
	if in.Status == "" {
		in.Status = models.ResourceAvailable
	}
	if !models.ValidResourceStatus(in.Status) {
		return models.Resource{}, fmt.Errorf("%w: unknown resource status %q", ErrInvalidInput, in.Status)
	}
	if in.Capacity < 0 || in.AvailableCapacity > in.Capacity {
		return models.Resource{}, fmt.Errorf("%w: available capacity must be within [0, capacity]", ErrInvalidInput)
	}
	r, err := s.st.CreateResource(ctx, in)
	if err != nil {
		return models.Resource{}, fmt.Errorf("create resource: %w", err)
	}
	s.notify(ctx, audit.ReasonCapacity)
	return r, nil
}

func (s *Service) GetResource(ctx context.Context, id uuid.UUID) (models.Resource, error) {
	return s.st.GetResource(ctx, id)
}

func (s *Service) ListResources(ctx context.Context, filter store.ResourceFilter) ([]models.Resource, error) {
	return s.st.ListResources(ctx, filter)
}

func (s *Service) UpdateResourceStatus(ctx context.Context, id uuid.UUID, status string, currentPatientID *uuid.UUID) (models.Resource, error) {
	if !models.ValidResourceStatus(status) {
		return models.Resource{}, fmt.Errorf("%w: unknown resource status %q", ErrInvalidInput, status)
	}
	r, err := s.st.UpdateResourceStatus(ctx, id, status, currentPatientID)
	if err != nil {
		return models.Resource{}, err
	}
	s.notify(ctx, audit.ReasonCapacity)
	return r, nil
}

func (s *Service) DeleteResource(ctx context.Context, id uuid.UUID) error {
	if err := s.st.DeleteResource(ctx, id); err != nil {
		return err
	}
	s.notify(ctx, audit.ReasonCapacity)
	return nil
}

// --- statistics ---

// Statistics is the department-level summary served by the statistics
// endpoint.
type Statistics struct {
	PatientsByStatus     map[string]int `json:"patientsByStatus"`
	WaitingByRiskLevel   map[string]int `json:"waitingByRiskLevel"`
	AverageWaitMinutes   float64        `json:"averageWaitMinutes"`
	LongestWaitMinutes   int            `json:"longestWaitMinutes"`
	StaffAvailable       int            `json:"staffAvailable"`
	StaffTotal           int            `json:"staffTotal"`
	ResourceUnitsFree    int            `json:"resourceUnitsFree"`
	ResourceUnitsTotal   int            `json:"resourceUnitsTotal"`
	AverageTreatWaitMins float64        `json:"averageTreatWaitMinutes"`
}

// GetStatistics aggregates the current department state. Waiting-time figures
// cover patients still waiting; AverageTreatWaitMins covers arrival-to-
// treatment for patients whose treatment started.
func (s *Service) GetStatistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{
		PatientsByStatus:   map[string]int{},
		WaitingByRiskLevel: map[string]int{},
	}
	now := time.Now().UTC()

	patients, err := s.st.ListPatients(ctx, store.PatientFilter{})
	if err != nil {
		return Statistics{}, fmt.Errorf("list patients: %w", err)
	}
	var waitSum float64
	var waiting int
	var treatSum float64
	var treated int
	for _, p := range patients {
		stats.PatientsByStatus[p.Status]++
		if p.Status == models.PatientWaiting {
			waiting++
			stats.WaitingByRiskLevel[p.RiskLevel.String()]++
			mins := now.Sub(p.ArrivalTime).Minutes()
			waitSum += mins
			if int(mins) > stats.LongestWaitMinutes {
				stats.LongestWaitMinutes = int(mins)
			}
		}
		if p.TreatmentStartTime != nil {
			treated++
			treatSum += p.TreatmentStartTime.Sub(p.ArrivalTime).Minutes()
		}
	}
	if waiting > 0 {
		stats.AverageWaitMinutes = waitSum / float64(waiting)
	}
	if treated > 0 {
		stats.AverageTreatWaitMins = treatSum / float64(treated)
	}

	staff, err := s.st.ListStaff(ctx, store.StaffFilter{})
	if err != nil {
		return Statistics{}, fmt.Errorf("list staff: %w", err)
	}
	for _, m := range staff {
		stats.StaffTotal++
		if m.Status == models.StaffAvailable {
			stats.StaffAvailable++
		}
	}

	resources, err := s.st.ListResources(ctx, store.ResourceFilter{})
	if err != nil {
		return Statistics{}, fmt.Errorf("list resources: %w", err)
	}
	for _, r := range resources {
		stats.ResourceUnitsTotal += r.Capacity
		stats.ResourceUnitsFree += r.AvailableCapacity
	}
	return stats, nil
}
