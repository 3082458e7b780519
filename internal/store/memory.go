package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/triageai/backend/internal/models"
)

// MemoryStore is an in-memory Store for dev and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	patients  map[uuid.UUID]models.Patient
	staff     map[uuid.UUID]models.StaffMember
	resources map[uuid.UUID]models.Resource
	settings  map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients:  map[uuid.UUID]models.Patient{},
		staff:     map[uuid.UUID]models.StaffMember{},
		resources: map[uuid.UUID]models.Resource{},
		settings:  map[string][]byte{},
	}
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func (m *MemoryStore) CreatePatient(ctx context.Context, in PatientInput) (models.Patient, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	now := time.Now().UTC()
	arrival := in.ArrivalTime
	if arrival.IsZero() {
		arrival = now
	}
	status := in.Status
	if status == "" {
		status = models.PatientWaiting
	}
	p := models.Patient{
		ID:                    in.ID,
		FirstName:             in.FirstName,
		LastName:              in.LastName,
		DateOfBirth:           in.DateOfBirth,
		ChiefComplaint:        in.ChiefComplaint,
		RiskLevel:             in.RiskLevel,
		ShockIndex:            in.ShockIndex,
		EarlyWarningScore:     in.EarlyWarningScore,
		Status:                status,
		ArrivalTime:           arrival,
		RequiredResourceTypes: copyStrings(in.RequiredResourceTypes),
		RequiredSpecialties:   copyStrings(in.RequiredSpecialties),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
	return p, nil
}

func (m *MemoryStore) GetPatient(ctx context.Context, id uuid.UUID) (models.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return models.Patient{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) ListPatients(ctx context.Context, filter PatientFilter) ([]models.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Patient
	for _, p := range m.patients {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ArrivalTime.Before(out[j].ArrivalTime)
	})
	return out, nil
}

func (m *MemoryStore) UpdatePatient(ctx context.Context, id uuid.UUID, in PatientUpdate) (models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return models.Patient{}, ErrNotFound
	}
	if in.FirstName != nil {
		p.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		p.LastName = *in.LastName
	}
	if in.ChiefComplaint != nil {
		p.ChiefComplaint = *in.ChiefComplaint
	}
	if in.RiskLevel != nil {
		p.RiskLevel = *in.RiskLevel
	}
	if in.ShockIndex != nil {
		p.ShockIndex = *in.ShockIndex
	}
	if in.EarlyWarningScore != nil {
		p.EarlyWarningScore = *in.EarlyWarningScore
	}
	if in.RequiredResourceTypes != nil {
		p.RequiredResourceTypes = copyStrings(in.RequiredResourceTypes)
	}
	if in.RequiredSpecialties != nil {
		p.RequiredSpecialties = copyStrings(in.RequiredSpecialties)
	}
	p.UpdatedAt = time.Now().UTC()
	m.patients[id] = p
	return p, nil
}

func (m *MemoryStore) UpdatePatientStatus(ctx context.Context, id uuid.UUID, status string, treatmentStart *time.Time) (models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return models.Patient{}, ErrNotFound
	}
	p.Status = status
	if treatmentStart != nil {
		ts := *treatmentStart
		p.TreatmentStartTime = &ts
	}
	p.UpdatedAt = time.Now().UTC()
	m.patients[id] = p
	return p, nil
}

func (m *MemoryStore) UpdatePatientScore(ctx context.Context, id uuid.UUID, score float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return ErrNotFound
	}
	s := score
	ts := at
	p.PriorityScore = &s
	p.LastPriorityUpdate = &ts
	m.patients[id] = p
	return nil
}

func (m *MemoryStore) DeletePatient(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[id]; !ok {
		return ErrNotFound
	}
	delete(m.patients, id)
	return nil
}

func (m *MemoryStore) CreateStaff(ctx context.Context, in StaffInput) (models.StaffMember, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	status := in.Status
	if status == "" {
		status = models.StaffAvailable
	}
	now := time.Now().UTC()
	s := models.StaffMember{
		ID:        in.ID,
		Name:      in.Name,
		Specialty: in.Specialty,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[s.ID] = s
	return s, nil
}

func (m *MemoryStore) GetStaff(ctx context.Context, id uuid.UUID) (models.StaffMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.staff[id]
	if !ok {
		return models.StaffMember{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) ListStaff(ctx context.Context, filter StaffFilter) ([]models.StaffMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.StaffMember
	for _, s := range m.staff {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.Specialty != "" && s.Specialty != filter.Specialty {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) UpdateStaffStatus(ctx context.Context, id uuid.UUID, status string) (models.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.staff[id]
	if !ok {
		return models.StaffMember{}, ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	m.staff[id] = s
	return s, nil
}

func (m *MemoryStore) DeleteStaff(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staff[id]; !ok {
		return ErrNotFound
	}
	delete(m.staff, id)
	return nil
}

func (m *MemoryStore) CreateResource(ctx context.Context, in ResourceInput) (models.Resource, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	status := in.Status
	if status == "" {
		status = models.ResourceAvailable
	}
	capacity := in.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	avail := in.AvailableCapacity
	if avail < 0 || avail > capacity {
		avail = capacity
	}
	now := time.Now().UTC()
	r := models.Resource{
		ID:                in.ID,
		Name:              in.Name,
		Type:              in.Type,
		Status:            status,
		Capacity:          capacity,
		AvailableCapacity: avail,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[r.ID] = r
	return r, nil
}

func (m *MemoryStore) GetResource(ctx context.Context, id uuid.UUID) (models.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok {
		return models.Resource{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) ListResources(ctx context.Context, filter ResourceFilter) ([]models.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Resource
	for _, r := range m.resources {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) UpdateResourceStatus(ctx context.Context, id uuid.UUID, status string, currentPatientID *uuid.UUID) (models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[id]
	if !ok {
		return models.Resource{}, ErrNotFound
	}
	switch {
	case r.Status == models.ResourceAvailable && status == models.ResourceInUse:
		if r.AvailableCapacity > 0 {
			r.AvailableCapacity--
		}
	case r.Status == models.ResourceInUse && status == models.ResourceAvailable:
		if r.AvailableCapacity < r.Capacity {
			r.AvailableCapacity++
		}
	}
	r.Status = status
	if status == models.ResourceInUse && currentPatientID != nil {
		pid := *currentPatientID
		r.CurrentPatientID = &pid
	}
	if status == models.ResourceAvailable {
		r.CurrentPatientID = nil
	}
	r.UpdatedAt = time.Now().UTC()
	m.resources[id] = r
	return r, nil
}

func (m *MemoryStore) DeleteResource(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[id]; !ok {
		return ErrNotFound
	}
	delete(m.resources, id)
	return nil
}

func (m *MemoryStore) GetSetting(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) PutSetting(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
