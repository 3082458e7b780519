package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/triageai/backend/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence abstraction for patient, staff and resource
// records plus the key/value settings rows. Implemented by MemoryStore (dev,
// tests) and PGStore (Postgres).
type Store interface {
	CreatePatient(ctx context.Context, in PatientInput) (models.Patient, error)
	GetPatient(ctx context.Context, id uuid.UUID) (models.Patient, error)
	ListPatients(ctx context.Context, filter PatientFilter) ([]models.Patient, error)
	UpdatePatient(ctx context.Context, id uuid.UUID, in PatientUpdate) (models.Patient, error)
	UpdatePatientStatus(ctx context.Context, id uuid.UUID, status string, treatmentStart *time.Time) (models.Patient, error)
	// UpdatePatientScore writes back the last-computed priority score; used
	// only by the queue engine.
	UpdatePatientScore(ctx context.Context, id uuid.UUID, score float64, at time.Time) error
	DeletePatient(ctx context.Context, id uuid.UUID) error

	CreateStaff(ctx context.Context, in StaffInput) (models.StaffMember, error)
	GetStaff(ctx context.Context, id uuid.UUID) (models.StaffMember, error)
	ListStaff(ctx context.Context, filter StaffFilter) ([]models.StaffMember, error)
	UpdateStaffStatus(ctx context.Context, id uuid.UUID, status string) (models.StaffMember, error)
	DeleteStaff(ctx context.Context, id uuid.UUID) error

	CreateResource(ctx context.Context, in ResourceInput) (models.Resource, error)
	GetResource(ctx context.Context, id uuid.UUID) (models.Resource, error)
	ListResources(ctx context.Context, filter ResourceFilter) ([]models.Resource, error)
	// UpdateResourceStatus applies the status transition and its capacity
	// side effects (available -> in_use decrements available capacity,
	// in_use -> available increments it, both clamped to [0, capacity]).
	UpdateResourceStatus(ctx context.Context, id uuid.UUID, status string, currentPatientID *uuid.UUID) (models.Resource, error)
	DeleteResource(ctx context.Context, id uuid.UUID) error

	// Settings rows are opaque JSON values under a string key
	// (e.g. "priority_calculation").
	GetSetting(ctx context.Context, key string) ([]byte, error)
	PutSetting(ctx context.Context, key string, value []byte) error

	Ping(ctx context.Context) error
}

type PatientInput struct {
	ID                    uuid.UUID
	FirstName             string
	LastName              string
	DateOfBirth           string
	ChiefComplaint        string
	RiskLevel             models.RiskLevel
	ShockIndex            float64
	EarlyWarningScore     int
	Status                string
	ArrivalTime           time.Time
	RequiredResourceTypes []string
	RequiredSpecialties   []string
}

// PatientUpdate carries the mutable non-status fields; nil pointers leave the
// current value untouched.
type PatientUpdate struct {
	FirstName             *string
	LastName              *string
	ChiefComplaint        *string
	RiskLevel             *models.RiskLevel
	ShockIndex            *float64
	EarlyWarningScore     *int
	RequiredResourceTypes []string
	RequiredSpecialties   []string
}

type PatientFilter struct {
	Status string
}

type StaffInput struct {
	ID        uuid.UUID
	Name      string
	Specialty string
	Status    string
}

type StaffFilter struct {
	Status    string
	Specialty string
}

type ResourceInput struct {
	ID                uuid.UUID
	Name              string
	Type              string
	Status            string
	Capacity          int
	AvailableCapacity int
}

type ResourceFilter struct {
	Status string
	Type   string
}
