// package models contains the record types shared by the store, the triage
// engine, and the HTTP surface.
package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel is the ordinal clinical severity classification assigned by the
// external classifier. Higher is sicker.
type RiskLevel int

const (
	RiskLow    RiskLevel = 1
	RiskMedium RiskLevel = 2
	RiskHigh   RiskLevel = 3
)

// Valid reports whether r is one of the known ordinal levels.
func (r RiskLevel) Valid() bool {
	return r >= RiskLow && r <= RiskHigh
}

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Patient statuses. A patient is only part of the priority queue while
// status == waiting.
const (
	PatientWaiting     = "waiting"
	PatientInTreatment = "in_treatment"
	PatientTreated     = "treated"
	PatientDischarged  = "discharged"
)

// ValidPatientStatus reports whether s is an accepted patient status.
func ValidPatientStatus(s string) bool {
	switch s {
	case PatientWaiting, PatientInTreatment, PatientTreated, PatientDischarged:
		return true
	}
	return false
}

// Patient is the triage record for one emergency-department patient.
// RiskLevel, ShockIndex and EarlyWarningScore come from the external
// classifier; PriorityScore/LastPriorityUpdate are maintained by the queue
// engine and are nil until the first recompute touches the patient.
type Patient struct {
	ID                 uuid.UUID  `json:"id"`
	FirstName          string     `json:"firstName"`
	LastName           string     `json:"lastName"`
	DateOfBirth        string     `json:"dateOfBirth"`
	ChiefComplaint     string     `json:"chiefComplaint"`
	RiskLevel          RiskLevel  `json:"riskLevel"`
	ShockIndex         float64    `json:"shockIndex"`
	EarlyWarningScore  int        `json:"earlyWarningScore"`
	Status             string     `json:"status"`
	ArrivalTime        time.Time  `json:"arrivalTime"`
	TreatmentStartTime *time.Time `json:"treatmentStartTime,omitempty"`
	PriorityScore      *float64   `json:"priorityScore,omitempty"`
	LastPriorityUpdate *time.Time `json:"lastPriorityUpdate,omitempty"`

	// RequiredResourceTypes / RequiredSpecialties scope the capacity terms of
	// the priority score to what this patient actually needs. Empty means
	// system-wide.
	RequiredResourceTypes []string `json:"requiredResourceTypes,omitempty"`
	RequiredSpecialties   []string `json:"requiredSpecialties,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Staff statuses.
const (
	StaffAvailable = "available"
	StaffBusy      = "busy"
	StaffOffDuty   = "off_duty"
)

// ValidStaffStatus reports whether s is an accepted staff status.
func ValidStaffStatus(s string) bool {
	switch s {
	case StaffAvailable, StaffBusy, StaffOffDuty:
		return true
	}
	return false
}

// StaffMember is one clinician. Availability feeds the staff term of the
// priority score.
type StaffMember struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Resource statuses.
const (
	ResourceAvailable   = "available"
	ResourceInUse       = "in_use"
	ResourceMaintenance = "maintenance"
)

// ValidResourceStatus reports whether s is an accepted resource status.
func ValidResourceStatus(s string) bool {
	switch s {
	case ResourceAvailable, ResourceInUse, ResourceMaintenance:
		return true
	}
	return false
}

// Resource is a treatment resource (bed, scanner, trauma bay). Capacity is in
// units; AvailableCapacity is maintained by status transitions and never
// leaves [0, Capacity].
type Resource struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	Capacity          int        `json:"capacity"`
	AvailableCapacity int        `json:"availableCapacity"`
	CurrentPatientID  *uuid.UUID `json:"currentPatientId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}
