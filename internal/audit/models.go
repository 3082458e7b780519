// package audit contains the append-only priority audit log: one immutable
// record per (patient, recompute) pair whose score changed or was created.
// The scoring path never reads the log back; it exists for traceability.
package audit

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/triageai/backend/internal/models"
)

// Reason tags attached to audit records and recompute triggers.
const (
	ReasonScheduled    = "scheduled"
	ReasonStatusChange = "status-change"
	ReasonCapacity     = "capacity-change"
	ReasonConfigChange = "config-change"
	ReasonManual       = "manual"
)

// Record captures the inputs and outcome of one score computation for one
// patient. Never mutated or deleted once written.
type Record struct {
	ID             uuid.UUID        `json:"id"`
	PatientID      uuid.UUID        `json:"patientId"`
	PreviousScore  *float64         `json:"previousScore"`
	NewScore       float64          `json:"newScore"`
	RiskLevel      models.RiskLevel `json:"riskLevel"`
	WaitingMinutes int              `json:"waitingMinutes"`
	ResourceRatio  float64          `json:"resourceRatio"`
	StaffRatio     float64          `json:"staffRatio"`
	Reason         string           `json:"reason"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Query filters audit reads; zero fields are unconstrained.
type Query struct {
	PatientID *uuid.UUID
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// ErrNotFound is returned when a requested audit record cannot be located.
var ErrNotFound = errors.New("not found")
