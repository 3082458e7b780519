package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/triageai/backend/internal/models"
)

// PGStore persists records into Postgres.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a Postgres-backed store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Ping verifies connectivity to Postgres.
func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

const patientColumns = `id, first_name, last_name, date_of_birth, chief_complaint, risk_level,
shock_index, early_warning_score, status, arrival_time, treatment_start_time,
priority_score, last_priority_update, required_resource_types, required_specialties,
created_at, updated_at`

func scanPatient(row interface{ Scan(...interface{}) error }) (models.Patient, error) {
	var (
		pt             models.Patient
		treatmentStart sql.NullTime
		score          sql.NullFloat64
		lastUpdate     sql.NullTime
		resourceTypes  pq.StringArray
		specialties    pq.StringArray
	)
	err := row.Scan(
		&pt.ID, &pt.FirstName, &pt.LastName, &pt.DateOfBirth, &pt.ChiefComplaint, &pt.RiskLevel,
		&pt.ShockIndex, &pt.EarlyWarningScore, &pt.Status, &pt.ArrivalTime, &treatmentStart,
		&score, &lastUpdate, &resourceTypes, &specialties,
		&pt.CreatedAt, &pt.UpdatedAt,
	)
	if err != nil {
		return models.Patient{}, err
	}
	if treatmentStart.Valid {
		ts := treatmentStart.Time
		pt.TreatmentStartTime = &ts
	}
	if score.Valid {
		v := score.Float64
		pt.PriorityScore = &v
	}
	if lastUpdate.Valid {
		ts := lastUpdate.Time
		pt.LastPriorityUpdate = &ts
	}
	pt.RequiredResourceTypes = []string(resourceTypes)
	pt.RequiredSpecialties = []string(specialties)
	return pt, nil
}

func (p *PGStore) CreatePatient(ctx context.Context, in PatientInput) (models.Patient, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	now := time.Now().UTC()
	if in.ArrivalTime.IsZero() {
		in.ArrivalTime = now
	}
	if in.Status == "" {
		in.Status = models.PatientWaiting
	}
	q := `
		INSERT INTO patients
		  (id, first_name, last_name, date_of_birth, chief_complaint, risk_level,
		   shock_index, early_warning_score, status, arrival_time,
		   required_resource_types, required_specialties, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
	`
	_, err := p.db.ExecContext(ctx, q,
		in.ID, in.FirstName, in.LastName, in.DateOfBirth, in.ChiefComplaint, in.RiskLevel,
		in.ShockIndex, in.EarlyWarningScore, in.Status, in.ArrivalTime,
		pq.Array(in.RequiredResourceTypes), pq.Array(in.RequiredSpecialties), now,
	)
	if err != nil {
		return models.Patient{}, fmt.Errorf("insert patient: %w", err)
	}
	return p.GetPatient(ctx, in.ID)
}

func (p *PGStore) GetPatient(ctx context.Context, id uuid.UUID) (models.Patient, error) {
	q := `SELECT ` + patientColumns + ` FROM patients WHERE id=$1`
	pt, err := scanPatient(p.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Patient{}, ErrNotFound
		}
		return models.Patient{}, fmt.Errorf("query patient: %w", err)
	}
	return pt, nil
}

func (p *PGStore) ListPatients(ctx context.Context, filter PatientFilter) ([]models.Patient, error) {
	q := `SELECT ` + patientColumns + ` FROM patients`
	var args []interface{}
	if filter.Status != "" {
		q += ` WHERE status=$1`
		args = append(args, filter.Status)
	}
	q += ` ORDER BY arrival_time ASC`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()
	var out []models.Patient
	for rows.Next() {
		pt, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (p *PGStore) UpdatePatient(ctx context.Context, id uuid.UUID, in PatientUpdate) (models.Patient, error) {
	// Read-modify-write keeps the query simple; concurrent field updates on
	// the same patient are not a case the upstream surface produces.
	current, err := p.GetPatient(ctx, id)
	if err != nil {
		return models.Patient{}, err
	}
	if in.FirstName != nil {
		current.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		current.LastName = *in.LastName
	}
	if in.ChiefComplaint != nil {
		current.ChiefComplaint = *in.ChiefComplaint
	}
	if in.RiskLevel != nil {
		current.RiskLevel = *in.RiskLevel
	}
	if in.ShockIndex != nil {
		current.ShockIndex = *in.ShockIndex
	}
	if in.EarlyWarningScore != nil {
		current.EarlyWarningScore = *in.EarlyWarningScore
	}
	if in.RequiredResourceTypes != nil {
		current.RequiredResourceTypes = in.RequiredResourceTypes
	}
	if in.RequiredSpecialties != nil {
		current.RequiredSpecialties = in.RequiredSpecialties
	}
	q := `
		UPDATE patients SET
		  first_name=$2, last_name=$3, chief_complaint=$4, risk_level=$5,
		  shock_index=$6, early_warning_score=$7,
		  required_resource_types=$8, required_specialties=$9, updated_at=$10
		WHERE id=$1
	`
	_, err = p.db.ExecContext(ctx, q,
		id, current.FirstName, current.LastName, current.ChiefComplaint, current.RiskLevel,
		current.ShockIndex, current.EarlyWarningScore,
		pq.Array(current.RequiredResourceTypes), pq.Array(current.RequiredSpecialties),
		time.Now().UTC(),
	)
	if err != nil {
		return models.Patient{}, fmt.Errorf("update patient: %w", err)
	}
	return p.GetPatient(ctx, id)
}

func (p *PGStore) UpdatePatientStatus(ctx context.Context, id uuid.UUID, status string, treatmentStart *time.Time) (models.Patient, error) {
	var res sql.Result
	var err error
	if treatmentStart != nil {
		q := `UPDATE patients SET status=$2, treatment_start_time=$3, updated_at=$4 WHERE id=$1`
		res, err = p.db.ExecContext(ctx, q, id, status, *treatmentStart, time.Now().UTC())
	} else {
		q := `UPDATE patients SET status=$2, updated_at=$3 WHERE id=$1`
		res, err = p.db.ExecContext(ctx, q, id, status, time.Now().UTC())
	}
	if err != nil {
		return models.Patient{}, fmt.Errorf("update patient status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Patient{}, ErrNotFound
	}
	return p.GetPatient(ctx, id)
}

func (p *PGStore) UpdatePatientScore(ctx context.Context, id uuid.UUID, score float64, at time.Time) error {
	q := `UPDATE patients SET priority_score=$2, last_priority_update=$3 WHERE id=$1`
	res, err := p.db.ExecContext(ctx, q, id, score, at)
	if err != nil {
		return fmt.Errorf("update patient score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGStore) DeletePatient(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM patients WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGStore) CreateStaff(ctx context.Context, in StaffInput) (models.StaffMember, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.Status == "" {
		in.Status = models.StaffAvailable
	}
	now := time.Now().UTC()
	q := `
		INSERT INTO staff (id, name, specialty, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
	`
	if _, err := p.db.ExecContext(ctx, q, in.ID, in.Name, in.Specialty, in.Status, now); err != nil {
		return models.StaffMember{}, fmt.Errorf("insert staff: %w", err)
	}
	return models.StaffMember{
		ID: in.ID, Name: in.Name, Specialty: in.Specialty, Status: in.Status,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (p *PGStore) GetStaff(ctx context.Context, id uuid.UUID) (models.StaffMember, error) {
	q := `SELECT id, name, specialty, status, created_at, updated_at FROM staff WHERE id=$1`
	var s models.StaffMember
	err := p.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.Name, &s.Specialty, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.StaffMember{}, ErrNotFound
		}
		return models.StaffMember{}, fmt.Errorf("query staff: %w", err)
	}
	return s, nil
}

func (p *PGStore) ListStaff(ctx context.Context, filter StaffFilter) ([]models.StaffMember, error) {
	q := `SELECT id, name, specialty, status, created_at, updated_at FROM staff`
	var (
		args  []interface{}
		where []string
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Specialty != "" {
		args = append(args, filter.Specialty)
		where = append(where, fmt.Sprintf("specialty=$%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			q += " WHERE " + w
		} else {
			q += " AND " + w
		}
	}
	q += ` ORDER BY created_at ASC`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()
	var out []models.StaffMember
	for rows.Next() {
		var s models.StaffMember
		if err := rows.Scan(&s.ID, &s.Name, &s.Specialty, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan staff: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PGStore) UpdateStaffStatus(ctx context.Context, id uuid.UUID, status string) (models.StaffMember, error) {
	q := `UPDATE staff SET status=$2, updated_at=$3 WHERE id=$1`
	res, err := p.db.ExecContext(ctx, q, id, status, time.Now().UTC())
	if err != nil {
		return models.StaffMember{}, fmt.Errorf("update staff status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.StaffMember{}, ErrNotFound
	}
	return p.GetStaff(ctx, id)
}

func (p *PGStore) DeleteStaff(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM staff WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete staff: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const resourceColumns = `id, name, type, status, capacity, available_capacity, current_patient_id, created_at, updated_at`

func scanResource(row interface{ Scan(...interface{}) error }) (models.Resource, error) {
	var (
		r       models.Resource
		current uuid.NullUUID
	)
	err := row.Scan(&r.ID, &r.Name, &r.Type, &r.Status, &r.Capacity, &r.AvailableCapacity, &current, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.Resource{}, err
	}
	if current.Valid {
		id := current.UUID
		r.CurrentPatientID = &id
	}
	return r, nil
}

func (p *PGStore) CreateResource(ctx context.Context, in ResourceInput) (models.Resource, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.Status == "" {
		in.Status = models.ResourceAvailable
	}
	if in.Capacity <= 0 {
		in.Capacity = 1
	}
	if in.AvailableCapacity < 0 || in.AvailableCapacity > in.Capacity {
		in.AvailableCapacity = in.Capacity
	}
	now := time.Now().UTC()
	q := `
		INSERT INTO resources (id, name, type, status, capacity, available_capacity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
	`
	if _, err := p.db.ExecContext(ctx, q, in.ID, in.Name, in.Type, in.Status, in.Capacity, in.AvailableCapacity, now); err != nil {
		return models.Resource{}, fmt.Errorf("insert resource: %w", err)
	}
	return models.Resource{
		ID: in.ID, Name: in.Name, Type: in.Type, Status: in.Status,
		Capacity: in.Capacity, AvailableCapacity: in.AvailableCapacity,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (p *PGStore) GetResource(ctx context.Context, id uuid.UUID) (models.Resource, error) {
	q := `SELECT ` + resourceColumns + ` FROM resources WHERE id=$1`
	r, err := scanResource(p.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Resource{}, ErrNotFound
		}
		return models.Resource{}, fmt.Errorf("query resource: %w", err)
	}
	return r, nil
}

func (p *PGStore) ListResources(ctx context.Context, filter ResourceFilter) ([]models.Resource, error) {
	q := `SELECT ` + resourceColumns + ` FROM resources`
	var (
		args  []interface{}
		where []string
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type=$%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			q += " WHERE " + w
		} else {
			q += " AND " + w
		}
	}
	q += ` ORDER BY created_at ASC`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()
	var out []models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PGStore) UpdateResourceStatus(ctx context.Context, id uuid.UUID, status string, currentPatientID *uuid.UUID) (models.Resource, error) {
	current, err := p.GetResource(ctx, id)
	if err != nil {
		return models.Resource{}, err
	}
	avail := current.AvailableCapacity
	switch {
	case current.Status == models.ResourceAvailable && status == models.ResourceInUse:
		if avail > 0 {
			avail--
		}
	case current.Status == models.ResourceInUse && status == models.ResourceAvailable:
		if avail < current.Capacity {
			avail++
		}
	}
	var patientID uuid.NullUUID
	if status == models.ResourceInUse && currentPatientID != nil {
		patientID = uuid.NullUUID{UUID: *currentPatientID, Valid: true}
	}
	q := `UPDATE resources SET status=$2, available_capacity=$3, current_patient_id=$4, updated_at=$5 WHERE id=$1`
	if _, err := p.db.ExecContext(ctx, q, id, status, avail, patientID, time.Now().UTC()); err != nil {
		return models.Resource{}, fmt.Errorf("update resource status: %w", err)
	}
	return p.GetResource(ctx, id)
}

func (p *PGStore) DeleteResource(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM resources WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGStore) GetSetting(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	q := `SELECT value FROM system_settings WHERE key=$1`
	if err := p.db.QueryRowContext(ctx, q, key).Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query setting: %w", err)
	}
	return value, nil
}

func (p *PGStore) PutSetting(ctx context.Context, key string, value []byte) error {
	q := `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at
	`
	if _, err := p.db.ExecContext(ctx, q, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}
