package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PGStore persists audit records into Postgres. Rows carry a stream_status
// column (pending / in_progress / shipped / failed) driving the DB-first
// shipping pipeline in Streamer: the database is the source of truth for
// which records still need to reach Kafka and S3.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a Postgres-backed audit store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Ping verifies connectivity to Postgres.
func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Append inserts the record with stream_status 'pending'.
func (p *PGStore) Append(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	q := `
		INSERT INTO priority_audit
		  (id, patient_id, previous_score, new_score, risk_level, waiting_minutes,
		   resource_ratio, staff_ratio, reason, created_at, stream_status, attempts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'pending',0)
	`
	var prev sql.NullFloat64
	if rec.PreviousScore != nil {
		prev = sql.NullFloat64{Float64: *rec.PreviousScore, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, q,
		rec.ID, rec.PatientID, prev, rec.NewScore, rec.RiskLevel, rec.WaitingMinutes,
		rec.ResourceRatio, rec.StaffRatio, rec.Reason, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

const recordColumns = `id, patient_id, previous_score, new_score, risk_level, waiting_minutes,
resource_ratio, staff_ratio, reason, created_at`

func scanRecord(row interface{ Scan(...interface{}) error }) (Record, error) {
	var (
		rec  Record
		prev sql.NullFloat64
	)
	err := row.Scan(&rec.ID, &rec.PatientID, &prev, &rec.NewScore, &rec.RiskLevel,
		&rec.WaitingMinutes, &rec.ResourceRatio, &rec.StaffRatio, &rec.Reason, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	if prev.Valid {
		v := prev.Float64
		rec.PreviousScore = &v
	}
	return rec, nil
}

// QueryRecords retrieves records matching q, newest first.
func (p *PGStore) QueryRecords(ctx context.Context, q Query) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM priority_audit`
	var (
		args  []interface{}
		where []string
	)
	if q.PatientID != nil {
		args = append(args, *q.PatientID)
		where = append(where, fmt.Sprintf("patient_id=$%d", len(args)))
	}
	if q.Since != nil {
		args = append(args, *q.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if q.Until != nil {
		args = append(args, *q.Until)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY created_at DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FetchPendingRecords claims up to limit records for shipping: rows are
// selected FOR UPDATE SKIP LOCKED so concurrent streamers never claim the
// same record, then flipped to in_progress with attempts incremented.
func (p *PGStore) FetchPendingRecords(ctx context.Context, limit int) ([]Record, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	q := `
		SELECT ` + recordColumns + `
		FROM priority_audit
		WHERE stream_status IN ('pending','failed')
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending records: %w", err)
	}
	var claimed []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pending record: %w", err)
		}
		claimed = append(claimed, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range claimed {
		if _, err := tx.ExecContext(ctx,
			`UPDATE priority_audit SET stream_status='in_progress', attempts=attempts+1 WHERE id=$1`,
			rec.ID,
		); err != nil {
			return nil, fmt.Errorf("claim record %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return claimed, nil
}

// MarkStreamResult records the outcome of shipping one record. On success the
// S3 object key (when archived) is persisted alongside; on failure the error
// message is kept and the row returns to the retry pool.
func (p *PGStore) MarkStreamResult(ctx context.Context, id uuid.UUID, s3Key sql.NullString, ok bool, errMsg sql.NullString) error {
	status := "shipped"
	if !ok {
		status = "failed"
	}
	q := `UPDATE priority_audit SET stream_status=$2, s3_object_key=$3, last_error=$4, shipped_at=$5 WHERE id=$1`
	var shippedAt sql.NullTime
	if ok {
		shippedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	if _, err := p.db.ExecContext(ctx, q, id, status, s3Key, errMsg, shippedAt); err != nil {
		return fmt.Errorf("mark stream result: %w", err)
	}
	return nil
}
