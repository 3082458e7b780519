package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/triageai/backend/internal/models"
)

func TestFileStoreAppendAndQuery(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	ctx := context.Background()

	patientA := uuid.New()
	patientB := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, rec := range []*Record{
		{PatientID: patientA, NewScore: 0.3, RiskLevel: models.RiskLow, Reason: ReasonScheduled},
		{PatientID: patientA, NewScore: 0.4, RiskLevel: models.RiskLow, Reason: ReasonStatusChange},
		{PatientID: patientB, NewScore: 0.9, RiskLevel: models.RiskHigh, Reason: ReasonScheduled},
	} {
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := fs.Append(ctx, rec); err != nil {
			t.Fatalf("append record %d: %v", i, err)
		}
		if rec.ID == uuid.Nil {
			t.Fatalf("append did not assign an id")
		}
	}

	all, err := fs.QueryRecords(ctx, Query{})
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	// newest first
	if !all[0].CreatedAt.After(all[2].CreatedAt) {
		t.Fatalf("records not ordered newest first")
	}

	byPatient, err := fs.QueryRecords(ctx, Query{PatientID: &patientA})
	if err != nil {
		t.Fatalf("query by patient: %v", err)
	}
	if len(byPatient) != 2 {
		t.Fatalf("expected 2 records for patient A, got %d", len(byPatient))
	}

	since := base.Add(90 * time.Second)
	recent, err := fs.QueryRecords(ctx, Query{Since: &since})
	if err != nil {
		t.Fatalf("query since: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent record, got %d", len(recent))
	}

	limited, err := fs.QueryRecords(ctx, Query{Limit: 1})
	if err != nil {
		t.Fatalf("query limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to cap results, got %d", len(limited))
	}
}
