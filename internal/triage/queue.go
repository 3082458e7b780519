package triage

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/triageai/backend/internal/audit"
	"github.com/triageai/backend/internal/models"
	"github.com/triageai/backend/internal/store"
)

// QueueEntry is one row of the published ordering. Derived, never stored;
// rebuilt from scratch every recompute cycle.
type QueueEntry struct {
	PatientID      uuid.UUID        `json:"patientId"`
	Rank           int              `json:"rank"`
	PriorityScore  float64          `json:"priorityScore"`
	RiskLevel      models.RiskLevel `json:"riskLevel"`
	ArrivalTime    time.Time        `json:"arrivalTime"`
	WaitingMinutes int              `json:"waitingMinutes"`
}

// ErrDuplicatePatient aborts a recompute cycle that saw the same patient id
// twice in the waiting set. The previous ordering stays published.
var ErrDuplicatePatient = fmt.Errorf("duplicate patient id in waiting set")

// Engine owns the authoritative ordering of waiting patients. A recompute
// scores every waiting patient against one settings snapshot, sorts with the
// multi-key tie-break rules, then swaps the published ordering atomically so
// readers never observe a partially updated queue.
type Engine struct {
	st       store.Store
	capacity *CapacityTracker
	settings *SettingsStore
	auditLog audit.Store

	// now is the clock; replaceable in tests.
	now func() time.Time

	mu        sync.RWMutex
	published []QueueEntry
}

// NewEngine constructs the queue ordering engine. auditLog may be nil to
// disable the audit trail.
func NewEngine(st store.Store, capacity *CapacityTracker, settings *SettingsStore, auditLog audit.Store) *Engine {
	return &Engine{
		st:       st,
		capacity: capacity,
		settings: settings,
		auditLog: auditLog,
		now:      time.Now,
	}
}

// Ordering returns the currently published ordering. The returned slice is a
// copy.
func (e *Engine) Ordering() []QueueEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]QueueEntry, len(e.published))
	copy(out, e.published)
	return out
}

// Recompute scores all currently-waiting patients and republishes the full
// ordering. Reason tags the resulting audit records.
//
// Partial recompute is never valid: waiting time has advanced for every
// patient since the last run.
func (e *Engine) Recompute(ctx context.Context, reason string) error {
	now := e.now().UTC()
	cfg, cfgVersion := e.settings.Snapshot()

	patients, err := e.st.ListPatients(ctx, store.PatientFilter{Status: models.PatientWaiting})
	if err != nil {
		// retain the previous ordering; the queue degrades to last known
		// order rather than disappearing
		return fmt.Errorf("list waiting patients: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(patients))
	for _, p := range patients {
		if _, dup := seen[p.ID]; dup {
			log.Printf("[triage.queue] %v: %s, skipping cycle, previous ordering retained", ErrDuplicatePatient, p.ID)
			return fmt.Errorf("%w: %s", ErrDuplicatePatient, p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	// One capacity view per cycle. Every patient is scoped against the same
	// frozen staff and resource records, so a concurrent capacity write can
	// never split one published ordering across old and new pools.
	view, err := e.capacity.Load(ctx)
	if err != nil {
		// neutral ratios for this cycle only; never block the pipeline
		log.Printf("[triage.queue] capacity read failed, using neutral ratios this cycle: %v", err)
		view = nil
	}

	type scored struct {
		patient models.Patient
		entry   QueueEntry
		snap    CapacitySnapshot
	}
	rows := make([]scored, 0, len(patients))
	for _, p := range patients {
		snap := NeutralCapacity()
		if view != nil {
			snap = view.Snapshot(p.RequiredResourceTypes, p.RequiredSpecialties)
		}
		score := Score(p.RiskLevel, p.ArrivalTime, now, snap, cfg)
		rows = append(rows, scored{
			patient: p,
			snap:    snap,
			entry: QueueEntry{
				PatientID:      p.ID,
				PriorityScore:  score,
				RiskLevel:      p.RiskLevel,
				ArrivalTime:    p.ArrivalTime,
				WaitingMinutes: int(now.Sub(p.ArrivalTime).Minutes()),
			},
		})
	}

	// Stable multi-key sort. The store lists patients in arrival order, so
	// repeated runs over unchanged inputs yield identical sequences and
	// unchanged keys never jitter.
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].entry, rows[j].entry
		if cfg.RiskGatesOrdering && a.RiskLevel != b.RiskLevel {
			return a.RiskLevel > b.RiskLevel
		}
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		return a.ArrivalTime.Before(b.ArrivalTime)
	})

	entries := make([]QueueEntry, len(rows))
	for i := range rows {
		rows[i].entry.Rank = i + 1
		entries[i] = rows[i].entry
	}

	// Audit + write-back for every patient whose score changed or was
	// initialized. Failures are logged and dropped: the audit trail and the
	// score cache are observability, not inputs.
	for _, row := range rows {
		prev := row.patient.PriorityScore
		if prev != nil && *prev == row.entry.PriorityScore {
			continue
		}
		if err := e.st.UpdatePatientScore(ctx, row.patient.ID, row.entry.PriorityScore, now); err != nil {
			log.Printf("[triage.queue] write back score for %s: %v", row.patient.ID, err)
		}
		if e.auditLog == nil {
			continue
		}
		rec := &audit.Record{
			PatientID:      row.patient.ID,
			PreviousScore:  prev,
			NewScore:       row.entry.PriorityScore,
			RiskLevel:      row.patient.RiskLevel,
			WaitingMinutes: row.entry.WaitingMinutes,
			ResourceRatio:  row.snap.ResourceAvailableRatio,
			StaffRatio:     row.snap.StaffAvailableRatio,
			Reason:         reason,
			CreatedAt:      now,
		}
		if err := e.auditLog.Append(ctx, rec); err != nil {
			log.Printf("[triage.queue] audit append for %s: %v", row.patient.ID, err)
		}
	}

	e.mu.Lock()
	e.published = entries
	e.mu.Unlock()

	log.Printf("[triage.queue] recomputed ordering: %d waiting, reason=%s, settings_version=%d", len(entries), reason, cfgVersion)
	return nil
}
