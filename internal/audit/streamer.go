package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// Producer is the subset of Kafka producer behavior the streamer needs.
type Producer interface {
	Produce(ctx context.Context, key []byte, value []byte) (time.Time, error)
	Close() error
}

// StreamerConfig configures the DB-first shipping pipeline.
type StreamerConfig struct {
	// How many records to claim per batch.
	BatchSize int

	// PollInterval when there is no pending work.
	PollInterval time.Duration
}

// Streamer ships audit records out of Postgres: it claims pending rows
// (SKIP LOCKED), produces each to Kafka, archives to S3 when an archiver is
// configured, and marks the row shipped or failed so the database drives
// retries. Shipping is strictly downstream of the scoring pipeline and can
// never stall it.
type Streamer struct {
	store    *PGStore
	producer Producer
	archiver Archiver
	cfg      StreamerConfig
}

// NewStreamer constructs a streamer; zero config fields get defaults. The
// archiver may be nil (Kafka-only shipping).
func NewStreamer(store *PGStore, producer Producer, archiver Archiver, cfg StreamerConfig) *Streamer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &Streamer{store: store, producer: producer, archiver: archiver, cfg: cfg}
}

// Run polls for pending records until ctx is cancelled. Safe to run in a
// goroutine.
func (s *Streamer) Run(ctx context.Context) error {
	log.Printf("[audit.streamer] starting (batch=%d, poll=%s)", s.cfg.BatchSize, s.cfg.PollInterval)
	defer log.Printf("[audit.streamer] stopped")

	for {
		select {
		case <-ctx.Done():
			if s.producer != nil {
				_ = s.producer.Close()
			}
			return ctx.Err()
		default:
		}

		records, err := s.store.FetchPendingRecords(ctx, s.cfg.BatchSize)
		if err != nil {
			log.Printf("[audit.streamer] fetch pending: %v", err)
			sleepOrDone(ctx, s.cfg.PollInterval)
			continue
		}
		if len(records) == 0 {
			sleepOrDone(ctx, s.cfg.PollInterval)
			continue
		}

		for i := range records {
			if err := s.processRecord(ctx, &records[i]); err != nil {
				log.Printf("[audit.streamer] process record %s: %v", records[i].ID, err)
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// processRecord performs produce -> archive for one record and writes the
// outcome back via MarkStreamResult.
func (s *Streamer) processRecord(parentCtx context.Context, rec *Record) error {
	ctx, cancel := context.WithTimeout(parentCtx, 30*time.Second)
	defer cancel()

	payload, err := json.Marshal(rec)
	if err != nil {
		errMsg := sql.NullString{String: fmt.Sprintf("marshal record: %v", err), Valid: true}
		_ = s.store.MarkStreamResult(parentCtx, rec.ID, sql.NullString{}, false, errMsg)
		return fmt.Errorf("marshal record: %w", err)
	}

	// key by patient id so per-patient ordering survives partitioning
	if _, err := s.producer.Produce(ctx, []byte(rec.PatientID.String()), payload); err != nil {
		errMsg := sql.NullString{String: fmt.Sprintf("kafka produce: %v", err), Valid: true}
		_ = s.store.MarkStreamResult(parentCtx, rec.ID, sql.NullString{}, false, errMsg)
		return fmt.Errorf("kafka produce: %w", err)
	}

	var archivedKey sql.NullString
	if s.archiver != nil {
		key, err := s.archiver.ArchiveRecord(ctx, rec)
		if err != nil {
			errMsg := sql.NullString{String: fmt.Sprintf("s3 archive: %v", err), Valid: true}
			_ = s.store.MarkStreamResult(parentCtx, rec.ID, sql.NullString{}, false, errMsg)
			return fmt.Errorf("s3 archive: %w", err)
		}
		archivedKey = sql.NullString{String: key, Valid: true}
	}

	if err := s.store.MarkStreamResult(parentCtx, rec.ID, archivedKey, true, sql.NullString{}); err != nil {
		return fmt.Errorf("mark stream success: %w", err)
	}
	return nil
}
