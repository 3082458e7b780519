package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// FileStore is a simple file-backed audit log for dev deployments without
// Postgres. One JSON file per record.
type FileStore struct {
	dir string
}

// NewFileStore returns a new FileStore and ensures the directory exists.
func NewFileStore(dir string) *FileStore {
	_ = os.MkdirAll(dir, 0o755)
	return &FileStore{dir: dir}
}

func (f *FileStore) Ping(ctx context.Context) error { return nil }

func (f *FileStore) Append(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	path := filepath.Join(f.dir, fmt.Sprintf("priority_%s.json", rec.ID))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write audit file: %w", err)
	}
	return nil
}

func (f *FileStore) QueryRecords(ctx context.Context, q Query) ([]Record, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "priority_*.json"))
	if err != nil {
		return nil, fmt.Errorf("list audit files: %w", err)
	}
	var out []Record
	for _, path := range matches {
		b, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			continue
		}
		if q.PatientID != nil && rec.PatientID != *q.PatientID {
			continue
		}
		if q.Since != nil && rec.CreatedAt.Before(*q.Since) {
			continue
		}
		if q.Until != nil && rec.CreatedAt.After(*q.Until) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
