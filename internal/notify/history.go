package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// HistoryLimit is the number of entries the history view returns.
const HistoryLimit = 100

// Record is one delivery attempt.
type Record struct {
	ID            uuid.UUID      `json:"id"`
	AppointmentID *uuid.UUID     `json:"appointment_id,omitempty"`
	Kind          Kind           `json:"kind"`
	Channel       Channel        `json:"channel"`
	Status        DeliveryStatus `json:"status"`
	Recipient     string         `json:"recipient"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// History stores delivery records.
type History interface {
	Append(ctx context.Context, r *Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGHistory keeps records in the notification_log table.
type PGHistory struct {
	db DB
}

func NewPGHistory(db DB) *PGHistory {
	return &PGHistory{db: db}
}

func (h *PGHistory) Append(ctx context.Context, r *Record) error {
	stamp(r)
	_, err := h.db.Exec(ctx, `
		INSERT INTO notification_log (id, appointment_id, kind, channel, status, recipient, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.AppointmentID, string(r.Kind), string(r.Channel), string(r.Status), r.Recipient, r.Error, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("notify: append history: %w", err)
	}
	return nil
}

func (h *PGHistory) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	rows, err := h.db.Query(ctx, `
		SELECT id, appointment_id, kind, channel, status, recipient, error, created_at
		FROM notification_log
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: recent history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                     Record
			kind, channel, status string
		)
		if err := rows.Scan(&r.ID, &r.AppointmentID, &kind, &channel, &status, &r.Recipient, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan history: %w", err)
		}
		r.Kind, r.Channel, r.Status = Kind(kind), Channel(channel), DeliveryStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MemoryHistory is a bounded in-process History.
type MemoryHistory struct {
	mu      sync.Mutex
	records []Record
	max     int
}

func NewMemoryHistory(max int) *MemoryHistory {
	if max <= 0 {
		max = 1000
	}
	return &MemoryHistory{max: max}
}

func (h *MemoryHistory) Append(_ context.Context, r *Record) error {
	stamp(r)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, *r)
	if len(h.records) > h.max {
		h.records = h.records[len(h.records)-h.max:]
	}
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	h.mu.Lock()
	out := append([]Record(nil), h.records...)
	h.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func stamp(r *Record) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
}
