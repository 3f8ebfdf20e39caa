package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gynoconnect/clinic-scheduler/internal/notify"
	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
)

// Ledger remembers which reminders went out. Claim reports true exactly once
// per key; callers claim before sending.
type Ledger interface {
	Claim(ctx context.Context, key string, day schedule.Date) (bool, error)
}

// Key builds the ledger key {kind}-{appointmentId}-{YYYY-MM-DD}.
func Key(kind notify.Kind, appointmentID uuid.UUID, day schedule.Date) string {
	return fmt.Sprintf("%s-%s-%s", kind, appointmentID, day)
}

// MemoryLedger keeps claims for the current day and forgets earlier days.
type MemoryLedger struct {
	mu    sync.Mutex
	byDay map[schedule.Date]map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{byDay: make(map[schedule.Date]map[string]struct{})}
}

func (l *MemoryLedger) Claim(_ context.Context, key string, day schedule.Date) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for d := range l.byDay {
		if d.Before(day) {
			delete(l.byDay, d)
		}
	}
	keys, ok := l.byDay[day]
	if !ok {
		keys = make(map[string]struct{})
		l.byDay[day] = keys
	}
	if _, seen := keys[key]; seen {
		return false, nil
	}
	keys[key] = struct{}{}
	return true, nil
}

// Size returns the number of claims held.
func (l *MemoryLedger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, keys := range l.byDay {
		n += len(keys)
	}
	return n
}

const (
	defaultLedgerPrefix = "reminders:sent:"
	defaultLedgerTTL    = 48 * time.Hour
)

// RedisLedger shares claims between processes with SETNX.
type RedisLedger struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisLedger(client redis.Cmdable) *RedisLedger {
	if client == nil {
		panic("reminders: redis client required")
	}
	return &RedisLedger{client: client, prefix: defaultLedgerPrefix, ttl: defaultLedgerTTL}
}

func (l *RedisLedger) Claim(ctx context.Context, key string, day schedule.Date) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+key, day.String(), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reminders: claim %s: %w", key, err)
	}
	return ok, nil
}
