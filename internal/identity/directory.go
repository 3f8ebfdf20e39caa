package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lib/pq"
)

var (
	// ErrUnavailable wraps failures of the backing directory.
	ErrUnavailable = errors.New("identity: directory unavailable")
	// ErrPersonNotFound is returned when an email or id is unknown.
	ErrPersonNotFound = errors.New("identity: person not found")
	// ErrNoDoctor is returned when no doctor is registered.
	ErrNoDoctor = errors.New("identity: no doctor registered")
)

// Person is the subset of a user record the scheduler needs.
type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
}

// Directory resolves users owned by the authentication system.
type Directory interface {
	Lookup(ctx context.Context, ids ...string) (map[string]Person, error)
	FindPatientByEmail(ctx context.Context, email string) (*Person, error)
	// Doctors lists registered doctors ordered by id.
	Doctors(ctx context.Context) ([]Person, error)
}

// SQLDirectory reads the users table over database/sql.
type SQLDirectory struct {
	db *sql.DB
}

func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

func (d *SQLDirectory) Lookup(ctx context.Context, ids ...string) (map[string]Person, error) {
	out := make(map[string]Person, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), role
		FROM users
		WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("%w: lookup: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Role); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (d *SQLDirectory) FindPatientByEmail(ctx context.Context, email string) (*Person, error) {
	var p Person
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), role
		FROM users
		WHERE lower(email) = lower($1) AND role = 'patient'`, strings.TrimSpace(email)).
		Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find by email: %v", ErrUnavailable, err)
	}
	return &p, nil
}

func (d *SQLDirectory) Doctors(ctx context.Context) ([]Person, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), role
		FROM users
		WHERE role = 'doctor'
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: doctors: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []Person
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Role); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MemoryDirectory is a fixed in-process directory.
type MemoryDirectory struct {
	mu     sync.RWMutex
	people map[string]Person
	// Err, when set, is returned from every call.
	Err error
}

func NewMemoryDirectory(people ...Person) *MemoryDirectory {
	d := &MemoryDirectory{people: make(map[string]Person)}
	for _, p := range people {
		d.people[p.ID] = p
	}
	return d
}

// Put adds or replaces a person.
func (d *MemoryDirectory) Put(p Person) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.people[p.ID] = p
}

func (d *MemoryDirectory) Lookup(_ context.Context, ids ...string) (map[string]Person, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]Person, len(ids))
	for _, id := range ids {
		if p, ok := d.people[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (d *MemoryDirectory) FindPatientByEmail(_ context.Context, email string) (*Person, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.people {
		if p.Role == "patient" && strings.EqualFold(p.Email, strings.TrimSpace(email)) {
			found := p
			return &found, nil
		}
	}
	return nil, ErrPersonNotFound
}

func (d *MemoryDirectory) Doctors(_ context.Context) ([]Person, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Person
	for _, p := range d.people {
		if p.Role == "doctor" {
			out = append(out, p)
		}
	}
	sortByID(out)
	return out, nil
}
