package queue

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-queue/internal/appointment"
	"github.com/hackgods/clinic-queue/internal/db"
)

// StatusStore persists one snapshot per department.
type StatusStore interface {
	Upsert(ctx context.Context, status appointment.DepartmentQueueStatus) error
	Get(ctx context.Context, department string) (*appointment.DepartmentQueueStatus, error)
	List(ctx context.Context) ([]appointment.DepartmentQueueStatus, error)
}

type PgStatusStore struct {
	db db.DBTX
}

func NewPgStatusStore(pool *pgxpool.Pool) *PgStatusStore {
	return newPgStatusStoreWithDB(pool)
}

func newPgStatusStoreWithDB(conn db.DBTX) *PgStatusStore {
	return &PgStatusStore{db: conn}
}

func scanStatus(row pgx.Row) (*appointment.DepartmentQueueStatus, error) {
	var s appointment.DepartmentQueueStatus
	var checkedIn, inProgress int32

	err := row.Scan(&s.Department, &checkedIn, &inProgress, &s.AvgWaitTime, &s.EstimatedWait, &s.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatusNotFound
		}
		return nil, err
	}
	s.CheckedInCount = int(checkedIn)
	s.InProgressCount = int(inProgress)
	return &s, nil
}

func (s *PgStatusStore) Upsert(ctx context.Context, status appointment.DepartmentQueueStatus) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO department_queue_status (department, checked_in_count, in_progress_count, avg_wait_time, estimated_wait, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (department) DO UPDATE
		SET checked_in_count = EXCLUDED.checked_in_count,
		    in_progress_count = EXCLUDED.in_progress_count,
		    avg_wait_time = EXCLUDED.avg_wait_time,
		    estimated_wait = EXCLUDED.estimated_wait,
		    last_updated = EXCLUDED.last_updated
	`,
		status.Department,
		int32(status.CheckedInCount),
		int32(status.InProgressCount),
		status.AvgWaitTime,
		status.EstimatedWait,
		status.LastUpdated,
	)
	return err
}

func (s *PgStatusStore) Get(ctx context.Context, department string) (*appointment.DepartmentQueueStatus, error) {
	row := s.db.QueryRow(ctx, `
		SELECT department, checked_in_count, in_progress_count, avg_wait_time, estimated_wait, last_updated
		FROM department_queue_status
		WHERE department = $1
	`, department)
	return scanStatus(row)
}

func (s *PgStatusStore) List(ctx context.Context) ([]appointment.DepartmentQueueStatus, error) {
	rows, err := s.db.Query(ctx, `
		SELECT department, checked_in_count, in_progress_count, avg_wait_time, estimated_wait, last_updated
		FROM department_queue_status
		ORDER BY department
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []appointment.DepartmentQueueStatus
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// MemoryStatusStore keeps snapshots in process.
type MemoryStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]appointment.DepartmentQueueStatus
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{statuses: make(map[string]appointment.DepartmentQueueStatus)}
}

func (m *MemoryStatusStore) Upsert(_ context.Context, status appointment.DepartmentQueueStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.Department] = status
	return nil
}

func (m *MemoryStatusStore) Get(_ context.Context, department string) (*appointment.DepartmentQueueStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[department]
	if !ok {
		return nil, ErrStatusNotFound
	}
	return &s, nil
}

func (m *MemoryStatusStore) List(_ context.Context) ([]appointment.DepartmentQueueStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]appointment.DepartmentQueueStatus, 0, len(m.statuses))
	for _, s := range m.statuses {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b appointment.DepartmentQueueStatus) int {
		return strings.Compare(a.Department, b.Department)
	})
	return out, nil
}
