package pass

import (
	"context"
	"database/sql"
	"sync"
)

// Repository reads pass requests from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListByUsername returns a user's requests in creation order.
func (r *Repository) ListByUsername(ctx context.Context, username string) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, type, status, COALESCE(pass_date::text, ''), COALESCE(arrival_time, ''), COALESCE(reason, ''), created_at
		FROM pass_requests
		WHERE username = $1
		ORDER BY created_at, id
	`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Request
	for rows.Next() {
		var (
			req         Request
			typ, status string
		)
		if err := rows.Scan(&req.ID, &req.Username, &typ, &status, &req.Date, &req.ArrivalTime, &req.Reason, &req.CreatedAt); err != nil {
			return nil, err
		}
		req.Type = Type(typ)
		req.Status = Status(status)
		res = append(res, req)
	}
	return res, rows.Err()
}

// Memory holds pass requests in process, for development and tests.
type Memory struct {
	mu   sync.RWMutex
	reqs map[string][]Request
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{reqs: make(map[string][]Request)}
}

// Add files a request.
func (m *Memory) Add(req Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs[req.Username] = append(m.reqs[req.Username], req)
}

// ListByUsername returns a copy of the user's requests.
func (m *Memory) ListByUsername(_ context.Context, username string) ([]Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Request(nil), m.reqs[username]...), nil
}
