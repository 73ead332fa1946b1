package attendance

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"campusgate/internal/directory"
)

// Memory is an in-process Store used for development and tests.
type Memory struct {
	mu        sync.Mutex
	records   map[string]Record
	log       []AccessLogEntry
	terminals map[string]time.Time
	tokens    map[string]issuedToken
}

type issuedToken struct {
	terminalID string
	expiresAt  time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		records:   make(map[string]Record),
		terminals: make(map[string]time.Time),
		tokens:    make(map[string]issuedToken),
	}
}

func recordKey(personID string, role directory.Role, day string) string {
	return string(role) + "/" + personID + "/" + day
}

// Today returns a copy of the stored record or nil.
func (m *Memory) Today(_ context.Context, personID string, role directory.Role, day string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordKey(personID, role, day)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Apply performs the same version check as the Postgres repository.
func (m *Memory) Apply(_ context.Context, t Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec := t.Record; rec != nil {
		key := recordKey(rec.PersonID, rec.Role, rec.Day)
		stored, exists := m.records[key]
		var current int64
		if exists {
			current = stored.Version
		}
		if current != t.ExpectedVersion {
			return ErrConflict
		}
		next := *rec
		next.Version = current + 1
		m.records[key] = next
	}
	m.log = append(m.log, t.Entry)
	return nil
}

// ListAccessLog returns matching entries, newest first.
func (m *Memory) ListAccessLog(_ context.Context, f LogFilter) ([]AccessLogEntry, error) {
	f = normalizeFilter(f)
	m.mu.Lock()
	defer m.mu.Unlock()

	search := strings.ToLower(f.Search)
	var res []AccessLogEntry
	for i := len(m.log) - 1; i >= 0; i-- {
		e := m.log[i]
		if f.PersonID != "" && e.PersonID != f.PersonID {
			continue
		}
		if f.Day != "" && e.Day != f.Day {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.PersonID), search) &&
			!strings.Contains(strings.ToLower(e.Name), search) &&
			!strings.Contains(strings.ToLower(e.Department), search) {
			continue
		}
		res = append(res, e)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Timestamp.After(res[j].Timestamp) })

	if f.Offset >= len(res) {
		return nil, nil
	}
	res = res[f.Offset:]
	if len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

// ListRecords returns the day's records ordered by role and person.
func (m *Memory) ListRecords(_ context.Context, day string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for _, rec := range m.records {
		if rec.Day == day {
			res = append(res, rec)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Role != res[j].Role {
			return res[i].Role < res[j].Role
		}
		return res[i].PersonID < res[j].PersonID
	})
	return res, nil
}

// Summary aggregates the day's log entries.
func (m *Memory) Summary(_ context.Context, day string) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{Day: day}
	type last struct {
		at  time.Time
		dir Direction
	}
	latest := make(map[string]last)
	for _, e := range m.log {
		if e.Day != day {
			continue
		}
		if e.Status == Denied {
			s.Denied++
			continue
		}
		if e.Direction == In {
			s.Entries++
		}
		key := string(e.Role) + "/" + e.PersonID
		if l, ok := latest[key]; !ok || !e.Timestamp.Before(l.at) {
			latest[key] = last{at: e.Timestamp, dir: e.Direction}
		}
	}
	for _, l := range latest {
		if l.dir == In {
			s.Inside++
		}
	}
	return s, nil
}

// UpsertTerminal registers a terminal.
func (m *Memory) UpsertTerminal(_ context.Context, terminalID string) error {
	if terminalID == "" {
		return errEmptyTerminal
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminals[terminalID] = time.Now().UTC()
	return nil
}

// SaveRefreshToken remembers an issued refresh token.
func (m *Memory) SaveRefreshToken(_ context.Context, terminalID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = issuedToken{terminalID: terminalID, expiresAt: expiresAt}
	return nil
}

// ConsumeRefreshToken forgets a live refresh token of terminalID.
func (m *Memory) ConsumeRefreshToken(_ context.Context, terminalID, token string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok || t.terminalID != terminalID || !now.Before(t.expiresAt) {
		return ErrRefreshRejected
	}
	delete(m.tokens, token)
	return nil
}
