package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"campusgate/internal/directory"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `person_id, role, day::text, in_at, out_at, status, version`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var (
		rec          Record
		inAt, outAt  sql.NullTime
		role, status string
	)
	if err := row.Scan(&rec.PersonID, &role, &rec.Day, &inAt, &outAt, &status, &rec.Version); err != nil {
		return Record{}, err
	}
	rec.Role = directory.Role(role)
	rec.Status = Status(status)
	if inAt.Valid {
		t := inAt.Time
		rec.InAt = &t
	}
	if outAt.Valid {
		t := outAt.Time
		rec.OutAt = &t
	}
	return rec, nil
}

// Today returns the stored record for the day, or nil when there is none.
func (r *Repository) Today(ctx context.Context, personID string, role directory.Role, day string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE person_id = $1 AND role = $2 AND day = $3
	`, personID, string(role), day)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Apply writes the record and the log entry in one transaction. A record whose
// version moved since it was read yields ErrConflict and nothing is written.
func (r *Repository) Apply(ctx context.Context, t Transition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if rec := t.Record; rec != nil {
		var res sql.Result
		if t.ExpectedVersion == 0 {
			res, err = tx.ExecContext(ctx, `
				INSERT INTO attendance_records (person_id, role, day, in_at, out_at, status, version)
				VALUES ($1, $2, $3, $4, $5, $6, 1)
				ON CONFLICT (person_id, role, day) DO NOTHING
			`, rec.PersonID, string(rec.Role), rec.Day, rec.InAt, rec.OutAt, string(rec.Status))
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE attendance_records
				SET in_at = $4, out_at = $5, status = $6, version = version + 1, updated_at = NOW()
				WHERE person_id = $1 AND role = $2 AND day = $3 AND version = $7
			`, rec.PersonID, string(rec.Role), rec.Day, rec.InAt, rec.OutAt, string(rec.Status), t.ExpectedVersion)
		}
		if err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if n == 0 {
			return ErrConflict
		}
	}

	e := t.Entry
	var passID any
	if e.PassRequestID != "" {
		passID = e.PassRequestID
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO access_log (id, person_id, role, name, department, terminal_id, direction, day, occurred_at, status, reason, pass_request_id, distance, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, e.ID, e.PersonID, string(e.Role), e.Name, e.Department, e.TerminalID, string(e.Direction), e.Day, e.Timestamp,
		string(e.Status), e.Reason, passID, e.Distance, e.Confidence); err != nil {
		return fmt.Errorf("append log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListAccessLog returns log entries, newest first.
func (r *Repository) ListAccessLog(ctx context.Context, f LogFilter) ([]AccessLogEntry, error) {
	f = normalizeFilter(f)
	query := `SELECT id, person_id, role, name, department, terminal_id, direction, day::text, occurred_at, status, reason, COALESCE(pass_request_id, ''), distance, confidence FROM access_log`
	args := []any{}
	clauses := []string{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.PersonID != "" {
		clauses = append(clauses, "person_id = "+arg(f.PersonID))
	}
	if f.Day != "" {
		clauses = append(clauses, "day = "+arg(f.Day))
	}
	if f.Status != "" {
		clauses = append(clauses, "status = "+arg(string(f.Status)))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		clauses = append(clauses, "(person_id ILIKE "+p+" OR name ILIKE "+p+" OR department ILIKE "+p+")")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY occurred_at DESC LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AccessLogEntry
	for rows.Next() {
		var (
			e                       AccessLogEntry
			role, direction, status string
		)
		if err := rows.Scan(&e.ID, &e.PersonID, &role, &e.Name, &e.Department, &e.TerminalID, &direction, &e.Day,
			&e.Timestamp, &status, &e.Reason, &e.PassRequestID, &e.Distance, &e.Confidence); err != nil {
			return nil, err
		}
		e.Role = directory.Role(role)
		e.Direction = Direction(direction)
		e.Status = Result(status)
		res = append(res, e)
	}
	return res, rows.Err()
}

// ListRecords returns every record for the day.
func (r *Repository) ListRecords(ctx context.Context, day string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE day = $1
		ORDER BY role, person_id
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Summary counts granted entries, denied attempts and people whose last
// granted pass of the day was inbound.
func (r *Repository) Summary(ctx context.Context, day string) (Summary, error) {
	s := Summary{Day: day}
	row := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'granted' AND direction = 'in'),
			COUNT(*) FILTER (WHERE status = 'denied')
		FROM access_log
		WHERE day = $1
	`, day)
	if err := row.Scan(&s.Entries, &s.Denied); err != nil {
		return Summary{}, err
	}
	row = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT DISTINCT ON (person_id, role) direction
			FROM access_log
			WHERE day = $1 AND status = 'granted'
			ORDER BY person_id, role, occurred_at DESC
		) last WHERE direction = 'in'
	`, day)
	if err := row.Scan(&s.Inside); err != nil {
		return Summary{}, err
	}
	return s, nil
}

// UpsertTerminal ensures a terminal record exists.
func (r *Repository) UpsertTerminal(ctx context.Context, terminalID string) error {
	if terminalID == "" {
		return errEmptyTerminal
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO terminals (terminal_id)
		VALUES ($1)
		ON CONFLICT (terminal_id) DO UPDATE SET last_seen_at = NOW()
	`, terminalID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, terminalID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (terminal_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, terminalID, token, expiresAt)
	return err
}

// ConsumeRefreshToken revokes token if it is live and belongs to terminalID.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, terminalID, token string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND terminal_id = $2 AND NOT revoked AND expires_at > $3
	`, token, terminalID, now)
	if err != nil {
		return fmt.Errorf("consume refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume refresh token: %w", err)
	}
	if n == 0 {
		return ErrRefreshRejected
	}
	return nil
}
