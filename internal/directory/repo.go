package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// Repository reads enrolled identities from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// LoadIdentities returns every identity with a descriptor, staff first and
// students grouped by department.
func (r *Repository) LoadIdentities(ctx context.Context) ([]Identity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role, name, department, mode, descriptor
		FROM identities
		WHERE descriptor IS NOT NULL
		ORDER BY CASE role WHEN 'staff' THEN 0 ELSE 1 END, department, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var (
			id   Identity
			desc pgvector.Vector
		)
		if err := rows.Scan(&id.ID, &id.Role, &id.Name, &id.Department, &id.Mode, &desc); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		id.Descriptor = Vector(desc.Slice())
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpsertIdentity creates or updates an identity and its descriptor.
func (r *Repository) UpsertIdentity(ctx context.Context, id Identity) error {
	var desc any
	if len(id.Descriptor) > 0 {
		desc = pgvector.NewVector(id.Descriptor)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (id, role, name, department, mode, descriptor)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (role, id) DO UPDATE SET
			name = EXCLUDED.name,
			department = EXCLUDED.department,
			mode = EXCLUDED.mode,
			descriptor = COALESCE(EXCLUDED.descriptor, identities.descriptor),
			updated_at = NOW()
	`, id.ID, string(id.Role), id.Name, id.Department, string(id.Mode), desc)
	return err
}
