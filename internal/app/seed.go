package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"campusgate/internal/directory"
	"campusgate/internal/pass"
)

// Seed is the YAML file that fills the memory backend for local runs.
type Seed struct {
	People []struct {
		ID         string    `yaml:"id"`
		Role       string    `yaml:"role"`
		Name       string    `yaml:"name"`
		Department string    `yaml:"department"`
		Mode       string    `yaml:"mode"`
		Descriptor []float32 `yaml:"descriptor"`
	} `yaml:"people"`
	Passes []struct {
		ID          string    `yaml:"id"`
		Username    string    `yaml:"username"`
		Type        string    `yaml:"type"`
		Status      string    `yaml:"status"`
		Date        string    `yaml:"date"`
		ArrivalTime string    `yaml:"arrival_time"`
		Reason      string    `yaml:"reason"`
		CreatedAt   time.Time `yaml:"created_at"`
	} `yaml:"passes"`
	LoadedAt time.Time `yaml:"-"`
}

// LoadSeed reads a seed file. An empty path yields an empty seed.
func LoadSeed(path string) (Seed, error) {
	s := Seed{LoadedAt: time.Now().UTC()}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return s, nil
}

// Identities returns the seeded directory with staff ahead of students,
// matching the database load order.
func (s Seed) Identities() []directory.Identity {
	var staff, students []directory.Identity
	for _, p := range s.People {
		id := directory.Identity{
			ID:         p.ID,
			Name:       p.Name,
			Department: p.Department,
			Role:       directory.Role(p.Role),
			Mode:       directory.Mode(p.Mode),
			Descriptor: directory.Vector(p.Descriptor),
		}
		if id.Role == directory.RoleStaff {
			staff = append(staff, id)
		} else {
			students = append(students, id)
		}
	}
	return append(staff, students...)
}

// IdentityWriter stores enrolled identities.
type IdentityWriter interface {
	UpsertIdentity(ctx context.Context, id directory.Identity) error
}

// Import upserts every seeded person into dst and returns how many were written.
func (s Seed) Import(ctx context.Context, dst IdentityWriter) (int, error) {
	ids := s.Identities()
	for i, id := range ids {
		if err := dst.UpsertIdentity(ctx, id); err != nil {
			return i, fmt.Errorf("import %s %s: %w", id.Role, id.ID, err)
		}
	}
	return len(ids), nil
}

// PassRequests returns the seeded pass requests.
func (s Seed) PassRequests() []pass.Request {
	out := make([]pass.Request, 0, len(s.Passes))
	for _, p := range s.Passes {
		out = append(out, pass.Request{
			ID:          p.ID,
			Username:    p.Username,
			Type:        pass.Type(p.Type),
			Status:      pass.Status(p.Status),
			Date:        p.Date,
			ArrivalTime: p.ArrivalTime,
			Reason:      p.Reason,
			CreatedAt:   p.CreatedAt,
		})
	}
	return out
}
