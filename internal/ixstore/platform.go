package ixstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ScenarioInfo is the catalog entry for a stored scenario version.
type ScenarioInfo struct {
	ID        string    `json:"id" db:"id"`
	Model     string    `json:"model" db:"model"`
	Name      string    `json:"scenario" db:"name"`
	Version   int       `json:"version" db:"version"`
	CommitMsg string    `json:"commit_message" db:"commit_msg"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// backend persists committed scenarios and allocates versions.
type backend interface {
	nextVersion(ctx context.Context, model, name string) (int, error)
	save(ctx context.Context, s *Scenario) error
	load(ctx context.Context, p *Platform, model, name string, version int) (*Scenario, error)
	list(ctx context.Context) ([]ScenarioInfo, error)
	close() error
}

// Platform hands out scenario handles backed by a concrete store. It is the
// explicit dependency passed into scenario-construction code; nothing in
// the repository reaches for an ambient global store.
type Platform struct {
	backend backend
}

// Open creates a platform for the given backend kind: "memory", "sqlite"
// (dsn is a file path or ":memory:") or "postgres" (dsn is a pq DSN).
func Open(kind, dsn string) (*Platform, error) {
	switch kind {
	case "", "memory":
		return &Platform{backend: newMemoryBackend()}, nil
	case "sqlite", "postgres":
		b, err := newSQLBackend(kind, dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", kind, err)
		}
		return &Platform{backend: b}, nil
	default:
		return nil, fmt.Errorf("open store: unknown backend %q", kind)
	}
}

// NewMemoryPlatform is a convenience for tests and ephemeral runs.
func NewMemoryPlatform() *Platform {
	return &Platform{backend: newMemoryBackend()}
}

// CreateScenario allocates the next version for (model, name) and returns
// an empty scenario handle ready to be populated.
func (p *Platform) CreateScenario(ctx context.Context, model, name string) (*Scenario, error) {
	version, err := p.backend.nextVersion(ctx, model, name)
	if err != nil {
		return nil, fmt.Errorf("create scenario %s/%s: %w", model, name, err)
	}
	s := newScenario(p, model, name, version, uuid.NewString())
	log.Debug().Str("model", model).Str("scenario", name).Int("version", version).
		Msg("scenario created")
	return s, nil
}

// LoadScenario retrieves a committed scenario version from the backend.
func (p *Platform) LoadScenario(ctx context.Context, model, name string, version int) (*Scenario, error) {
	s, err := p.backend.load(ctx, p, model, name, version)
	if err != nil {
		return nil, fmt.Errorf("load scenario %s/%s#%d: %w", model, name, version, err)
	}
	return s, nil
}

// List returns the catalog of committed scenarios.
func (p *Platform) List(ctx context.Context) ([]ScenarioInfo, error) {
	return p.backend.list(ctx)
}

// Close releases backend resources.
func (p *Platform) Close() error {
	return p.backend.close()
}
