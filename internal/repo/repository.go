package repo

import (
	"context"
	"time"

	"github.com/hamed0406/healthwatch/internal/domain"
)

// ResultStore retains the raw probe results of every check.
type ResultStore interface {
	Append(ctx context.Context, r domain.ProbeResult) error
	// Since returns the check's results at or after since, oldest first.
	Since(ctx context.Context, id domain.CheckID, since time.Time) ([]domain.ProbeResult, error)
	// Latest returns up to limit most recent results, newest first.
	Latest(ctx context.Context, id domain.CheckID, limit int) ([]domain.ProbeResult, error)
	// Purge drops results older than before across all checks.
	Purge(ctx context.Context, before time.Time) (int, error)
	Drop(ctx context.Context, id domain.CheckID) error
}

// IncidentJournal archives incident records outside the engine's memory.
type IncidentJournal interface {
	SaveIncident(ctx context.Context, inc *domain.Incident) error
	Incidents(ctx context.Context, since time.Time) ([]*domain.Incident, error)
}
