package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/healthwatch/internal/domain"
	"github.com/hamed0406/healthwatch/internal/repo"
)

var _ repo.IncidentJournal = (*Store)(nil)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the embedded schema migrations to the database at dsn.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres:// DSN to the scheme the pgx/v5 migrate driver registers.
func migrateURL(dsn string) string {
	for _, p := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, p) {
			return "pgx5://" + strings.TrimPrefix(dsn, p)
		}
	}
	return dsn
}

func (s *Store) SaveIncident(ctx context.Context, inc *domain.Incident) error {
	affected, err := json.Marshal(inc.AffectedServices)
	if err != nil {
		return fmt.Errorf("encode affected services: %w", err)
	}
	timeline, err := json.Marshal(inc.Timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	var durationMS *int64
	if inc.Duration != nil {
		v := inc.Duration.Std().Milliseconds()
		durationMS = &v
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO incidents
		  (id, title, description, status, severity, affected_services, assignee,
		   start_time, end_time, duration_ms, timeline, auto_created, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
		ON CONFLICT (id) DO UPDATE SET
		  title=EXCLUDED.title, description=EXCLUDED.description, status=EXCLUDED.status,
		  severity=EXCLUDED.severity, affected_services=EXCLUDED.affected_services,
		  assignee=EXCLUDED.assignee, end_time=EXCLUDED.end_time,
		  duration_ms=EXCLUDED.duration_ms, timeline=EXCLUDED.timeline, updated_at=now()`,
		inc.ID, inc.Title, inc.Description, string(inc.Status), string(inc.Severity), affected,
		inc.Assignee, inc.StartTime, inc.EndTime, durationMS, timeline, inc.AutoCreated,
	)
	if err != nil {
		return fmt.Errorf("upsert incident: %w", err)
	}
	return nil
}

func (s *Store) Incidents(ctx context.Context, since time.Time) ([]*domain.Incident, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, status, severity, affected_services, assignee,
		       start_time, end_time, duration_ms, timeline, auto_created
		  FROM incidents
		 WHERE start_time >= $1
		 ORDER BY start_time DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []*domain.Incident
	for rows.Next() {
		var (
			inc        domain.Incident
			status     string
			severity   string
			affected   []byte
			timeline   []byte
			durationMS *int64
		)
		if err := rows.Scan(&inc.ID, &inc.Title, &inc.Description, &status, &severity, &affected,
			&inc.Assignee, &inc.StartTime, &inc.EndTime, &durationMS, &timeline, &inc.AutoCreated); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.Status = domain.IncidentStatus(status)
		inc.Severity = domain.Severity(severity)
		if err := json.Unmarshal(affected, &inc.AffectedServices); err != nil {
			s.log.Warn("incident_affected_decode_error", zap.String("incident_id", inc.ID), zap.Error(err))
		}
		if err := json.Unmarshal(timeline, &inc.Timeline); err != nil {
			s.log.Warn("incident_timeline_decode_error", zap.String("incident_id", inc.ID), zap.Error(err))
		}
		if durationMS != nil {
			d := domain.Duration(time.Duration(*durationMS) * time.Millisecond)
			inc.Duration = &d
		}
		out = append(out, &inc)
	}
	return out, rows.Err()
}
