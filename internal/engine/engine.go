// Package engine wires scheduling, probing, result retention, incident
// tracking, maintenance and the status page into one explicitly built value.
//
// All engine-owned state (checks, incidents, maintenance windows) is guarded
// by a single mutex. Probe results for one check are
// recorded in completion order under that mutex, which keeps the incident
// state machine strictly sequential per check.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/healthwatch/internal/clock"
	"github.com/hamed0406/healthwatch/internal/domain"
	"github.com/hamed0406/healthwatch/internal/incident"
	"github.com/hamed0406/healthwatch/internal/maintenance"
	"github.com/hamed0406/healthwatch/internal/metrics"
	"github.com/hamed0406/healthwatch/internal/probe"
	"github.com/hamed0406/healthwatch/internal/repo"
	"github.com/hamed0406/healthwatch/internal/repo/memory"
	"github.com/hamed0406/healthwatch/internal/scheduler"
	"github.com/hamed0406/healthwatch/internal/status"
)

var ErrDuplicateCheck = errors.New("check already registered")

type Config struct {
	IncidentThreshold       int
	RecoveryThreshold       int
	ResultCapacity          int
	ResultRetention         time.Duration
	IncidentRetention       time.Duration
	MetricsWindow           time.Duration
	CleanupInterval         time.Duration
	MaintenanceSyncInterval time.Duration
	Locations               []string
	EventBuffer             int
}

func (c *Config) applyDefaults() {
	if c.ResultRetention <= 0 {
		c.ResultRetention = 7 * 24 * time.Hour
	}
	if c.IncidentRetention <= 0 {
		c.IncidentRetention = 30 * 24 * time.Hour
	}
	if c.MetricsWindow <= 0 {
		c.MetricsWindow = 24 * time.Hour
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	if c.MaintenanceSyncInterval <= 0 {
		c.MaintenanceSyncInterval = 30 * time.Second
	}
	if len(c.Locations) == 0 {
		c.Locations = []string{"default"}
	}
}

// Deps are the collaborators an Engine is built from. Results defaults to
// an in-memory ring store and Clock to the wall clock.
type Deps struct {
	Logger  *zap.Logger
	Clock   clock.Clock
	Prober  probe.Prober
	Results repo.ResultStore
	Archive repo.IncidentJournal // optional; backs history older than IncidentRetention
	NewID   func() string
}

type Engine struct {
	cfg     Config
	log     *zap.Logger
	clock   clock.Clock
	prober  probe.Prober
	results repo.ResultStore
	archive repo.IncidentJournal

	mu        sync.Mutex
	checks    map[domain.CheckID]domain.CheckDefinition
	gens      map[domain.CheckID]uint64 // registration generation per check
	nextGen   uint64
	incidents *incident.Manager
	gate      *maintenance.Gate

	sched   *scheduler.Scheduler
	alerter *scheduler.Alerter
	house   *scheduler.Housekeeper
}

func New(cfg Config, deps Deps) *Engine {
	cfg.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Results == nil {
		deps.Results = memory.New(cfg.ResultCapacity)
	}
	e := &Engine{
		cfg:     cfg,
		log:     deps.Logger,
		clock:   deps.Clock,
		prober:  deps.Prober,
		results: deps.Results,
		archive: deps.Archive,
		checks:  make(map[domain.CheckID]domain.CheckDefinition),
		gens:    make(map[domain.CheckID]uint64),
		incidents: incident.NewManager(incident.Config{
			IncidentThreshold: cfg.IncidentThreshold,
			RecoveryThreshold: cfg.RecoveryThreshold,
			NewID:             deps.NewID,
		}, deps.Clock),
		gate:    maintenance.NewGate(deps.NewID),
		alerter: scheduler.NewAlerter(deps.Logger, scheduler.AlerterConfig{Buffer: cfg.EventBuffer}),
		house:   scheduler.NewHousekeeper(deps.Logger),
	}
	e.sched = scheduler.New(deps.Logger, e.Tick)
	return e
}

// Subscribe adds an alert sink. Sinks added after Run still receive events.
func (e *Engine) Subscribe(name string, s scheduler.Sink) {
	e.alerter.Subscribe(name, s)
}

// FlushEvents delivers queued incident events synchronously, e.g. on shutdown.
func (e *Engine) FlushEvents(ctx context.Context) int {
	return e.alerter.Flush(ctx)
}

// Run starts the check timers, event delivery and housekeeping, and blocks
// until ctx is cancelled and every in-flight probe has settled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.house.Every(ctx, "cleanup", e.cfg.CleanupInterval, func(ctx context.Context) { e.Cleanup(ctx) }); err != nil {
		return err
	}
	if err := e.house.Every(ctx, "maintenance_sync", e.cfg.MaintenanceSyncInterval, func(context.Context) {
		e.SyncMaintenance(e.clock.Now())
	}); err != nil {
		return err
	}
	e.SyncMaintenance(e.clock.Now())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = e.alerter.Run(ctx) }()
	go func() { defer wg.Done(); e.house.Run(ctx) }()
	e.sched.Start(ctx)
	e.log.Info("engine_started", zap.Strings("locations", e.cfg.Locations))

	<-ctx.Done()
	e.sched.Wait()
	wg.Wait()
	e.log.Info("engine_stopped")
	return nil
}

// ---- checks ----

// RegisterCheck validates and stores c, then probes it immediately and on
// every interval once the engine runs.
func (e *Engine) RegisterCheck(c domain.CheckDefinition) (domain.CheckDefinition, error) {
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return domain.CheckDefinition{}, err
	}
	e.mu.Lock()
	if _, exists := e.checks[c.ID]; exists {
		e.mu.Unlock()
		return domain.CheckDefinition{}, fmt.Errorf("%w: %s", ErrDuplicateCheck, c.ID)
	}
	e.checks[c.ID] = c
	e.nextGen++
	e.gens[c.ID] = e.nextGen
	if c.Enabled {
		e.sched.Add(c.ID, c.Interval, true)
	}
	e.mu.Unlock()

	e.log.Info("check_registered",
		zap.String("check_id", string(c.ID)),
		zap.String("url", c.URL),
		zap.Duration("interval", c.Interval),
		zap.Bool("enabled", c.Enabled),
	)
	return c, nil
}

// UnregisterCheck cancels the check's timer and discards its results, metrics
// and incident tracking. Incidents already recorded are kept.
func (e *Engine) UnregisterCheck(ctx context.Context, id domain.CheckID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.checks[id]; !ok {
		return false
	}
	delete(e.checks, id)
	delete(e.gens, id)
	e.incidents.Forget(id)
	e.sched.Remove(id)
	if err := e.results.Drop(ctx, id); err != nil {
		e.log.Warn("result_drop_error", zap.String("check_id", string(id)), zap.Error(err))
	}
	e.log.Info("check_unregistered", zap.String("check_id", string(id)))
	return true
}

// UpdateCheck applies patch. A changed interval or enabled flag rearms the
// timer; enabling a disabled check probes it right away.
func (e *Engine) UpdateCheck(id domain.CheckID, patch domain.CheckPatch) (domain.CheckDefinition, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	old, ok := e.checks[id]
	if !ok {
		return domain.CheckDefinition{}, false, nil
	}
	next := patch.Apply(old)
	next.ID = old.ID
	next.ApplyDefaults()
	if err := next.Validate(); err != nil {
		return domain.CheckDefinition{}, true, err
	}
	e.checks[id] = next

	if next.Interval != old.Interval || next.Enabled != old.Enabled {
		if next.Enabled {
			e.sched.Add(id, next.Interval, !old.Enabled)
		} else {
			e.sched.Remove(id)
		}
	}
	e.log.Info("check_updated", zap.String("check_id", string(id)))
	return next, true, nil
}

func (e *Engine) Check(id domain.CheckID) (domain.CheckDefinition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.checks[id]
	return c, ok
}

// Checks lists the registered checks ordered by id.
func (e *Engine) Checks() []domain.CheckDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.CheckDefinition, 0, len(e.checks))
	for _, c := range e.checks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- probing ----

// Tick is one scheduled firing. A check under active maintenance is skipped
// without recording anything; otherwise every location is probed in turn.
func (e *Engine) Tick(ctx context.Context, id domain.CheckID) {
	e.mu.Lock()
	check, ok := e.checks[id]
	gen := e.gens[id]
	suppressed := ok && e.gate.IsSuppressed(id, e.clock.Now())
	e.mu.Unlock()
	if !ok || !check.Enabled {
		return
	}
	if suppressed {
		e.log.Debug("tick_suppressed_maintenance", zap.String("check_id", string(id)))
		return
	}
	for _, loc := range e.cfg.Locations {
		if ctx.Err() != nil {
			return
		}
		r := e.prober.Probe(ctx, check, loc)
		if ctx.Err() != nil {
			// shutdown, not an endpoint failure
			e.log.Debug("probe_cancelled", zap.String("check_id", string(id)), zap.String("location", loc))
			return
		}
		r.CheckID = check.ID
		if r.Location == "" {
			r.Location = loc
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = e.clock.Now()
		}
		e.record(ctx, gen, r)
	}
}

// record is the single path that mutates per-check derived state. gen is the
// registration the probe ran against; results from an earlier registration of
// the same id are dropped.
func (e *Engine) record(ctx context.Context, gen uint64, r domain.ProbeResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	check, ok := e.checks[r.CheckID]
	if !ok {
		e.log.Debug("result_dropped_unknown_check", zap.String("check_id", string(r.CheckID)))
		return
	}
	if e.gens[r.CheckID] != gen {
		e.log.Debug("result_dropped_stale_registration", zap.String("check_id", string(r.CheckID)))
		return
	}
	now := e.clock.Now()
	if e.gate.IsSuppressed(r.CheckID, now) {
		e.log.Debug("result_dropped_maintenance", zap.String("check_id", string(r.CheckID)))
		return
	}
	if err := e.results.Append(ctx, r); err != nil {
		e.log.Warn("result_append_error", zap.String("check_id", string(r.CheckID)), zap.Error(err))
	}

	if !r.Success {
		e.log.Info("probe_failed",
			zap.String("check_id", string(r.CheckID)),
			zap.String("location", r.Location),
			zap.String("error", r.Error),
			zap.Any("details", r.Details),
		)
	}

	ev := e.incidents.Observe(check, r)
	if ev == nil {
		return
	}
	switch ev.Type {
	case domain.EventIncidentCreated:
		e.log.Warn("incident_opened",
			zap.String("incident_id", ev.Incident.ID),
			zap.String("check_id", string(check.ID)),
			zap.String("severity", string(ev.Incident.Severity)),
		)
	case domain.EventIncidentResolved:
		e.log.Info("incident_resolved",
			zap.String("incident_id", ev.Incident.ID),
			zap.String("check_id", string(check.ID)),
			zap.Duration("duration", ev.Incident.Duration.Std()),
		)
	}
	e.alerter.Emit(*ev)
}

// metricsLocked recomputes id's metrics over [now-MetricsWindow, now].
func (e *Engine) metricsLocked(ctx context.Context, id domain.CheckID, now time.Time) domain.ServiceMetrics {
	window, err := e.results.Since(ctx, id, now.Add(-e.cfg.MetricsWindow))
	if err != nil {
		e.log.Warn("metrics_results_error", zap.String("check_id", string(id)), zap.Error(err))
	}
	m, skipped := metrics.Compute(id, window, e.incidents.Resolved(id), now, e.cfg.MetricsWindow)
	if skipped > 0 {
		e.log.Warn("metrics_skipped_malformed", zap.String("check_id", string(id)), zap.Int("skipped", skipped))
	}
	return m
}

// Results returns up to limit of the newest results for id, newest first.
func (e *Engine) Results(ctx context.Context, id domain.CheckID, limit int) ([]domain.ProbeResult, bool) {
	if _, ok := e.Check(id); !ok {
		return nil, false
	}
	rs, err := e.results.Latest(ctx, id, limit)
	if err != nil {
		e.log.Warn("results_read_error", zap.String("check_id", string(id)), zap.Error(err))
	}
	return rs, true
}

// Metrics recomputes the check's metrics against the current time.
func (e *Engine) Metrics(ctx context.Context, id domain.CheckID) (domain.ServiceMetrics, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.checks[id]; !ok {
		return domain.ServiceMetrics{}, false
	}
	return e.metricsLocked(ctx, id, e.clock.Now()), true
}

// ---- maintenance ----

func (e *Engine) ScheduleMaintenance(w domain.MaintenanceWindow) (domain.MaintenanceWindow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out, err := e.gate.Schedule(w)
	if err != nil {
		return out, err
	}
	e.log.Info("maintenance_scheduled",
		zap.String("window_id", out.ID),
		zap.Time("start", out.Start),
		zap.Time("end", out.End),
	)
	return out, nil
}

func (e *Engine) StartMaintenance(id string) (domain.MaintenanceWindow, bool) {
	return e.maintenanceTransition(id, "start", e.gate.Start)
}

func (e *Engine) CompleteMaintenance(id string) (domain.MaintenanceWindow, bool) {
	return e.maintenanceTransition(id, "complete", e.gate.Complete)
}

func (e *Engine) CancelMaintenance(id string) (domain.MaintenanceWindow, bool) {
	return e.maintenanceTransition(id, "cancel", e.gate.Cancel)
}

func (e *Engine) maintenanceTransition(id, op string, fn func(string) (domain.MaintenanceWindow, bool)) (domain.MaintenanceWindow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := fn(id)
	if ok {
		e.log.Info("maintenance_"+op, zap.String("window_id", id), zap.String("status", string(w.Status)))
	}
	return w, ok
}

func (e *Engine) MaintenanceWindow(id string) (domain.MaintenanceWindow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate.Get(id)
}

func (e *Engine) Maintenance() []domain.MaintenanceWindow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate.List()
}

// SyncMaintenance advances window status against now.
func (e *Engine) SyncMaintenance(now time.Time) []domain.MaintenanceWindow {
	e.mu.Lock()
	defer e.mu.Unlock()
	changed := e.gate.Sync(now)
	for _, w := range changed {
		e.log.Info("maintenance_status_changed", zap.String("window_id", w.ID), zap.String("status", string(w.Status)))
	}
	return changed
}

// ---- incidents ----

func (e *Engine) CreateIncident(req incident.NewIncident) (*domain.Incident, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev := e.incidents.Create(req)
	if ev == nil {
		return nil, false
	}
	e.log.Info("incident_declared", zap.String("incident_id", ev.Incident.ID), zap.String("severity", string(ev.Incident.Severity)))
	e.alerter.Emit(*ev)
	return ev.Incident, true
}

func (e *Engine) UpdateIncident(id string, c incident.Change) (*domain.Incident, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.incidents.Update(id, c)
	if !ok {
		return nil, false
	}
	e.log.Info("incident_updated", zap.String("incident_id", id), zap.String("status", string(ev.Incident.Status)))
	e.alerter.Emit(*ev)
	return ev.Incident, true
}

// ResolveIncident closes an open incident. Resolving twice returns false.
func (e *Engine) ResolveIncident(id, message, author string) (*domain.Incident, bool) {
	return e.UpdateIncident(id, incident.Change{Status: domain.IncidentResolved, Message: message, Author: author})
}

func (e *Engine) Incident(id string) (*domain.Incident, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inc := e.incidents.Get(id)
	return inc, inc != nil
}

// Incidents lists every retained incident, newest first.
func (e *Engine) Incidents() []*domain.Incident {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.incidents.List()
}

// IncidentHistory lists incidents started at or after since, newest first.
// With an archive configured, incidents already purged from memory are
// read back from it; an archive error is logged and memory alone is used.
func (e *Engine) IncidentHistory(ctx context.Context, since time.Time) []*domain.Incident {
	e.mu.Lock()
	live := e.incidents.List()
	e.mu.Unlock()

	seen := make(map[string]bool, len(live))
	out := make([]*domain.Incident, 0, len(live))
	for _, inc := range live {
		seen[inc.ID] = true
		if !inc.StartTime.Before(since) {
			out = append(out, inc)
		}
	}
	if e.archive != nil {
		archived, err := e.archive.Incidents(ctx, since)
		if err != nil {
			e.log.Warn("incident_archive_read_error", zap.Error(err))
		}
		for _, inc := range archived {
			if !seen[inc.ID] {
				seen[inc.ID] = true
				out = append(out, inc)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

// ---- status page ----

func (e *Engine) StatusPage(ctx context.Context) domain.StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	all := e.incidents.List()

	services := make([]status.Service, 0, len(e.checks))
	for id, c := range e.checks {
		svc := status.Service{
			Check:        c,
			Metrics:      e.metricsLocked(ctx, id, now),
			Suppressed:   e.gate.IsSuppressed(id, now),
			OpenIncident: e.incidents.OpenFor(id),
		}
		for _, inc := range all {
			if inc.Affects(id) {
				svc.LastIncident = inc
				break
			}
		}
		services = append(services, svc)
	}
	return status.Aggregate(services, all, e.gate.Upcoming(), now)
}

// ---- retention ----

type CleanupReport struct {
	Results   int `json:"results"`
	Incidents int `json:"incidents"`
	Windows   int `json:"windows"`
}

// Cleanup applies the configured retention horizons.
func (e *Engine) Cleanup(ctx context.Context) CleanupReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	var rep CleanupReport
	n, err := e.results.Purge(ctx, now.Add(-e.cfg.ResultRetention))
	if err != nil {
		e.log.Warn("result_purge_error", zap.Error(err))
	}
	rep.Results = n
	rep.Incidents = e.incidents.Purge(now.Add(-e.cfg.IncidentRetention))
	rep.Windows = e.gate.Purge(now.Add(-e.cfg.IncidentRetention))
	e.log.Info("cleanup_done",
		zap.Int("results", rep.Results),
		zap.Int("incidents", rep.Incidents),
		zap.Int("windows", rep.Windows),
	)
	return rep
}
