// Package incident turns per-check probe outcomes into incident lifecycles.
//
// Every check is tracked independently. A tracker is either monitoring
// (no open incident) or holding an incident; failures and successes are
// counted as streaks and reset by the opposite outcome.
package incident

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/healthwatch/internal/clock"
	"github.com/hamed0406/healthwatch/internal/domain"
)

const (
	DefaultIncidentThreshold = 3
	DefaultRecoveryThreshold = 2

	systemAuthor = "system"
)

type phase uint8

const (
	phaseMonitoring phase = iota
	phaseIncident
)

type tracker struct {
	phase      phase
	failures   int
	successes  int
	incidentID string // set only in phaseIncident
}

type Config struct {
	IncidentThreshold int
	RecoveryThreshold int
	NewID             func() string
}

// Manager owns every Incident. It is not safe for concurrent use; the engine
// serializes access.
type Manager struct {
	cfg       Config
	clock     clock.Clock
	incidents map[string]*domain.Incident
	trackers  map[domain.CheckID]*tracker
}

func NewManager(cfg Config, clk clock.Clock) *Manager {
	if cfg.IncidentThreshold < 1 {
		cfg.IncidentThreshold = DefaultIncidentThreshold
	}
	if cfg.RecoveryThreshold < 1 {
		cfg.RecoveryThreshold = DefaultRecoveryThreshold
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Manager{
		cfg:       cfg,
		clock:     clk,
		incidents: make(map[string]*domain.Incident),
		trackers:  make(map[domain.CheckID]*tracker),
	}
}

// Observe feeds one result through the check's state machine and returns the
// event it caused, if any. Results must arrive in completion order per check.
func (m *Manager) Observe(check domain.CheckDefinition, r domain.ProbeResult) *domain.IncidentEvent {
	t := m.trackers[check.ID]
	if t == nil {
		t = &tracker{}
		m.trackers[check.ID] = t
	}

	if !r.Success {
		t.failures++
		t.successes = 0
		switch t.phase {
		case phaseMonitoring:
			if t.failures < m.cfg.IncidentThreshold {
				return nil
			}
			if open := m.openFor(check.ID); open != nil {
				t.phase, t.incidentID = phaseIncident, open.ID
				return nil
			}
			inc := m.open(check, t.failures, r)
			t.phase, t.incidentID = phaseIncident, inc.ID
			return m.event(domain.EventIncidentCreated, inc)
		case phaseIncident:
			return nil
		}
		return nil
	}

	t.successes++
	t.failures = 0
	switch t.phase {
	case phaseMonitoring:
		return nil
	case phaseIncident:
		inc := m.incidents[t.incidentID]
		if inc == nil || !inc.Open() {
			*t = tracker{successes: t.successes}
			return nil
		}
		if !inc.AutoCreated || t.successes < m.cfg.RecoveryThreshold {
			return nil
		}
		msg := fmt.Sprintf("Service recovered automatically after %d consecutive successful checks", t.successes)
		m.resolve(inc, msg, systemAuthor)
		*t = tracker{successes: t.successes}
		return m.event(domain.EventIncidentResolved, inc)
	}
	return nil
}

func (m *Manager) open(check domain.CheckDefinition, failures int, r domain.ProbeResult) *domain.Incident {
	now := m.clock.Now()
	severity := domain.SeverityHigh
	if check.Critical {
		severity = domain.SeverityCritical
	}
	lastErr := r.Error
	if lastErr == "" {
		lastErr = "unknown error"
	}
	inc := &domain.Incident{
		ID:               m.cfg.NewID(),
		Title:            fmt.Sprintf("%s is experiencing issues", check.Name),
		Description:      fmt.Sprintf("Automatically opened after %d consecutive failed checks against %s", failures, check.URL),
		Status:           domain.IncidentInvestigating,
		Severity:         severity,
		AffectedServices: []domain.CheckID{check.ID},
		StartTime:        now,
		AutoCreated:      true,
		Timeline: []domain.IncidentUpdate{{
			Timestamp: now,
			Status:    domain.IncidentInvestigating,
			Message:   fmt.Sprintf("Detected %d consecutive failures. Last error: %s", failures, lastErr),
			Author:    systemAuthor,
			Kind:      domain.UpdateDetection,
		}},
	}
	m.incidents[inc.ID] = inc
	return inc
}

func (m *Manager) resolve(inc *domain.Incident, message, author string) {
	now := m.clock.Now()
	d := domain.Duration(now.Sub(inc.StartTime))
	inc.Status = domain.IncidentResolved
	inc.EndTime = &now
	inc.Duration = &d
	inc.Timeline = append(inc.Timeline, domain.IncidentUpdate{
		Timestamp: now,
		Status:    domain.IncidentResolved,
		Message:   message,
		Author:    author,
		Kind:      domain.UpdateResolution,
	})
}

func (m *Manager) event(t domain.EventType, inc *domain.Incident) *domain.IncidentEvent {
	return &domain.IncidentEvent{Type: t, Incident: inc.Clone(), At: m.clock.Now()}
}

// openFor returns the oldest open incident affecting id.
func (m *Manager) openFor(id domain.CheckID) *domain.Incident {
	var found *domain.Incident
	for _, inc := range m.incidents {
		if inc.Open() && inc.Affects(id) && (found == nil || inc.StartTime.Before(found.StartTime)) {
			found = inc
		}
	}
	return found
}

// NewIncident describes a manually declared incident.
type NewIncident struct {
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Severity         domain.Severity  `json:"severity"`
	AffectedServices []domain.CheckID `json:"affected_services"`
	Author           string           `json:"author"`
}

// Create opens an operator-declared incident. It returns nil when the
// request names no title or an unknown severity.
func (m *Manager) Create(req NewIncident) *domain.IncidentEvent {
	if req.Title == "" {
		return nil
	}
	if req.Severity == "" {
		req.Severity = domain.SeverityMedium
	}
	if !req.Severity.Valid() {
		return nil
	}
	now := m.clock.Now()
	inc := &domain.Incident{
		ID:               m.cfg.NewID(),
		Title:            req.Title,
		Description:      req.Description,
		Status:           domain.IncidentInvestigating,
		Severity:         req.Severity,
		AffectedServices: append([]domain.CheckID(nil), req.AffectedServices...),
		StartTime:        now,
		Timeline: []domain.IncidentUpdate{{
			Timestamp: now,
			Status:    domain.IncidentInvestigating,
			Message:   firstNonEmpty(req.Description, req.Title),
			Author:    req.Author,
			Kind:      domain.UpdateDetection,
		}},
	}
	m.incidents[inc.ID] = inc
	return m.event(domain.EventIncidentCreated, inc)
}

// Change is a manual update to an incident. Empty fields are left alone.
type Change struct {
	Status   domain.IncidentStatus `json:"status"`
	Message  string                `json:"message"`
	Author   string                `json:"author"`
	Assignee string                `json:"assignee"`
}

// Update appends c to the incident's timeline. Unknown ids, resolved
// incidents and invalid statuses yield (nil, false).
func (m *Manager) Update(id string, c Change) (*domain.IncidentEvent, bool) {
	inc := m.incidents[id]
	if inc == nil || !inc.Open() {
		return nil, false
	}
	if c.Status != "" && !c.Status.Valid() {
		return nil, false
	}

	if c.Status == domain.IncidentResolved {
		if c.Assignee != "" {
			inc.Assignee = c.Assignee
		}
		m.resolve(inc, firstNonEmpty(c.Message, "Incident resolved"), c.Author)
		m.release(inc)
		return m.event(domain.EventIncidentResolved, inc), true
	}

	kind := domain.UpdateNote
	switch {
	case c.Status != "" && c.Status != inc.Status:
		kind = domain.UpdateStatus
		inc.Status = c.Status
	case c.Assignee != "" && c.Assignee != inc.Assignee:
		kind = domain.UpdateAssignment
	}
	if c.Assignee != "" {
		inc.Assignee = c.Assignee
	}
	msg := c.Message
	if msg == "" && kind == domain.UpdateAssignment {
		msg = "Assigned to " + c.Assignee
	}
	inc.Timeline = append(inc.Timeline, domain.IncidentUpdate{
		Timestamp: m.clock.Now(),
		Status:    inc.Status,
		Message:   msg,
		Author:    c.Author,
		Kind:      kind,
	})
	return m.event(domain.EventIncidentUpdated, inc), true
}

// Resolve closes an open incident; resolving twice is a no-op returning false.
func (m *Manager) Resolve(id, message, author string) (*domain.IncidentEvent, bool) {
	return m.Update(id, Change{Status: domain.IncidentResolved, Message: message, Author: author})
}

// release returns trackers holding inc to monitoring with fresh counters.
func (m *Manager) release(inc *domain.Incident) {
	for _, t := range m.trackers {
		if t.phase == phaseIncident && t.incidentID == inc.ID {
			*t = tracker{}
		}
	}
}

// Forget discards the state machine of a removed check. Its incidents stay.
func (m *Manager) Forget(id domain.CheckID) {
	delete(m.trackers, id)
}

// ConsecutiveFailures reports the current failure streak for id.
func (m *Manager) ConsecutiveFailures(id domain.CheckID) int {
	if t := m.trackers[id]; t != nil {
		return t.failures
	}
	return 0
}

func (m *Manager) Get(id string) *domain.Incident {
	if inc := m.incidents[id]; inc != nil {
		return inc.Clone()
	}
	return nil
}

// OpenFor returns a copy of the oldest open incident affecting id, or nil.
func (m *Manager) OpenFor(id domain.CheckID) *domain.Incident {
	if inc := m.openFor(id); inc != nil {
		return inc.Clone()
	}
	return nil
}

// List returns copies of all incidents, newest first.
func (m *Manager) List() []*domain.Incident {
	out := make([]*domain.Incident, 0, len(m.incidents))
	for _, inc := range m.incidents {
		out = append(out, inc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

// Resolved returns the live resolved incidents affecting id for read-only use.
func (m *Manager) Resolved(id domain.CheckID) []*domain.Incident {
	var out []*domain.Incident
	for _, inc := range m.incidents {
		if !inc.Open() && inc.Affects(id) {
			out = append(out, inc)
		}
	}
	return out
}

// Purge drops resolved incidents that ended before cutoff.
func (m *Manager) Purge(cutoff time.Time) int {
	n := 0
	for id, inc := range m.incidents {
		if !inc.Open() && inc.EndTime != nil && inc.EndTime.Before(cutoff) {
			delete(m.incidents, id)
			n++
		}
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
