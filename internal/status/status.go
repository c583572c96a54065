// Package status derives the public status page from per-check state.
package status

import (
	"sort"
	"time"

	"github.com/hamed0406/healthwatch/internal/domain"
)

const (
	// DegradedUptime is the rolling uptime below which a service reports degraded.
	DegradedUptime   = 99.0
	IncidentLookback = 7 * 24 * time.Hour
)

// Service is the engine's view of one check at snapshot time.
type Service struct {
	Check        domain.CheckDefinition
	Metrics      domain.ServiceMetrics
	Suppressed   bool
	OpenIncident *domain.Incident
	LastIncident *domain.Incident
}

// Of maps one service to its status. Suppression wins, then the open
// incident's severity, then rolling uptime.
func Of(s Service) domain.ServiceStatus {
	if s.Suppressed {
		return domain.StatusMaintenance
	}
	if s.OpenIncident != nil {
		switch s.OpenIncident.Severity {
		case domain.SeverityCritical:
			return domain.StatusMajorOutage
		case domain.SeverityHigh:
			return domain.StatusPartialOutage
		default:
			return domain.StatusDegraded
		}
	}
	if s.Metrics.Uptime < DegradedUptime {
		return domain.StatusDegraded
	}
	return domain.StatusOperational
}

// Overall picks the worst status among critical services. When none of them
// is at least degraded, the worst status across all services is used.
func Overall(views []domain.ServiceView) domain.ServiceStatus {
	worstCritical, worstAll := domain.StatusOperational, domain.StatusOperational
	for _, v := range views {
		if v.Status.Rank() > worstAll.Rank() {
			worstAll = v.Status
		}
		if v.Critical && v.Status.Rank() > worstCritical.Rank() {
			worstCritical = v.Status
		}
	}
	if worstCritical.Rank() >= domain.StatusDegraded.Rank() {
		return worstCritical
	}
	return worstAll
}

// Aggregate builds the snapshot. incidents and windows may be in any order.
// Open incidents are listed whatever their age.
func Aggregate(services []Service, incidents []*domain.Incident, windows []domain.MaintenanceWindow, now time.Time) domain.StatusSnapshot {
	views := make([]domain.ServiceView, 0, len(services))
	for _, s := range services {
		views = append(views, domain.ServiceView{
			ID:           s.Check.ID,
			Name:         s.Check.Name,
			Status:       Of(s),
			Uptime:       s.Metrics.Uptime,
			ResponseTime: s.Metrics.AvgLatencyMS,
			Critical:     s.Check.Critical,
			LastIncident: s.LastIncident,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	recent := make([]*domain.Incident, 0, len(incidents))
	cutoff := now.Add(-IncidentLookback)
	for _, inc := range incidents {
		if inc.Open() || !inc.StartTime.Before(cutoff) {
			recent = append(recent, inc)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].StartTime.After(recent[j].StartTime) })

	upcoming := make([]domain.MaintenanceWindow, 0, len(windows))
	for _, w := range windows {
		if w.Status == domain.MaintenanceScheduled || w.Status == domain.MaintenanceInProgress {
			upcoming = append(upcoming, w)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].Start.Before(upcoming[j].Start) })

	return domain.StatusSnapshot{
		OverallStatus: Overall(views),
		Services:      views,
		Incidents:     recent,
		Maintenance:   upcoming,
		LastUpdated:   now,
	}
}
