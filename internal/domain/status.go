package domain

import "time"

type ServiceStatus string

const (
	StatusOperational   ServiceStatus = "operational"
	StatusMaintenance   ServiceStatus = "maintenance"
	StatusDegraded      ServiceStatus = "degraded"
	StatusPartialOutage ServiceStatus = "partial_outage"
	StatusMajorOutage   ServiceStatus = "major_outage"
)

// Rank orders statuses from least to most severe.
func (s ServiceStatus) Rank() int {
	switch s {
	case StatusMaintenance:
		return 1
	case StatusDegraded:
		return 2
	case StatusPartialOutage:
		return 3
	case StatusMajorOutage:
		return 4
	default:
		return 0
	}
}

type ServiceView struct {
	ID           CheckID       `json:"id"`
	Name         string        `json:"name"`
	Status       ServiceStatus `json:"status"`
	Uptime       float64       `json:"uptime"`
	ResponseTime float64       `json:"responseTime"`
	Critical     bool          `json:"critical"`
	LastIncident *Incident     `json:"lastIncident,omitempty"`
}

// StatusSnapshot is everything a public status page needs to render.
type StatusSnapshot struct {
	OverallStatus ServiceStatus       `json:"overallStatus"`
	Services      []ServiceView       `json:"services"`
	Incidents     []*Incident         `json:"incidents"`
	Maintenance   []MaintenanceWindow `json:"maintenance"`
	LastUpdated   time.Time           `json:"lastUpdated"`
}
