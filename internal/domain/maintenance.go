package domain

import "time"

type MaintenanceStatus string

const (
	MaintenanceScheduled  MaintenanceStatus = "scheduled"
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
	MaintenanceCancelled  MaintenanceStatus = "cancelled"
)

// MaintenanceWindow is a planned range during which probes and incident
// creation are suppressed for the affected checks.
type MaintenanceWindow struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	Start            time.Time         `json:"start"`
	End              time.Time         `json:"end"`
	AffectedServices []CheckID         `json:"affected_services"`
	Status           MaintenanceStatus `json:"status"`
}

func (w MaintenanceWindow) Covers(id CheckID) bool {
	for _, s := range w.AffectedServices {
		if s == id {
			return true
		}
	}
	return false
}

// Terminal windows never change status again.
func (w MaintenanceWindow) Terminal() bool {
	return w.Status == MaintenanceCompleted || w.Status == MaintenanceCancelled
}
