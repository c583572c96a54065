package domain

import "time"

type EventType string

const (
	EventIncidentCreated  EventType = "incident-created"
	EventIncidentUpdated  EventType = "incident-updated"
	EventIncidentResolved EventType = "incident-resolved"
)

// IncidentEvent is the notification payload handed to alert delivery.
type IncidentEvent struct {
	Type     EventType `json:"type"`
	Incident *Incident `json:"incident"`
	At       time.Time `json:"at"`
}
