package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type IncidentStatus string

const (
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentIdentified    IncidentStatus = "identified"
	IncidentMonitoring    IncidentStatus = "monitoring"
	IncidentResolved      IncidentStatus = "resolved"
)

func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentInvestigating, IncidentIdentified, IncidentMonitoring, IncidentResolved:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type UpdateKind string

const (
	UpdateDetection  UpdateKind = "detection"
	UpdateStatus     UpdateKind = "status_change"
	UpdateAssignment UpdateKind = "assignment"
	UpdateNote       UpdateKind = "note"
	UpdateResolution UpdateKind = "resolution"
)

// IncidentUpdate is one timeline entry.
type IncidentUpdate struct {
	Timestamp time.Time      `json:"timestamp"`
	Status    IncidentStatus `json:"status"`
	Message   string         `json:"message"`
	Author    string         `json:"author"`
	Kind      UpdateKind     `json:"kind"`
}

type Incident struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Status           IncidentStatus   `json:"status"`
	Severity         Severity         `json:"severity"`
	AffectedServices []CheckID        `json:"affected_services"`
	Assignee         string           `json:"assignee,omitempty"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          *time.Time       `json:"end_time,omitempty"`
	Duration         *Duration        `json:"duration,omitempty"`
	Timeline         []IncidentUpdate `json:"timeline"`
	AutoCreated      bool             `json:"auto_created"`
}

func (i *Incident) Open() bool { return i.Status != IncidentResolved }

// Affects reports whether the incident lists id among its affected services.
func (i *Incident) Affects(id CheckID) bool {
	for _, s := range i.AffectedServices {
		if s == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out of the engine.
func (i *Incident) Clone() *Incident {
	c := *i
	c.AffectedServices = append([]CheckID(nil), i.AffectedServices...)
	c.Timeline = append([]IncidentUpdate(nil), i.Timeline...)
	if i.EndTime != nil {
		t := *i.EndTime
		c.EndTime = &t
	}
	if i.Duration != nil {
		d := *i.Duration
		c.Duration = &d
	}
	return &c
}

// Duration is a time.Duration that travels as a Go duration string in JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string or nanoseconds: %w", err)
	}
	*d = Duration(n)
	return nil
}
