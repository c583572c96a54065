// Package maintenance keeps planned maintenance windows and answers whether a
// check is currently suppressed by one.
package maintenance

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/healthwatch/internal/domain"
)

var ErrInvalidWindow = errors.New("invalid maintenance window")

// Gate owns all maintenance windows. Like the incident manager it relies on
// the engine for serialization.
type Gate struct {
	newID   func() string
	windows map[string]*domain.MaintenanceWindow
}

func NewGate(newID func() string) *Gate {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Gate{newID: newID, windows: make(map[string]*domain.MaintenanceWindow)}
}

// Schedule registers w in scheduled status under a fresh id.
func (g *Gate) Schedule(w domain.MaintenanceWindow) (domain.MaintenanceWindow, error) {
	switch {
	case w.Name == "":
		return domain.MaintenanceWindow{}, fmt.Errorf("%w: name required", ErrInvalidWindow)
	case w.Start.IsZero() || w.End.IsZero():
		return domain.MaintenanceWindow{}, fmt.Errorf("%w: start and end required", ErrInvalidWindow)
	case !w.End.After(w.Start):
		return domain.MaintenanceWindow{}, fmt.Errorf("%w: end must be after start", ErrInvalidWindow)
	case len(w.AffectedServices) == 0:
		return domain.MaintenanceWindow{}, fmt.Errorf("%w: no affected services", ErrInvalidWindow)
	}
	w.ID = g.newID()
	w.Status = domain.MaintenanceScheduled
	w.AffectedServices = append([]domain.CheckID(nil), w.AffectedServices...)
	g.windows[w.ID] = &w
	return clone(&w), nil
}

// Start moves a scheduled window to in_progress.
func (g *Gate) Start(id string) (domain.MaintenanceWindow, bool) {
	return g.transition(id, domain.MaintenanceInProgress, domain.MaintenanceScheduled)
}

// Complete ends an in-progress window.
func (g *Gate) Complete(id string) (domain.MaintenanceWindow, bool) {
	return g.transition(id, domain.MaintenanceCompleted, domain.MaintenanceInProgress)
}

// Cancel aborts a window that has not finished.
func (g *Gate) Cancel(id string) (domain.MaintenanceWindow, bool) {
	return g.transition(id, domain.MaintenanceCancelled, domain.MaintenanceScheduled, domain.MaintenanceInProgress)
}

func (g *Gate) transition(id string, to domain.MaintenanceStatus, from ...domain.MaintenanceStatus) (domain.MaintenanceWindow, bool) {
	w := g.windows[id]
	if w == nil {
		return domain.MaintenanceWindow{}, false
	}
	for _, f := range from {
		if w.Status == f {
			w.Status = to
			return clone(w), true
		}
	}
	return clone(w), false
}

// IsSuppressed reports whether an in-progress window covering id contains now.
func (g *Gate) IsSuppressed(id domain.CheckID, now time.Time) bool {
	for _, w := range g.windows {
		if w.Status == domain.MaintenanceInProgress && w.Covers(id) &&
			!now.Before(w.Start) && !now.After(w.End) {
			return true
		}
	}
	return false
}

func (g *Gate) Get(id string) (domain.MaintenanceWindow, bool) {
	if w := g.windows[id]; w != nil {
		return clone(w), true
	}
	return domain.MaintenanceWindow{}, false
}

// List returns every window ordered by start time.
func (g *Gate) List() []domain.MaintenanceWindow {
	out := make([]domain.MaintenanceWindow, 0, len(g.windows))
	for _, w := range g.windows {
		out = append(out, clone(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Upcoming returns scheduled and in-progress windows, soonest first.
func (g *Gate) Upcoming() []domain.MaintenanceWindow {
	var out []domain.MaintenanceWindow
	for _, w := range g.List() {
		if !w.Terminal() {
			out = append(out, w)
		}
	}
	return out
}

// Sync drives window status from the clock: scheduled windows whose start
// has passed begin, in-progress windows past their end complete. Scheduled
// windows that were never started before their end complete directly.
// It returns the windows that changed.
func (g *Gate) Sync(now time.Time) []domain.MaintenanceWindow {
	var changed []domain.MaintenanceWindow
	for _, w := range g.windows {
		switch w.Status {
		case domain.MaintenanceScheduled:
			if now.After(w.End) {
				w.Status = domain.MaintenanceCompleted
			} else if !now.Before(w.Start) {
				w.Status = domain.MaintenanceInProgress
			} else {
				continue
			}
		case domain.MaintenanceInProgress:
			if !now.After(w.End) {
				continue
			}
			w.Status = domain.MaintenanceCompleted
		default:
			continue
		}
		changed = append(changed, clone(w))
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].Start.Before(changed[j].Start) })
	return changed
}

// Purge drops terminal windows that ended before cutoff.
func (g *Gate) Purge(cutoff time.Time) int {
	n := 0
	for id, w := range g.windows {
		if w.Terminal() && w.End.Before(cutoff) {
			delete(g.windows, id)
			n++
		}
	}
	return n
}

func clone(w *domain.MaintenanceWindow) domain.MaintenanceWindow {
	c := *w
	c.AffectedServices = append([]domain.CheckID(nil), w.AffectedServices...)
	return c
}
