package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/healthwatch/internal/domain"
)

// Notifier forwards an incident event to one alert channel.
type Notifier interface {
	Deliver(ctx context.Context, ev domain.IncidentEvent) error
}

// Multi delivers to every channel and reports all failures together.
type Multi []Notifier

func (m Multi) Deliver(ctx context.Context, ev domain.IncidentEvent) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Deliver(ctx, ev))
	}
	return err
}

// Format renders a human readable title and body for chat channels.
func Format(ev domain.IncidentEvent) (title, text string) {
	inc := ev.Incident
	switch ev.Type {
	case domain.EventIncidentCreated:
		title = fmt.Sprintf("🔴 Incident opened: %s", inc.Title)
	case domain.EventIncidentResolved:
		title = fmt.Sprintf("🟢 Incident resolved: %s", inc.Title)
	default:
		title = fmt.Sprintf("🟡 Incident updated: %s", inc.Title)
	}

	services := make([]string, 0, len(inc.AffectedServices))
	for _, s := range inc.AffectedServices {
		services = append(services, string(s))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Severity: %s\nStatus: %s\nServices: %s\nStarted: %s",
		inc.Severity, inc.Status, strings.Join(services, ", "), inc.StartTime.Format(time.RFC3339))
	if inc.Duration != nil {
		fmt.Fprintf(&b, "\nDuration: %s", inc.Duration.Std().Round(time.Second))
	}
	if n := len(inc.Timeline); n > 0 && inc.Timeline[n-1].Message != "" {
		fmt.Fprintf(&b, "\nLatest: %s", inc.Timeline[n-1].Message)
	}
	return title, b.String()
}
