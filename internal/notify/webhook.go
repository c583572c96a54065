package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hamed0406/healthwatch/internal/domain"
)

// AlertPayload is the JSON body POSTed to a generic webhook.
type AlertPayload struct {
	Event            domain.EventType      `json:"event"`
	IncidentID       string                `json:"incident_id"`
	Title            string                `json:"title"`
	Status           domain.IncidentStatus `json:"status"`
	Severity         domain.Severity       `json:"severity"`
	AffectedServices []domain.CheckID      `json:"affected_services"`
	AutoCreated      bool                  `json:"auto_created"`
	StartTime        time.Time             `json:"start_time"`
	EndTime          *time.Time            `json:"end_time,omitempty"`
	At               time.Time             `json:"at"`
}

type Webhook struct {
	URL    string
	Client *http.Client
}

// NewWebhook returns nil when url is empty.
func NewWebhook(url string) *Webhook {
	if url == "" {
		return nil
	}
	return &Webhook{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *Webhook) Deliver(ctx context.Context, ev domain.IncidentEvent) error {
	inc := ev.Incident
	body, err := json.Marshal(AlertPayload{
		Event:            ev.Type,
		IncidentID:       inc.ID,
		Title:            inc.Title,
		Status:           inc.Status,
		Severity:         inc.Severity,
		AffectedServices: inc.AffectedServices,
		AutoCreated:      inc.AutoCreated,
		StartTime:        inc.StartTime,
		EndTime:          inc.EndTime,
		At:               ev.At,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d from %s", resp.StatusCode, w.URL)
	}
	return nil
}
