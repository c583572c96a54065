package httpapi

import (
	"fmt"
	"time"

	"github.com/hamed0406/healthwatch/internal/domain"
)

// checkView is the wire shape of a check; durations travel as Go duration strings.
type checkView struct {
	ID              domain.CheckID    `json:"id"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	ExpectedStatus  []int             `json:"expected_status"`
	ExpectedContent string            `json:"expected_content,omitempty"`
	Timeout         string            `json:"timeout"`
	Interval        string            `json:"interval"`
	Retries         int               `json:"retries"`
	Enabled         bool              `json:"enabled"`
	Tags            []string          `json:"tags,omitempty"`
	Critical        bool              `json:"critical"`
}

func toView(c domain.CheckDefinition) checkView {
	return checkView{
		ID:              c.ID,
		Name:            c.Name,
		URL:             c.URL,
		Method:          c.Method,
		Headers:         c.Headers,
		Body:            c.Body,
		ExpectedStatus:  c.ExpectedStatus,
		ExpectedContent: c.ExpectedContent,
		Timeout:         c.Timeout.String(),
		Interval:        c.Interval.String(),
		Retries:         c.Retries,
		Enabled:         c.Enabled,
		Tags:            c.Tags,
		Critical:        c.Critical,
	}
}

type checkRequest struct {
	ID              domain.CheckID    `json:"id"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers"`
	Body            string            `json:"body"`
	ExpectedStatus  []int             `json:"expected_status"`
	ExpectedContent string            `json:"expected_content"`
	Timeout         string            `json:"timeout"`
	Interval        string            `json:"interval"`
	Retries         int               `json:"retries"`
	Enabled         *bool             `json:"enabled"`
	Tags            []string          `json:"tags"`
	Critical        bool              `json:"critical"`
}

func (req checkRequest) definition() (domain.CheckDefinition, error) {
	timeout, err := parseDuration("timeout", req.Timeout, 10*time.Second)
	if err != nil {
		return domain.CheckDefinition{}, err
	}
	interval, err := parseDuration("interval", req.Interval, 60*time.Second)
	if err != nil {
		return domain.CheckDefinition{}, err
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return domain.CheckDefinition{
		ID:              req.ID,
		Name:            req.Name,
		URL:             normalizeHTTPURL(req.URL),
		Method:          req.Method,
		Headers:         req.Headers,
		Body:            req.Body,
		ExpectedStatus:  req.ExpectedStatus,
		ExpectedContent: req.ExpectedContent,
		Timeout:         timeout,
		Interval:        interval,
		Retries:         req.Retries,
		Enabled:         enabled,
		Tags:            req.Tags,
		Critical:        req.Critical,
	}, nil
}

type patchRequest struct {
	Name            *string           `json:"name"`
	URL             *string           `json:"url"`
	Method          *string           `json:"method"`
	Headers         map[string]string `json:"headers"`
	Body            *string           `json:"body"`
	ExpectedStatus  []int             `json:"expected_status"`
	ExpectedContent *string           `json:"expected_content"`
	Timeout         *string           `json:"timeout"`
	Interval        *string           `json:"interval"`
	Retries         *int              `json:"retries"`
	Enabled         *bool             `json:"enabled"`
	Tags            []string          `json:"tags"`
	Critical        *bool             `json:"critical"`
}

func (req patchRequest) patch() (domain.CheckPatch, error) {
	p := domain.CheckPatch{
		Name:            req.Name,
		Method:          req.Method,
		Headers:         req.Headers,
		Body:            req.Body,
		ExpectedStatus:  req.ExpectedStatus,
		ExpectedContent: req.ExpectedContent,
		Retries:         req.Retries,
		Enabled:         req.Enabled,
		Tags:            req.Tags,
		Critical:        req.Critical,
	}
	if req.URL != nil {
		u := normalizeHTTPURL(*req.URL)
		p.URL = &u
	}
	if req.Timeout != nil {
		d, err := parseDuration("timeout", *req.Timeout, 0)
		if err != nil {
			return p, err
		}
		p.Timeout = &d
	}
	if req.Interval != nil {
		d, err := parseDuration("interval", *req.Interval, 0)
		if err != nil {
			return p, err
		}
		p.Interval = &d
	}
	return p, nil
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" && def > 0 {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

type maintenanceRequest struct {
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	Start            time.Time        `json:"start"`
	End              time.Time        `json:"end"`
	AffectedServices []domain.CheckID `json:"affected_services"`
}
