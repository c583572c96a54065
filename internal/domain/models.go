package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// ErrInvalidCheck wraps every validation failure of a CheckDefinition.
var ErrInvalidCheck = errors.New("invalid check definition")

type CheckID string

// CheckDefinition configures one monitored target.
type CheckDefinition struct {
	ID              CheckID           `json:"id" yaml:"id"`
	Name            string            `json:"name" yaml:"name"`
	URL             string            `json:"url" yaml:"url"`
	Method          string            `json:"method" yaml:"method"`
	Headers         map[string]string `json:"headers,omitempty" yaml:"headers"`
	Body            string            `json:"body,omitempty" yaml:"body"`
	ExpectedStatus  []int             `json:"expected_status" yaml:"expected_status"`
	ExpectedContent string            `json:"expected_content,omitempty" yaml:"expected_content"`
	Timeout         time.Duration     `json:"timeout" yaml:"timeout"`
	Interval        time.Duration     `json:"interval" yaml:"interval"`
	Retries         int               `json:"retries" yaml:"retries"`
	Enabled         bool              `json:"enabled" yaml:"enabled"`
	Tags            []string          `json:"tags,omitempty" yaml:"tags"`
	Critical        bool              `json:"critical" yaml:"critical"`
}

// ApplyDefaults fills the optional fields a config file or API call may omit.
func (c *CheckDefinition) ApplyDefaults() {
	if c.Method == "" {
		c.Method = "GET"
	}
	c.Method = strings.ToUpper(c.Method)
	if len(c.ExpectedStatus) == 0 {
		c.ExpectedStatus = []int{200}
	}
	if c.Name == "" {
		c.Name = string(c.ID)
	}
}

// Validate reports every problem with the definition at once.
func (c CheckDefinition) Validate() error {
	var err error
	if strings.TrimSpace(string(c.ID)) == "" {
		err = multierr.Append(err, errors.New("id is required"))
	}
	if strings.TrimSpace(c.URL) == "" {
		err = multierr.Append(err, errors.New("url is required"))
	} else if u, perr := url.ParseRequestURI(c.URL); perr != nil || u.Host == "" ||
		(u.Scheme != "http" && u.Scheme != "https") {
		err = multierr.Append(err, fmt.Errorf("url %q is not an http(s) url", c.URL))
	}
	if c.Interval <= 0 {
		err = multierr.Append(err, errors.New("interval must be positive"))
	}
	if c.Timeout <= 0 {
		err = multierr.Append(err, errors.New("timeout must be positive"))
	}
	if c.Retries < 0 {
		err = multierr.Append(err, errors.New("retries must be >= 0"))
	}
	for _, code := range c.ExpectedStatus {
		if code < 100 || code > 599 {
			err = multierr.Append(err, fmt.Errorf("expected status %d out of range", code))
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCheck, err)
	}
	return nil
}

// AcceptsStatus reports whether code is one of the expected status codes.
func (c CheckDefinition) AcceptsStatus(code int) bool {
	for _, s := range c.ExpectedStatus {
		if s == code {
			return true
		}
	}
	return false
}

// CheckPatch carries the fields an update wants to change; nil means untouched.
type CheckPatch struct {
	Name            *string           `json:"name,omitempty"`
	URL             *string           `json:"url,omitempty"`
	Method          *string           `json:"method,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            *string           `json:"body,omitempty"`
	ExpectedStatus  []int             `json:"expected_status,omitempty"`
	ExpectedContent *string           `json:"expected_content,omitempty"`
	Timeout         *time.Duration    `json:"timeout,omitempty"`
	Interval        *time.Duration    `json:"interval,omitempty"`
	Retries         *int              `json:"retries,omitempty"`
	Enabled         *bool             `json:"enabled,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	Critical        *bool             `json:"critical,omitempty"`
}

// Apply returns a copy of c with the patch applied.
func (p CheckPatch) Apply(c CheckDefinition) CheckDefinition {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.URL != nil {
		c.URL = *p.URL
	}
	if p.Method != nil {
		c.Method = strings.ToUpper(*p.Method)
	}
	if p.Headers != nil {
		c.Headers = p.Headers
	}
	if p.Body != nil {
		c.Body = *p.Body
	}
	if p.ExpectedStatus != nil {
		c.ExpectedStatus = p.ExpectedStatus
	}
	if p.ExpectedContent != nil {
		c.ExpectedContent = *p.ExpectedContent
	}
	if p.Timeout != nil {
		c.Timeout = *p.Timeout
	}
	if p.Interval != nil {
		c.Interval = *p.Interval
	}
	if p.Retries != nil {
		c.Retries = *p.Retries
	}
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.Tags != nil {
		c.Tags = p.Tags
	}
	if p.Critical != nil {
		c.Critical = *p.Critical
	}
	return c
}
