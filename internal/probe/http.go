package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/healthwatch/internal/domain"
)

const maxBodyBytes = 1 << 20

// HTTPProber retries a failing request up to check.Retries times, waiting
// attempt*Backoff between attempts. The check timeout bounds each attempt.
type HTTPProber struct {
	Client  *http.Client
	Logger  *zap.Logger
	Backoff time.Duration
	DNS     *DNSDiagnoser // nil disables DNS classification of transport failures
	Now     func() time.Time
	Sleep   func(ctx context.Context, d time.Duration) error
}

func NewHTTPProber(logger *zap.Logger, backoff time.Duration) *HTTPProber {
	return &HTTPProber{
		Client:  &http.Client{},
		Logger:  logger,
		Backoff: backoff,
		DNS:     NewDNSDiagnoser(3 * time.Second),
	}
}

type attemptOutcome struct {
	ok      bool
	status  int
	failure string
	err     string
}

func (p *HTTPProber) Probe(ctx context.Context, check domain.CheckDefinition, location string) domain.ProbeResult {
	maxAttempts := 1 + check.Retries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := time.Now()
	var out attemptOutcome
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		out = p.attempt(ctx, check)
		if out.ok {
			break
		}
		p.Logger.Debug("probe_attempt_failed",
			zap.String("check_id", string(check.ID)),
			zap.Int("attempt", attempts),
			zap.String("failure", out.failure),
			zap.String("error", out.err),
		)
		if attempts < maxAttempts {
			if err := p.sleep(ctx, time.Duration(attempts)*p.Backoff); err != nil {
				break
			}
		}
	}
	latency := time.Since(start).Seconds() * 1000

	res := domain.ProbeResult{
		CheckID:   check.ID,
		Location:  location,
		Timestamp: p.now(),
		Success:   out.ok,
		LatencyMS: latency,
		Details:   map[string]string{"attempts": strconv.Itoa(attempts)},
	}
	if out.status != 0 {
		s := out.status
		res.HTTPStatus = &s
	}
	if !out.ok {
		res.Error = out.err
		res.Details["failure"] = out.failure
		if p.DNS != nil && ctx.Err() == nil && (out.failure == FailureNetwork || out.failure == FailureTimeout) {
			res.Details["dns"] = p.DNS.Classify(ctx, hostOf(check.URL)).Class
		}
	}
	return res
}

func (p *HTTPProber) attempt(ctx context.Context, check domain.CheckDefinition) attemptOutcome {
	actx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	var body io.Reader
	if check.Body != "" {
		body = strings.NewReader(check.Body)
	}
	req, err := http.NewRequestWithContext(actx, check.Method, check.URL, body)
	if err != nil {
		return attemptOutcome{failure: FailureRequest, err: err.Error()}
	}
	for k, v := range check.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return attemptOutcome{failure: FailureTimeout, err: fmt.Sprintf("timeout after %s", check.Timeout)}
		}
		return attemptOutcome{failure: FailureNetwork, err: err.Error()}
	}
	defer resp.Body.Close()

	if !check.AcceptsStatus(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return attemptOutcome{
			status:  resp.StatusCode,
			failure: FailureStatus,
			err:     fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
		}
	}

	if check.ExpectedContent != "" {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			if isTimeout(err) {
				return attemptOutcome{status: resp.StatusCode, failure: FailureTimeout, err: fmt.Sprintf("timeout after %s reading body", check.Timeout)}
			}
			return attemptOutcome{status: resp.StatusCode, failure: FailureNetwork, err: err.Error()}
		}
		if !strings.Contains(string(b), check.ExpectedContent) {
			return attemptOutcome{
				status:  resp.StatusCode,
				failure: FailureContent,
				err:     fmt.Sprintf("expected content %q not found", check.ExpectedContent),
			}
		}
	}
	return attemptOutcome{ok: true, status: resp.StatusCode}
}

func (p *HTTPProber) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *HTTPProber) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
