// Package metrics derives SLA figures from raw probe results and resolved incidents.
package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/hamed0406/healthwatch/internal/domain"
)

// Compute recomputes a check's metrics from scratch. Results outside
// [now-window, now] are ignored; malformed results are skipped and counted.
func Compute(id domain.CheckID, results []domain.ProbeResult, incidents []*domain.Incident, now time.Time, window time.Duration) (domain.ServiceMetrics, int) {
	m := domain.ServiceMetrics{CheckID: id, Uptime: 100, ComputedAt: now}
	since := now.Add(-window)
	skipped := 0

	var latencies []float64
	for _, r := range results {
		if r.CheckID != id || r.Timestamp.IsZero() || !validLatency(r.LatencyMS) {
			skipped++
			continue
		}
		if r.Timestamp.Before(since) || r.Timestamp.After(now) {
			continue
		}
		ts := r.Timestamp
		m.TotalChecks++
		if m.LastCheck == nil || ts.After(*m.LastCheck) {
			m.LastCheck = &ts
		}
		if r.Success {
			m.SuccessCount++
			latencies = append(latencies, r.LatencyMS)
			if m.LastSuccess == nil || ts.After(*m.LastSuccess) {
				m.LastSuccess = &ts
			}
		} else {
			m.FailureCount++
			if m.LastFailure == nil || ts.After(*m.LastFailure) {
				m.LastFailure = &ts
			}
		}
	}

	if m.TotalChecks > 0 {
		m.Uptime = clamp(float64(m.SuccessCount)/float64(m.TotalChecks)*100, 0, 100)
	}
	if len(latencies) > 0 {
		sort.Float64s(latencies)
		var sum float64
		for _, l := range latencies {
			sum += l
		}
		m.AvgLatencyMS = sum / float64(len(latencies))
		m.P95LatencyMS = Percentile(latencies, 0.95)
		m.P99LatencyMS = Percentile(latencies, 0.99)
	}

	m.MTTR, m.MTBF = reliability(id, incidents, now)
	return m, skipped
}

// Percentile picks sorted[floor(n*q)], clamped to the last index.
// sorted must be ascending; an empty sample yields 0.
func Percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(float64(n) * q))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// reliability returns MTTR (mean resolved duration) and MTBF
// ((now - first start) / (count - 1), zero below two incidents).
func reliability(id domain.CheckID, incidents []*domain.Incident, now time.Time) (domain.Duration, domain.Duration) {
	var (
		total time.Duration
		count int
		first time.Time
	)
	for _, inc := range incidents {
		if inc.Status != domain.IncidentResolved || inc.Duration == nil || !inc.Affects(id) {
			continue
		}
		count++
		total += inc.Duration.Std()
		if first.IsZero() || inc.StartTime.Before(first) {
			first = inc.StartTime
		}
	}
	if count == 0 {
		return 0, 0
	}
	mttr := domain.Duration(total / time.Duration(count))
	if count < 2 {
		return mttr, 0
	}
	return mttr, domain.Duration(now.Sub(first) / time.Duration(count-1))
}

func validLatency(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
