package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/healthwatch/internal/domain"
	"github.com/hamed0406/healthwatch/internal/repo"
)

// Sink receives incident events from the Alerter.
type Sink interface {
	Deliver(ctx context.Context, ev domain.IncidentEvent) error
}

type SinkFunc func(ctx context.Context, ev domain.IncidentEvent) error

func (f SinkFunc) Deliver(ctx context.Context, ev domain.IncidentEvent) error { return f(ctx, ev) }

// JournalSink archives every incident revision it sees.
func JournalSink(j repo.IncidentJournal) Sink {
	return SinkFunc(func(ctx context.Context, ev domain.IncidentEvent) error {
		return j.SaveIncident(ctx, ev.Incident)
	})
}

type AlerterConfig struct {
	Buffer          int
	DeliveryTimeout time.Duration
}

// Alerter decouples event producers from alert delivery: Emit never blocks
// and Run fans queued events out to the subscribed sinks in order.
type Alerter struct {
	Logger *zap.Logger
	cfg    AlerterConfig
	queue  chan domain.IncidentEvent

	mu    sync.RWMutex
	sinks []namedSink
}

type namedSink struct {
	name string
	sink Sink
}

func NewAlerter(logger *zap.Logger, cfg AlerterConfig) *Alerter {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	return &Alerter{
		Logger: logger,
		cfg:    cfg,
		queue:  make(chan domain.IncidentEvent, cfg.Buffer),
	}
}

func (a *Alerter) Subscribe(name string, s Sink) {
	if s == nil {
		return
	}
	a.mu.Lock()
	a.sinks = append(a.sinks, namedSink{name: name, sink: s})
	a.mu.Unlock()
}

// Emit queues ev and reports whether it was accepted. A full queue drops it.
func (a *Alerter) Emit(ev domain.IncidentEvent) bool {
	select {
	case a.queue <- ev:
		return true
	default:
		a.Logger.Warn("event_dropped_buffer_full",
			zap.String("type", string(ev.Type)),
			zap.String("incident_id", incidentID(ev)),
		)
		return false
	}
}

// Run delivers queued events until ctx is cancelled.
func (a *Alerter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-a.queue:
			a.dispatch(ctx, ev)
		}
	}
}

// Flush delivers everything currently queued and returns how many events
// that was. It does not wait for new events.
func (a *Alerter) Flush(ctx context.Context) int {
	n := 0
	for {
		select {
		case ev := <-a.queue:
			a.dispatch(ctx, ev)
			n++
		default:
			return n
		}
	}
}

func (a *Alerter) dispatch(ctx context.Context, ev domain.IncidentEvent) {
	a.mu.RLock()
	sinks := append([]namedSink(nil), a.sinks...)
	a.mu.RUnlock()

	for _, s := range sinks {
		dctx, cancel := context.WithTimeout(ctx, a.cfg.DeliveryTimeout)
		err := s.sink.Deliver(dctx, ev)
		cancel()
		if err != nil {
			a.Logger.Warn("alert_delivery_error",
				zap.String("sink", s.name),
				zap.String("type", string(ev.Type)),
				zap.String("incident_id", incidentID(ev)),
				zap.Error(err),
			)
			continue
		}
		a.Logger.Debug("alert_delivered",
			zap.String("sink", s.name),
			zap.String("type", string(ev.Type)),
			zap.String("incident_id", incidentID(ev)),
		)
	}
}

func incidentID(ev domain.IncidentEvent) string {
	if ev.Incident == nil {
		return ""
	}
	return ev.Incident.ID
}
