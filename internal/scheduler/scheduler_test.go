package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/healthwatch/internal/domain"
)

type runRecorder struct {
	mu    sync.Mutex
	runs  map[domain.CheckID]int
	delay time.Duration
}

func (r *runRecorder) job(ctx context.Context, id domain.CheckID) {
	r.mu.Lock()
	if r.runs == nil {
		r.runs = map[domain.CheckID]int{}
	}
	r.runs[id]++
	r.mu.Unlock()
	time.Sleep(r.delay)
}

func (r *runRecorder) count(id domain.CheckID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id]
}

func TestScheduler_ImmediateThenRecurring(t *testing.T) {
	rec := &runRecorder{}
	s := New(zap.NewNop(), rec.job)
	s.Add("a", 20*time.Millisecond, true)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(5 * time.Millisecond)
	if rec.count("a") != 1 {
		t.Fatalf("want an immediate run, got %d", rec.count("a"))
	}
	time.Sleep(70 * time.Millisecond)
	cancel()
	s.Wait()
	if n := rec.count("a"); n < 3 {
		t.Fatalf("want recurring runs, got %d", n)
	}
}

func TestScheduler_SkipsWhileBusy(t *testing.T) {
	var running, overlap atomic.Int32
	s := New(zap.NewNop(), func(ctx context.Context, id domain.CheckID) {
		if running.Add(1) > 1 {
			overlap.Store(1)
		}
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
	})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	s.Add("slow", 5*time.Millisecond, true)

	time.Sleep(120 * time.Millisecond)
	// rearming must not lose track of the run in flight
	s.Add("slow", 5*time.Millisecond, true)
	time.Sleep(60 * time.Millisecond)
	cancel()
	s.Wait()
	if overlap.Load() != 0 {
		t.Fatal("runs of the same check overlapped")
	}
}

func TestScheduler_IndependentChecks(t *testing.T) {
	rec := &runRecorder{delay: 30 * time.Millisecond}
	s := New(zap.NewNop(), rec.job)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	s.Add("a", time.Hour, true)
	s.Add("b", time.Hour, true)
	time.Sleep(10 * time.Millisecond)
	if rec.count("a") != 1 || rec.count("b") != 1 {
		t.Fatalf("a slow check must not delay another: a=%d b=%d", rec.count("a"), rec.count("b"))
	}
	cancel()
	s.Wait()
}

func TestScheduler_RemoveStopsTimer(t *testing.T) {
	rec := &runRecorder{}
	s := New(zap.NewNop(), rec.job)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Add("a", 10*time.Millisecond, false)
	time.Sleep(35 * time.Millisecond)

	if !s.Remove("a") {
		t.Fatal("Remove should report true for a scheduled check")
	}
	if s.Remove("a") || s.Scheduled("a") {
		t.Fatal("second Remove is a no-op")
	}
	before := rec.count("a")
	time.Sleep(40 * time.Millisecond)
	if after := rec.count("a"); after != before {
		t.Fatalf("timer kept firing after removal: %d -> %d", before, after)
	}
}

func TestScheduler_AddBeforeStartIsDeferred(t *testing.T) {
	rec := &runRecorder{}
	s := New(zap.NewNop(), rec.job)
	s.Add("a", time.Hour, true)
	time.Sleep(10 * time.Millisecond)
	if rec.count("a") != 0 {
		t.Fatal("nothing may run before Start")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	s.Wait()
	if rec.count("a") != 1 {
		t.Fatalf("want one run after Start, got %d", rec.count("a"))
	}
}

func TestScheduler_ReAddWaitsForRunOfRemovedTask(t *testing.T) {
	var runs, running, overlap atomic.Int32
	gate := make(chan struct{})
	s := New(zap.NewNop(), func(ctx context.Context, id domain.CheckID) {
		runs.Add(1)
		if running.Add(1) > 1 {
			overlap.Store(1)
		}
		<-gate
		running.Add(-1)
	})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	s.Add("api", time.Hour, true)
	time.Sleep(10 * time.Millisecond)

	s.Remove("api")
	s.Add("api", time.Hour, true)
	time.Sleep(10 * time.Millisecond)
	if n := runs.Load(); n != 1 {
		t.Fatalf("re-added check must skip while the removed run is in flight, got %d runs", n)
	}

	close(gate)
	cancel()
	s.Wait()
	if overlap.Load() != 0 {
		t.Fatal("runs of the same check overlapped across remove and add")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.busy["api"]; !ok {
		t.Fatal("busy flag of a scheduled check must be kept")
	}
}

func TestScheduler_RemoveDropsIdleBusyFlag(t *testing.T) {
	s := New(zap.NewNop(), func(context.Context, domain.CheckID) {})
	s.Add("a", time.Hour, false)
	s.Remove("a")
	if len(s.busy) != 0 {
		t.Fatalf("idle flags must not accumulate, have %d", len(s.busy))
	}
}
