package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/healthwatch/internal/domain"
)

// Job runs one scheduled firing for a check. ctx is the scheduler's base
// context, so an in-flight run outlives the removal of its task.
type Job func(ctx context.Context, id domain.CheckID)

type task struct {
	interval  time.Duration
	immediate bool
	busy      *atomic.Bool
	stop      chan struct{}
}

// Scheduler keeps one independent timer per check. A firing that finds the
// previous run of the same check still busy is skipped.
type Scheduler struct {
	Logger *zap.Logger
	run    Job

	mu    sync.Mutex
	base  context.Context
	tasks map[domain.CheckID]*task
	busy  map[domain.CheckID]*atomic.Bool // outlives a task while its run is in flight
	wg    sync.WaitGroup
}

func New(logger *zap.Logger, run Job) *Scheduler {
	return &Scheduler{
		Logger: logger,
		run:    run,
		tasks:  make(map[domain.CheckID]*task),
		busy:   make(map[domain.CheckID]*atomic.Bool),
	}
}

// Start launches every task added so far; later additions start at once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base != nil {
		return
	}
	s.base = ctx
	for id, t := range s.tasks {
		s.launch(id, t)
	}
	s.Logger.Info("scheduler_started", zap.Int("tasks", len(s.tasks)))
}

// Wait blocks until every timer loop and in-flight run has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Add arms a timer for id, replacing any existing one. With immediate set
// the first run happens right away instead of after one interval.
func (s *Scheduler) Add(id domain.CheckID, interval time.Duration, immediate bool) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// a rearmed or re-added timer must still respect the old run in flight
	busy, ok := s.busy[id]
	if !ok {
		busy = new(atomic.Bool)
	}
	s.removeLocked(id)
	s.busy[id] = busy
	t := &task{interval: interval, immediate: immediate, busy: busy, stop: make(chan struct{})}
	s.tasks[id] = t
	if s.base != nil {
		s.launch(id, t)
	}
}

// Remove cancels id's timer. A run already in flight is left to finish.
func (s *Scheduler) Remove(id domain.CheckID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Scheduler) removeLocked(id domain.CheckID) bool {
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	close(t.stop)
	delete(s.tasks, id)
	if !t.busy.Load() {
		delete(s.busy, id)
	}
	return true
}

// release drops the busy flag of a removed check once its last run ends.
func (s *Scheduler) release(id domain.CheckID, flag *atomic.Bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, scheduled := s.tasks[id]; !scheduled && s.busy[id] == flag {
		delete(s.busy, id)
	}
}

func (s *Scheduler) Scheduled(id domain.CheckID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

func (s *Scheduler) launch(id domain.CheckID, t *task) {
	s.wg.Add(1)
	go s.loop(s.base, id, t)
}

func (s *Scheduler) loop(ctx context.Context, id domain.CheckID, t *task) {
	defer s.wg.Done()
	if t.immediate {
		s.fire(ctx, id, t)
	}
	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-tk.C:
			s.fire(ctx, id, t)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, id domain.CheckID, t *task) {
	if !t.busy.CompareAndSwap(false, true) {
		s.Logger.Debug("tick_skipped_busy", zap.String("check_id", string(id)))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			t.busy.Store(false)
			s.release(id, t.busy)
		}()
		s.run(ctx, id)
	}()
}
