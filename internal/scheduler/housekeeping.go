package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Housekeeper runs periodic maintenance jobs such as retention sweeps.
type Housekeeper struct {
	Logger *zap.Logger
	cron   *cron.Cron
}

func NewHousekeeper(logger *zap.Logger) *Housekeeper {
	cl := cronLogger{logger.Sugar()}
	return &Housekeeper{
		Logger: logger,
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
	}
}

// Every registers fn to run once per interval. ctx is handed to every run.
func (h *Housekeeper) Every(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("housekeeping %s: interval must be positive", name)
	}
	_, err := h.cron.AddFunc("@every "+interval.String(), func() {
		start := time.Now()
		fn(ctx)
		h.Logger.Debug("housekeeping_ran", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("housekeeping %s: %w", name, err)
	}
	return nil
}

// Run starts the jobs and blocks until ctx is cancelled and running jobs finish.
func (h *Housekeeper) Run(ctx context.Context) {
	h.cron.Start()
	h.Logger.Info("housekeeping_started", zap.Int("jobs", len(h.cron.Entries())))
	<-ctx.Done()
	<-h.cron.Stop().Done()
	h.Logger.Info("housekeeping_stopped")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron_"+msg, append(keysAndValues, "error", err)...)
}
