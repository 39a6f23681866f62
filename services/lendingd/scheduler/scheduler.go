// Package scheduler runs periodic lending maintenance.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lendcore/native/lending"
	"lendcore/observability/metrics"
)

// Task is one periodic job. Tasks with a non-positive interval never run.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each task on its own ticker.
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger
	wg     sync.WaitGroup
}

func New(logger *slog.Logger, tasks ...Task) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{tasks: tasks, logger: logger}
}

// Start launches the task loops. They stop when ctx is cancelled; Wait
// blocks until they have returned.
func (s *Scheduler) Start(ctx context.Context) {
	for _, task := range s.tasks {
		if task.Interval <= 0 || task.Run == nil {
			s.logger.Info("scheduler task disabled", slog.String("task", task.Name))
			continue
		}
		s.wg.Add(1)
		go func(task Task) {
			defer s.wg.Done()
			s.loop(ctx, task)
		}(task)
	}
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx, task)
		}
	}
}

// RunOnce executes task a single time. ErrNothingChanged is reported at
// debug level and not counted as a failure.
func (s *Scheduler) RunOnce(ctx context.Context, task Task) error {
	err := task.Run(ctx)
	switch {
	case err == nil:
		metrics.Lending().ObserveScheduler(task.Name, nil)
	case errors.Is(err, lending.ErrNothingChanged):
		metrics.Lending().ObserveScheduler(task.Name, nil)
		s.logger.Debug("scheduler task found nothing to do", slog.String("task", task.Name))
	case errors.Is(err, context.Canceled):
	default:
		metrics.Lending().ObserveScheduler(task.Name, err)
		s.logger.Warn("scheduler task failed", slog.String("task", task.Name), slog.Any("error", err))
	}
	return err
}
