// Package scheduler implements the nightly job coordinator (spec.md §4.I):
// a small set of hour:minute tasks checked every 30 seconds, each run at
// most once per calendar day.
//
// Grounded on
// _examples/original_source/src/nyx_light/scheduler/__init__.py
// (ScheduledTask.should_run, NyxScheduler.start/_execute_task/run_task_now,
// setup_default_scheduler's 02:00 DPO / 03:00 backup / 05:00 log-cleanup set).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nyxlight/ledger/internal/platform/mlog"
)

const checkInterval = 30 * time.Second

// TaskFunc is the work a scheduled task performs; its returned map becomes
// the task's last-result snapshot.
type TaskFunc func(ctx context.Context) (map[string]any, error)

// Task is one named, hour:minute-scheduled job.
type Task struct {
	Name    string
	Hour    int
	Minute  int
	Fn      TaskFunc
	Enabled bool

	lastRun    time.Time
	lastResult map[string]any
	runCount   int
	errorCount int
}

// shouldRun reports whether now matches the task's hour:minute and it
// hasn't already run today.
func (t *Task) shouldRun(now time.Time) bool {
	if !t.Enabled || t.Fn == nil {
		return false
	}

	if now.Hour() != t.Hour || now.Minute() != t.Minute {
		return false
	}

	return t.lastRun.IsZero() || t.lastRun.Before(truncateDay(now))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Scheduler runs Tasks on a 30-second tick, each at most once per day, per
// spec.md's "Parallel tasks ... coordinated via a small set of shared
// structures" scheduling model.
type Scheduler struct {
	log   mlog.Logger
	mu    sync.Mutex
	tasks []*Task

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an empty Scheduler.
func New(log mlog.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// AddTask registers a new scheduled job.
func (s *Scheduler) AddTask(name string, hour, minute int, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, &Task{Name: name, Hour: hour, Minute: minute, Fn: fn, Enabled: true})
	s.log.Infof("scheduled task registered: %s @ %02d:%02d", name, hour, minute)
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.log.Infof("scheduler started (%d tasks)", len(s.tasks))

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	due := make([]*Task, 0)
	for _, t := range s.tasks {
		if t.shouldRun(now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		s.execute(ctx, t)
	}
}

func (s *Scheduler) execute(ctx context.Context, t *Task) {
	s.log.Infof("running scheduled task: %s", t.Name)

	start := time.Now()
	result, err := t.Fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	t.lastRun = time.Now()

	if err != nil {
		t.errorCount++
		t.lastResult = map[string]any{"error": err.Error()}
		s.log.Errorf("task %s failed: %v", t.Name, err)

		return
	}

	t.runCount++
	t.lastResult = result
	s.log.Infof("task %s finished in %s", t.Name, time.Since(start))
}

// RunNow executes one task immediately, out of band from the tick loop.
func (s *Scheduler) RunNow(ctx context.Context, name string) (map[string]any, error) {
	s.mu.Lock()
	var target *Task
	for _, t := range s.tasks {
		if t.Name == name {
			target = t
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return nil, fmt.Errorf("task %q does not exist", name)
	}

	s.execute(ctx, target)

	s.mu.Lock()
	defer s.mu.Unlock()

	return target.lastResult, nil
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done

	s.log.Infof("scheduler stopped")
}

// TaskStats is a read-only snapshot of one task's run history.
type TaskStats struct {
	Name       string
	Schedule   string
	Enabled    bool
	LastRun    time.Time
	RunCount   int
	ErrorCount int
}

// Stats returns a snapshot of every registered task.
func (s *Scheduler) Stats() []TaskStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStats, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, TaskStats{
			Name:       t.Name,
			Schedule:   fmt.Sprintf("%02d:%02d", t.Hour, t.Minute),
			Enabled:    t.Enabled,
			LastRun:    t.lastRun,
			RunCount:   t.runCount,
			ErrorCount: t.errorCount,
		})
	}

	return out
}

// SetupDefault registers spec.md's three nightly jobs: 02:00 DPO export,
// 03:00 backup, 05:00 log pruning (>90 days).
func SetupDefault(s *Scheduler, dpoExport, backup, pruneLogs TaskFunc) {
	if dpoExport != nil {
		s.AddTask("nightly_dpo_export", 2, 0, dpoExport)
	}

	if backup != nil {
		s.AddTask("nightly_backup", 3, 0, backup)
	}

	if pruneLogs != nil {
		s.AddTask("cleanup_logs", 5, 0, pruneLogs)
	}
}
