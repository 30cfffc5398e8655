// Package scheduler runs periodic housekeeping: email queue recovery and
// retention, and pruning of idle rate limiters. Nothing here touches
// bookings or memberships.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/erlendps/thingbooker/pkg/logger"
)

// taskTimeout bounds a single task run.
const taskTimeout = 10 * time.Minute

// TaskFunc is the function signature for scheduled tasks
type TaskFunc func(ctx context.Context) error

// Scheduler manages scheduled tasks using robfig/cron.
// Cron expressions use the standard five fields.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	tasks   map[string]cron.EntryID
	mu      sync.RWMutex
	running bool
}

// NewScheduler creates a new scheduler
func NewScheduler(log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		log:   log.With(logger.Scope("scheduler")),
		tasks: make(map[string]cron.EntryID),
	}
}

// Start begins the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.cron.Start()
	s.running = true
	s.log.Info("scheduler started", slog.Int("tasks", len(s.tasks)))
	return nil
}

// Stop waits for running tasks to finish or ctx to end
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.log.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timeout")
	}

	s.running = false
	return nil
}

// AddCronTask adds a task with a cron expression, replacing any task with
// the same name.
func (s *Scheduler) AddCronTask(name string, schedule string, task TaskFunc) error {
	return s.add(name, schedule, task)
}

// AddIntervalTask adds a task that runs at a fixed interval
func (s *Scheduler) AddIntervalTask(name string, interval time.Duration, task TaskFunc) error {
	return s.add(name, "@every "+interval.String(), task)
}

func (s *Scheduler) add(name, schedule string, task TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.tasks[name]; ok {
		s.cron.Remove(entryID)
		delete(s.tasks, name)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.runTask(name, task)
	})
	if err != nil {
		return err
	}

	s.tasks[name] = entryID
	s.log.Info("added scheduled task",
		slog.String("name", name),
		slog.String("schedule", schedule))
	return nil
}

// RemoveTask removes a scheduled task
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.tasks[name]; ok {
		s.cron.Remove(entryID)
		delete(s.tasks, name)
		s.log.Info("removed task", slog.String("name", name))
	}
}

func (s *Scheduler) runTask(name string, task TaskFunc) {
	startTime := time.Now()
	s.log.Debug("running scheduled task", slog.String("name", name))

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	if err := task(ctx); err != nil {
		s.log.Error("scheduled task failed",
			slog.String("name", name),
			logger.Error(err),
			slog.Duration("duration", time.Since(startTime)))
		return
	}

	s.log.Debug("scheduled task completed",
		slog.String("name", name),
		slog.Duration("duration", time.Since(startTime)))
}

// ListTasks returns the names of all scheduled tasks, sorted
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskInfo describes a scheduled task
type TaskInfo struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"nextRun"`
	PrevRun time.Time `json:"prevRun,omitempty"`
}

// GetTaskInfo returns information about all scheduled tasks
func (s *Scheduler) GetTaskInfo() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := make([]TaskInfo, 0, len(s.tasks))
	for name, entryID := range s.tasks {
		entry := s.cron.Entry(entryID)
		if !entry.Valid() {
			continue
		}
		info = append(info, TaskInfo{Name: name, NextRun: entry.Next, PrevRun: entry.Prev})
	}
	sort.Slice(info, func(i, j int) bool { return info[i].Name < info[j].Name })
	return info
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
