// Package scheduler runs the bot's recurring maintenance tasks on cron
// schedules and exposes their state to the dashboard API.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// TaskFunc is the unit of work a task runs on each tick.
type TaskFunc func(ctx context.Context) error

// TaskConfig describes a recurring task.
type TaskConfig struct {
	ID          string
	Name        string
	Description string
	Cron        string // standard 5-field cron expression
	Func        TaskFunc
	RunOnStart  bool // also fire once when the scheduler starts
}

// TaskInfo is the dashboard view of a task.
type TaskInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Cron        string     `json:"cron"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	Running     bool       `json:"running"`
}

type taskEntry struct {
	config  TaskConfig
	job     gocron.Job
	lastRun *time.Time
	lastErr string
	running bool
}

// Scheduler owns the registered tasks and the underlying gocron runner.
type Scheduler struct {
	gocron gocron.Scheduler
	log    zerolog.Logger
	tasks  map[string]*taskEntry
	mu     sync.RWMutex
}

// New creates a stopped scheduler; call Start after registering tasks.
func New(logger zerolog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{
		gocron: gs,
		log:    logger.With().Str("component", "scheduler").Logger(),
		tasks:  make(map[string]*taskEntry),
	}, nil
}

// RegisterTask adds a task. IDs must be unique; the ID doubles as the
// handle for RunNow and the dashboard.
func (s *Scheduler) RegisterTask(config TaskConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[config.ID]; exists {
		return fmt.Errorf("task with ID %q already registered", config.ID)
	}

	job, err := s.gocron.NewJob(
		gocron.CronJob(config.Cron, false),
		gocron.NewTask(func() { s.runTask(config.ID) }),
		gocron.WithName(config.Name),
		gocron.WithTags(config.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to create job for task %q: %w", config.ID, err)
	}

	s.tasks[config.ID] = &taskEntry{config: config, job: job}
	s.log.Info().
		Str("id", config.ID).
		Str("cron", config.Cron).
		Bool("runOnStart", config.RunOnStart).
		Msg("Registered task")
	return nil
}

func (s *Scheduler) runTask(taskID string) {
	s.mu.Lock()
	entry, exists := s.tasks[taskID]
	if !exists {
		s.mu.Unlock()
		return
	}
	entry.running = true
	s.mu.Unlock()

	started := time.Now()
	err := entry.config.Func(context.Background())
	duration := time.Since(started)

	s.mu.Lock()
	entry.running = false
	entry.lastRun = &started
	entry.lastErr = ""
	if err != nil {
		entry.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("id", taskID).Dur("duration", duration).Msg("Task failed")
	} else {
		s.log.Info().Str("id", taskID).Dur("duration", duration).Msg("Task completed")
	}
}

// Start begins cron scheduling and fires the RunOnStart tasks once in
// the background.
func (s *Scheduler) Start() error {
	s.gocron.Start()

	s.mu.RLock()
	var startup []string
	for id, entry := range s.tasks {
		if entry.config.RunOnStart {
			startup = append(startup, id)
		}
	}
	s.mu.RUnlock()

	for _, taskID := range startup {
		go s.runTask(taskID)
	}
	s.log.Info().Int("tasks", len(s.tasks)).Msg("Scheduler started")
	return nil
}

// Stop shuts the cron runner down. In-flight task functions finish on
// their own goroutines.
func (s *Scheduler) Stop() error {
	s.log.Info().Msg("Stopping scheduler")
	return s.gocron.Shutdown()
}

// RunNow fires a task immediately, outside its cron schedule.
func (s *Scheduler) RunNow(taskID string) error {
	s.mu.RLock()
	entry, exists := s.tasks[taskID]
	running := exists && entry.running
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	if running {
		return fmt.Errorf("task %q is already running", taskID)
	}
	go s.runTask(taskID)
	return nil
}

// ListTasks reports every registered task with its last and next run.
func (s *Scheduler) ListTasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]TaskInfo, 0, len(s.tasks))
	for _, entry := range s.tasks {
		info := TaskInfo{
			ID:          entry.config.ID,
			Name:        entry.config.Name,
			Description: entry.config.Description,
			Cron:        entry.config.Cron,
			LastRun:     entry.lastRun,
			LastError:   entry.lastErr,
			Running:     entry.running,
		}
		if nextRun, err := entry.job.NextRun(); err == nil {
			info.NextRun = &nextRun
		}
		tasks = append(tasks, info)
	}
	return tasks
}
