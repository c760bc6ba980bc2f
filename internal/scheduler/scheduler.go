// Package scheduler runs administrator-defined recurring summarization
// tasks on a wall-clock tick, grounded on summarization_scheduler.go's
// ticker-driven worker loop but redesigned around spec.md 4.10's
// at-least-once, missed-ticks-run-once semantics: nextRun always comes
// from the schedule descriptor and the current time, never from lastRun,
// so a run that finishes late never drifts the one after it.
package scheduler

import (
	"context"
	"log"
	"time"

	"summarybot-ng/internal/domain"
	"summarybot-ng/internal/metrics"
)

// Store is the narrow slice of store.Store the Scheduler needs.
type Store interface {
	DueScheduledTasks(ctx context.Context, asOf time.Time) ([]*domain.ScheduledTask, error)
	SaveScheduledTask(ctx context.Context, t *domain.ScheduledTask) error
	SaveTaskExecution(ctx context.Context, e *domain.TaskExecution) error
}

// SummaryEngine is the narrow slice of summaryengine.Engine the
// Scheduler needs.
type SummaryEngine interface {
	Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.Summary, error)
}

// Config tunes tick cadence and delivery retry.
type Config struct {
	TickInterval      time.Duration
	DeliveryRetries   int
	DefaultWindowSpan time.Duration
}

// Scheduler is the per-process wall-clock dispatcher.
type Scheduler struct {
	store   Store
	engine  SummaryEngine
	sinks   map[domain.SinkKind]Sink
	metrics *metrics.Metrics
	cfg     Config

	shutdown chan struct{}
	done     chan struct{}
}

func New(st Store, engine SummaryEngine, sinks map[domain.SinkKind]Sink, m *metrics.Metrics, cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.DefaultWindowSpan <= 0 {
		cfg.DefaultWindowSpan = time.Hour
	}
	return &Scheduler{
		store:    st,
		engine:   engine,
		sinks:    sinks,
		metrics:  m,
		cfg:      cfg,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop requests the loop to exit and blocks until it has.
func (s *Scheduler) Stop() {
	close(s.shutdown)
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case tickTime := <-ticker.C:
			s.runTick(ctx, tickTime)
		}
	}
}

// runTick is the per-tick sequence from spec.md 4.10: find due tasks,
// run each exactly once even if it's overdue by more than one tick,
// deliver to every destination, record the execution, and reschedule.
func (s *Scheduler) runTick(ctx context.Context, tickTime time.Time) {
	tasks, err := s.store.DueScheduledTasks(ctx, tickTime)
	if err != nil {
		log.Printf("scheduler: listing due tasks: %v", err)
		return
	}

	if s.metrics != nil {
		for range tasks {
			s.metrics.RecordSchedulerTickLag(time.Since(tickTime))
		}
	}

	for _, task := range tasks {
		s.runTask(ctx, task, tickTime)
	}
}

func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask, tickTime time.Time) {
	execution := &domain.TaskExecution{
		ID:        task.ID + ":" + tickTime.UTC().Format(time.RFC3339),
		TaskID:    task.ID,
		Status:    domain.ExecutionRunning,
		StartedAt: time.Now(),
	}

	end := tickTime
	start := end.Add(-s.cfg.DefaultWindowSpan)
	if task.LastRun != nil && task.LastRun.Before(start) {
		start = *task.LastRun
	}

	summary, err := s.engine.Summarize(ctx, domain.SummaryRequest{
		ChannelID: task.ChannelID,
		GuildID:   task.GuildID,
		Start:     start,
		End:       end,
		Options:   task.Options,
	})

	status := "success"
	failed := err != nil
	if failed {
		status = "error"
		execution.Status = domain.ExecutionFailed
		execution.Error = err.Error()
		task.ConsecutiveFailures++
	} else {
		execution.Status = domain.ExecutionCompleted
		execution.SummaryID = summary.ID
		execution.DeliveryResults = deliverAll(ctx, s.sinks, task.Destinations, summary, s.cfg.DeliveryRetries)
		task.ConsecutiveFailures = 0
	}

	completedAt := time.Now()
	execution.CompletedAt = &completedAt
	execution.DurationMs = completedAt.Sub(execution.StartedAt).Milliseconds()

	if s.metrics != nil {
		s.metrics.RecordSchedulerExecution(status)
	}

	if err := s.store.SaveTaskExecution(ctx, execution); err != nil {
		log.Printf("scheduler: saving execution for task %s: %v", task.ID, err)
	}

	s.reschedule(ctx, task, tickTime, failed)
}

// reschedule computes the task's next run and persists it. A failed run
// that hasn't yet hit maxFailures retries at now+retryDelayMinutes
// instead of the schedule descriptor's own cadence, so a transient
// failure doesn't silently wait for the next regularly-scheduled tick.
func (s *Scheduler) reschedule(ctx context.Context, task *domain.ScheduledTask, after time.Time, failed bool) {
	lastRun := after
	task.LastRun = &lastRun

	if task.MaxFailures > 0 && task.ConsecutiveFailures >= task.MaxFailures {
		task.Active = false
		log.Printf("scheduler: deactivating task %s after %d consecutive failures", task.ID, task.ConsecutiveFailures)
	}

	if failed && task.Active && task.RetryDelayMinutes > 0 {
		task.NextRun = after.Add(time.Duration(task.RetryDelayMinutes) * time.Minute)
	} else {
		next, err := NextRun(task.Schedule, task.Timezone, after)
		if err != nil {
			if IsNoFutureRun(err) {
				task.Active = false
			} else {
				log.Printf("scheduler: computing next run for task %s: %v", task.ID, err)
			}
		} else {
			task.NextRun = next
		}
	}

	if err := s.store.SaveScheduledTask(ctx, task); err != nil {
		log.Printf("scheduler: saving rescheduled task %s: %v", task.ID, err)
	}
}
