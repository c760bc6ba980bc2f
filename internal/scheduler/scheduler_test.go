package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"summarybot-ng/internal/domain"
)

type fakeStore struct {
	mu         sync.Mutex
	due        []*domain.ScheduledTask
	saved      []*domain.ScheduledTask
	executions []*domain.TaskExecution
}

func (f *fakeStore) DueScheduledTasks(ctx context.Context, asOf time.Time) ([]*domain.ScheduledTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.due, nil
}

func (f *fakeStore) SaveScheduledTask(ctx context.Context, t *domain.ScheduledTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, t)
	return nil
}

func (f *fakeStore) SaveTaskExecution(ctx context.Context, e *domain.TaskExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions = append(f.executions, e)
	return nil
}

type fakeEngine struct {
	calls   int
	summary *domain.Summary
	err     error
}

func (f *fakeEngine) Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.Summary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

type fakeSink struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSink) Deliver(ctx context.Context, dest domain.Destination, summary *domain.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func TestRunTickDeliversAndReschedules(t *testing.T) {
	tickTime := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	task := &domain.ScheduledTask{
		ID:           "task1",
		ChannelID:    "chan1",
		GuildID:      "guild1",
		Schedule:     domain.Schedule{Kind: domain.ScheduleDailyAt, Hour: 9, Minute: 0},
		Timezone:     "UTC",
		Destinations: []domain.Destination{{Sink: domain.SinkWebhook, Target: "https://example.invalid/hook"}},
		Active:       true,
	}
	st := &fakeStore{due: []*domain.ScheduledTask{task}}
	engine := &fakeEngine{summary: &domain.Summary{ID: "sum1", Body: "a summary"}}
	sink := &fakeSink{}

	s := New(st, engine, map[domain.SinkKind]Sink{domain.SinkWebhook: sink}, nil, Config{})
	s.runTick(context.Background(), tickTime)

	if engine.calls != 1 {
		t.Errorf("expected exactly one Summarize call, got %d", engine.calls)
	}
	if sink.calls != 1 {
		t.Errorf("expected exactly one delivery, got %d", sink.calls)
	}
	if len(st.executions) != 1 || st.executions[0].Status != domain.ExecutionCompleted {
		t.Fatalf("expected one completed execution, got %+v", st.executions)
	}
	if len(st.saved) != 1 {
		t.Fatalf("expected task to be rescheduled, got %d saves", len(st.saved))
	}
	if !st.saved[0].NextRun.After(tickTime) {
		t.Errorf("expected next run after tick time, got %v", st.saved[0].NextRun)
	}
	if task.ConsecutiveFailures != 0 {
		t.Errorf("expected failure count reset on success, got %d", task.ConsecutiveFailures)
	}
}

func TestRunTickDeactivatesAfterMaxFailures(t *testing.T) {
	tickTime := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	task := &domain.ScheduledTask{
		ID:                  "task1",
		ChannelID:           "chan1",
		GuildID:             "guild1",
		Schedule:            domain.Schedule{Kind: domain.ScheduleDailyAt, Hour: 9, Minute: 0},
		Timezone:            "UTC",
		Active:              true,
		MaxFailures:         1,
		ConsecutiveFailures: 0,
	}
	st := &fakeStore{due: []*domain.ScheduledTask{task}}
	engine := &fakeEngine{err: errTest{}}

	s := New(st, engine, map[domain.SinkKind]Sink{}, nil, Config{})
	s.runTick(context.Background(), tickTime)

	if len(st.executions) != 1 || st.executions[0].Status != domain.ExecutionFailed {
		t.Fatalf("expected one failed execution, got %+v", st.executions)
	}
	if task.Active {
		t.Error("expected task to be deactivated after reaching MaxFailures")
	}
}

func TestRunTickRetriesAtRetryDelayAfterTransientFailure(t *testing.T) {
	tickTime := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	task := &domain.ScheduledTask{
		ID:                "task1",
		ChannelID:         "chan1",
		GuildID:           "guild1",
		Schedule:          domain.Schedule{Kind: domain.ScheduleDailyAt, Hour: 9, Minute: 0},
		Timezone:          "UTC",
		Active:            true,
		MaxFailures:       3,
		RetryDelayMinutes: 5,
	}
	st := &fakeStore{due: []*domain.ScheduledTask{task}}
	engine := &fakeEngine{err: errTest{}}

	s := New(st, engine, map[domain.SinkKind]Sink{}, nil, Config{})
	s.runTick(context.Background(), tickTime)

	if !task.Active {
		t.Fatal("expected task to remain active below MaxFailures")
	}
	want := tickTime.Add(5 * time.Minute)
	if len(st.saved) != 1 || !st.saved[0].NextRun.Equal(want) {
		t.Fatalf("expected nextRun = previous + 5min (%v), got %v", want, st.saved)
	}
}

type errTest struct{}

func (errTest) Error() string { return "engine failure" }
