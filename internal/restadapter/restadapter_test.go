package restadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"summarybot-ng/internal/domain"
	"summarybot-ng/internal/errs"
	"summarybot-ng/internal/store"
)

type fakeEngine struct {
	summary *domain.Summary
	err     error
}

func (f *fakeEngine) Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.Summary, error) {
	return f.summary, f.err
}

type fakeStore struct {
	summaries map[string]*domain.Summary
	tasks     map[string]*domain.ScheduledTask
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{summaries: make(map[string]*domain.Summary), tasks: make(map[string]*domain.ScheduledTask)}
}

func (f *fakeStore) SaveSummary(ctx context.Context, s *domain.Summary) error {
	f.summaries[s.ID] = s
	return nil
}
func (f *fakeStore) GetSummary(ctx context.Context, id string) (*domain.Summary, error) {
	s, ok := f.summaries[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return s, nil
}
func (f *fakeStore) GetSummaryByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.Summary, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeStore) FindSummaries(ctx context.Context, filter store.SummaryFilter) ([]*domain.Summary, error) {
	var out []*domain.Summary
	for _, s := range f.summaries {
		out = append(out, s)
	}
	return out, nil
}
func (f *fakeStore) DeleteSummary(ctx context.Context, id string) error {
	delete(f.summaries, id)
	return nil
}
func (f *fakeStore) CountSummaries(ctx context.Context, channelID string) (int, error) {
	return len(f.summaries), nil
}
func (f *fakeStore) SaveGuildConfig(ctx context.Context, g *domain.GuildConfig) error { return nil }
func (f *fakeStore) GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeStore) DeleteGuildConfig(ctx context.Context, guildID string) error { return nil }
func (f *fakeStore) SaveScheduledTask(ctx context.Context, t *domain.ScheduledTask) error {
	if t.ID == "" {
		t.ID = "task-1"
	}
	f.tasks[t.ID] = t
	return nil
}
func (f *fakeStore) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return t, nil
}
func (f *fakeStore) DeleteScheduledTask(ctx context.Context, id string) error {
	delete(f.tasks, id)
	return nil
}
func (f *fakeStore) DueScheduledTasks(ctx context.Context, asOf time.Time) ([]*domain.ScheduledTask, error) {
	return nil, nil
}
func (f *fakeStore) ScheduledTasksByGuild(ctx context.Context, guildID string) ([]*domain.ScheduledTask, error) {
	return nil, nil
}
func (f *fakeStore) SaveTaskExecution(ctx context.Context, e *domain.TaskExecution) error { return nil }
func (f *fakeStore) GetTaskExecutions(ctx context.Context, taskID string, limit int) ([]*domain.TaskExecution, error) {
	return nil, nil
}
func (f *fakeStore) Ping(ctx context.Context) error           { return f.pingErr }
func (f *fakeStore) Stats() (open, inUse, idle int)           { return 1, 0, 1 }

func newTestAdapter(st *fakeStore, eng *fakeEngine) *Adapter {
	cfg := Config{CORSAllowedOrigins: "*", CORSAllowedMethods: "GET,POST,DELETE", CORSAllowedHeaders: "Content-Type"}
	auth := AuthConfig{APIKeys: map[string]Principal{"testkey": {ID: "tester", Admin: true}}}
	return New(eng, st, nil, nil, nil, cfg, auth)
}

func TestHealthIsUnauthenticated(t *testing.T) {
	a := newTestAdapter(newFakeStore(), &fakeEngine{})
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSummarizeRequiresAuth(t *testing.T) {
	a := newTestAdapter(newFakeStore(), &fakeEngine{summary: &domain.Summary{ID: "s1"}})
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	body, _ := json.Marshal(summarizeBody{ChannelID: "c1", GuildID: "g1"})
	resp, err := http.Post(srv.URL+"/v1/summarize", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestSummarizeWithAPIKeySucceeds(t *testing.T) {
	eng := &fakeEngine{summary: &domain.Summary{ID: "s1", Body: "a concise summary"}}
	a := newTestAdapter(newFakeStore(), eng)
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	body, _ := json.Marshal(summarizeBody{ChannelID: "c1", GuildID: "g1", Start: time.Now().Add(-time.Hour), End: time.Now()})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/summarize", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "testkey")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got domain.Summary
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "s1" {
		t.Fatalf("expected summary s1, got %q", got.ID)
	}
}

func TestGetSummaryNotFound(t *testing.T) {
	a := newTestAdapter(newFakeStore(), &fakeEngine{})
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/summary/missing", nil)
	req.Header.Set("X-API-Key", "testkey")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestScheduleCreateAndDelete(t *testing.T) {
	st := newFakeStore()
	a := newTestAdapter(st, &fakeEngine{})
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	body, _ := json.Marshal(scheduleBody{Name: "daily", ChannelID: "c1", GuildID: "g1"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/schedule", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "testkey")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created domain.ScheduledTask
	json.NewDecoder(resp.Body).Decode(&created)
	if created.CreatorID != "tester" {
		t.Fatalf("expected creator attribution from principal, got %q", created.CreatorID)
	}

	delReq, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/schedule/"+created.ID, nil)
	delReq.Header.Set("X-API-Key", "testkey")
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", delResp.StatusCode)
	}
}

func TestRateLimitRejectsExcess(t *testing.T) {
	a := newTestAdapter(newFakeStore(), &fakeEngine{summary: &domain.Summary{ID: "s1"}})
	a.cfg.RequestsPerMinute = 1
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	body, _ := json.Marshal(summarizeBody{ChannelID: "c1", GuildID: "g1"})
	do := func() int {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/summarize", bytes.NewReader(body))
		req.Header.Set("X-API-Key", "testkey")
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	first := do()
	second := do()
	if first != http.StatusOK {
		t.Fatalf("expected first call to succeed, got %d", first)
	}
	if second != http.StatusTooManyRequests {
		t.Fatalf("expected second call rate limited, got %d", second)
	}
}
