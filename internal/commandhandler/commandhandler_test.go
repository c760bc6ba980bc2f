package commandhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"summarybot-ng/internal/domain"
	"summarybot-ng/internal/errs"
)

type fakeSource struct {
	roles map[string][]string
}

func (f *fakeSource) ResolveUserRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	return f.roles[guildID+":"+userID], nil
}

type fakeEngine struct {
	summary *domain.Summary
	err     error
	cost    float64
}

func (f *fakeEngine) Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.Summary, error) {
	return f.summary, f.err
}

func (f *fakeEngine) EstimateCost(ctx context.Context, req domain.SummaryRequest) (float64, error) {
	return f.cost, f.err
}

type fakeStore struct {
	cfg   *domain.GuildConfig
	tasks []*domain.ScheduledTask
}

func (f *fakeStore) GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	if f.cfg == nil {
		return nil, errs.ErrNotFound
	}
	return f.cfg, nil
}

func (f *fakeStore) SaveGuildConfig(ctx context.Context, g *domain.GuildConfig) error {
	f.cfg = g
	return nil
}

func (f *fakeStore) SaveScheduledTask(ctx context.Context, t *domain.ScheduledTask) error {
	f.tasks = append(f.tasks, t)
	return nil
}

func (f *fakeStore) DeleteScheduledTask(ctx context.Context, id string) error {
	out := f.tasks[:0]
	for _, t := range f.tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	f.tasks = out
	return nil
}

func (f *fakeStore) ScheduledTasksByGuild(ctx context.Context, guildID string) ([]*domain.ScheduledTask, error) {
	return f.tasks, nil
}

type fakeCache struct {
	invalidated string
}

func (f *fakeCache) InvalidateGuild(ctx context.Context, guildID string) error {
	f.invalidated = guildID
	return nil
}

func TestHandleSummarizeSuccess(t *testing.T) {
	engine := &fakeEngine{summary: &domain.Summary{ID: "s1", Body: "body"}}
	h := New(&fakeSource{}, engine, &fakeStore{}, &fakeCache{}, nil)

	res, err := h.HandleSummarize(context.Background(), Invocation{UserID: "u1", GuildID: "g1"}, domain.SummaryRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "body" {
		t.Errorf("expected body text, got %q", res.Text)
	}
}

func TestHandleSummarizeRateLimited(t *testing.T) {
	engine := &fakeEngine{summary: &domain.Summary{ID: "s1"}}
	h := New(&fakeSource{}, engine, &fakeStore{}, &fakeCache{}, nil)
	inv := Invocation{UserID: "u1", GuildID: "g1"}

	for i := 0; i < 3; i++ {
		if _, err := h.HandleSummarize(context.Background(), inv, domain.SummaryRequest{}); err != nil {
			t.Fatalf("unexpected error on request %d: %v", i, err)
		}
	}

	_, err := h.HandleSummarize(context.Background(), inv, domain.SummaryRequest{})
	if !errors.Is(err, errs.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited on 4th request within window, got %v", err)
	}
}

func TestHandleConfigRequiresAdminRole(t *testing.T) {
	st := &fakeStore{cfg: &domain.GuildConfig{GuildID: "g1", Permission: domain.PermissionConfig{AllowedRoles: []string{"admin"}}}}
	source := &fakeSource{roles: map[string][]string{"g1:u1": {"member"}}}
	h := New(source, &fakeEngine{}, st, &fakeCache{}, nil)

	_, err := h.HandleConfig(context.Background(), Invocation{UserID: "u1", GuildID: "g1"}, func(c *domain.GuildConfig) {
		c.EnabledChannels = []string{"chan1"}
	})
	if !errors.Is(err, errs.ErrPermission) {
		t.Errorf("expected ErrPermission, got %v", err)
	}
}

func TestHandleConfigAppliesMutationAndInvalidatesCache(t *testing.T) {
	st := &fakeStore{cfg: &domain.GuildConfig{GuildID: "g1"}}
	cache := &fakeCache{}
	h := New(&fakeSource{}, &fakeEngine{}, st, cache, nil)

	_, err := h.HandleConfig(context.Background(), Invocation{UserID: "u1", GuildID: "g1"}, func(c *domain.GuildConfig) {
		c.EnabledChannels = []string{"chan1"}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.cfg.EnabledChannels) != 1 || st.cfg.EnabledChannels[0] != "chan1" {
		t.Errorf("expected mutation applied, got %+v", st.cfg)
	}
	if cache.invalidated != "g1" {
		t.Errorf("expected cache invalidated for g1, got %q", cache.invalidated)
	}
}

func TestHandleConfigRejectsOverlappingChannelSets(t *testing.T) {
	st := &fakeStore{cfg: &domain.GuildConfig{GuildID: "g1"}}
	h := New(&fakeSource{}, &fakeEngine{}, st, &fakeCache{}, nil)

	_, err := h.HandleConfig(context.Background(), Invocation{UserID: "u1", GuildID: "g1"}, func(c *domain.GuildConfig) {
		c.EnabledChannels = []string{"chan1"}
		c.ExcludedChannels = []string{"chan1"}
	})
	if !errors.Is(err, errs.ErrUserInput) {
		t.Errorf("expected ErrUserInput for overlapping channel sets, got %v", err)
	}
}

func TestUserMessageTranslation(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{errs.ErrPermission, "Insufficient permissions."},
		{errs.ErrInsufficientContent, "Not enough messages in that range to summarize."},
		{errs.ErrChannelAccess, "The bot does not have access to that channel."},
		{errs.ErrPromptTooLarge, "That time range is too large to summarize in one request."},
	}
	for _, c := range cases {
		if got := UserMessage(c.err); got != c.want {
			t.Errorf("UserMessage(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestScheduleCreateAndDelete(t *testing.T) {
	st := &fakeStore{cfg: &domain.GuildConfig{GuildID: "g1"}}
	h := New(&fakeSource{}, &fakeEngine{}, st, &fakeCache{}, nil)
	inv := Invocation{UserID: "u1", GuildID: "g1"}

	task := &domain.ScheduledTask{ID: "t1", Name: "daily", NextRun: time.Now().Add(time.Hour)}
	if _, err := h.HandleScheduleCreate(context.Background(), inv, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.tasks) != 1 {
		t.Fatalf("expected task saved, got %d", len(st.tasks))
	}

	if _, err := h.HandleScheduleDelete(context.Background(), inv, "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.tasks) != 0 {
		t.Errorf("expected task removed, got %d", len(st.tasks))
	}
}
