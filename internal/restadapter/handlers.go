package restadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"summarybot-ng/internal/domain"
	"summarybot-ng/internal/store"
)

// SummaryEngine is the narrow slice of summaryengine.Engine the adapter needs.
type SummaryEngine interface {
	Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.Summary, error)
}

type summarizeBody struct {
	ChannelID string                `json:"channelId"`
	GuildID   string                `json:"guildId"`
	Start     time.Time             `json:"start"`
	End       time.Time             `json:"end"`
	Options   domain.SummaryOptions `json:"options"`
}

func (a *Adapter) postSummarize(w http.ResponseWriter, r *http.Request) {
	var body summarizeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "user_input", "malformed request body", 0)
		return
	}

	summary, err := a.engine.Summarize(r.Context(), domain.SummaryRequest{
		ChannelID: body.ChannelID,
		GuildID:   body.GuildID,
		Start:     body.Start,
		End:       body.End,
		Options:   body.Options,
	})
	if err != nil {
		writeComponentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (a *Adapter) getSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := a.store.GetSummary(r.Context(), id)
	if err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *Adapter) getSummaries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := summaryFilterFromQuery(q)

	summaries, err := a.store.FindSummaries(r.Context(), filter)
	if err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

type scheduleBody struct {
	Name         string                  `json:"name"`
	ChannelID    string                  `json:"channelId"`
	GuildID      string                  `json:"guildId"`
	Schedule     domain.Schedule         `json:"schedule"`
	Timezone     string                  `json:"timezone"`
	Destinations []domain.Destination    `json:"destinations"`
	Options      domain.SummaryOptions   `json:"options"`
	MaxFailures  int                     `json:"maxFailures"`
}

func (a *Adapter) postSchedule(w http.ResponseWriter, r *http.Request) {
	var body scheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "user_input", "malformed request body", 0)
		return
	}

	task := &domain.ScheduledTask{
		Name:         body.Name,
		ChannelID:    body.ChannelID,
		GuildID:      body.GuildID,
		Schedule:     body.Schedule,
		Timezone:     body.Timezone,
		Destinations: body.Destinations,
		Options:      body.Options,
		MaxFailures:  body.MaxFailures,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	if principal, ok := PrincipalFromContext(r.Context()); ok {
		task.CreatorID = principal.ID
	}

	if err := a.store.SaveScheduledTask(r.Context(), task); err != nil {
		writeComponentError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

func (a *Adapter) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.store.DeleteScheduledTask(r.Context(), id); err != nil {
		writeComponentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Adapter) health(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func summaryFilterFromQuery(q map[string][]string) store.SummaryFilter {
	get := func(key string) string {
		if v, ok := q[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}

	limit, _ := strconv.Atoi(get("limit"))
	offset, _ := strconv.Atoi(get("offset"))

	var since, until time.Time
	if v := get("since"); v != "" {
		since, _ = time.Parse(time.RFC3339, v)
	}
	if v := get("until"); v != "" {
		until, _ = time.Parse(time.RFC3339, v)
	}

	return store.SummaryFilter{
		ChannelID: get("channelId"),
		GuildID:   get("guildId"),
		Since:     since,
		Until:     until,
		Limit:     limit,
		Offset:    offset,
	}
}
