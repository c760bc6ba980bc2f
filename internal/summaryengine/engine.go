// Package summaryengine is the pipeline coordinator from spec.md 4.8:
// validates inputs, checks the cache, fetches and filters messages,
// builds a prompt, dispatches to the LLM, parses the response, persists
// the result, and guarantees only one LLM call is in flight per
// fingerprint at a time.
package summaryengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"summarybot-ng/internal/domain"
	"summarybot-ng/internal/errs"
	"summarybot-ng/internal/llmclient"
	"summarybot-ng/internal/metrics"
	"summarybot-ng/internal/normalize"
	"summarybot-ng/internal/promptbuilder"
	"summarybot-ng/internal/responseparser"
)

const schemaVersion = 1

// MessageSource is the narrow slice of messagesource.MessageSource the
// engine needs.
type MessageSource interface {
	FetchRange(ctx context.Context, channelID string, start, end time.Time) ([]domain.RawMessage, error)
	HasReadAccess(ctx context.Context, channelID string) (bool, error)
}

// Store is the narrow slice of store.Store the engine needs.
type Store interface {
	SaveSummary(ctx context.Context, s *domain.Summary) error
}

// Cache is the narrow slice of cache.Cache the engine needs.
type Cache interface {
	Get(ctx context.Context, fingerprint domain.Fingerprint) (*domain.Summary, bool, error)
	Put(ctx context.Context, fingerprint domain.Fingerprint, summary *domain.Summary, ttl time.Duration) error
}

// Config tunes pipeline-wide budgets.
type Config struct {
	MaxPromptTokens int
	MaxWindow       time.Duration
	DurableCacheTTL time.Duration
	DefaultModel    string
}

// Engine is the SummaryEngine component.
type Engine struct {
	source  MessageSource
	store   Store
	cache   Cache
	llm     llmclient.Client
	metrics *metrics.Metrics
	cfg     Config

	mu       sync.Mutex
	inflight map[domain.Fingerprint]*call
}

// call is one in-flight or completed summarize invocation other
// requests sharing its fingerprint can join, the "per-fingerprint
// wait-group inside SummaryEngine" spec.md 4.7 requires.
type call struct {
	done    chan struct{}
	summary *domain.Summary
	err     error
}

func New(source MessageSource, st Store, c Cache, llm llmclient.Client, m *metrics.Metrics, cfg Config) *Engine {
	if cfg.MaxPromptTokens <= 0 {
		cfg.MaxPromptTokens = 8000
	}
	return &Engine{
		source:   source,
		store:    st,
		cache:    c,
		llm:      llm,
		metrics:  m,
		cfg:      cfg,
		inflight: make(map[domain.Fingerprint]*call),
	}
}

// Summarize runs the full validating -> fetching -> filtering ->
// building -> dispatching -> parsing -> persisting -> done pipeline, or
// joins an identical in-flight request.
func (e *Engine) Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.Summary, error) {
	if err := validate(req, e.cfg.MaxWindow); err != nil {
		return nil, err
	}

	fp := Fingerprint(req)

	if sm, ok, err := e.cache.Get(ctx, fp); err != nil {
		return nil, fmt.Errorf("%w: cache lookup: %v", errs.ErrStoreTransient, err)
	} else if ok {
		return sm, nil
	}

	c, owner := e.joinOrStart(fp)
	if owner {
		e.run(ctx, req, fp, c)
	}

	select {
	case <-c.done:
		return c.summary, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) joinOrStart(fp domain.Fingerprint) (*call, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.inflight[fp]; ok {
		if e.metrics != nil {
			e.metrics.RecordSingleFlightJoin()
		}
		return c, false
	}

	c := &call{done: make(chan struct{})}
	e.inflight[fp] = c
	return c, true
}

func (e *Engine) release(fp domain.Fingerprint, c *call, summary *domain.Summary, err error) {
	c.summary = summary
	c.err = err
	close(c.done)

	e.mu.Lock()
	delete(e.inflight, fp)
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context, req domain.SummaryRequest, fp domain.Fingerprint, c *call) {
	start := time.Now()
	summary, err := e.pipeline(ctx, req, fp)

	status := "success"
	if err != nil {
		status = "error"
	}
	if e.metrics != nil {
		e.metrics.RecordSummary(status, time.Since(start))
	}

	e.release(fp, c, summary, err)
}

func (e *Engine) pipeline(ctx context.Context, req domain.SummaryRequest, fp domain.Fingerprint) (*domain.Summary, error) {
	// fetching
	readable, err := e.source.HasReadAccess(ctx, req.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("%w: checking channel access: %v", errs.ErrInternal, err)
	}
	if !readable {
		return nil, errs.ErrChannelAccess
	}

	raws, err := e.source.FetchRange(ctx, req.ChannelID, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching messages: %v", errs.ErrStoreTransient, err)
	}

	// filtering
	messages := normalize.Normalize(raws, req.Options)
	minMessages := req.Options.MinMessages
	if minMessages <= 0 {
		minMessages = 1
	}
	if len(messages) < minMessages {
		return nil, errs.ErrInsufficientContent
	}

	// building
	prompt, err := e.buildPrompt(req, messages)
	if err != nil {
		return nil, err
	}

	// dispatching
	model := req.Options.Model
	if model == "" {
		model = e.cfg.DefaultModel
	}
	result, err := e.llm.Complete(ctx, llmclient.CompletionRequest{
		SystemPrompt: prompt.system,
		UserPrompt:   prompt.user,
		Model:        model,
		Temperature:  req.Options.Temperature,
		MaxTokens:    req.Options.MaxOutputTokens,
	})
	if err != nil {
		return nil, translateLLMError(err)
	}

	// parsing
	parsed := responseparser.Parse(result.Text)

	// assembling
	summary := assemble(req, fp, messages, parsed, result, e.llm.EstimateCost(model, result.PromptTokens, result.CompletionTokens))

	// persisting
	if err := e.store.SaveSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("%w: saving summary: %v", errs.ErrStoreTransient, err)
	}
	if err := e.cache.Put(ctx, fp, summary, e.cfg.DurableCacheTTL); err != nil {
		return nil, fmt.Errorf("%w: caching summary: %v", errs.ErrStoreTransient, err)
	}

	return summary, nil
}

type builtPrompt struct {
	system string
	user   string
}

func (e *Engine) buildPrompt(req domain.SummaryRequest, messages []domain.Message) (builtPrompt, error) {
	maxOutput := req.Options.MaxOutputTokens
	if maxOutput <= 0 {
		maxOutput = 1000
	}

	user, err := promptbuilder.BuildUserPrompt(messages, promptbuilder.Context{
		ChannelName:      req.ChannelID,
		GuildName:        req.GuildID,
		ParticipantCount: countParticipants(messages),
		SpanHours:        req.End.Sub(req.Start).Hours(),
	}, promptbuilder.Budget{MaxPromptTokens: e.cfg.MaxPromptTokens, MaxOutputTokens: maxOutput})
	if err != nil {
		return builtPrompt{}, err
	}

	return builtPrompt{system: promptbuilder.BuildSystemPrompt(req.Options.LengthProfile), user: user}, nil
}

func translateLLMError(err error) error {
	switch {
	case errors.Is(err, errs.ErrLLMRefused), errors.Is(err, errs.ErrLLMInvalid), errors.Is(err, errs.ErrLLMTransient):
		return err
	default:
		return fmt.Errorf("%w: %v", errs.ErrLLMTransient, err)
	}
}

func validate(req domain.SummaryRequest, maxWindow time.Duration) error {
	if req.ChannelID == "" || req.GuildID == "" {
		return fmt.Errorf("%w: channel and guild are required", errs.ErrUserInput)
	}
	if !req.Start.Before(req.End) {
		return fmt.Errorf("%w: start must be before end", errs.ErrUserInput)
	}
	if maxWindow > 0 && req.End.Sub(req.Start) > maxWindow {
		return fmt.Errorf("%w: requested window %s exceeds the maximum of %s", errs.ErrUserInput, req.End.Sub(req.Start), maxWindow)
	}
	switch req.Options.LengthProfile {
	case domain.LengthBrief, domain.LengthDetailed, domain.LengthComprehensive, "":
	default:
		return fmt.Errorf("%w: unknown length profile %q", errs.ErrUserInput, req.Options.LengthProfile)
	}
	if req.Options.Temperature < 0 || req.Options.Temperature > 1 {
		return fmt.Errorf("%w: temperature must be in [0,1]", errs.ErrUserInput)
	}
	return nil
}

func countParticipants(messages []domain.Message) int {
	seen := make(map[string]struct{})
	for _, m := range messages {
		seen[m.AuthorID] = struct{}{}
	}
	return len(seen)
}

// assemble builds the persisted Summary. Participant counts come from
// the normalized messages (authoritative); the LLM's participant list
// only enriches display names and contribution notes.
func assemble(req domain.SummaryRequest, fp domain.Fingerprint, messages []domain.Message, parsed responseparser.Parsed, result llmclient.CompletionResult, cost float64) *domain.Summary {
	authoritative := authoritativeParticipants(messages)
	mergeParticipantNotes(authoritative, parsed.Participants)

	participants := make([]domain.Participant, 0, len(authoritative))
	for _, p := range authoritative {
		participants = append(participants, *p)
	}

	return &domain.Summary{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Fingerprint:    fp,
		ChannelID:      req.ChannelID,
		GuildID:        req.GuildID,
		Start:          req.Start,
		End:            req.End,
		ProcessedCount: len(messages),
		Body:           parsed.Body,
		KeyPoints:      parsed.KeyPoints,
		ActionItems:    parsed.ActionItems,
		TechnicalTerms: parsed.TechnicalTerms,
		Participants:   participants,
		Metadata: domain.GenerationMetadata{
			Model:            result.Model,
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			WallClockMs:      result.LatencyMs,
			CostEstimate:     cost,
		},
		CreatedAt:     time.Now().UTC(),
		Warnings:      parsed.Warnings,
		SchemaVersion: schemaVersion,
	}
}

func authoritativeParticipants(messages []domain.Message) map[string]*domain.Participant {
	out := make(map[string]*domain.Participant)
	for _, m := range messages {
		p, ok := out[m.AuthorID]
		if !ok {
			p = &domain.Participant{UserID: m.AuthorID, DisplayName: m.AuthorName}
			out[m.AuthorID] = p
		}
		p.MessageCount++
	}
	return out
}

func mergeParticipantNotes(authoritative map[string]*domain.Participant, llmParticipants []domain.Participant) {
	for _, lp := range llmParticipants {
		p, ok := authoritative[lp.UserID]
		if !ok {
			continue
		}
		if lp.DisplayName != "" {
			p.DisplayName = lp.DisplayName
		}
		p.NotableContributions = append(p.NotableContributions, lp.NotableContributions...)
	}
}

// BatchResult pairs a request with its outcome so BatchSummarize can
// report partial failures without losing the caller's ordering.
type BatchResult struct {
	Request domain.SummaryRequest
	Summary *domain.Summary
	Err     error
}

// BatchSummarize dedups requests sharing a fingerprint down to one
// Summarize call each, then fans the distinct ones out across
// goroutines; a duplicate receives the result of the first request
// with its fingerprint. Concurrency is bounded by the LLMClient's own
// semaphore, so no additional limiter is needed here.
func (e *Engine) BatchSummarize(ctx context.Context, reqs []domain.SummaryRequest) []BatchResult {
	results := make([]BatchResult, len(reqs))

	first := make(map[domain.Fingerprint]int, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		fp := Fingerprint(req)
		if _, seen := first[fp]; seen {
			continue
		}
		first[fp] = i
		wg.Add(1)
		go func(i int, req domain.SummaryRequest) {
			defer wg.Done()
			summary, err := e.Summarize(ctx, req)
			results[i] = BatchResult{Request: req, Summary: summary, Err: err}
		}(i, req)
	}
	wg.Wait()

	for i, req := range reqs {
		if j := first[Fingerprint(req)]; j != i {
			results[i] = BatchResult{Request: req, Summary: results[j].Summary, Err: results[j].Err}
		}
	}
	return results
}

// EstimateCost runs PromptBuilder only, never the LLM, returning the
// dollar estimate a caller can show before committing to a Summarize call.
func (e *Engine) EstimateCost(ctx context.Context, req domain.SummaryRequest) (float64, error) {
	if err := validate(req, e.cfg.MaxWindow); err != nil {
		return 0, err
	}

	readable, err := e.source.HasReadAccess(ctx, req.ChannelID)
	if err != nil {
		return 0, fmt.Errorf("%w: checking channel access: %v", errs.ErrInternal, err)
	}
	if !readable {
		return 0, errs.ErrChannelAccess
	}

	raws, err := e.source.FetchRange(ctx, req.ChannelID, req.Start, req.End)
	if err != nil {
		return 0, fmt.Errorf("%w: fetching messages: %v", errs.ErrStoreTransient, err)
	}

	messages := normalize.Normalize(raws, req.Options)
	prompt, err := e.buildPrompt(req, messages)
	if err != nil {
		return 0, err
	}

	promptTokens := (len(prompt.system) + len(prompt.user)) / 4
	maxOutput := req.Options.MaxOutputTokens
	if maxOutput <= 0 {
		maxOutput = 1000
	}

	model := req.Options.Model
	if model == "" {
		model = e.cfg.DefaultModel
	}
	return e.llm.EstimateCost(model, promptTokens, maxOutput), nil
}
