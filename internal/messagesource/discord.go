package messagesource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"summarybot-ng/internal/breaker"
	"summarybot-ng/internal/domain"
	"summarybot-ng/internal/errs"
)

const discordAPIBase = "https://discord.com/api/v10"

// DiscordSource talks to the Discord REST API, paging through a
// channel's message history with the snowflake-based "before" cursor.
// Outbound calls run through a circuit breaker, the same protective
// wrapping information-broker's RSSMonitor puts around feed fetches.
type DiscordSource struct {
	botToken string
	pageSize int
	client   *http.Client
	cb       *breaker.Breaker
}

func NewDiscordSource(cfg Config) *DiscordSource {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordSource{
		botToken: cfg.BotToken,
		pageSize: pageSize,
		client:   &http.Client{Timeout: timeout},
		cb:       breaker.New("messagesource.discord", breaker.DefaultConfig, nil),
	}
}

type discordMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
	Content          string `json:"content"`
	Timestamp        string `json:"timestamp"`
	MentionRoles     []string `json:"mention_roles"`
	Mentions         []struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"mentions"`
	MessageReference *struct {
		MessageID string `json:"message_id"`
	} `json:"message_reference"`
	Attachments []struct {
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
		URL         string `json:"url"`
	} `json:"attachments"`
	Type int `json:"type"`
}

// FetchRange pages backwards from "now" using the before-cursor until it
// has walked past start, then returns every message inside [start, end).
func (d *DiscordSource) FetchRange(ctx context.Context, channelID string, start, end time.Time) ([]domain.RawMessage, error) {
	var out []domain.RawMessage
	before := ""

	for {
		var page []discordMessage
		err := d.cb.Execute(func() error {
			p, err := d.fetchPage(ctx, channelID, before)
			page = p
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: fetch page: %v", errs.ErrLLMTransient, err)
		}
		if len(page) == 0 {
			break
		}

		exhausted := false
		for _, m := range page {
			ts, perr := time.Parse(time.RFC3339, m.Timestamp)
			if perr != nil {
				continue
			}
			if ts.Before(start) {
				exhausted = true
				continue
			}
			if ts.Before(end) {
				out = append(out, toRawMessage(m, ts))
			}
		}

		before = page[len(page)-1].ID
		if exhausted {
			break
		}
	}

	return out, nil
}

func toRawMessage(m discordMessage, ts time.Time) domain.RawMessage {
	raw := domain.RawMessage{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		IsBot:      m.Author.Bot,
		IsSystem:   m.Type != 0,
		Content:    m.Content,
		Timestamp:  ts,
		MentionedRoles: m.MentionRoles,
	}
	for _, mention := range m.Mentions {
		raw.MentionedUsers = append(raw.MentionedUsers, mention.ID)
		raw.Mentions = append(raw.Mentions, domain.UserMention{ID: mention.ID, DisplayName: mention.Username})
	}
	if m.MessageReference != nil {
		raw.ReplyToID = m.MessageReference.MessageID
	}
	for _, a := range m.Attachments {
		raw.Attachments = append(raw.Attachments, domain.RawAttachment{
			Name: a.Filename, ContentType: a.ContentType, URL: a.URL,
		})
	}
	return raw
}

func (d *DiscordSource) fetchPage(ctx context.Context, channelID, before string) ([]discordMessage, error) {
	url := fmt.Sprintf("%s/channels/%s/messages?limit=%s", discordAPIBase, channelID, strconv.Itoa(d.pageSize))
	if before != "" {
		url += "&before=" + before
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+d.botToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := time.Second
		if secs, perr := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); perr == nil && secs > 0 {
			wait = time.Duration(secs * float64(time.Second))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		return d.fetchPage(ctx, channelID, before)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var page []discordMessage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, err
	}
	return page, nil
}

func (d *DiscordSource) HasReadAccess(ctx context.Context, channelID string) (bool, error) {
	url := fmt.Sprintf("%s/channels/%s", discordAPIBase, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bot "+d.botToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusForbidden, http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

type discordMember struct {
	Roles []string `json:"roles"`
}

func (d *DiscordSource) ResolveUserRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	url := fmt.Sprintf("%s/guilds/%s/members/%s", discordAPIBase, guildID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+d.botToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var member discordMember
	if err := json.NewDecoder(resp.Body).Decode(&member); err != nil {
		return nil, err
	}
	return member.Roles, nil
}
