package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"summarybot-ng/internal/domain"
)

// Sink delivers a rendered Summary to one Destination. Implementations
// are retried by the caller (deliverAll), not internally, so every sink
// shares one backoff policy.
type Sink interface {
	Deliver(ctx context.Context, dest domain.Destination, summary *domain.Summary) error
}

// deliverAll sends summary to every destination, retrying each one
// independently with the same exponential backoff the teacher's
// DiscordWebhookSender uses (1s, 2s, 4s, maxRetries=2), and returns a
// DeliveryResult per destination regardless of individual failures so
// one bad destination never blocks the others.
func deliverAll(ctx context.Context, sinks map[domain.SinkKind]Sink, destinations []domain.Destination, summary *domain.Summary, maxRetries int) []domain.DeliveryResult {
	results := make([]domain.DeliveryResult, 0, len(destinations))
	for _, dest := range destinations {
		sink, ok := sinks[dest.Sink]
		if !ok {
			results = append(results, domain.DeliveryResult{Sink: dest.Sink, OK: false, Error: fmt.Sprintf("no sink registered for %q", dest.Sink)})
			continue
		}
		results = append(results, deliverWithRetry(ctx, sink, dest, summary, maxRetries))
	}
	return results
}

func deliverWithRetry(ctx context.Context, sink Sink, dest domain.Destination, summary *domain.Summary, maxRetries int) domain.DeliveryResult {
	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if err := sink.Deliver(ctx, dest, summary); err == nil {
			return domain.DeliveryResult{Sink: dest.Sink, OK: true}
		} else {
			lastErr = err
		}

		if attempt <= maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			select {
			case <-ctx.Done():
				return domain.DeliveryResult{Sink: dest.Sink, OK: false, Error: ctx.Err().Error()}
			case <-time.After(backoff):
			}
		}
	}
	return domain.DeliveryResult{Sink: dest.Sink, OK: false, Error: lastErr.Error()}
}

// DiscordWebhookSink posts a formatted embed to a Discord webhook URL,
// generalized from discord_webhook.go's SendArticleToDiscord (the
// article-embed shape, truncation limits, and blurple color carried over
// unchanged; article fields replaced with summary fields).
type DiscordWebhookSink struct {
	client *http.Client
}

func NewDiscordWebhookSink() *DiscordWebhookSink {
	return &DiscordWebhookSink{client: &http.Client{Timeout: 30 * time.Second}}
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordWebhookMessage struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds,omitempty"`
}

func (d *DiscordWebhookSink) Deliver(ctx context.Context, dest domain.Destination, summary *domain.Summary) error {
	embed := discordEmbed{
		Title:       fmt.Sprintf("Summary: %s", summary.ChannelID),
		Description: truncate(summary.Body, 2000),
		Color:       0x5865F2,
		Timestamp:   summary.CreatedAt.Format(time.RFC3339),
		Footer:      &discordEmbedFooter{Text: "summarybot"},
	}
	if len(summary.KeyPoints) > 0 {
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name:  "Key points",
			Value: truncate(strings.Join(summary.KeyPoints, "\n"), 1024),
		})
	}

	message := discordWebhookMessage{Username: "summarybot", Embeds: []discordEmbed{embed}}
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal discord webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.Target, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("build discord webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// GenericWebhookSink POSTs the raw summary as JSON to an arbitrary
// webhook URL -- the "webhook" SinkKind, distinct from a Discord-shaped
// one.
type GenericWebhookSink struct {
	client *http.Client
}

func NewGenericWebhookSink() *GenericWebhookSink {
	return &GenericWebhookSink{client: &http.Client{Timeout: 30 * time.Second}}
}

func (g *GenericWebhookSink) Deliver(ctx context.Context, dest domain.Destination, summary *domain.Summary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.Target, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// EmailSink sends the summary body over SMTP. Kept minimal: plaintext,
// no attachments, one recipient per Destination.Target.
type EmailSink struct {
	smtpAddr string
	from     string
	auth     smtp.Auth
}

func NewEmailSink(smtpAddr, from string, auth smtp.Auth) *EmailSink {
	return &EmailSink{smtpAddr: smtpAddr, from: from, auth: auth}
}

func (e *EmailSink) Deliver(ctx context.Context, dest domain.Destination, summary *domain.Summary) error {
	subject := fmt.Sprintf("Subject: Channel summary for %s\r\n", summary.ChannelID)
	msg := []byte(subject + "\r\n" + summary.Body)
	return smtp.SendMail(e.smtpAddr, e.auth, e.from, []string{dest.Target}, msg)
}
