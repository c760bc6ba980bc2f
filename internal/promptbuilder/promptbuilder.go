// Package promptbuilder composes the system and user prompts handed to
// LLMClient, applying a token-budget elision pass over the chronological
// message window the same way information-broker's summarizer.go
// composes its Ollama prompt from article content.
package promptbuilder

import (
	"fmt"
	"strings"

	"summarybot-ng/internal/domain"
	"summarybot-ng/internal/errs"
)

const (
	charsPerToken   = 4
	safetyTokens    = 256
	elisionEnvelope = 0.30 // keep first/last 30% of messages on overflow
)

// Budget bounds a single prompt build.
type Budget struct {
	MaxPromptTokens int
	MaxOutputTokens int
}

// Context supplies display-only framing data for the user prompt.
type Context struct {
	ChannelName      string
	GuildName        string
	ParticipantCount int
	SpanHours        float64
}

// BuildSystemPrompt returns the instruction prompt for a length profile.
func BuildSystemPrompt(profile domain.LengthProfile) string {
	switch profile {
	case domain.LengthBrief:
		return "You summarize chat conversations concisely. Produce 3-5 bullet key points, " +
			"about 150 words total. Focus only on the most important points."
	case domain.LengthComprehensive:
		return "You summarize chat conversations thoroughly. Produce 600-1000+ words covering " +
			"topics discussed, decisions made, action items, technical terms introduced, and " +
			"notable participant contributions. Structure the response with clear sections."
	default: // domain.LengthDetailed and unset
		return "You summarize chat conversations. Produce 300-600 words organized by topic, " +
			"including key points, any action items, and notable contributions."
	}
}

// BuildUserPrompt renders messages into the conversation transcript the
// model sees, applying middle elision when the estimated token count
// exceeds budget.
func BuildUserPrompt(messages []domain.Message, ctx Context, budget Budget) (string, error) {
	header := fmt.Sprintf(
		"Channel: %s\nGuild: %s\nParticipants: %d\nTime span: %.1f hours\n\nConversation:\n",
		ctx.ChannelName, ctx.GuildName, ctx.ParticipantCount, ctx.SpanHours,
	)

	limit := budget.MaxPromptTokens - budget.MaxOutputTokens - safetyTokens
	if limit <= 0 {
		return "", fmt.Errorf("%w: budget leaves no room for a prompt", errs.ErrPromptTooLarge)
	}

	body := renderMessages(messages)
	if estimateTokens(header+body) <= limit {
		return header + body, nil
	}

	elided, ok := elideMiddle(messages, header, limit)
	if !ok {
		return "", fmt.Errorf("%w: first/last envelope still exceeds %d tokens", errs.ErrPromptTooLarge, limit)
	}
	return header + elided, nil
}

func renderMessages(messages []domain.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format("15:04"), m.AuthorName, m.Text)
		for _, cb := range m.CodeBlocks {
			fmt.Fprintf(&b, "```%s\n%s\n```\n", cb.Language, cb.Text)
		}
	}
	return b.String()
}

// elideMiddle keeps the first and last envelope% of messages, dropping
// the middle and inserting a single marker, per the default 30%/30%
// split.
func elideMiddle(messages []domain.Message, header string, limit int) (string, bool) {
	n := len(messages)
	if n == 0 {
		return "", estimateTokens(header) <= limit
	}

	keep := int(float64(n) * elisionEnvelope)
	if keep < 1 {
		keep = 1
	}
	if keep*2 >= n {
		// Envelope already covers everything; nothing left to elide.
		body := renderMessages(messages)
		return body, estimateTokens(header+body) <= limit
	}

	first := messages[:keep]
	last := messages[n-keep:]
	omitted := n - 2*keep

	var b strings.Builder
	b.WriteString(renderMessages(first))
	fmt.Fprintf(&b, "[... %d messages omitted ...]\n", omitted)
	b.WriteString(renderMessages(last))

	body := b.String()
	return body, estimateTokens(header+body) <= limit
}

// estimateTokens applies the 1-token ~= 4-character rule.
func estimateTokens(text string) int {
	return len(text) / charsPerToken
}
