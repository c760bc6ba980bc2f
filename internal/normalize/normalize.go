// Package normalize turns RawMessage slices into the canonical Message
// shape PromptBuilder consumes: a pipeline of small pure filters
// composed in Normalize, in the same extracted-pure-helper style as
// information-broker's article_filter_test.go.
package normalize

import (
	"regexp"
	"sort"
	"strings"

	"summarybot-ng/internal/domain"
)

var codeBlockPattern = regexp.MustCompile("(?s)```(\\w*)\\n?(.*?)```")

// mentionPattern matches Discord's raw `<@id>` / `<@!id>` mention tokens.
var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// standaloneEmojiPattern matches emoji code points, used only to decide
// whether a message carries conversational text (rule 3), never to strip
// emoji from the cleaned content itself.
var standaloneEmojiPattern = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}\x{2190}-\x{21FF}\x{2B00}-\x{2BFF}\x{FE0F}]`)

// Normalize filters raws per opts and converts survivors to domain.Message,
// in ascending timestamp order with ties broken by ID.
func Normalize(raws []domain.RawMessage, opts domain.SummaryOptions) []domain.Message {
	excluded := toSet(opts.ExcludedUsers)

	out := make([]domain.Message, 0, len(raws))
	for _, raw := range raws {
		if dropSystem(raw) {
			continue
		}
		if dropBot(raw, opts.IncludeBots) {
			continue
		}
		if dropExcluded(raw, excluded) {
			continue
		}
		if dropEmpty(raw) {
			continue
		}
		out = append(out, toMessage(raw))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func dropSystem(raw domain.RawMessage) bool {
	return raw.IsSystem
}

func dropBot(raw domain.RawMessage, includeBots bool) bool {
	return raw.IsBot && !includeBots
}

func dropExcluded(raw domain.RawMessage, excluded map[string]struct{}) bool {
	_, ok := excluded[raw.AuthorID]
	return ok
}

// dropEmpty applies rule 3: text is blank if, after stripping whitespace
// and standalone emoji, nothing is left — but emoji are never stripped
// from the content that actually survives into the Message (only from
// this blank check), and an attachment alone still counts as signal.
func dropEmpty(raw domain.RawMessage) bool {
	cleaned := cleanContent(raw.Content, raw.Mentions)
	withoutEmoji := standaloneEmojiPattern.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(withoutEmoji) == "" && len(raw.Attachments) == 0
}

// cleanContent rewrites mention tokens to @DisplayName, strips control
// characters, and collapses excess whitespace, the same purpose as
// information-broker's cleanSummaryContent but applied to inbound text
// rather than an LLM response.
func cleanContent(text string, mentions []domain.UserMention) string {
	text = rewriteMentions(text, mentions)

	var b strings.Builder
	for _, r := range text {
		if r == '\n' || r == '\t' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// rewriteMentions replaces every `<@id>`/`<@!id>` token whose id is known
// with `@DisplayName`. Tokens for unresolved ids are left as-is.
func rewriteMentions(text string, mentions []domain.UserMention) string {
	if len(mentions) == 0 || !strings.Contains(text, "<@") {
		return text
	}

	names := make(map[string]string, len(mentions))
	for _, m := range mentions {
		names[m.ID] = m.DisplayName
	}

	return mentionPattern.ReplaceAllStringFunc(text, func(token string) string {
		id := mentionPattern.FindStringSubmatch(token)[1]
		if name, ok := names[id]; ok && name != "" {
			return "@" + name
		}
		return token
	})
}

func extractCodeBlocks(content string) (string, []domain.CodeBlock) {
	matches := codeBlockPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return content, nil
	}

	blocks := make([]domain.CodeBlock, 0, len(matches))
	stripped := content
	for _, m := range matches {
		blocks = append(blocks, domain.CodeBlock{Language: m[1], Text: strings.TrimSpace(m[2])})
		stripped = strings.Replace(stripped, m[0], "", 1)
	}
	return strings.TrimSpace(stripped), blocks
}

func classifyAttachment(a domain.RawAttachment) domain.Attachment {
	kind := domain.AttachmentOther
	switch {
	case strings.HasPrefix(a.ContentType, "image/"):
		kind = domain.AttachmentImage
	case strings.HasPrefix(a.ContentType, "video/"):
		kind = domain.AttachmentVideo
	case a.ContentType == "application/pdf", strings.HasPrefix(a.ContentType, "text/"):
		kind = domain.AttachmentDocument
	}
	return domain.Attachment{Name: a.Name, Kind: kind}
}

func toMessage(raw domain.RawMessage) domain.Message {
	body, codeBlocks := extractCodeBlocks(cleanContent(raw.Content, raw.Mentions))

	attachments := make([]domain.Attachment, 0, len(raw.Attachments))
	for _, a := range raw.Attachments {
		attachments = append(attachments, classifyAttachment(a))
	}

	return domain.Message{
		ID:             raw.ID,
		AuthorID:       raw.AuthorID,
		AuthorName:     raw.AuthorName,
		AuthorIsBot:    raw.IsBot,
		Timestamp:      raw.Timestamp,
		Text:           body,
		CodeBlocks:     codeBlocks,
		MentionedUsers: raw.MentionedUsers,
		Attachments:    attachments,
		ParentThreadID: raw.ParentThreadID,
		ReplyToID:      raw.ReplyToID,
	}
}

func toSet(ss []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		set[s] = struct{}{}
	}
	return set
}
