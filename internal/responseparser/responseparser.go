// Package responseparser extracts structured summary sections from raw
// LLM text, trying a balanced-JSON strategy, then a Markdown-heading
// strategy, then a freeform bullet/body fallback. It always succeeds;
// the worst case is an unstructured body plus a warning, per spec.md §4.6.
package responseparser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"summarybot-ng/internal/domain"
)

// Parsed is what ResponseParser hands SummaryEngine to fold into a Summary.
type Parsed struct {
	Body           string
	KeyPoints      []string
	ActionItems    []domain.ActionItem
	TechnicalTerms []domain.TechnicalTerm
	Participants   []domain.Participant
	Warnings       []string
}

// Parse runs the three-strategy chain over raw LLM output.
func Parse(raw string) Parsed {
	raw = strings.TrimSpace(raw)

	if obj, ok := extractBalancedJSON(raw); ok {
		if parsed, ok := fromJSON(obj); ok {
			return parsed
		}
	}

	if hasRecognizedHeadings(raw) {
		return fromMarkdown(raw)
	}

	return fromFreeform(raw)
}

type jsonSummary struct {
	Body           string               `json:"body"`
	KeyPoints      []string             `json:"keyPoints"`
	ActionItems    []jsonActionItem     `json:"actionItems"`
	TechnicalTerms []domain.TechnicalTerm `json:"technicalTerms"`
	Participants   []domain.Participant `json:"participants"`
}

type jsonActionItem struct {
	Description      string   `json:"description"`
	Assignee         string   `json:"assignee"`
	Priority         string   `json:"priority"`
	SourceMessageIDs []string `json:"sourceMessageIds"`
}

// extractBalancedJSON finds the first brace-balanced {...} substring.
func extractBalancedJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escape:
			escape = false
		case c == '\\':
			escape = true
		case c == '"':
			inString = !inString
		case inString:
			// inside a string literal, braces don't count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func fromJSON(obj string) (Parsed, bool) {
	var js jsonSummary
	if err := json.Unmarshal([]byte(obj), &js); err != nil {
		return Parsed{}, false
	}
	if js.Body == "" && len(js.KeyPoints) == 0 {
		return Parsed{}, false
	}

	items := make([]domain.ActionItem, 0, len(js.ActionItems))
	for _, ai := range js.ActionItems {
		items = append(items, domain.ActionItem{
			Description:      ai.Description,
			Assignee:         ai.Assignee,
			Priority:         inferPriorityFromLabel(ai.Priority),
			SourceMessageIDs: ai.SourceMessageIDs,
		})
	}

	return Parsed{
		Body:           js.Body,
		KeyPoints:      js.KeyPoints,
		ActionItems:    items,
		TechnicalTerms: js.TechnicalTerms,
		Participants:   js.Participants,
	}, true
}

var headingPattern = regexp.MustCompile(`(?im)^#{1,3}\s*(Key points|Action items|Participants|Technical terms)\s*$`)

func hasRecognizedHeadings(text string) bool {
	return headingPattern.MatchString(text)
}

func fromMarkdown(text string) Parsed {
	sections := splitSections(text)

	var parsed Parsed
	parsed.Body = sections[""]
	if kp, ok := sections["key points"]; ok {
		parsed.KeyPoints = bulletLines(kp)
	}
	if ai, ok := sections["action items"]; ok {
		parsed.ActionItems = parseActionItems(bulletLines(ai))
	}
	if tt, ok := sections["technical terms"]; ok {
		parsed.TechnicalTerms = parseTechnicalTerms(bulletLines(tt))
	}
	if pt, ok := sections["participants"]; ok {
		parsed.Participants = parseParticipants(bulletLines(pt))
	}
	return parsed
}

// splitSections divides text by recognized headings; the "" key holds
// everything before the first recognized heading.
func splitSections(text string) map[string]string {
	matches := headingPattern.FindAllStringSubmatchIndex(text, -1)
	sections := map[string]string{}
	if len(matches) == 0 {
		sections[""] = text
		return sections
	}

	sections[""] = strings.TrimSpace(text[:matches[0][0]])
	for i, m := range matches {
		name := strings.ToLower(text[m[2]:m[3]])
		bodyStart := m[1]
		bodyEnd := len(text)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		sections[name] = strings.TrimSpace(text[bodyStart:bodyEnd])
	}
	return sections
}

var bulletPattern = regexp.MustCompile(`(?m)^\s*[-*•]\s+(.*)$`)

func bulletLines(section string) []string {
	matches := bulletPattern.FindAllStringSubmatch(section, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

func fromFreeform(text string) Parsed {
	lines := strings.Split(text, "\n")
	var keyPoints []string
	var bodyLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			keyPoints = append(keyPoints, strings.TrimSpace(m[1]))
			continue
		}
		if trimmed != "" {
			bodyLines = append(bodyLines, trimmed)
		}
	}

	return Parsed{
		Body:      strings.Join(bodyLines, " "),
		KeyPoints: keyPoints,
		Warnings:  []string{"unstructured-response"},
	}
}

var assigneeAtPattern = regexp.MustCompile(`@(\w+)`)
var assigneeColonPattern = regexp.MustCompile(`^(\w+):\s*`)

func parseActionItems(lines []string) []domain.ActionItem {
	items := make([]domain.ActionItem, 0, len(lines))
	for _, line := range lines {
		item := domain.ActionItem{
			Description: line,
			Priority:    inferPriority(line),
		}
		if m := assigneeAtPattern.FindStringSubmatch(line); m != nil {
			item.Assignee = m[1]
		} else if m := assigneeColonPattern.FindStringSubmatch(line); m != nil {
			item.Assignee = m[1]
		}
		items = append(items, item)
	}
	return items
}

var (
	highPriorityPattern = regexp.MustCompile(`\b(urgent|high)\b`)
	lowPriorityPattern  = regexp.MustCompile(`\blow\b`)
)

// inferPriority reads literal tokens ("!" or urgent/high/medium/low)
// from a freeform action-item line, defaulting to medium.
func inferPriority(line string) domain.Priority {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(line, "!"), highPriorityPattern.MatchString(lower):
		return domain.PriorityHigh
	case lowPriorityPattern.MatchString(lower):
		return domain.PriorityLow
	default:
		return domain.PriorityMedium
	}
}

func inferPriorityFromLabel(label string) domain.Priority {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "high", "urgent":
		return domain.PriorityHigh
	case "low":
		return domain.PriorityLow
	case "medium":
		return domain.PriorityMedium
	default:
		return domain.PriorityMedium
	}
}

func parseTechnicalTerms(lines []string) []domain.TechnicalTerm {
	terms := make([]domain.TechnicalTerm, 0, len(lines))
	for _, line := range lines {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			terms = append(terms, domain.TechnicalTerm{
				Term:       strings.TrimSpace(parts[0]),
				Definition: strings.TrimSpace(parts[1]),
			})
		} else {
			terms = append(terms, domain.TechnicalTerm{Term: line})
		}
	}
	return terms
}

var participantCountPattern = regexp.MustCompile(`\((\d+)\s*messages?\)`)

func parseParticipants(lines []string) []domain.Participant {
	participants := make([]domain.Participant, 0, len(lines))
	for _, line := range lines {
		p := domain.Participant{DisplayName: line}
		if m := participantCountPattern.FindStringSubmatch(line); m != nil {
			count, _ := strconv.Atoi(m[1])
			p.MessageCount = count
			p.DisplayName = strings.TrimSpace(participantCountPattern.ReplaceAllString(line, ""))
		}
		participants = append(participants, p)
	}
	return participants
}
