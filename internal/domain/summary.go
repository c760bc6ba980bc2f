package domain

import "time"

// LengthProfile governs prompt structure and output budget.
type LengthProfile string

const (
	LengthBrief         LengthProfile = "brief"
	LengthDetailed      LengthProfile = "detailed"
	LengthComprehensive LengthProfile = "comprehensive"
)

// SummaryOptions is the set of knobs a SummaryRequest or a GuildConfig
// default carries. Kept separate from SummaryRequest so GuildConfig can
// embed it as "default options" without duplicating the window fields.
type SummaryOptions struct {
	LengthProfile    LengthProfile `json:"lengthProfile"`
	IncludeBots      bool          `json:"includeBots"`
	ExcludedUsers    []string      `json:"excludedUsers,omitempty"`
	MinMessages      int           `json:"minMessages"`
	Model            string        `json:"model"`
	Temperature      float64       `json:"temperature"`
	MaxOutputTokens  int           `json:"maxOutputTokens"`
}

// SummaryRequest is transient: it describes what to summarize and how.
type SummaryRequest struct {
	ChannelID string         `json:"channelId"`
	GuildID   string         `json:"guildId"`
	Start     time.Time      `json:"start"`
	End       time.Time      `json:"end"`
	Options   SummaryOptions `json:"options"`
}

// Priority levels for action items.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ActionItem is a concrete, tagged record — not an untyped map.
type ActionItem struct {
	Description        string   `json:"description"`
	Assignee            string   `json:"assignee,omitempty"`
	Deadline            *time.Time `json:"deadline,omitempty"`
	Priority            Priority `json:"priority"`
	SourceMessageIDs    []string `json:"sourceMessageIds,omitempty"`
}

// TechnicalTerm is a concrete, tagged record.
type TechnicalTerm struct {
	Term             string `json:"term"`
	Definition       string `json:"definition"`
	SourceMessageID  string `json:"sourceMessageId,omitempty"`
}

// Participant is a concrete, tagged record.
type Participant struct {
	UserID                string   `json:"userId"`
	DisplayName           string   `json:"displayName"`
	MessageCount          int      `json:"messageCount"`
	NotableContributions  []string `json:"notableContributions,omitempty"`
}

// GenerationMetadata records how a Summary was produced.
type GenerationMetadata struct {
	Model            string  `json:"model"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	WallClockMs      int64   `json:"wallClockMs"`
	CostEstimate     float64 `json:"costEstimate"`
}

// Summary is the persisted result of running the pipeline once.
type Summary struct {
	ID               string          `json:"id"`
	Fingerprint      Fingerprint     `json:"fingerprint"`
	ChannelID        string          `json:"channelId"`
	GuildID          string          `json:"guildId"`
	Start            time.Time       `json:"start"`
	End              time.Time       `json:"end"`
	ProcessedCount   int             `json:"processedCount"`
	Body             string          `json:"body"`
	KeyPoints        []string        `json:"keyPoints,omitempty"`
	ActionItems      []ActionItem    `json:"actionItems,omitempty"`
	TechnicalTerms   []TechnicalTerm `json:"technicalTerms,omitempty"`
	Participants     []Participant   `json:"participants,omitempty"`
	Metadata         GenerationMetadata `json:"metadata"`
	CreatedAt        time.Time       `json:"createdAt"`
	Warnings         []string        `json:"warnings,omitempty"`
	SchemaVersion    int             `json:"schemaVersion"`
}

// Fingerprint is the stable identity of a SummaryRequest's semantic content.
// Equal fingerprints must yield equal results modulo model nondeterminism.
type Fingerprint string
