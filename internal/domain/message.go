// Package domain holds the plain data types shared across the summarization
// pipeline: messages, requests, summaries, guild configuration, and
// scheduled-task bookkeeping. None of these types carry behavior beyond
// small accessors; the components in internal/* operate on them.
package domain

import "time"

// CodeBlock is a fenced code block extracted from a message's raw text.
type CodeBlock struct {
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
}

// AttachmentKind classifies an attachment for display purposes.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentDocument AttachmentKind = "document"
	AttachmentOther    AttachmentKind = "other"
)

// Attachment describes a file attached to a message.
type Attachment struct {
	Name  string         `json:"name"`
	Bytes int64          `json:"bytes"`
	Kind  AttachmentKind `json:"kind"`
}

// Message is the canonical, filtered/normalized representation of a single
// chat message. It is transient: produced by MessageSource + normalize,
// consumed by PromptBuilder, never persisted on its own.
type Message struct {
	ID              string       `json:"id"`
	AuthorID        string       `json:"authorId"`
	AuthorName      string       `json:"authorName"`
	AuthorIsBot     bool         `json:"authorIsBot"`
	Timestamp       time.Time    `json:"timestamp"`
	Text            string       `json:"text"`
	CodeBlocks      []CodeBlock  `json:"codeBlocks,omitempty"`
	MentionedUsers  []string     `json:"mentionedUsers,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	ParentThreadID  string       `json:"parentThreadId,omitempty"`
	ReplyToID       string       `json:"replyToId,omitempty"`
}

// RawAttachment is an attachment as reported by the platform API, before
// Kind classification and byte-size normalization.
type RawAttachment struct {
	Name        string
	ContentType string
	URL         string
}

// UserMention pairs a platform user identifier with the display name
// normalize should substitute for it when rewriting a raw `<@id>`
// mention token.
type UserMention struct {
	ID          string
	DisplayName string
}

// RawMessage is what MessageSource returns before filtering/normalization:
// the platform's own shape, unfiltered.
type RawMessage struct {
	ID             string
	ChannelID      string
	AuthorID       string
	AuthorName     string
	IsBot          bool
	IsSystem       bool
	Timestamp      time.Time
	Content        string
	MentionedUsers []string
	MentionedRoles []string
	Mentions       []UserMention
	Attachments    []RawAttachment
	ParentThreadID string
	ReplyToID      string
}
