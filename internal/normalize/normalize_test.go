package normalize

import (
	"testing"
	"time"

	"summarybot-ng/internal/domain"
)

func TestNormalizeFiltering(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		raw            domain.RawMessage
		opts           domain.SummaryOptions
		expectedResult bool
		description    string
	}{
		{
			name:           "system message",
			raw:            domain.RawMessage{ID: "1", AuthorID: "u1", Content: "joined the server", Timestamp: base, IsSystem: true},
			expectedResult: false,
			description:    "system messages never carry conversation content",
		},
		{
			name:           "bot message excluded by default",
			raw:            domain.RawMessage{ID: "2", AuthorID: "bot1", Content: "deploy finished", Timestamp: base, IsBot: true},
			opts:           domain.SummaryOptions{IncludeBots: false},
			expectedResult: false,
			description:    "default options drop bot authors",
		},
		{
			name:           "bot message included when requested",
			raw:            domain.RawMessage{ID: "3", AuthorID: "bot1", Content: "deploy finished", Timestamp: base, IsBot: true},
			opts:           domain.SummaryOptions{IncludeBots: true},
			expectedResult: true,
			description:    "IncludeBots=true keeps bot authors",
		},
		{
			name:           "explicitly excluded user",
			raw:            domain.RawMessage{ID: "4", AuthorID: "u2", Content: "hello", Timestamp: base},
			opts:           domain.SummaryOptions{ExcludedUsers: []string{"u2"}},
			expectedResult: false,
			description:    "per-request exclusion list always wins",
		},
		{
			name:           "empty content and no attachments",
			raw:            domain.RawMessage{ID: "5", AuthorID: "u1", Content: "   ", Timestamp: base},
			expectedResult: false,
			description:    "whitespace-only text with nothing attached carries no signal",
		},
		{
			name:           "empty content with an attachment survives",
			raw:            domain.RawMessage{ID: "6", AuthorID: "u1", Content: "", Timestamp: base, Attachments: []domain.RawAttachment{{Name: "diagram.png", ContentType: "image/png"}}},
			expectedResult: true,
			description:    "an attachment alone is still a contribution worth surfacing",
		},
		{
			name:           "ordinary message",
			raw:            domain.RawMessage{ID: "7", AuthorID: "u1", Content: "let's ship it", Timestamp: base},
			expectedResult: true,
			description:    "baseline passthrough case",
		},
		{
			name:           "standalone emoji with no other text",
			raw:            domain.RawMessage{ID: "8", AuthorID: "u1", Content: "🎉🎉🎉", Timestamp: base},
			expectedResult: false,
			description:    "emoji-only text carries no conversational signal",
		},
		{
			name:           "emoji alongside real text survives",
			raw:            domain.RawMessage{ID: "9", AuthorID: "u1", Content: "shipped it 🎉", Timestamp: base},
			expectedResult: true,
			description:    "emoji next to real words should not cause a drop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize([]domain.RawMessage{tt.raw}, tt.opts)
			got := len(result) == 1
			if got != tt.expectedResult {
				t.Errorf("%s: got survived=%v, want %v", tt.description, got, tt.expectedResult)
			}
		})
	}
}

func TestExtractCodeBlocks(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantBlocks   int
		wantStripped string
	}{
		{
			name:         "no code block",
			content:      "just talking",
			wantBlocks:   0,
			wantStripped: "just talking",
		},
		{
			name:         "single fenced block",
			content:      "see this:\n```go\nfmt.Println(1)\n```",
			wantBlocks:   1,
			wantStripped: "see this:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stripped, blocks := extractCodeBlocks(tt.content)
			if len(blocks) != tt.wantBlocks {
				t.Fatalf("got %d blocks, want %d", len(blocks), tt.wantBlocks)
			}
			if stripped != tt.wantStripped {
				t.Errorf("got stripped %q, want %q", stripped, tt.wantStripped)
			}
		})
	}
}

func TestNormalizeRewritesMentions(t *testing.T) {
	raw := domain.RawMessage{
		ID:        "1",
		AuthorID:  "u1",
		Content:   "hey <@123>, did you see <@!456>'s PR?",
		Timestamp: time.Now(),
		Mentions: []domain.UserMention{
			{ID: "123", DisplayName: "Ada"},
			{ID: "456", DisplayName: "Grace"},
		},
	}

	msgs := Normalize([]domain.RawMessage{raw}, domain.SummaryOptions{})
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	want := "hey @Ada, did you see @Grace's PR?"
	if msgs[0].Text != want {
		t.Errorf("got %q, want %q", msgs[0].Text, want)
	}
}

func TestNormalizeLeavesUnresolvedMentionTokenUntouched(t *testing.T) {
	raw := domain.RawMessage{
		ID:        "1",
		AuthorID:  "u1",
		Content:   "ping <@999>",
		Timestamp: time.Now(),
	}

	msgs := Normalize([]domain.RawMessage{raw}, domain.SummaryOptions{})
	if len(msgs) != 1 || msgs[0].Text != "ping <@999>" {
		t.Fatalf("expected unresolved mention token left as-is, got %+v", msgs)
	}
}

func TestNormalizePreservesOrder(t *testing.T) {
	raws := []domain.RawMessage{
		{ID: "a", AuthorID: "u1", Content: "first", Timestamp: time.Unix(100, 0)},
		{ID: "b", AuthorID: "u1", Content: "second", Timestamp: time.Unix(200, 0)},
	}

	msgs := Normalize(raws, domain.SummaryOptions{})
	if len(msgs) != 2 || msgs[0].ID != "a" || msgs[1].ID != "b" {
		t.Fatalf("expected order preserved, got %+v", msgs)
	}
}
