package promptbuilder

import (
	"strings"
	"testing"
	"time"

	"summarybot-ng/internal/domain"
)

func messagesOfLength(n int, textLen int) []domain.Message {
	out := make([]domain.Message, n)
	for i := 0; i < n; i++ {
		out[i] = domain.Message{
			ID:         string(rune('a' + i%26)),
			AuthorName: "user",
			Timestamp:  time.Unix(int64(i*60), 0),
			Text:       strings.Repeat("x", textLen),
		}
	}
	return out
}

func TestBuildUserPrompt(t *testing.T) {
	tests := []struct {
		name        string
		messages    []domain.Message
		budget      Budget
		expectElide bool
		expectError bool
		description string
	}{
		{
			name:        "small conversation fits without elision",
			messages:    messagesOfLength(5, 10),
			budget:      Budget{MaxPromptTokens: 100000, MaxOutputTokens: 1000},
			expectElide: false,
			description: "plenty of headroom, no elision marker expected",
		},
		{
			name:        "large conversation triggers middle elision",
			messages:    messagesOfLength(200, 200),
			budget:      Budget{MaxPromptTokens: 10000, MaxOutputTokens: 200},
			expectElide: true,
			description: "200 verbose messages overflow a 10000-token budget",
		},
		{
			name:        "budget too small even for the envelope",
			messages:    messagesOfLength(200, 200),
			budget:      Budget{MaxPromptTokens: 260, MaxOutputTokens: 200},
			expectError: true,
			description: "safety margin alone consumes the entire remaining budget",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildUserPrompt(tt.messages, Context{ChannelName: "general", GuildName: "g", ParticipantCount: 3, SpanHours: 2}, tt.budget)
			if tt.expectError {
				if err == nil {
					t.Fatalf("%s: expected error, got none", tt.description)
				}
				return
			}
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.description, err)
			}
			hasMarker := strings.Contains(got, "messages omitted")
			if hasMarker != tt.expectElide {
				t.Errorf("%s: elision marker present=%v, want %v", tt.description, hasMarker, tt.expectElide)
			}
		})
	}
}

func TestBuildSystemPromptVariesByProfile(t *testing.T) {
	brief := BuildSystemPrompt(domain.LengthBrief)
	comprehensive := BuildSystemPrompt(domain.LengthComprehensive)
	if brief == comprehensive {
		t.Fatal("expected distinct system prompts per length profile")
	}
}
