package responseparser

import (
	"testing"

	"summarybot-ng/internal/domain"
)

func TestParseStrategies(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantBody      string
		wantKeyPoints int
		wantWarning   bool
		description   string
	}{
		{
			name:          "balanced JSON object",
			raw:           `Some preamble the model added. {"body": "discussed the release", "keyPoints": ["shipped v2", "fixed auth bug"]} trailing noise`,
			wantBody:      "discussed the release",
			wantKeyPoints: 2,
			wantWarning:   false,
			description:   "JSON strategy should win even with surrounding prose",
		},
		{
			name: "markdown headings",
			raw: "Some context here.\n\n## Key points\n- shipped v2\n- fixed auth bug\n\n## Action items\n- @alice fix the flaky test !\n",
			wantBody:      "Some context here.",
			wantKeyPoints: 2,
			wantWarning:   false,
			description:   "recognized headings should split into sections",
		},
		{
			name:          "freeform bullets",
			raw:           "Talked about the new release.\n- shipped v2\n- fixed auth bug\nEveryone agreed it went well.",
			wantBody:      "Talked about the new release. Everyone agreed it went well.",
			wantKeyPoints: 2,
			wantWarning:   true,
			description:   "no JSON, no recognized headings, falls back to freeform parsing with a warning",
		},
		{
			name:          "pure prose with no structure",
			raw:           "Just a single paragraph with no bullets at all.",
			wantBody:      "Just a single paragraph with no bullets at all.",
			wantKeyPoints: 0,
			wantWarning:   true,
			description:   "worst case still returns a body, never errors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if got.Body != tt.wantBody {
				t.Errorf("%s: body = %q, want %q", tt.description, got.Body, tt.wantBody)
			}
			if len(got.KeyPoints) != tt.wantKeyPoints {
				t.Errorf("%s: got %d key points, want %d", tt.description, len(got.KeyPoints), tt.wantKeyPoints)
			}
			hasWarning := len(got.Warnings) > 0
			if hasWarning != tt.wantWarning {
				t.Errorf("%s: warnings present = %v, want %v", tt.description, hasWarning, tt.wantWarning)
			}
		})
	}
}

func TestActionItemPriorityInference(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected domain.Priority
	}{
		{"bang marks urgent", "fix this now !", domain.PriorityHigh},
		{"urgent keyword", "this is urgent, fix the login bug", domain.PriorityHigh},
		{"low keyword", "low priority cleanup task", domain.PriorityLow},
		{"no signal defaults medium", "update the changelog", domain.PriorityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := parseActionItems([]string{tt.line})
			if items[0].Priority != tt.expected {
				t.Errorf("got priority %v, want %v", items[0].Priority, tt.expected)
			}
		})
	}
}

func TestActionItemAssigneeExtraction(t *testing.T) {
	items := parseActionItems([]string{"@bob needs to review the PR", "carol: update the docs"})
	if items[0].Assignee != "bob" {
		t.Errorf("got assignee %q, want bob", items[0].Assignee)
	}
	if items[1].Assignee != "carol" {
		t.Errorf("got assignee %q, want carol", items[1].Assignee)
	}
}
