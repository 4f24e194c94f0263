package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := Estimate(tc.input); got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	// Each: 4 overhead + Estimate("user")=1 + Estimate("hello world")=2.
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.UserMessage("hello world"),
	}
	if got := EstimateMessages(msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func Test_TrimHistory_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.UserMessage("question")}
	history := []*schema.Message{
		schema.UserMessage("hi"),
		schema.AssistantMessage("there", nil),
	}
	if got := TrimHistory(fixed, history, DefaultMaxContextTokens); len(got) != 2 {
		t.Errorf("want 2 history messages, got %d", len(got))
	}
}

func Test_TrimHistory_DropsWholeTurns(t *testing.T) {
	t.Parallel()
	history := []*schema.Message{
		schema.UserMessage("old question"),
		schema.AssistantMessage("old answer", nil),
		schema.UserMessage("new question"),
		schema.AssistantMessage("new answer", nil),
	}
	newest := EstimateMessages(history[2:])

	got := TrimHistory(nil, history, newest)
	if len(got) != 2 {
		t.Fatalf("want the newest turn only, got %d messages", len(got))
	}
	if got[0].Role != schema.User || got[0].Content != "new question" {
		t.Errorf("trimmed history must open with the newest user message, got %s %q", got[0].Role, got[0].Content)
	}
}

func Test_TrimHistory_FixedExceedsBudget(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.UserMessage(strings.Repeat("x", 400))}
	history := []*schema.Message{
		schema.UserMessage("q"),
		schema.AssistantMessage("a", nil),
	}
	if got := TrimHistory(fixed, history, 10); len(got) != 0 {
		t.Errorf("want empty history, got %d", len(got))
	}
}

func Test_TrimHistory_EmptyHistory(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.SystemMessage("sys")}
	if got := TrimHistory(fixed, nil, DefaultMaxContextTokens); len(got) != 0 {
		t.Errorf("want empty, got %d", len(got))
	}
}
