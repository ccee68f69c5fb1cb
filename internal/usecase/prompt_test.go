// File: internal/usecase/prompt_test.go
package usecase

import (
	"strings"
	"testing"
)

func TestPromptBuilderRendersPaperAndLimit(t *testing.T) {
	b := NewPromptBuilder(0)
	paper := map[string]any{
		"title":    "Deep Froth Networks",
		"abstract": "We study froth.",
		"code_url": "https://example.com/repo.git",
	}
	prompt, err := b.Build(paper, 7)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(prompt, "up to 7 aspects") {
		t.Error("item limit not rendered")
	}
	if !strings.Contains(prompt, `"title": "Deep Froth Networks"`) {
		t.Error("paper payload not embedded")
	}
	if !strings.Contains(prompt, `# Critical Assessment`) {
		t.Error("prompt does not request the assessment document format")
	}
	if !strings.Contains(prompt, "### Item N:") {
		t.Error("prompt does not request item headers")
	}
	if !strings.Contains(prompt, "**Claim**") || !strings.Contains(prompt, "**Evidence**") || !strings.Contains(prompt, "**Impact**") {
		t.Error("prompt does not request claim/evidence/impact fields")
	}
}

func TestPromptBuilderRejectsUnmarshalablePayload(t *testing.T) {
	b := NewPromptBuilder(0)
	if _, err := b.Build(map[string]any{"bad": make(chan int)}, 5); err == nil {
		t.Error("expected marshal error")
	}
}
