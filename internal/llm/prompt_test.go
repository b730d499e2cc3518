package llm

import (
	"strings"
	"testing"
)

func TestPrompt_Render(t *testing.T) {
	out, err := PolicyQueriesPrompt.Render(map[string]string{"claim_info": `{"claim_number":"C100"}`})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, `Claim Info:
{"claim_number":"C100"}`) {
		t.Errorf("Claim info not rendered: %s", out)
	}
	if !strings.Contains(out, "3 to 5 queries") {
		t.Error("Expected instructions in prompt")
	}
}

func TestPrompt_RenderDoesNotEscape(t *testing.T) {
	out, err := PolicyRecommendationPrompt.Render(map[string]string{
		"claim_info":  `{"a":"<b>"}`,
		"policy_text": "Deductible & limits",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, `{"a":"<b>"}`) || !strings.Contains(out, "Deductible & limits") {
		t.Errorf("Arguments should be inserted verbatim: %s", out)
	}
}

func TestPrompt_MissingArgument(t *testing.T) {
	_, err := PolicyRecommendationPrompt.Render(map[string]string{"claim_info": "{}"})
	if err == nil {
		t.Fatal("Expected error for missing policy_text")
	}
	if !strings.Contains(err.Error(), "policy_recommendation") {
		t.Errorf("Expected prompt name in error, got %v", err)
	}
}

func TestNewPrompt_ParseError(t *testing.T) {
	if _, err := NewPrompt("broken", "{{.claim_info"); err == nil {
		t.Fatal("Expected parse error")
	}
}
