package gemini_test

import (
	"context"
	"errors"
	"testing"

	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/services"
	"recap/internal/services/gemini"
)

func testConfig(maxRetries int) config.Gemini {
	return config.Gemini{
		AnalysisModel:  "gemini-2.0-flash",
		ScriptModel:    "gemini-2.0-pro",
		TimeoutSeconds: 5,
		MaxRetries:     maxRetries,
	}
}

func TestGenerateTextRetriesTransientFailures(t *testing.T) {
	calls := 0
	generate := func(ctx context.Context, model, prompt string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("503 service unavailable")
		}
		return "recovered", nil
	}

	client := gemini.NewClientWithGenerator(generate, testConfig(3), logging.NewNop())
	text, err := client.GenerateText(context.Background(), "gemini-2.0-flash", "prompt")
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}
	if text != "recovered" {
		t.Fatalf("text = %q", text)
	}
	if calls != 3 {
		t.Fatalf("generate called %d times, want 3", calls)
	}
}

func TestGenerateTextStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	generate := func(ctx context.Context, model, prompt string) (string, error) {
		calls++
		return "", services.Wrap(services.ErrValidation, "gemini", "generate", "bad prompt", nil)
	}

	client := gemini.NewClientWithGenerator(generate, testConfig(5), logging.NewNop())
	_, err := client.GenerateText(context.Background(), "gemini-2.0-flash", "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("generate called %d times, want 1", calls)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error not classified as external tool failure: %v", err)
	}
}

func TestGenerateTextExhaustsRetries(t *testing.T) {
	calls := 0
	generate := func(ctx context.Context, model, prompt string) (string, error) {
		calls++
		return "", errors.New("connection reset")
	}

	client := gemini.NewClientWithGenerator(generate, testConfig(2), logging.NewNop())
	_, err := client.GenerateText(context.Background(), "gemini-2.0-flash", "prompt")
	if err == nil {
		t.Fatal("expected error after retries")
	}
	if calls != 3 {
		t.Fatalf("generate called %d times, want 3", calls)
	}
}

func TestGenerateJSONStripsCodeFence(t *testing.T) {
	generate := func(ctx context.Context, model, prompt string) (string, error) {
		return "```json\n{\"answer\": 42}\n```", nil
	}

	client := gemini.NewClientWithGenerator(generate, testConfig(0), logging.NewNop())
	var out struct {
		Answer int `json:"answer"`
	}
	if err := client.GenerateJSON(context.Background(), "gemini-2.0-flash", "prompt", &out); err != nil {
		t.Fatalf("GenerateJSON failed: %v", err)
	}
	if out.Answer != 42 {
		t.Fatalf("answer = %d", out.Answer)
	}
}

func TestGenerateJSONRejectsMalformedResponse(t *testing.T) {
	generate := func(ctx context.Context, model, prompt string) (string, error) {
		return "I cannot help with that.", nil
	}

	client := gemini.NewClientWithGenerator(generate, testConfig(0), logging.NewNop())
	var out map[string]any
	err := client.GenerateJSON(context.Background(), "gemini-2.0-flash", "prompt", &out)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error not classified: %v", err)
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced with tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := gemini.StripCodeFence(tc.input); got != tc.want {
				t.Fatalf("StripCodeFence(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestGenerateTextRequiresModel(t *testing.T) {
	client := gemini.NewClientWithGenerator(func(context.Context, string, string) (string, error) {
		return "", nil
	}, testConfig(0), logging.NewNop())
	if _, err := client.GenerateText(context.Background(), "", "prompt"); err == nil {
		t.Fatal("expected error for missing model")
	}
}
