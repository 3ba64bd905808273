package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func completion(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestGeneratePrompt_Success(t *testing.T) {
	mock := &mockChatService{resp: completion("Hello World")}
	client := &Client{chat: mock, model: "test-model"}
	out, err := client.GeneratePrompt("system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if len(mock.params.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(mock.params.Messages))
	}
}

func TestGeneratePrompt_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.GeneratePrompt("sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGeneratePrompt_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}}
	_, err := client.GeneratePrompt("sys", "usr")
	if err != ErrNoChoicesReturned {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("test-model"), WithMaxTokens(50))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Fatal("expected client instance, got nil")
	}
	if cli.model != "test-model" || cli.maxTokens != 50 || cli.temperature != DefaultTemperature {
		t.Errorf("options not applied: %+v", cli)
	}
}

type fixedMotivator string

func (f fixedMotivator) Motivation(ctx context.Context, kind models.MotivationKind, actionType models.ActionType, action string) string {
	return string(f)
}

func TestMotivator_UsesGeneration(t *testing.T) {
	mock := &mockChatService{resp: completion(`  "Open the file and write one line."  `)}
	m := NewMotivator(&Client{chat: mock, model: "test-model"}, fixedMotivator("fallback"))

	got := m.Motivation(context.Background(), models.MotivationStart, models.ActionMental, "write report")
	if got != "Open the file and write one line." {
		t.Errorf("unexpected motivation %q", got)
	}
}

func TestMotivator_FallsBack(t *testing.T) {
	cases := map[string]*mockChatService{
		"error": {err: errors.New("rate limited")},
		"empty": {resp: completion("   ")},
		"long":  {resp: completion(strings.Repeat("x", maxMotivationLen+1))},
	}
	for name, mock := range cases {
		m := NewMotivator(&Client{chat: mock}, fixedMotivator("fallback"))
		if got := m.Motivation(context.Background(), models.MotivationHard, models.ActionRoutine, "clean desk"); got != "fallback" {
			t.Errorf("%s: expected fallback, got %q", name, got)
		}
	}
}

func TestMotivationRequest(t *testing.T) {
	req := motivationRequest(models.MotivationQuit, models.ActionSocial, "call bank")
	if !strings.Contains(req, "call bank") || !strings.Contains(req, string(models.ActionSocial)) || !strings.Contains(req, "gave up") {
		t.Errorf("unexpected request %q", req)
	}
}
