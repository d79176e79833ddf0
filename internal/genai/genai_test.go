package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp openai.ChatCompletion
	err  error
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	return m.resp, m.err
}

func completionWith(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestAnswerMeaningful(t *testing.T) {
	a := &Answerer{chat: &mockChatService{resp: completionWith("The X1 ships with 32GB RAM.")}, model: openai.ChatModelGPT4o}
	text, meaningful, err := a.Answer(context.Background(), "how much RAM does the X1 have?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if !meaningful {
		t.Error("expected a meaningful reply")
	}
	if text != "The X1 ships with 32GB RAM." {
		t.Errorf("unexpected reply %q", text)
	}
}

func TestAnswerNotMeaningful(t *testing.T) {
	cases := []string{
		"I'm not sure about that one.",
		"Sorry, I don't know the answer.",
		"I'M NOT SURE what you mean.",
	}
	for _, reply := range cases {
		a := &Answerer{chat: &mockChatService{resp: completionWith(reply)}, model: openai.ChatModelGPT4o}
		_, meaningful, err := a.Answer(context.Background(), "question")
		if err != nil {
			t.Fatalf("Answer failed for %q: %v", reply, err)
		}
		if meaningful {
			t.Errorf("reply %q should not be meaningful", reply)
		}
	}
}

func TestAnswerServiceError(t *testing.T) {
	a := &Answerer{chat: &mockChatService{err: errors.New("service failure")}, model: openai.ChatModelGPT4o}
	_, meaningful, err := a.Answer(context.Background(), "question")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
	if meaningful {
		t.Error("a failed call must not count as meaningful")
	}
}

func TestAnswerNoChoices(t *testing.T) {
	a := &Answerer{chat: &mockChatService{resp: openai.ChatCompletion{}}, model: openai.ChatModelGPT4o}
	_, _, err := a.Answer(context.Background(), "question")
	if err != ErrNoChoicesReturned {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestNewAnswererNoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewAnswerer(); err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}
