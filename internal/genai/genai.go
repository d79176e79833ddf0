// Package genai provides the fallback answerer backed by the OpenAI API.
//
// Free-text questions that match no bot command are forwarded here; the
// answerer also decides whether the model's reply is meaningful enough to
// show the user.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// systemInstruction steers the model toward concise product answers.
const systemInstruction = "You are an assistant helping employees provide relevant product information to customers. " +
	"When asked a question, provide correct, concise, relevant, and to-the-point answers. " +
	"In your answers please do not mention anything about your latest update. " +
	"Make sure to include the most up-to-date and accurate information, particularly for product releases and specifications."

// maxResponseTokens caps the model's reply length.
const maxResponseTokens = 300

// ErrNoChoicesReturned indicates the completion response had no choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// Phrases that mark a reply as not meaningful; matched case-insensitively.
var notMeaningfulPhrases = []string{"i don't know", "i'm not sure"}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChatService adapts the real OpenAI client to chatService.
type openaiChatService struct {
	svc openai.ChatCompletionService
}

func (o *openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := o.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the answerer.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option configures the answerer.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the completion model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// Answerer forwards free-text questions to a chat completion endpoint.
type Answerer struct {
	chat  chatService
	model openai.ChatModel
}

// NewAnswerer initializes an answerer from options, falling back to the
// OPENAI_API_KEY environment variable.
func NewAnswerer(opts ...Option) (*Answerer, error) {
	cfg := Opts{Model: openai.ChatModelGPT4o}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("Answerer.NewAnswerer: created", "model", cfg.Model)
	return &Answerer{chat: &openaiChatService{svc: client.Chat.Completions}, model: cfg.Model}, nil
}

// Answer sends the question to the model under the fixed system instruction.
// The second return value reports whether the reply is meaningful; replies
// admitting ignorance are not, and the router shows its help text instead.
func (a *Answerer) Answer(ctx context.Context, question string) (string, bool, error) {
	slog.Debug("Answerer.Answer: handling generic question", "question", question)

	resp, err := a.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage(question),
		},
		MaxTokens: openai.Int(maxResponseTokens),
	})
	if err != nil {
		slog.Error("Answerer.Answer: completion call failed", "error", err)
		return "", false, err
	}
	if len(resp.Choices) == 0 {
		return "", false, ErrNoChoicesReturned
	}
	answer := resp.Choices[0].Message.Content

	if !Meaningful(answer) {
		slog.Debug("Answerer.Answer: reply judged not meaningful")
		return answer, false, nil
	}
	return answer, true, nil
}

// Meaningful reports whether a model reply should be shown to the user.
func Meaningful(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range notMeaningfulPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	return true
}
