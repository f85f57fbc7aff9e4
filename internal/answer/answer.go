// Package answer produces free-text answers through an OpenAI-compatible
// chat completion endpoint. The orchestrator uses it for general questions
// and as a fallback when deterministic text composition yields nothing
// substantive.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/loomhq/loom/internal/observability"
)

// ErrAnswerUnavailable covers completion transport and API failures.
var ErrAnswerUnavailable = errors.New("answer service unavailable")

// Turn is one prior message handed to the model as context, oldest first.
type Turn struct {
	Role    string
	Content string
}

// Service generates a textual answer for a user prompt.
type Service interface {
	Answer(ctx context.Context, prompt string, history []Turn) (string, error)
}

const systemPrompt = "You are a concise assistant for a personal finance and shopping application. " +
	"Answer in plain language. If you do not have the data, say so briefly."

// OpenAIService implements Service on an OpenAI-compatible API.
type OpenAIService struct {
	client  *openai.Client
	model   string
	metrics *observability.Metrics
}

// Options configures the completion client. BaseURL is optional and allows
// pointing at any OpenAI-compatible server.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAIService creates the completion-backed answer service.
func NewOpenAIService(opts Options, metrics *observability.Metrics) *OpenAIService {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIService{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		metrics: metrics,
	}
}

// Answer runs one chat completion over the history plus the prompt.
func (s *OpenAIService) Answer(ctx context.Context, prompt string, history []Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if strings.EqualFold(turn.Role, "assistant") {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		s.count("error")
		return "", fmt.Errorf("%w: %v", ErrAnswerUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		s.count("error")
		return "", fmt.Errorf("%w: empty completion", ErrAnswerUnavailable)
	}
	s.count("success")
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (s *OpenAIService) count(status string) {
	if s.metrics != nil {
		s.metrics.AnswerRequests.WithLabelValues(status).Inc()
	}
}
