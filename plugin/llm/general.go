package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/finbuddy/finbuddy/internal/profile"
)

// generalSystemPrompt pins the fallback assistant to the product persona.
// The fallback has no access to the user's financial records, so it must
// answer generally and say so when asked about specifics.
const generalSystemPrompt = `You are FinBuddy, a friendly personal-finance assistant. ` +
	`Help the user with budgeting, spending habits, and general financial literacy. ` +
	`You do not have access to the user's accounts or transaction records, so never ` +
	`invent balances or figures; suggest checking the app's dashboard instead. ` +
	`Keep answers concise and practical. Do not give regulated investment advice.`

// Fixed sampling parameters for fallback completions.
const (
	generalTemperature = 0.7
	generalMaxTokens   = 500
)

// GeneralClient talks to an OpenAI-compatible chat-completion backend. It is
// the fallback provider, used only when the knowledge backend fails.
type GeneralClient struct {
	client  *openai.Client
	model   string
	baseURL string
}

// NewGeneralClient creates a client for the configured general backend.
func NewGeneralClient(profile *profile.Profile) *GeneralClient {
	config := openai.DefaultConfig(profile.GeneralAPIKey)
	if profile.GeneralBaseURL != "" {
		config.BaseURL = profile.GeneralBaseURL
	}
	return &GeneralClient{
		client:  openai.NewClientWithConfig(config),
		model:   profile.GeneralModel,
		baseURL: config.BaseURL,
	}
}

// Model returns the configured completion model identifier.
func (c *GeneralClient) Model() string { return c.model }

// Complete sends the system persona, the bounded history oldest-first, and
// the new user message to the completion backend and returns the reply text.
func (c *GeneralClient) Complete(ctx context.Context, text string, history []Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: generalSystemPrompt,
	})
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: generalTemperature,
		MaxTokens:   generalMaxTokens,
	})
	if err != nil {
		return "", c.classifyError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &MalformedResponseError{
			Endpoint: c.baseURL,
			Raw:      fmt.Sprintf("%d choices", len(resp.Choices)),
			Cause:    errors.New("completion returned no content"),
		}
	}
	return resp.Choices[0].Message.Content, nil
}

// Probe lists the backend's models as a lightweight liveness check.
func (c *GeneralClient) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := c.client.ListModels(ctx); err != nil {
		return c.classifyError(err)
	}
	return nil
}

// classifyError maps go-openai errors onto the provider error taxonomy.
func (c *GeneralClient) classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{
			Endpoint:   c.baseURL,
			StatusCode: apiErr.HTTPStatusCode,
			Body:       apiErr.Message,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{
			Endpoint:   c.baseURL,
			StatusCode: reqErr.HTTPStatusCode,
			Body:       reqErr.Error(),
		}
	}
	return classifyRequestError(c.baseURL, err)
}
